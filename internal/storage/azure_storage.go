package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

type AzureSource struct {
	client *azblob.Client
}

func NewAzureSource(accountName string, accountKey string) (*AzureSource, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return &AzureSource{client: client}, nil
}

// ParseBlobURL splits a blob URL into container and blob name. Both the
// path form (/container/dir/blob.png) and the query form
// (/container?blob=dir/blob.png) are accepted.
func ParseBlobURL(blobURL string) (string, string, error) {
	parsedURL, err := url.Parse(blobURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid blob URL: %w", err)
	}
	path := strings.TrimPrefix(parsedURL.Path, "/")
	if blob := parsedURL.Query().Get("blob"); blob != "" {
		if path == "" {
			return "", "", fmt.Errorf("blob URL %q has no container", blobURL)
		}
		return path, blob, nil
	}
	container, blob, ok := strings.Cut(path, "/")
	if !ok || container == "" || blob == "" {
		return "", "", fmt.Errorf("blob URL %q must name a container and a blob", blobURL)
	}
	return container, blob, nil
}

func (s *AzureSource) FetchSource(ctx context.Context, blobURL string) ([]byte, error) {
	containerName, blobName, err := ParseBlobURL(blobURL)
	if err != nil {
		return nil, err
	}

	downloadResponse, err := s.client.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}

	retryReader := downloadResponse.Body
	defer retryReader.Close()

	body, err := io.ReadAll(io.LimitReader(retryReader, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	if len(body) > maxImageBytes {
		return nil, fmt.Errorf("blob exceeds %d bytes", maxImageBytes)
	}
	return body, nil
}
