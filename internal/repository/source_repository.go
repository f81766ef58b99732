package repository

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/url"
	"strings"

	"github.com/disintegration/imaging"

	apperrors "github.com/anime-shed/roi-gridview-go/internal/errors"
	"github.com/anime-shed/roi-gridview-go/internal/storage"
)

const azureBlobHostSuffix = ".blob.core.windows.net"

// MultiSourceRepository dispatches on the source URL: Azure blob hosts go
// to the blob store, file URLs to the local disk, the rest to HTTP.
type MultiSourceRepository struct {
	http  storage.SourceFetcher
	azure storage.SourceFetcher
	file  storage.SourceFetcher
}

// NewMultiSourceRepository creates a repository. azure may be nil when no
// credentials are configured.
func NewMultiSourceRepository(http, azure, file storage.SourceFetcher) *MultiSourceRepository {
	return &MultiSourceRepository{http: http, azure: azure, file: file}
}

func (r *MultiSourceRepository) fetcherFor(sourceURL string) (storage.SourceFetcher, error) {
	parsedURL, err := url.Parse(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
	}
	switch parsedURL.Scheme {
	case "file":
		if r.file != nil {
			return r.file, nil
		}
	case "http", "https":
		if strings.HasSuffix(parsedURL.Hostname(), azureBlobHostSuffix) {
			if r.azure == nil {
				return nil, ErrAzureNotConfigured
			}
			return r.azure, nil
		}
		if r.http != nil {
			return r.http, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, sourceURL)
}

func (r *MultiSourceRepository) Supports(sourceURL string) bool {
	_, err := r.fetcherFor(sourceURL)
	return err == nil
}

func (r *MultiSourceRepository) FetchImage(ctx context.Context, sourceURL string) (image.Image, error) {
	fetcher, err := r.fetcherFor(sourceURL)
	if err != nil {
		return nil, apperrors.NewServiceUnavailableError("no source for "+sourceURL, err)
	}
	body, err := fetcher.FetchSource(ctx, sourceURL)
	if err != nil {
		return nil, apperrors.FromRemote("fetching source image", err)
	}
	img, err := imaging.Decode(bytes.NewReader(body), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperrors.NewDecodeError("source image is not a decodable image", err)
	}
	return img, nil
}
