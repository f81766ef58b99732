package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxImageBytes bounds how much of a response body is read
const maxImageBytes = 64 << 20

// SourceFetcher returns the encoded bytes of a full source image
type SourceFetcher interface {
	FetchSource(ctx context.Context, sourceURL string) ([]byte, error)
}

// StatusError is returned when a remote answers with a non-2xx status
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status code %d", e.URL, e.StatusCode)
}

func readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxImageBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxImageBytes)
	}
	return body, nil
}
