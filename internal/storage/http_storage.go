package storage

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPSourceFetcher downloads full source images over HTTP(S)
type HTTPSourceFetcher struct {
	client *http.Client
}

// NewHTTPSourceFetcher creates an HTTP source fetcher. It does not retry:
// a failed load is reported and the user may reload it.
func NewHTTPSourceFetcher(timeout time.Duration) *HTTPSourceFetcher {
	transport := &http.Transport{
		// Connection pooling optimized for image fetching
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	return &HTTPSourceFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,

			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
	}
}

func (h *HTTPSourceFetcher) FetchSource(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, */*")
	req.Header.Set("User-Agent", "roi-gridview/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching source image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: sourceURL, StatusCode: resp.StatusCode}
	}
	return readBody(resp)
}
