package storage

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CropRequest asks for one rectangle of a source, in the coordinates of the
// media the crop service serves.
type CropRequest struct {
	SourceURL         string
	Rect              image.Rectangle
	ElapsedTimeMillis *int64
}

// CropService returns encoded image bytes for a region of a source image or video frame
type CropService interface {
	Crop(ctx context.Context, req CropRequest) ([]byte, error)
}

// HTTPCropService talks to a crop service over
// GET {base}/crop?url=&left=&top=&right=&bottom=[&ms=]
type HTTPCropService struct {
	baseURL string
	client  *http.Client
}

// NewHTTPCropService creates a crop client whose requests are rate limited
// and bounded by timeout.
func NewHTTPCropService(baseURL string, timeout time.Duration, rps float64, burst int) *HTTPCropService {
	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &HTTPCropService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Transport: NewRoundTripRateLimiter(transport, rps, burst),
			Timeout:   timeout,
		},
	}
}

// CropURL builds the request URL for req
func (c *HTTPCropService) CropURL(req CropRequest) string {
	q := url.Values{}
	q.Set("url", req.SourceURL)
	q.Set("left", strconv.Itoa(req.Rect.Min.X))
	q.Set("top", strconv.Itoa(req.Rect.Min.Y))
	q.Set("right", strconv.Itoa(req.Rect.Max.X))
	q.Set("bottom", strconv.Itoa(req.Rect.Max.Y))
	if req.ElapsedTimeMillis != nil {
		q.Set("ms", strconv.FormatInt(*req.ElapsedTimeMillis, 10))
	}
	return c.baseURL + "/crop?" + q.Encode()
}

func (c *HTTPCropService) Crop(ctx context.Context, req CropRequest) ([]byte, error) {
	cropURL := c.CropURL(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, cropURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid crop URL: %w", err)
	}
	httpReq.Header.Set("Accept", "image/png, image/jpeg, */*")
	httpReq.Header.Set("User-Agent", "roi-gridview/1.0")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("crop request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: c.baseURL + "/crop", StatusCode: resp.StatusCode}
	}
	return readBody(resp)
}
