package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
)

// FileSource reads source images referenced by file:// URLs
type FileSource struct{}

func (FileSource) FetchSource(ctx context.Context, sourceURL string) ([]byte, error) {
	parsedURL, err := url.Parse(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid file URL: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(parsedURL.Path)
	if err != nil {
		return nil, fmt.Errorf("reading source file: %w", err)
	}
	if info.Size() > maxImageBytes {
		return nil, fmt.Errorf("source file exceeds %d bytes", maxImageBytes)
	}
	body, err := os.ReadFile(parsedURL.Path)
	if err != nil {
		return nil, fmt.Errorf("reading source file: %w", err)
	}
	return body, nil
}
