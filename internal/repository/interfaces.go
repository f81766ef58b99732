package repository

import (
	"context"
	"image"
)

// SourceRepository gives access to full, decoded source images. It is what
// the fetcher falls back to when the crop service cannot serve a region.
type SourceRepository interface {
	// FetchImage retrieves and decodes the image at sourceURL
	FetchImage(ctx context.Context, sourceURL string) (image.Image, error)

	// Supports reports whether sourceURL can be served
	Supports(sourceURL string) bool
}
