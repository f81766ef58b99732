package validation

import (
	"fmt"
	"image"

	apperrors "github.com/anime-shed/roi-gridview-go/internal/errors"
	"github.com/anime-shed/roi-gridview-go/pkg/models"
)

// ClipRegion bounds a region to an image of the given size. A region that
// sticks out of the image is clipped and a warning describing the change is
// returned; a zero-area region, or one with nothing inside the image, is an
// InvalidRegion error. Unknown dimensions (zero) leave the region as is.
func ClipRegion(r models.Region, width, height int) (models.Region, []string, error) {
	if r.Empty() {
		return r, nil, apperrors.NewInvalidRegionError(
			fmt.Sprintf("region %dx%d has zero area", r.Width, r.Height), nil)
	}
	if width <= 0 || height <= 0 {
		return r, nil, nil
	}

	bounds := image.Rect(0, 0, width, height)
	clipped := r.Rect().Intersect(bounds)
	if clipped.Empty() {
		return r, nil, apperrors.NewInvalidRegionError(
			fmt.Sprintf("region %v lies outside the %dx%d image", r.Rect(), width, height), nil)
	}
	if clipped == r.Rect() {
		return r, nil, nil
	}
	warning := fmt.Sprintf("region %v clipped to %v (image is %dx%d)", r.Rect(), clipped, width, height)
	return models.RegionFromRect(clipped), []string{warning}, nil
}
