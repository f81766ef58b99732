package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/roi-gridview-go/internal/cache"
	apperrors "github.com/anime-shed/roi-gridview-go/internal/errors"
	"github.com/anime-shed/roi-gridview-go/internal/repository"
	"github.com/anime-shed/roi-gridview-go/internal/storage"
	"github.com/anime-shed/roi-gridview-go/pkg/models"
	"github.com/anime-shed/roi-gridview-go/pkg/validation"
)

// Interface is what the scheduler runs for each load job
type Interface interface {
	Fetch(ctx context.Context, item *models.Item) (*models.PixelData, error)
}

// Fetcher resolves an item to its decoded region: from the cache when
// possible, else from the crop service, else by cropping the full source
// image locally. Everything fetched remotely is written back to the cache.
type Fetcher struct {
	cache   cache.Store
	crop    storage.CropService
	sources repository.SourceRepository
	logger  logrus.FieldLogger
}

// New creates a fetcher. sources may be nil to disable the local crop fallback.
func New(store cache.Store, crop storage.CropService, sources repository.SourceRepository, logger logrus.FieldLogger) *Fetcher {
	return &Fetcher{
		cache:   store,
		crop:    crop,
		sources: sources,
		logger:  logger,
	}
}

// Fetch returns the pixels of item's region at the item's annotated
// resolution. Cancellation of ctx is returned as the context error itself;
// every other failure is an AppError (ServiceUnavailable, DecodeError or
// InvalidRegion).
func (f *Fetcher) Fetch(ctx context.Context, item *models.Item) (_ *models.PixelData, err error) {
	source := string(models.SourceCache)
	defer func(begin time.Time) { observeFetch(source, err, begin) }(time.Now())

	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	region, warnings, err := validation.ClipRegion(item.Region, item.ImageWidth, item.ImageHeight)
	if err != nil {
		return nil, err
	}

	key := cache.NewRegionKey(item)
	if img, ok := f.lookup(key); ok {
		return &models.PixelData{Image: img, Region: region, Source: models.SourceCache, Warnings: warnings}, nil
	}

	source = string(models.SourceCrop)
	img, cropErr := f.fromCropService(ctx, item, region)
	if cropErr != nil {
		if !f.canFallBack(item, cropErr) {
			return nil, cropErr
		}
		source = string(models.SourceLocalCrop)
		var localWarnings []string
		var localRegion models.Region
		img, localRegion, localWarnings, err = f.fromSource(ctx, item, region)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			f.logger.WithError(err).WithField("item_id", item.ID).Warn("Local crop fallback failed")
			return nil, cropErr
		}
		region = localRegion
		warnings = append(warnings, localWarnings...)
		warnings = append(warnings, fmt.Sprintf("crop service unavailable, cropped locally: %v", cropErr))
	}

	// A cancelled load must not leave anything behind.
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := f.cache.Put(key, encodePixels(img)); err != nil {
		f.logger.WithError(apperrors.NewCacheIOError("writing region to cache", err)).
			WithField("item_id", item.ID).Warn("Cache write failed, continuing without cache")
	}

	return &models.PixelData{Image: img, Region: region, Source: models.PixelSource(source), Warnings: warnings}, nil
}

func (f *Fetcher) lookup(key cache.Keyer) (*image.NRGBA, bool) {
	buf, _, err := f.cache.Get(key)
	if err != nil {
		if err != cache.ErrNotCached {
			f.logger.WithError(apperrors.NewCacheIOError("reading region from cache", err)).
				Warn("Cache read failed, bypassing cache")
		}
		return nil, false
	}
	img, err := decodePixels(buf)
	if err != nil {
		f.logger.WithField("key", key.Key()).Warn("Cached pixels malformed, evicting")
		f.cache.Remove(key)
		return nil, false
	}
	return img, true
}

func (f *Fetcher) fromCropService(ctx context.Context, item *models.Item, region models.Region) (*image.NRGBA, error) {
	proxy := item.ToProxy(region.Rect())
	// Tiny regions at coarse scales can round away entirely.
	if proxy.Dx() < 1 {
		proxy.Max.X = proxy.Min.X + 1
	}
	if proxy.Dy() < 1 {
		proxy.Max.Y = proxy.Min.Y + 1
	}

	body, err := f.crop.Crop(ctx, storage.CropRequest{
		SourceURL:         item.SourceURL,
		Rect:              proxy,
		ElapsedTimeMillis: item.ElapsedTimeMillis,
	})
	if err != nil {
		return nil, apperrors.FromRemote("crop service request failed", err)
	}
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	decoded, err := imaging.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewDecodeError("crop service returned an undecodable image", err)
	}
	return toAnnotatedResolution(decoded, region), nil
}

// canFallBack reports whether a crop service failure may be served by
// cropping the full source image. Video frames need the crop service to
// seek, so only still images fall back.
func (f *Fetcher) canFallBack(item *models.Item, cropErr error) bool {
	if f.sources == nil || item.ElapsedTimeMillis != nil {
		return false
	}
	if !apperrors.IsType(cropErr, apperrors.ErrorTypeServiceUnavailable) {
		return false
	}
	return f.sources.Supports(item.SourceURL)
}

func (f *Fetcher) fromSource(ctx context.Context, item *models.Item, region models.Region) (*image.NRGBA, models.Region, []string, error) {
	src, err := f.sources.FetchImage(ctx, item.SourceURL)
	if err != nil {
		return nil, region, nil, err
	}
	if err := checkContext(ctx); err != nil {
		return nil, region, nil, err
	}

	// Declared dimensions were already applied; the decoded image is the
	// authority when they were unknown or wrong.
	b := src.Bounds()
	clipped, warnings, err := validation.ClipRegion(region, b.Dx(), b.Dy())
	if err != nil {
		return nil, region, nil, err
	}
	rect := clipped.Rect().Add(b.Min)
	return imaging.Crop(src, rect), clipped, warnings, nil
}

// toAnnotatedResolution resamples img to the size of region when the crop
// service served it at proxy resolution.
func toAnnotatedResolution(img image.Image, region models.Region) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() == region.Width && b.Dy() == region.Height {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, region.Width, region.Height, imaging.CatmullRom)
}

func checkContext(ctx context.Context) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewServiceUnavailableError("fetch timed out", err)
	default:
		return err
	}
}
