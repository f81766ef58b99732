package fetcher

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/roi-gridview-go/internal/cache"
	apperrors "github.com/anime-shed/roi-gridview-go/internal/errors"
	"github.com/anime-shed/roi-gridview-go/internal/storage"
	"github.com/anime-shed/roi-gridview-go/pkg/models"
)

func solidPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// cropServer answers crop requests with a solid image of the requested size
type cropServer struct {
	*httptest.Server
	requests  int32
	lastQuery atomic.Value
}

func newCropServer(t *testing.T, handler http.HandlerFunc) *cropServer {
	cs := &cropServer{}
	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			left, _ := strconv.Atoi(q.Get("left"))
			top, _ := strconv.Atoi(q.Get("top"))
			right, _ := strconv.Atoi(q.Get("right"))
			bottom, _ := strconv.Atoi(q.Get("bottom"))
			w.Header().Set("Content-Type", "image/png")
			w.Write(solidPNG(t, right-left, bottom-top, color.NRGBA{R: 200, G: 100, B: 50, A: 255}))
		}
	}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&cs.requests, 1)
		cs.lastQuery.Store(r.URL.Query())
		handler(w, r)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *cropServer) count() int {
	return int(atomic.LoadInt32(&cs.requests))
}

func newTestFetcher(t *testing.T, baseURL string, sources *fakeSources) (*Fetcher, cache.Store) {
	t.Helper()
	store, err := cache.NewMemoryStore(16 << 20)
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	crop := storage.NewHTTPCropService(baseURL, 2*time.Second, 1000, 100)
	if sources == nil {
		return New(store, crop, nil, logger), store
	}
	return New(store, crop, sources, logger), store
}

type fakeSources struct {
	img   image.Image
	err   error
	calls int32
}

func (f *fakeSources) FetchImage(ctx context.Context, sourceURL string) (image.Image, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.img, f.err
}

func (f *fakeSources) Supports(sourceURL string) bool { return true }

func stillItem() *models.Item {
	return &models.Item{
		ID:          uuid.New(),
		SourceURL:   "https://example.org/frame.png",
		Region:      models.Region{X: 10, Y: 10, Width: 20, Height: 30},
		ImageWidth:  100,
		ImageHeight: 100,
	}
}

func TestFetch_SecondFetchIsCacheHit(t *testing.T) {
	server := newCropServer(t, nil)
	f, _ := newTestFetcher(t, server.URL, nil)
	item := stillItem()

	first, err := f.Fetch(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, models.SourceCrop, first.Source)
	assert.Equal(t, image.Rect(0, 0, 20, 30), first.Image.Bounds())
	assert.Equal(t, 1, server.count())

	second, err := f.Fetch(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, models.SourceCache, second.Source)
	assert.Equal(t, first.Image.Pix, second.Image.Pix)
	assert.Equal(t, 1, server.count(), "cache hit must not touch the network")
}

func TestFetch_ClipsPartiallyOutOfBounds(t *testing.T) {
	server := newCropServer(t, nil)
	f, _ := newTestFetcher(t, server.URL, nil)
	item := stillItem()
	item.Region = models.Region{X: 90, Y: 80, Width: 20, Height: 40}

	pixels, err := f.Fetch(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, models.Region{X: 90, Y: 80, Width: 10, Height: 20}, pixels.Region)
	assert.Equal(t, image.Rect(0, 0, 10, 20), pixels.Image.Bounds())
	assert.Len(t, pixels.Warnings, 1)
}

func TestFetch_InvalidRegion(t *testing.T) {
	server := newCropServer(t, nil)
	f, _ := newTestFetcher(t, server.URL, nil)

	zero := stillItem()
	zero.Region.Width = 0
	outside := stillItem()
	outside.Region = models.Region{X: 150, Y: 150, Width: 10, Height: 10}

	for name, item := range map[string]*models.Item{"zero area": zero, "outside": outside} {
		t.Run(name, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), item)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidRegion), "got %v", err)
		})
	}
	assert.Equal(t, 0, server.count())
}

func TestFetch_DecodeError(t *testing.T) {
	server := newCropServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not an image</html>"))
	})
	f, store := newTestFetcher(t, server.URL, nil)

	_, err := f.Fetch(context.Background(), stillItem())
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeDecode), "got %v", err)
	assert.Equal(t, 0, store.Len())
}

func TestFetch_ServerErrorIsServiceUnavailable(t *testing.T) {
	server := newCropServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	f, store := newTestFetcher(t, server.URL, nil)

	_, err := f.Fetch(context.Background(), stillItem())
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeServiceUnavailable), "got %v", err)
	var statusErr *storage.StatusError
	assert.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 1, server.count(), "no silent retries")
	assert.Equal(t, 0, store.Len())
}

func TestFetch_TimeoutIsServiceUnavailable(t *testing.T) {
	release := make(chan struct{})
	server := newCropServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	f, _ := newTestFetcher(t, server.URL, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.Fetch(ctx, stillItem())
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeServiceUnavailable), "got %v", err)
}

func TestFetch_CancelledWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := newCropServer(t, func(w http.ResponseWriter, r *http.Request) {
		cancel()
		<-r.Context().Done()
	})
	f, store := newTestFetcher(t, server.URL, nil)

	_, err := f.Fetch(ctx, stillItem())
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Equal(t, 0, store.Len())
}

func TestFetch_ScaledProxyIsResampled(t *testing.T) {
	server := newCropServer(t, nil)
	f, _ := newTestFetcher(t, server.URL, nil)
	ms := int64(12345)
	item := stillItem()
	item.ImageWidth, item.ImageHeight = 1920, 1080
	item.ScaleX, item.ScaleY = 2, 2
	item.ElapsedTimeMillis = &ms
	item.Region = models.Region{X: 100, Y: 50, Width: 40, Height: 20}

	pixels, err := f.Fetch(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 20), pixels.Image.Bounds())

	q := server.lastQuery.Load().(url.Values)
	assert.Equal(t, []string{"50"}, q["left"])
	assert.Equal(t, []string{"25"}, q["top"])
	assert.Equal(t, []string{"70"}, q["right"])
	assert.Equal(t, []string{"35"}, q["bottom"])
	assert.Equal(t, []string{"12345"}, q["ms"])
}

func TestFetch_LocalCropFallback(t *testing.T) {
	server := newCropServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	src := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	sources := &fakeSources{img: src}
	f, store := newTestFetcher(t, server.URL, sources)

	pixels, err := f.Fetch(context.Background(), stillItem())
	require.NoError(t, err)
	assert.Equal(t, models.SourceLocalCrop, pixels.Source)
	assert.Equal(t, image.Rect(0, 0, 20, 30), pixels.Image.Bounds())
	assert.NotEmpty(t, pixels.Warnings)
	assert.Equal(t, 1, store.Len())
}

func TestFetch_NoFallbackForVideoFrames(t *testing.T) {
	server := newCropServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	sources := &fakeSources{img: image.NewNRGBA(image.Rect(0, 0, 100, 100))}
	f, _ := newTestFetcher(t, server.URL, sources)
	ms := int64(10)
	item := stillItem()
	item.ElapsedTimeMillis = &ms

	_, err := f.Fetch(context.Background(), item)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeServiceUnavailable))
	assert.Equal(t, int32(0), atomic.LoadInt32(&sources.calls))
}

func TestFetch_FailedFallbackReportsCropError(t *testing.T) {
	server := newCropServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	sources := &fakeSources{err: apperrors.NewDecodeError("bad source", nil)}
	f, _ := newTestFetcher(t, server.URL, sources)

	_, err := f.Fetch(context.Background(), stillItem())
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeServiceUnavailable), "got %v", err)
}

func TestFetch_MalformedCacheEntryRefetches(t *testing.T) {
	server := newCropServer(t, nil)
	f, store := newTestFetcher(t, server.URL, nil)
	item := stillItem()
	require.NoError(t, store.Put(cache.NewRegionKey(item), []byte("garbage")))

	pixels, err := f.Fetch(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, models.SourceCrop, pixels.Source)
	assert.Equal(t, 1, server.count())
}

func TestPixelCodec(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	decoded, err := decodePixels(encodePixels(img))
	require.NoError(t, err)
	assert.Equal(t, img.Pix, decoded.Pix)
	assert.Equal(t, img.Rect, decoded.Rect)

	// A sub-image has a stride wider than its rows.
	sub := img.SubImage(image.Rect(1, 0, 3, 2)).(*image.NRGBA)
	decoded, err = decodePixels(encodePixels(sub))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), decoded.Rect)
	assert.Equal(t, sub.Pix[0:8], decoded.Pix[0:8])

	_, err = decodePixels([]byte("NRGB\x00\x00\x00\x01"))
	assert.Error(t, err)
	truncated := encodePixels(img)
	_, err = decodePixels(truncated[:len(truncated)-1])
	assert.Error(t, err)

	// Dimensions whose product wraps around must be rejected, not allocated.
	forged := make([]byte, pixelHeaderSize+4)
	copy(forged, pixelMagic)
	binary.BigEndian.PutUint32(forged[4:8], 1<<31)
	binary.BigEndian.PutUint32(forged[8:12], 1<<31)
	assert.NotPanics(t, func() {
		_, err = decodePixels(forged)
	})
	assert.Error(t, err)

	binary.BigEndian.PutUint32(forged[4:8], 1<<30)
	binary.BigEndian.PutUint32(forged[8:12], 4)
	_, err = decodePixels(forged)
	assert.Error(t, err)
}
