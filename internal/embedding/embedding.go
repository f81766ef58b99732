package embedding

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/floats"

	apperrors "github.com/anime-shed/roi-gridview-go/internal/errors"
)

// ErrExtractorUnavailable is reported when the embedding strategy is used
// without a working extractor
var ErrExtractorUnavailable = apperrors.NewExtractorUnavailableError("embedding extractor unavailable", nil)

// Extractor produces a fixed-length feature vector for an image. Implementations
// are opaque; the engine only L2-normalises and compares their output.
type Extractor interface {
	Embed(img image.Image) ([]float64, error)
	Dim() int
	Device() string
}

// DeviceCheck reports whether a compute backend is usable
type DeviceCheck struct {
	Name      string
	Available func() bool
}

// SelectDevice returns the first available device in checks, or "cpu"
func SelectDevice(checks ...DeviceCheck) string {
	for _, c := range checks {
		if c.Available != nil && c.Available() {
			return c.Name
		}
	}
	return "cpu"
}

// Handle is an extractor together with the outcome of its capability probe.
// The probe runs once, in Probe; nothing is re-detected per call.
type Handle struct {
	ext Extractor
	err error
}

// Probe checks ext by embedding a small synthetic image and verifying the
// result has the advertised dimension and only finite values. A nil ext gives
// an unavailable handle.
func Probe(ext Extractor) *Handle {
	if ext == nil {
		return &Handle{err: fmt.Errorf("%w: no extractor configured", ErrExtractorUnavailable)}
	}
	probe := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			probe.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	v, err := ext.Embed(probe)
	if err != nil {
		return &Handle{ext: ext, err: fmt.Errorf("%w: probe failed on %s: %v", ErrExtractorUnavailable, ext.Device(), err)}
	}
	if len(v) == 0 || len(v) != ext.Dim() {
		return &Handle{ext: ext, err: fmt.Errorf("%w: probe returned %d values, want %d", ErrExtractorUnavailable, len(v), ext.Dim())}
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return &Handle{ext: ext, err: fmt.Errorf("%w: probe returned non-finite values", ErrExtractorUnavailable)}
		}
	}
	return &Handle{ext: ext}
}

// Available returns nil when the extractor passed its probe
func (h *Handle) Available() error {
	if h == nil {
		return ErrExtractorUnavailable
	}
	return h.err
}

// Device returns the device the extractor runs on, or "" when unavailable
func (h *Handle) Device() string {
	if h.Available() != nil {
		return ""
	}
	return h.ext.Device()
}

// Embed returns the L2-normalised embedding of img
func (h *Handle) Embed(img image.Image) ([]float64, error) {
	if err := h.Available(); err != nil {
		return nil, err
	}
	v, err := h.ext.Embed(img)
	if err != nil {
		return nil, err
	}
	if len(v) != h.ext.Dim() {
		return nil, apperrors.NewInternalError(fmt.Sprintf("extractor returned %d values, want %d", len(v), h.ext.Dim()), nil)
	}
	return Normalize(v), nil
}

// Normalize returns a unit-length copy of v. A (numerically) zero vector
// comes back as zeros.
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	n := floats.Norm(v, 2)
	if n < zeroNorm {
		return out
	}
	copy(out, v)
	floats.Scale(1/n, out)
	return out
}

const zeroNorm = 1e-12

var errDimMismatch = errors.New("vector dimensions differ")

// CosineDistance returns 1 - cos(a, b), in [0, 2]. Distance to a zero vector is 1.
func CosineDistance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d and %d", errDimMismatch, len(a), len(b))
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na < zeroNorm || nb < zeroNorm {
		return 1, nil
	}
	cos := floats.Dot(a, b) / (na * nb)
	return 1 - math.Max(-1, math.Min(1, cos)), nil
}

// Centroid returns the normalised mean of vectors
func Centroid(vectors [][]float64) ([]float64, error) {
	if len(vectors) == 0 {
		return nil, errors.New("centroid of no vectors")
	}
	sum := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		if len(v) != len(sum) {
			return nil, fmt.Errorf("%w: %d and %d", errDimMismatch, len(sum), len(v))
		}
		floats.Add(sum, v)
	}
	floats.Scale(1/float64(len(vectors)), sum)
	return Normalize(sum), nil
}
