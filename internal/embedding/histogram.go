package embedding

import (
	"image"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	apperrors "github.com/anime-shed/roi-gridview-go/internal/errors"
)

const (
	thumbSide   = 8
	colourBins  = 4
	histoSample = 32
)

// HistogramExtractor is a CPU extractor combining a mean-centred 8x8 gray
// thumbnail with a 4x4x4 RGB colour histogram
type HistogramExtractor struct {
	device string
}

// NewHistogramExtractor creates the built-in extractor
func NewHistogramExtractor() *HistogramExtractor {
	return &HistogramExtractor{device: SelectDevice()}
}

// Dim implements Extractor
func (e *HistogramExtractor) Dim() int {
	return thumbSide*thumbSide + colourBins*colourBins*colourBins
}

// Device implements Extractor
func (e *HistogramExtractor) Device() string {
	return e.device
}

// Embed implements Extractor
func (e *HistogramExtractor) Embed(img image.Image) ([]float64, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, apperrors.NewValidationError("cannot embed an empty image", nil)
	}

	thumb := imaging.Resize(img, thumbSide, thumbSide, imaging.Box)
	shape := make([]float64, thumbSide*thumbSide)
	for i := range shape {
		p := thumb.Pix[i*4 : i*4+3]
		shape[i] = (0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])) / 255.0
	}
	floats.AddConst(-stat.Mean(shape, nil), shape)

	sample := imaging.Resize(img, histoSample, histoSample, imaging.Box)
	hist := make([]float64, colourBins*colourBins*colourBins)
	for i := 0; i < len(sample.Pix); i += 4 {
		r := int(sample.Pix[i]) * colourBins / 256
		g := int(sample.Pix[i+1]) * colourBins / 256
		b := int(sample.Pix[i+2]) * colourBins / 256
		hist[(r*colourBins+g)*colourBins+b]++
	}

	v := append(Normalize(shape), Normalize(hist)...)
	return Normalize(v), nil
}
