package analyzer

import (
	"image"
	"math"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"
)

// metricsCalculator implements MetricsCalculator with Gonum statistics
type metricsCalculator struct {
	opts      Options
	slicePool sync.Pool
}

// NewMetricsCalculator creates a new metrics calculator
func NewMetricsCalculator(opts Options) MetricsCalculator {
	return &metricsCalculator{
		opts: opts.normalized(),
		slicePool: sync.Pool{
			New: func() interface{} {
				return make([]float64, 0, 1024)
			},
		},
	}
}

// Compute implements MetricsCalculator. An empty image yields zero metrics.
func (mc *metricsCalculator) Compute(img image.Image) Metrics {
	if img == nil || img.Bounds().Empty() {
		return Metrics{}
	}
	sample := mc.resample(img)
	gray, hue, channels := mc.decompose(sample)
	blurred, _, _ := mc.decompose(imaging.Blur(sample, mc.opts.BlurSigma))

	return Metrics{
		Sharpness:          mc.laplacianVariance(gray),
		SharpnessLoG:       mc.laplacianVariance(blurred),
		SharpnessSobel:     mc.sobelVariance(gray),
		SharpnessCanny:     mc.cannyEdgeVariance(gray),
		SharpnessFrequency: highFrequencyRatio(gray),
		Intensity:          stat.Mean(channels, nil),
		IntensityVariance:  stat.PopVariance(channels, nil),
		HueMean:            stat.Mean(hue.pix, nil),
		HueVariance:        stat.PopVariance(hue.pix, nil),
		HueMeanCenter:      centerMean(hue),
	}
}

// resample scales img so that its longest side is SampleSize
func (mc *metricsCalculator) resample(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() >= b.Dy() {
		return imaging.Resize(img, mc.opts.SampleSize, 0, imaging.CatmullRom)
	}
	return imaging.Resize(img, 0, mc.opts.SampleSize, imaging.CatmullRom)
}

// decompose converts img to a gray plane, a normalized hue plane, and the flat
// list of its channel values, all in [0,1]. Large images are processed in
// horizontal strips for better cache locality.
func (mc *metricsCalculator) decompose(img *image.NRGBA) (gray, hue plane, channels []float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	gray = plane{w: w, h: h, pix: make([]float64, w*h)}
	hue = plane{w: w, h: h, pix: make([]float64, w*h)}
	channels = make([]float64, 3*w*h)

	strip := func(startY, endY int) {
		for y := startY; y < endY; y++ {
			row := img.Pix[y*img.Stride:]
			for x := 0; x < w; x++ {
				r := float64(row[x*4]) / 255.0
				g := float64(row[x*4+1]) / 255.0
				bl := float64(row[x*4+2]) / 255.0

				i := y*w + x
				// ITU-R BT.601 luma
				gray.pix[i] = 0.299*r + 0.587*g + 0.114*bl
				hDeg, _, _ := mc.rgbToHSV(r, g, bl)
				hue.pix[i] = hDeg / 360.0
				channels[3*i], channels[3*i+1], channels[3*i+2] = r, g, bl
			}
		}
	}

	if w*h < mc.opts.ParallelThreshold {
		strip(0, h)
		return gray, hue, channels
	}

	numWorkers := mc.opts.MaxWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if h < numWorkers {
		numWorkers = h
	}
	rowsPerWorker := (h + numWorkers - 1) / numWorkers // ceil division

	var wg sync.WaitGroup
	for startY := 0; startY < h; startY += rowsPerWorker {
		endY := startY + rowsPerWorker
		if endY > h {
			endY = h
		}
		wg.Add(1)
		go func(startY, endY int) {
			defer wg.Done()
			strip(startY, endY)
		}(startY, endY)
	}
	wg.Wait()
	return gray, hue, channels
}

// laplacianVariance computes the variance of the 4-neighbour Laplacian
func (mc *metricsCalculator) laplacianVariance(gray plane) float64 {
	if gray.w < 3 || gray.h < 3 {
		return 0
	}

	// Get reusable slice from pool
	data := mc.slicePool.Get().([]float64)
	defer func() { mc.slicePool.Put(data[:0]) }()

	// Laplacian kernel: [0, 1, 0; 1, -4, 1; 0, 1, 0]
	for y := 1; y < gray.h-1; y++ {
		for x := 1; x < gray.w-1; x++ {
			laplacian := -4*gray.at(x, y) + gray.at(x, y-1) + gray.at(x, y+1) + gray.at(x-1, y) + gray.at(x+1, y)
			data = append(data, laplacian)
		}
	}
	return stat.PopVariance(data, nil)
}

// sobelVariance computes the variance of the squared Sobel gradient magnitude
func (mc *metricsCalculator) sobelVariance(gray plane) float64 {
	if gray.w < 3 || gray.h < 3 {
		return 0
	}

	data := mc.slicePool.Get().([]float64)
	defer func() { mc.slicePool.Put(data[:0]) }()

	for y := 1; y < gray.h-1; y++ {
		for x := 1; x < gray.w-1; x++ {
			gx := mc.sobelX(gray, x, y)
			gy := mc.sobelY(gray, x, y)
			data = append(data, gx*gx+gy*gy)
		}
	}
	return stat.PopVariance(data, nil)
}

// sobelX computes Sobel X gradient
func (mc *metricsCalculator) sobelX(gray plane, x, y int) float64 {
	return -1*gray.at(x-1, y-1) + 1*gray.at(x+1, y-1) +
		-2*gray.at(x-1, y) + 2*gray.at(x+1, y) +
		-1*gray.at(x-1, y+1) + 1*gray.at(x+1, y+1)
}

// sobelY computes Sobel Y gradient
func (mc *metricsCalculator) sobelY(gray plane, x, y int) float64 {
	return -1*gray.at(x-1, y-1) - 2*gray.at(x, y-1) - 1*gray.at(x+1, y-1) +
		1*gray.at(x-1, y+1) + 2*gray.at(x, y+1) + 1*gray.at(x+1, y+1)
}

// centerMean averages the middle third of p in both directions. Planes too
// small to have a middle third are averaged whole.
func centerMean(p plane) float64 {
	x0, x1 := p.w/3, p.w*2/3
	y0, y1 := p.h/3, p.h*2/3
	if x1 <= x0 || y1 <= y0 {
		return stat.Mean(p.pix, nil)
	}
	values := make([]float64, 0, (x1-x0)*(y1-y0))
	for y := y0; y < y1; y++ {
		values = append(values, p.pix[y*p.w+x0:y*p.w+x1]...)
	}
	return stat.Mean(values, nil)
}

// rgbToHSV provides RGB to HSV conversion
func (mc *metricsCalculator) rgbToHSV(r, g, b float64) (h, s, v float64) {
	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	delta := max - min

	v = max

	if max == 0 {
		s = 0
	} else {
		s = delta / max
	}

	if delta == 0 {
		h = 0
	} else if max == r {
		h = 60 * (((g - b) / delta) + 0)
	} else if max == g {
		h = 60 * (((b - r) / delta) + 2)
	} else {
		h = 60 * (((r - g) / delta) + 4)
	}

	if h < 0 {
		h += 360
	}

	return h, s, v
}
