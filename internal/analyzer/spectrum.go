package analyzer

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// highFrequencyCutoff is the radial frequency, in cycles per sample, above
// which spectral energy counts as fine detail.
const highFrequencyCutoff = 0.25

// highFrequencyRatio returns the share of the non-DC spectral energy of gray
// lying above highFrequencyCutoff. A flat plane has no such energy and yields 0.
func highFrequencyRatio(gray plane) float64 {
	w, h := gray.w, gray.h
	if w < 2 || h < 2 {
		return 0
	}

	mean := stat.Mean(gray.pix, nil)
	spec := make([]complex128, w*h)
	for i, v := range gray.pix {
		spec[i] = complex(v-mean, 0)
	}

	rows := fourier.NewCmplxFFT(w)
	for y := 0; y < h; y++ {
		row := spec[y*w : (y+1)*w]
		rows.Coefficients(row, row)
	}

	cols := fourier.NewCmplxFFT(h)
	col := make([]complex128, h)
	var total, high float64
	for x := 0; x < w; x++ {
		for y := range col {
			col[y] = spec[y*w+x]
		}
		cols.Coefficients(col, col)
		fx := rows.Freq(x)
		for y, c := range col {
			e := real(c)*real(c) + imag(c)*imag(c)
			total += e
			if math.Hypot(fx, cols.Freq(y)) > highFrequencyCutoff {
				high += e
			}
		}
	}
	if total < 1e-12 {
		return 0
	}
	return high / total
}
