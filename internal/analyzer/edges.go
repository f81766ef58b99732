package analyzer

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Hysteresis thresholds on the L1 Sobel magnitude of gray levels in [0,1]
const (
	cannyLow  = 100.0 / 255
	cannyHigh = 200.0 / 255
)

const (
	edgeNone uint8 = iota
	edgeWeak
	edgeStrong
)

// gradientSteps are the neighbour offsets along the four quantized gradient
// directions: horizontal, vertical and the two diagonals.
var gradientSteps = [4][2]int{{1, 0}, {0, 1}, {1, 1}, {1, -1}}

var tan22_5 = math.Tan(math.Pi / 8)

// cannyEdgeVariance runs a Canny edge detector over gray and returns the
// variance of the resulting binary edge map. Denser edges score higher up
// to half the pixels being edges.
func (mc *metricsCalculator) cannyEdgeVariance(gray plane) float64 {
	w, h := gray.w, gray.h
	if w < 3 || h < 3 {
		return 0
	}

	mag := make([]float64, w*h)
	dir := make([]uint8, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := mc.sobelX(gray, x, y)
			gy := mc.sobelY(gray, x, y)
			i := y*w + x
			mag[i] = math.Abs(gx) + math.Abs(gy)
			dir[i] = gradientSector(gx, gy)
		}
	}

	// Non-maximum suppression and double threshold. Ties keep the first
	// pixel along the gradient so a step edge stays one pixel wide.
	class := make([]uint8, w*h)
	var strong []int
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m <= cannyLow {
				continue
			}
			step := gradientSteps[dir[i]]
			before := mag[(y-step[1])*w+x-step[0]]
			after := mag[(y+step[1])*w+x+step[0]]
			if m <= before || m < after {
				continue
			}
			if m > cannyHigh {
				class[i] = edgeStrong
				strong = append(strong, i)
			} else {
				class[i] = edgeWeak
			}
		}
	}

	// Hysteresis: weak pixels survive when connected to a strong one.
	for len(strong) > 0 {
		i := strong[len(strong)-1]
		strong = strong[:len(strong)-1]
		x, y := i%w, i/w
		for ny := y - 1; ny <= y+1; ny++ {
			for nx := x - 1; nx <= x+1; nx++ {
				j := ny*w + nx
				if class[j] == edgeWeak {
					class[j] = edgeStrong
					strong = append(strong, j)
				}
			}
		}
	}

	edges := make([]float64, w*h)
	for i, c := range class {
		if c == edgeStrong {
			edges[i] = 1
		}
	}
	return stat.PopVariance(edges, nil)
}

// gradientSector quantizes the gradient direction to an index into gradientSteps
func gradientSector(gx, gy float64) uint8 {
	ax, ay := math.Abs(gx), math.Abs(gy)
	switch {
	case ay <= ax*tan22_5:
		return 0
	case ax <= ay*tan22_5:
		return 1
	case (gx > 0) == (gy > 0):
		return 2
	default:
		return 3
	}
}
