package analyzer

// Metrics holds the pixel metrics of one region, computed on the resampled image.
// Intensity and hue values are in [0,1]. The Laplacian and Sobel sharpness
// values are computed on gray levels in [0,1] and are unbounded above.
type Metrics struct {
	Sharpness      float64 `json:"sharpness"`
	SharpnessLoG   float64 `json:"sharpness_log"`
	SharpnessSobel float64 `json:"sharpness_sobel"`
	SharpnessCanny float64 `json:"sharpness_canny"`
	// SharpnessFrequency is the share of spectral energy at high frequencies
	SharpnessFrequency float64 `json:"sharpness_frequency"`

	Intensity         float64 `json:"intensity"`
	IntensityVariance float64 `json:"intensity_variance"`
	HueMean           float64 `json:"hue_mean"`
	HueVariance       float64 `json:"hue_variance"`
	HueMeanCenter     float64 `json:"hue_mean_center"`
}

// plane is a single channel image stored row-major
type plane struct {
	w, h int
	pix  []float64
}

func (p plane) at(x, y int) float64 {
	return p.pix[y*p.w+x]
}
