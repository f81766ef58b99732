package analyzer

import "image"

// MetricsCalculator computes the pixel metrics that pixel sort strategies read
type MetricsCalculator interface {
	// Compute resamples img to the configured sample size and returns every metric
	Compute(img image.Image) Metrics
}
