package analyzer

// Options configures the metrics calculator
type Options struct {
	// SampleSize is the longest side, in pixels, regions are resampled to before
	// any metric is computed, so metrics of differently sized regions compare.
	SampleSize int

	// BlurSigma is the Gaussian sigma applied before the Laplacian for SharpnessLoG
	BlurSigma float64

	// ParallelThreshold is the pixel count above which per-pixel passes are
	// split into row strips processed concurrently
	ParallelThreshold int
	MaxWorkers        int
}

// DefaultOptions returns default calculator options
func DefaultOptions() Options {
	return Options{
		SampleSize:        128,
		BlurSigma:         1.1,  // a 5x5 Gaussian kernel
		ParallelThreshold: 4096, // a 64x64 sample
		MaxWorkers:        0,    // Use default CPU count
	}
}

// WithSampleSize returns options with a different sample size
func (opts Options) WithSampleSize(size int) Options {
	opts.SampleSize = size
	return opts
}

// WithBlurSigma returns options with a different LoG sigma
func (opts Options) WithBlurSigma(sigma float64) Options {
	opts.BlurSigma = sigma
	return opts
}

func (opts Options) normalized() Options {
	def := DefaultOptions()
	if opts.SampleSize <= 0 {
		opts.SampleSize = def.SampleSize
	}
	if opts.BlurSigma <= 0 {
		opts.BlurSigma = def.BlurSigma
	}
	if opts.ParallelThreshold <= 0 {
		opts.ParallelThreshold = def.ParallelThreshold
	}
	return opts
}
