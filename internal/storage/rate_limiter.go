package storage

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// RoundTripRateLimiter holds requests back until the limiter admits them
type RoundTripRateLimiter struct {
	rl *rate.Limiter
	tx http.RoundTripper
}

// NewRoundTripRateLimiter limits rt to rps requests per second with the given burst
func NewRoundTripRateLimiter(rt http.RoundTripper, rps float64, burst int) *RoundTripRateLimiter {
	return &RoundTripRateLimiter{
		rl: rate.NewLimiter(rate.Limit(rps), burst),
		tx: rt,
	}
}

func (t *RoundTripRateLimiter) RoundTrip(r *http.Request) (*http.Response, error) {
	// Wait errors out if the request cannot be processed within
	// the deadline, instead of waiting the entire duration.
	if err := t.rl.Wait(r.Context()); err != nil {
		return nil, fmt.Errorf("rate limited: %w", err)
	}
	return t.tx.RoundTrip(r)
}
