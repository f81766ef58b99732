package fetcher

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/anime-shed/roi-gridview-go/internal/errors"
)

var fetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "roigrid",
	Subsystem: "fetcher",
	Name:      "fetch_duration_seconds",
	Help:      "Duration of region fetches by pixel source, in seconds.",
	Buckets:   []float64{0.001, 0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
}, []string{"source", "success"})

var fetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "roigrid",
	Subsystem: "fetcher",
	Name:      "errors_total",
	Help:      "Failed region fetches by error type.",
}, []string{"type"})

func init() {
	prometheus.MustRegister(fetchDuration, fetchErrors)
}

func observeFetch(source string, err error, begin time.Time) {
	fetchDuration.WithLabelValues(source, fmt.Sprint(err == nil)).Observe(time.Since(begin).Seconds())
	if err != nil {
		errType := string(apperrors.TypeOf(err))
		if errType == "" {
			errType = "cancelled"
		}
		fetchErrors.WithLabelValues(errType).Inc()
	}
}
