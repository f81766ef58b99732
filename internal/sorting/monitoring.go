package sorting

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/anime-shed/roi-gridview-go/internal/strategy"
)

var sortDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "roigrid",
	Subsystem: "sorting",
	Name:      "sort_duration_seconds",
	Help:      "Duration of ordering passes by primary strategy, in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"strategy"})

func init() {
	prometheus.MustRegister(sortDuration)
}

func observeSort(kind strategy.Kind, d time.Duration) {
	sortDuration.WithLabelValues(kind.String()).Observe(d.Seconds())
}
