package cache

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "roigrid",
		Subsystem: "cache",
		Name:      "request_duration_seconds",
		Help:      "Duration of cache requests, in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "success"})

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roigrid",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by result (hit, miss).",
	}, []string{"result"})

	cacheSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "roigrid",
		Subsystem: "cache",
		Name:      "size_bytes",
		Help:      "Bytes currently held by the cache store.",
	})
)

func init() {
	prometheus.MustRegister(cacheRequestDuration, cacheLookups, cacheSizeBytes)
}

type instrumentedStore struct {
	next Store
}

// Instrument wraps a store so its requests are recorded in Prometheus
func Instrument(s Store) Store {
	return &instrumentedStore{next: s}
}

func observe(method string, err error, begin time.Time) {
	cacheRequestDuration.WithLabelValues(method, fmt.Sprint(err == nil)).Observe(time.Since(begin).Seconds())
}

func (i *instrumentedStore) Get(k Keyer) (_ []byte, _ time.Time, err error) {
	defer func(begin time.Time) {
		switch err {
		case nil:
			cacheLookups.WithLabelValues("hit").Inc()
			observe("Get", nil, begin)
		case ErrNotCached:
			cacheLookups.WithLabelValues("miss").Inc()
			observe("Get", nil, begin)
		default:
			observe("Get", err, begin)
		}
	}(time.Now())
	return i.next.Get(k)
}

func (i *instrumentedStore) Put(k Keyer, v []byte) (err error) {
	defer func(begin time.Time) {
		observe("Put", err, begin)
		cacheSizeBytes.Set(float64(i.next.Size()))
	}(time.Now())
	return i.next.Put(k, v)
}

func (i *instrumentedStore) Remove(k Keyer) {
	i.next.Remove(k)
	cacheSizeBytes.Set(float64(i.next.Size()))
}

func (i *instrumentedStore) EvictIfNeeded() {
	i.next.EvictIfNeeded()
	cacheSizeBytes.Set(float64(i.next.Size()))
}

func (i *instrumentedStore) Clear() (err error) {
	defer func(begin time.Time) {
		observe("Clear", err, begin)
		cacheSizeBytes.Set(float64(i.next.Size()))
	}(time.Now())
	return i.next.Clear()
}

func (i *instrumentedStore) Size() int64 {
	return i.next.Size()
}

func (i *instrumentedStore) Len() int {
	return i.next.Len()
}
