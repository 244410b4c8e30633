package di

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsObserver exports resolution activity as Prometheus metrics.
type MetricsObserver struct {
	resolutions *prometheus.CounterVec
	cacheHits   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetricsObserver creates an observer and registers its collectors.
func NewMetricsObserver(reg prometheus.Registerer, namespace string) (*MetricsObserver, error) {
	if namespace == "" {
		namespace = "loom"
	}
	m := &MetricsObserver{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "container",
			Name:      "resolutions_total",
			Help:      "Number of component resolutions that built an instance.",
		}, []string{"key"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "container",
			Name:      "cache_hits_total",
			Help:      "Number of resolutions served from an instance cache.",
		}, []string{"key"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "container",
			Name:      "resolution_duration_seconds",
			Help:      "Time spent constructing components.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"key"}),
	}
	for _, col := range []prometheus.Collector{m.resolutions, m.cacheHits, m.duration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// OnResolve records one construction and its duration.
func (m *MetricsObserver) OnResolve(key Key, elapsed time.Duration) {
	m.resolutions.WithLabelValues(key.String()).Inc()
	m.duration.WithLabelValues(key.String()).Observe(elapsed.Seconds())
}

// OnCacheHit records one cache-served resolution.
func (m *MetricsObserver) OnCacheHit(key Key) {
	m.cacheHits.WithLabelValues(key.String()).Inc()
}
