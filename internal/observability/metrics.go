package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "photo_indexer"

// Metrics groups the collectors exported on /metrics. Build one per process
// with NewMetrics and pass it to the components that record into it.
type Metrics struct {
	PhotosEnriched    *prometheus.CounterVec
	InferenceDuration *prometheus.HistogramVec
	PassDuration      prometheus.Histogram
	PendingPhotos     prometheus.Gauge
	SearchRequests    *prometheus.CounterVec
	SearchDuration    prometheus.Histogram
}

// NewMetrics registers all collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PhotosEnriched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "photos_enriched_total",
			Help:      "Photos handled by enrichment passes, by outcome",
		}, []string{"outcome"}),

		InferenceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Duration of outbound pipeline calls",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage"}),

		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrich_pass_duration_seconds",
			Help:      "Duration of complete enrichment passes",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),

		PendingPhotos: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_photos",
			Help:      "Photos selected by the most recent enrichment pass",
		}),

		SearchRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search requests, by outcome",
		}, []string{"outcome"}),

		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search latency including query embedding",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// NewNopMetrics returns metrics bound to a private registry, for tests and one-shot commands.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
