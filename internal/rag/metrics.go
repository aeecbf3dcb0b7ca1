package rag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by the Retriever.
// A nil *Metrics disables instrumentation.
type Metrics struct {
	// searchDurationSeconds records per-document search latency, partitioned
	// by outcome: "hit", "empty", "missing", "timeout", or "error".
	searchDurationSeconds *prometheus.HistogramVec

	// retrievalsTotal counts Retrieve calls, partitioned by whether any
	// document produced context: "found" or "not_found".
	retrievalsTotal *prometheus.CounterVec

	// contextChars records the length of the assembled context after
	// truncation.
	contextChars prometheus.Histogram
}

// NewMetrics registers the retrieval collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		searchDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "retrieval",
			Name:      "search_duration_seconds",
			Help:      "Latency of a similarity search against a single document index.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 10},
		}, []string{"outcome"}),

		retrievalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total number of retrievals, partitioned by whether context was found.",
		}, []string{"result"}),

		contextChars: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "retrieval",
			Name:      "context_chars",
			Help:      "Length in characters of the assembled retrieval context.",
			Buckets:   []float64{0, 100, 300, 600, 900, 1200, 2400, 4800},
		}),
	}
}

func (m *Metrics) observeSearch(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.searchDurationSeconds.WithLabelValues(outcome).Observe(seconds)
}

func (m *Metrics) observeRetrieval(found bool, chars int) {
	if m == nil {
		return
	}
	result := "not_found"
	if found {
		result = "found"
		m.contextChars.Observe(float64(chars))
	}
	m.retrievalsTotal.WithLabelValues(result).Inc()
}
