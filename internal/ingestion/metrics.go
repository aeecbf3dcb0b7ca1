package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by the Pipeline.
// A nil *Metrics disables instrumentation.
type Metrics struct {
	// documentsTotal counts finished documents by final state.
	documentsTotal *prometheus.CounterVec

	// durationSeconds records per-document processing time by final state.
	durationSeconds *prometheus.HistogramVec

	// chunks records the chunk count of each Ready document.
	chunks prometheus.Histogram

	// inFlightDocuments is the number of documents currently processing.
	inFlightDocuments prometheus.Gauge

	// readyDocuments is the number of documents visible to retrieval.
	readyDocuments prometheus.Gauge
}

// NewMetrics registers the ingestion collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		documentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "ingestion",
			Name:      "documents_total",
			Help:      "Total number of ingested documents, partitioned by final state.",
		}, []string{"state"}),

		durationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "ingestion",
			Name:      "document_duration_seconds",
			Help:      "Time spent ingesting a single document.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
		}, []string{"state"}),

		chunks: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "ingestion",
			Name:      "document_chunks",
			Help:      "Number of chunks per ready document.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),

		inFlightDocuments: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docqa",
			Subsystem: "ingestion",
			Name:      "in_flight_documents",
			Help:      "Number of documents currently being ingested.",
		}),

		readyDocuments: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docqa",
			Subsystem: "ingestion",
			Name:      "ready_documents",
			Help:      "Number of documents available for retrieval.",
		}),
	}
}

func (m *Metrics) observeDocument(res DocumentResult) {
	if m == nil {
		return
	}
	state := string(res.State)
	m.documentsTotal.WithLabelValues(state).Inc()
	m.durationSeconds.WithLabelValues(state).Observe(res.Duration.Seconds())
	if res.Chunks > 0 {
		m.chunks.Observe(float64(res.Chunks))
	}
}

func (m *Metrics) inFlight(delta float64) {
	if m == nil {
		return
	}
	m.inFlightDocuments.Add(delta)
}

func (m *Metrics) setReady(n int) {
	if m == nil {
		return
	}
	m.readyDocuments.Set(float64(n))
}
