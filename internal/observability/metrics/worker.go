package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	indexedChunks   *prometheus.CounterVec
	badEmbeddings   *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "milo",
			Subsystem: "worker",
			Name:      "document_process_total",
			Help:      "Total processed documents by status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "milo",
			Subsystem: "worker",
			Name:      "document_process_duration_seconds",
			Help:      "Document processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "milo",
			Subsystem: "worker",
			Name:      "document_process_in_flight",
			Help:      "Number of in-flight document processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	indexedChunks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "milo",
			Subsystem: "worker",
			Name:      "indexed_chunks_total",
			Help:      "Total chunks appended to the retrieval index.",
		},
		[]string{"service"},
	)
	badEmbeddings := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "milo",
			Subsystem: "worker",
			Name:      "bad_embeddings_total",
			Help:      "Total embeddings dropped during index rebuilds.",
		},
		[]string{"service", "reason"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, indexedChunks, badEmbeddings)

	return &WorkerMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		indexedChunks:   indexedChunks,
		badEmbeddings:   badEmbeddings,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(service string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(service, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) RecordIndexReport(service string, chunks, badEmbeddings, droppedDim int) {
	if chunks > 0 {
		m.indexedChunks.WithLabelValues(service).Add(float64(chunks))
	}
	if badEmbeddings > 0 {
		m.badEmbeddings.WithLabelValues(service, "undecodable").Add(float64(badEmbeddings))
	}
	if droppedDim > 0 {
		m.badEmbeddings.WithLabelValues(service, "dimension_mismatch").Add(float64(droppedDim))
	}
}
