package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusExporter exports metrics to Prometheus format.
// A nil *PrometheusExporter is valid and records nothing.
type PrometheusExporter struct {
	grpcRequests *prometheus.CounterVec
	grpcDuration *prometheus.HistogramVec
	grpcErrors   *prometheus.CounterVec

	reorderBatches   *prometheus.CounterVec
	reorderMutations *prometheus.CounterVec
	rowsRewritten    prometheus.Histogram
	referenceErrors  *prometheus.CounterVec
	orderReads       *prometheus.CounterVec
}

// NewPrometheusExporter registers the exporter's metrics with reg.
func NewPrometheusExporter(reg prometheus.Registerer) *PrometheusExporter {
	factory := promauto.With(reg)
	return &PrometheusExporter{
		grpcRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "junban_grpc_requests_total",
				Help: "Total number of gRPC requests",
			},
			[]string{"method"},
		),
		grpcDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "junban_grpc_request_duration_seconds",
				Help:    "Duration of gRPC requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"method"},
		),
		grpcErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "junban_grpc_errors_total",
				Help: "Total number of gRPC errors",
			},
			[]string{"method", "code"},
		),
		reorderBatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "junban_reorder_batches_total",
				Help: "Total number of reorder batches by outcome",
			},
			[]string{"outcome"},
		),
		reorderMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "junban_reorder_mutations_total",
				Help: "Total number of connect and disconnect operations applied, by position kind",
			},
			[]string{"kind"},
		),
		rowsRewritten: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "junban_reorder_rows_rewritten",
				Help:    "Number of order values written per applied batch",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		referenceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "junban_reorder_reference_errors_total",
				Help: "Total number of batches rejected for a missing before/after anchor",
			},
			[]string{"position"},
		),
		orderReads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "junban_order_reads_total",
				Help: "Total number of order reads by cache result",
			},
			[]string{"result"},
		),
	}
}

// RecordRequest records a request in Prometheus.
func (e *PrometheusExporter) RecordRequest(method string) {
	if e == nil {
		return
	}
	e.grpcRequests.WithLabelValues(method).Inc()
}

// RecordDuration records a duration in Prometheus.
func (e *PrometheusExporter) RecordDuration(method string, durationSeconds float64) {
	if e == nil {
		return
	}
	e.grpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordError records an error in Prometheus.
func (e *PrometheusExporter) RecordError(method, code string) {
	if e == nil {
		return
	}
	e.grpcErrors.WithLabelValues(method, code).Inc()
}

// RecordBatch records the outcome of one reorder batch: "applied", "preview" or "failed".
func (e *PrometheusExporter) RecordBatch(outcome string) {
	if e == nil {
		return
	}
	e.reorderBatches.WithLabelValues(outcome).Inc()
}

// RecordMutation records one applied operation of the given kind.
func (e *PrometheusExporter) RecordMutation(kind string) {
	if e == nil {
		return
	}
	e.reorderMutations.WithLabelValues(kind).Inc()
}

// RecordRowsRewritten records the size of the order map written by a batch.
func (e *PrometheusExporter) RecordRowsRewritten(n int) {
	if e == nil {
		return
	}
	e.rowsRewritten.Observe(float64(n))
}

// RecordReferenceError records a batch rejected for a missing anchor.
func (e *PrometheusExporter) RecordReferenceError(position string) {
	if e == nil {
		return
	}
	e.referenceErrors.WithLabelValues(position).Inc()
}

// RecordOrderRead records whether a read was served from cache ("hit") or storage ("miss").
func (e *PrometheusExporter) RecordOrderRead(result string) {
	if e == nil {
		return
	}
	e.orderReads.WithLabelValues(result).Inc()
}
