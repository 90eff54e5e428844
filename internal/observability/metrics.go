package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	pipelineRunTotal    *prometheus.CounterVec
	pipelineRunDuration *prometheus.HistogramVec
	stageDuration       *prometheus.HistogramVec
	stageErrorsTotal    *prometheus.CounterVec

	searchDuration    prometheus.Histogram
	indexWriteTotal   prometheus.Counter
	namespaceClears   prometheus.Counter
	indexedPassages   prometheus.Gauge
	activeSessions    prometheus.Gauge
	activeBindings    prometheus.Gauge
	sessionEvictions  *prometheus.CounterVec
	turnAppendTotal   prometheus.Counter
	gatewayReqTotal   *prometheus.CounterVec
	gatewayReqSeconds *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			pipelineRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pipeline_run_total",
					Help: "Total pipeline runs by variant and status.",
				},
				[]string{"variant", "status"},
			),
			pipelineRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "pipeline_run_duration_seconds",
					Help:    "End-to-end pipeline duration in seconds by variant.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"variant"},
			),
			stageDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "pipeline_stage_duration_seconds",
					Help:    "Per-stage duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"stage"},
			),
			stageErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pipeline_stage_errors_total",
					Help: "Total stage failures by stage.",
				},
				[]string{"stage"},
			),
			searchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "vector_search_duration_seconds",
					Help:    "Vector search duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			indexWriteTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "vector_index_writes_total",
					Help: "Total passages written to the vector index.",
				},
			),
			namespaceClears: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "vector_namespace_clears_total",
					Help: "Total namespace clear operations.",
				},
			),
			indexedPassages: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "vector_indexed_passages",
					Help: "Current passage count across all namespaces.",
				},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "conversation_active_sessions",
					Help: "Current conversation session count.",
				},
			),
			activeBindings: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "document_active_bindings",
					Help: "Current document binding count.",
				},
			),
			sessionEvictions: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "eviction_total",
					Help: "Total evictions by store and reason.",
				},
				[]string{"store", "reason"},
			),
			turnAppendTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "conversation_turns_total",
					Help: "Total turns appended across all sessions.",
				},
			),
			gatewayReqTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gateway_requests_total",
					Help: "Total gateway requests by route and status code.",
				},
				[]string{"route", "status"},
			),
			gatewayReqSeconds: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "gateway_request_duration_seconds",
					Help:    "Gateway request duration in seconds by route.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"route"},
			),
		}

		prometheus.MustRegister(
			m.pipelineRunTotal,
			m.pipelineRunDuration,
			m.stageDuration,
			m.stageErrorsTotal,
			m.searchDuration,
			m.indexWriteTotal,
			m.namespaceClears,
			m.indexedPassages,
			m.activeSessions,
			m.activeBindings,
			m.sessionEvictions,
			m.turnAppendTotal,
			m.gatewayReqTotal,
			m.gatewayReqSeconds,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered registers all metrics with the default registry.
// Components call this from their constructors so metric registration does
// not depend on wiring order.
func EnsureRegistered() {
	getMetrics()
}

// MetricsHandler returns the HTTP handler for the /metrics endpoint
func MetricsHandler() http.Handler {
	getMetrics()
	return promhttp.Handler()
}

// RecordPipelineRun records a completed pipeline run
func RecordPipelineRun(variant, status string, d time.Duration) {
	m := getMetrics()
	m.pipelineRunTotal.WithLabelValues(variant, status).Inc()
	m.pipelineRunDuration.WithLabelValues(variant).Observe(d.Seconds())
}

// RecordStage records a stage duration
func RecordStage(stage string, d time.Duration) {
	getMetrics().stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordStageError records a stage failure
func RecordStageError(stage string) {
	getMetrics().stageErrorsTotal.WithLabelValues(stage).Inc()
}

// RecordSearch records a vector search duration
func RecordSearch(d time.Duration) {
	getMetrics().searchDuration.Observe(d.Seconds())
}

// RecordIndexWrite records passages written to the index
func RecordIndexWrite(count int) {
	getMetrics().indexWriteTotal.Add(float64(count))
}

// RecordNamespaceClear records a namespace clear operation
func RecordNamespaceClear() {
	getMetrics().namespaceClears.Inc()
}

// SetIndexedPassages updates the total passage gauge
func SetIndexedPassages(count int) {
	getMetrics().indexedPassages.Set(float64(count))
}

// SetActiveSessions updates the active session gauge
func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

// SetActiveBindings updates the document binding gauge
func SetActiveBindings(count int) {
	getMetrics().activeBindings.Set(float64(count))
}

// RecordEviction records an eviction by store ("conversation" or
// "docsession") and reason ("age", "capacity").
func RecordEviction(store, reason string) {
	getMetrics().sessionEvictions.WithLabelValues(store, reason).Inc()
}

// RecordTurnAppend records a turn appended to a session
func RecordTurnAppend() {
	getMetrics().turnAppendTotal.Inc()
}

// RecordGatewayRequest records a gateway request
func RecordGatewayRequest(route, status string, d time.Duration) {
	m := getMetrics()
	m.gatewayReqTotal.WithLabelValues(route, status).Inc()
	m.gatewayReqSeconds.WithLabelValues(route).Observe(d.Seconds())
}
