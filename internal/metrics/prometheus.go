package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusOnce     sync.Once
	prometheusInstance *PrometheusCollector
)

// EngineStates lists the label values of the engine state gauge.
var EngineStates = []string{"uninitialized", "starting", "ready", "failed", "stopped"}

// PrometheusCollector provides Prometheus metrics for the engine bridge.
type PrometheusCollector struct {
	// Engine metrics
	engineState         *prometheus.GaugeVec
	engineRestartsTotal prometheus.Counter
	engineHealthChecks  *prometheus.CounterVec
	commandDuration     *prometheus.HistogramVec
	commandErrorsTotal  *prometheus.CounterVec

	// Analysis metrics
	analysesTotal    *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	queueDepth       prometheus.Gauge

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Rate limit metrics
	rateLimitHitsTotal   *prometheus.CounterVec
	rateLimitChecksTotal prometheus.Counter

	// MCP tool metrics
	toolCallsTotal   *prometheus.CounterVec
	toolDurationSecs *prometheus.HistogramVec

	// Cache metrics
	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter
	cacheSize        prometheus.Gauge
	cacheItems       prometheus.Gauge
}

// NewPrometheusCollector returns the process-wide collector.
func NewPrometheusCollector() *PrometheusCollector {
	prometheusOnce.Do(func() {
		prometheusInstance = &PrometheusCollector{
			engineState: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "katago_web_engine_state",
					Help: "Engine lifecycle state (1 for the current state, 0 otherwise)",
				},
				[]string{"state"},
			),
			engineRestartsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "katago_web_engine_restarts_total",
					Help: "Total number of engine restarts by the supervisor",
				},
			),
			engineHealthChecks: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "katago_web_engine_health_checks_total",
					Help: "Total number of engine health probes",
				},
				[]string{"status"},
			),
			commandDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "katago_web_engine_command_duration_seconds",
					Help:    "Duration of GTP command exchanges in seconds",
					Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30},
				},
				[]string{"command"},
			),
			commandErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "katago_web_engine_command_errors_total",
					Help: "Total number of failed GTP command exchanges",
				},
				[]string{"command", "kind"},
			),

			analysesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "katago_web_analyses_total",
					Help: "Total number of analysis requests by outcome",
				},
				[]string{"outcome"},
			),
			analysisDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "katago_web_analysis_duration_seconds",
					Help:    "Duration of complete analysis sequences in seconds",
					Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
				},
			),
			queueDepth: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "katago_web_queue_depth",
					Help: "Number of jobs waiting for the engine",
				},
			),

			httpRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "katago_web_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			httpRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "katago_web_http_request_duration_seconds",
					Help:    "Duration of HTTP requests in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),

			rateLimitHitsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "katago_web_rate_limit_hits_total",
					Help: "Total number of rate limited requests",
				},
				[]string{"route"},
			),
			rateLimitChecksTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "katago_web_rate_limit_checks_total",
					Help: "Total number of rate limit checks",
				},
			),

			toolCallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "katago_web_mcp_tool_calls_total",
					Help: "Total number of MCP tool calls",
				},
				[]string{"tool", "status"},
			),
			toolDurationSecs: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "katago_web_mcp_tool_duration_seconds",
					Help:    "Duration of MCP tool calls in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),

			cacheHitsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "katago_web_cache_hits_total",
					Help: "Total number of analysis cache hits",
				},
			),
			cacheMissesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "katago_web_cache_misses_total",
					Help: "Total number of analysis cache misses",
				},
			),
			cacheSize: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "katago_web_cache_size_bytes",
					Help: "Current analysis cache size in bytes",
				},
			),
			cacheItems: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "katago_web_cache_items",
					Help: "Current number of cached analyses",
				},
			),
		}
	})
	return prometheusInstance
}

// SetEngineState marks state as current.
func (p *PrometheusCollector) SetEngineState(state string) {
	for _, s := range EngineStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		p.engineState.WithLabelValues(s).Set(v)
	}
}

// RecordEngineRestart records a supervisor restart.
func (p *PrometheusCollector) RecordEngineRestart() {
	p.engineRestartsTotal.Inc()
}

// RecordEngineHealthCheck records a health probe result.
func (p *PrometheusCollector) RecordEngineHealthCheck(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	p.engineHealthChecks.WithLabelValues(status).Inc()
}

// RecordCommand records one GTP exchange. kind is empty on success.
func (p *PrometheusCollector) RecordCommand(command, kind string, durationSecs float64) {
	p.commandDuration.WithLabelValues(command).Observe(durationSecs)
	if kind != "" {
		p.commandErrorsTotal.WithLabelValues(command, kind).Inc()
	}
}

// RecordAnalysis records a finished analysis request.
func (p *PrometheusCollector) RecordAnalysis(outcome string, durationSecs float64) {
	p.analysesTotal.WithLabelValues(outcome).Inc()
	p.analysisDuration.Observe(durationSecs)
}

// SetQueueDepth sets the number of waiting jobs.
func (p *PrometheusCollector) SetQueueDepth(n int) {
	p.queueDepth.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request.
func (p *PrometheusCollector) RecordHTTPRequest(method, path, status string, durationSecs float64) {
	p.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	p.httpRequestDuration.WithLabelValues(method, path).Observe(durationSecs)
}

// RecordRateLimit records a rate limit check.
func (p *PrometheusCollector) RecordRateLimit(route string, hit bool) {
	p.rateLimitChecksTotal.Inc()
	if hit {
		p.rateLimitHitsTotal.WithLabelValues(route).Inc()
	}
}

// RecordToolCall records an MCP tool call.
func (p *PrometheusCollector) RecordToolCall(tool, status string, durationSecs float64) {
	p.toolCallsTotal.WithLabelValues(tool, status).Inc()
	p.toolDurationSecs.WithLabelValues(tool).Observe(durationSecs)
}

// RecordCacheHit records a cache hit.
func (p *PrometheusCollector) RecordCacheHit() {
	p.cacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss.
func (p *PrometheusCollector) RecordCacheMiss() {
	p.cacheMissesTotal.Inc()
}

// SetCacheStats sets the current cache statistics.
func (p *PrometheusCollector) SetCacheStats(items, sizeBytes float64) {
	p.cacheItems.Set(items)
	p.cacheSize.Set(sizeBytes)
}
