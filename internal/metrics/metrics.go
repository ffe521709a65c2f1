package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Calculations counts KPI calculations by lifecycle state
	Calculations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "kpi_calculations_total", Help: "KPI calculations by lifecycle state."},
		[]string{"finalized"},
	)
	// CalculationDuration tracks calculation latencies in seconds
	CalculationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "kpi_calculation_duration_seconds", Help: "KPI calculation duration in seconds.", Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1}},
	)
	// StopEvidence counts per-stop evidence outcomes by family, window, and action
	StopEvidence = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "kpi_stop_evidence_total", Help: "Stop evidence outcomes by family, window, and action."},
		[]string{"family", "window", "action"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Calculations)
		Registry.MustRegister(CalculationDuration)
		Registry.MustRegister(StopEvidence)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
