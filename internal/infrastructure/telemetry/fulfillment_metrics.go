package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "orderhub"

// FulfillmentMetrics holds the Prometheus collectors for the fulfillment
// core. Every method is safe on a nil receiver, so services can run without
// metrics wired.
type FulfillmentMetrics struct {
	reg *prometheus.Registry

	transitions      *prometheus.CounterVec
	pendingOrders    *prometheus.GaugeVec
	batches          *prometheus.CounterVec
	labelsPrinted    prometheus.Counter
	ingested         *prometheus.CounterVec
	signals          *prometheus.CounterVec
	syncStatus       *prometheus.GaugeVec
	gaps             *prometheus.GaugeVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	reconcileRuns    *prometheus.CounterVec
	reconcileLatency prometheus.Histogram
}

var syncStatuses = []string{"ok", "warning", "stale", "no_data"}

// NewFulfillmentMetrics registers all collectors on a private registry
// alongside the Go runtime and process collectors.
func NewFulfillmentMetrics() *FulfillmentMetrics {
	m := &FulfillmentMetrics{
		reg: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions by target status and result.",
		}, []string{"target", "result"}),
		pendingOrders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "batch_pending_orders",
			Help:      "Orders eligible for batching, by scope.",
		}, []string{"scope"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "batches_total",
			Help:      "Batch lifecycle outcomes by scope.",
		}, []string{"scope", "outcome"}),
		labelsPrinted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "labels_printed_total",
			Help:      "Orders newly marked as printed.",
		}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "orders_ingested_total",
			Help:      "Ingested marketplace rows by channel and outcome.",
		}, []string{"channel", "outcome"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "downstream_signals_total",
			Help:      "Downstream signals by event type and delivery result.",
		}, []string{"event_type", "result"}),
		syncStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sync_platform_status",
			Help:      "1 for the current health status of each platform, 0 otherwise.",
		}, []string{"platform", "status"}),
		gaps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sync_gap_days",
			Help:      "Gap days found in the last scan, by platform.",
		}, []string{"platform"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		reconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reconcile_jobs_total",
			Help:      "Scheduled reconcile jobs by kind and final status.",
		}, []string{"kind", "status"}),
		reconcileLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "reconcile_job_duration_seconds",
			Help:      "Scheduled reconcile job duration.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transitions, m.pendingOrders, m.batches, m.labelsPrinted, m.ingested,
		m.signals, m.syncStatus, m.gaps, m.httpRequests, m.httpDuration,
		m.reconcileRuns, m.reconcileLatency,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *FulfillmentMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *FulfillmentMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *FulfillmentMetrics) RecordTransition(target, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(target, result).Inc()
}

func (m *FulfillmentMetrics) SetPendingCount(scope string, n int64) {
	if m == nil {
		return
	}
	m.pendingOrders.WithLabelValues(scope).Set(float64(n))
}

func (m *FulfillmentMetrics) RecordBatchCreated(scope string) {
	m.recordBatch(scope, "created")
}

func (m *FulfillmentMetrics) RecordBatchCancelled(scope string) {
	m.recordBatch(scope, "cancelled")
}

func (m *FulfillmentMetrics) RecordBatchConflict(scope string) {
	m.recordBatch(scope, "conflict")
}

func (m *FulfillmentMetrics) recordBatch(scope, outcome string) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(scope, outcome).Inc()
}

func (m *FulfillmentMetrics) RecordLabelsPrinted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.labelsPrinted.Add(float64(n))
}

func (m *FulfillmentMetrics) RecordIngest(channel, outcome string) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(channel, outcome).Inc()
}

func (m *FulfillmentMetrics) RecordSignal(eventType, result string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(eventType, result).Inc()
}

// SetSyncStatus sets the gauge of the current status to 1 and the others to 0
func (m *FulfillmentMetrics) SetSyncStatus(platform, status string) {
	if m == nil {
		return
	}
	for _, s := range syncStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		m.syncStatus.WithLabelValues(platform, s).Set(v)
	}
}

func (m *FulfillmentMetrics) SetGapCount(platform string, n int) {
	if m == nil {
		return
	}
	m.gaps.WithLabelValues(platform).Set(float64(n))
}

func (m *FulfillmentMetrics) ObserveHTTPRequest(route, method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func (m *FulfillmentMetrics) RecordReconcileJob(kind, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reconcileRuns.WithLabelValues(kind, status).Inc()
	m.reconcileLatency.Observe(elapsed.Seconds())
}
