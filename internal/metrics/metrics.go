package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 店铺业务指标
type Metrics struct {
	registry          *prometheus.Registry
	invoicesCreated   prometheus.Counter
	invoiceErrors     *prometheus.CounterVec
	pollOutcomes      *prometheus.CounterVec
	orderTransitions  *prometheus.CounterVec
	activePolls       prometheus.Gauge
	httpDuration      *prometheus.HistogramVec
	eventPublishFails prometheus.Counter
}

// New 创建独立注册表上的指标集合
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		invoicesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_invoices_created_total",
			Help: "PayPal invoices created and sent.",
		}),
		invoiceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_invoice_errors_total",
			Help: "PayPal invoice gateway failures by operation.",
		}, []string{"op"}),
		pollOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_poll_outcomes_total",
			Help: "Finished invoice poll sessions by outcome.",
		}, []string{"outcome"}),
		orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_order_transitions_total",
			Help: "Order status transitions by field and target status.",
		}, []string{"field", "to"}),
		activePolls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_active_polls",
			Help: "In-process invoice poll loops currently running.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		eventPublishFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_event_publish_failures_total",
			Help: "Order events that could not be published.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.invoicesCreated,
		m.invoiceErrors,
		m.pollOutcomes,
		m.orderTransitions,
		m.activePolls,
		m.httpDuration,
		m.eventPublishFails,
	)
	return m
}

// Registry 返回底层注册表
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// InvoiceCreated 记录发票创建
func (m *Metrics) InvoiceCreated() {
	if m == nil {
		return
	}
	m.invoicesCreated.Inc()
}

// InvoiceError 记录发票网关失败
func (m *Metrics) InvoiceError(op string) {
	if m == nil {
		return
	}
	m.invoiceErrors.WithLabelValues(op).Inc()
}

// PollOutcome 记录轮询结果
func (m *Metrics) PollOutcome(outcome string) {
	if m == nil {
		return
	}
	m.pollOutcomes.WithLabelValues(outcome).Inc()
}

// PollStarted 活跃轮询数 +1
func (m *Metrics) PollStarted() {
	if m == nil {
		return
	}
	m.activePolls.Inc()
}

// PollStopped 活跃轮询数 -1
func (m *Metrics) PollStopped() {
	if m == nil {
		return
	}
	m.activePolls.Dec()
}

// OrderTransition 记录订单状态流转
func (m *Metrics) OrderTransition(field, to string) {
	if m == nil {
		return
	}
	m.orderTransitions.WithLabelValues(field, to).Inc()
}

// EventPublishFailed 记录事件发布失败
func (m *Metrics) EventPublishFailed() {
	if m == nil {
		return
	}
	m.eventPublishFails.Inc()
}

// ObserveHTTP 记录请求耗时
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
