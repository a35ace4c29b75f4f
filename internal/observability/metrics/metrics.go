// Package metrics registers the Prometheus instruments exposed on /metrics.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	payments       *prometheus.CounterVec
	paymentEvents  *prometheus.CounterVec
	invoicesIssued prometheus.Counter
	remindersSent  prometheus.Counter
}

// New registers and returns the billing metrics.
func New() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

func newMetrics(registerer prometheus.Registerer) *Metrics {
	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billfold_http_requests_total",
		Help: "Counts HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "billfold_http_request_duration_seconds",
		Help:    "HTTP request latency per method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billfold_payments_total",
		Help: "Payment attempts by method and outcome.",
	}, []string{"method", "outcome"})

	paymentEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billfold_payment_events_total",
		Help: "Gateway webhook events by provider and type.",
	}, []string{"provider", "type"})

	invoicesIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billfold_invoices_issued_total",
		Help: "Invoices created.",
	})

	remindersSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "billfold_invoice_reminders_total",
		Help: "Overdue reminder notifications dispatched.",
	})

	registerer.MustRegister(
		httpRequests,
		httpDuration,
		payments,
		paymentEvents,
		invoicesIssued,
		remindersSent,
	)

	return &Metrics{
		httpRequests:   httpRequests,
		httpDuration:   httpDuration,
		payments:       payments,
		paymentEvents:  paymentEvents,
		invoicesIssued: invoicesIssued,
		remindersSent:  remindersSent,
	}
}

func (m *Metrics) RecordPayment(method, outcome string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(normalize(method), normalize(outcome)).Inc()
}

func (m *Metrics) RecordPaymentEvent(provider, eventType string) {
	if m == nil {
		return
	}
	m.paymentEvents.WithLabelValues(normalize(provider), normalize(eventType)).Inc()
}

func (m *Metrics) IncInvoiceIssued() {
	if m == nil {
		return
	}
	m.invoicesIssued.Inc()
}

func (m *Metrics) IncReminderSent() {
	if m == nil {
		return
	}
	m.remindersSent.Inc()
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func normalize(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	return value
}
