package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the billing Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	OperationsTotal        *prometheus.CounterVec
	GatewayRequestDuration *prometheus.HistogramVec
	WebhookEventsTotal     *prometheus.CounterVec
	ReconciliationDebt     *prometheus.CounterVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_operations_total",
				Help: "Total number of billing operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		GatewayRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_gateway_request_duration_seconds",
				Help:    "Payment gateway request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_webhook_events_total",
				Help: "Total number of webhook events by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		ReconciliationDebt: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_reconciliation_debt_total",
				Help: "Local writes that failed after the gateway already advanced",
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.OperationsTotal,
		m.GatewayRequestDuration,
		m.WebhookEventsTotal,
		m.ReconciliationDebt,
	)

	return m
}

func (m *Metrics) RecordOperation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveGateway(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.GatewayRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) RecordWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) RecordReconciliationDebt(operation string) {
	if m == nil {
		return
	}
	m.ReconciliationDebt.WithLabelValues(operation).Inc()
}
