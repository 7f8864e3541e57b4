package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "billing_connector"

const (
	WebhookOutcomeProcessed = "processed"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeAccepted  = "accepted"
	WebhookOutcomeRejected  = "rejected"
	WebhookOutcomeInvalid   = "invalid"
	WebhookOutcomeFailed    = "failed"

	InvoiceOutcomeSent     = "sent"
	InvoiceOutcomeInvalid  = "invalid"
	InvoiceOutcomeRejected = "rejected"
	InvoiceOutcomeFailed   = "failed"
)

// Metrics groups the service collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	webhookEvents       *prometheus.CounterVec
	invoiceAttempts     *prometheus.CounterVec
	creditNotes         *prometheus.CounterVec
	reconcileOrphans    *prometheus.CounterVec
	reconcileErrors     *prometheus.CounterVec
	reconcileDuration   *prometheus.HistogramVec
	rateLimitedRequests prometheus.Counter
}

func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Inbound webhook deliveries by outcome.",
		}, []string{"provider", "outcome"}),
		invoiceAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_attempts_total",
			Help:      "Invoice generation attempts by outcome.",
		}, []string{"outcome"}),
		creditNotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_notes_total",
			Help:      "Credit notes by strategy and resulting status.",
		}, []string{"strategy", "status"}),
		reconcileOrphans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_orphans_total",
			Help:      "Paid transactions found without a local invoice.",
		}, []string{"tenant"}),
		reconcileErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_errors_total",
			Help:      "Orphans that could not be invoiced during reconciliation.",
		}, []string{"tenant"}),
		reconcileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconciliation_duration_seconds",
			Help:      "Duration of one tenant reconciliation run.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 300, 900, 1800},
		}, []string{"partial"}),
		rateLimitedRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Webhook requests rejected by the rate limiter.",
		}),
	}

	registerer.MustRegister(
		m.webhookEvents,
		m.invoiceAttempts,
		m.creditNotes,
		m.reconcileOrphans,
		m.reconcileErrors,
		m.reconcileDuration,
		m.rateLimitedRequests,
	)
	return m
}

func (m *Metrics) WebhookEvent(provider, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) InvoiceAttempt(outcome string) {
	if m == nil {
		return
	}
	m.invoiceAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CreditNote(strategy, status string) {
	if m == nil {
		return
	}
	m.creditNotes.WithLabelValues(strategy, status).Inc()
}

func (m *Metrics) Reconciliation(tenant string, orphans, errors int, elapsed time.Duration, partial bool) {
	if m == nil {
		return
	}
	m.reconcileOrphans.WithLabelValues(tenant).Add(float64(orphans))
	m.reconcileErrors.WithLabelValues(tenant).Add(float64(errors))
	label := "false"
	if partial {
		label = "true"
	}
	m.reconcileDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimitedRequests.Inc()
}

// Handler serves the collectors registered on gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
