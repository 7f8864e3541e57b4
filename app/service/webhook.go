package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
	"github.com/vibast-solutions/ms-go-billing-connector/app/factory"
	"github.com/vibast-solutions/ms-go-billing-connector/app/metrics"
	"github.com/vibast-solutions/ms-go-billing-connector/app/provider"
	"github.com/vibast-solutions/ms-go-billing-connector/app/repository"
	"github.com/vibast-solutions/ms-go-billing-connector/app/transformer"
)

const (
	WebhookOutcomeProcessed = "processed"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeAccepted  = "accepted"
)

type IngestWebhookRequest interface {
	GetProvider() string
	GetTenantSecret() string
	GetSignature() string
	GetBody() []byte
}

type signatureVerifier interface {
	Verify(secret string, rawBody []byte, header string) bool
}

// WebhookResult tells the sender what happened. Accepted means the event was
// stored but a downstream fiscal call failed; the failure is kept on the
// transaction.
type WebhookResult struct {
	Outcome     string
	Transaction *entity.Transaction
	Error       string
}

type WebhookIngress struct {
	txRepo       transactionRepository
	eventRepo    webhookEventRepository
	settingsRepo billingSettingsRepository
	transformer  payloadTransformer
	verifier     signatureVerifier
	invoices     *InvoiceGenerator
	creditNotes  *CreditNoteEngine
	globalSecret string
	metrics      *metrics.Metrics
	logger       logrus.FieldLogger
	now          func() time.Time
}

func NewWebhookIngress(
	txRepo transactionRepository,
	eventRepo webhookEventRepository,
	settingsRepo billingSettingsRepository,
	transformer payloadTransformer,
	verifier signatureVerifier,
	invoices *InvoiceGenerator,
	creditNotes *CreditNoteEngine,
	globalSecret string,
	m *metrics.Metrics,
) *WebhookIngress {
	return &WebhookIngress{
		txRepo:       txRepo,
		eventRepo:    eventRepo,
		settingsRepo: settingsRepo,
		transformer:  transformer,
		verifier:     verifier,
		invoices:     invoices,
		creditNotes:  creditNotes,
		globalSecret: strings.TrimSpace(globalSecret),
		metrics:      m,
		logger:       factory.NewModuleLogger("webhook-ingress"),
		now:          time.Now,
	}
}

func (w *WebhookIngress) Ingest(ctx context.Context, req IngestWebhookRequest) (*WebhookResult, error) {
	providerCode := strings.ToLower(strings.TrimSpace(req.GetProvider()))
	if providerCode != provider.GetnetCode {
		return nil, ErrProviderUnsupported
	}

	result, err := w.ingest(ctx, providerCode, req)
	switch {
	case err == nil:
		w.metrics.WebhookEvent(providerCode, result.Outcome)
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrTenantNotFound):
		w.metrics.WebhookEvent(providerCode, metrics.WebhookOutcomeRejected)
	case errors.Is(err, ErrInvalidPayload):
		w.metrics.WebhookEvent(providerCode, metrics.WebhookOutcomeInvalid)
	default:
		w.metrics.WebhookEvent(providerCode, metrics.WebhookOutcomeFailed)
	}
	return result, err
}

func (w *WebhookIngress) ingest(ctx context.Context, providerCode string, req IngestWebhookRequest) (*WebhookResult, error) {
	tenantSecret := strings.TrimSpace(req.GetTenantSecret())
	if tenantSecret == "" {
		return nil, ErrTenantNotFound
	}
	settings, err := w.settingsRepo.FindByWebhookTenantSecret(ctx, tenantSecret)
	if err != nil {
		return nil, err
	}
	if settings == nil || !settings.Active {
		return nil, ErrTenantNotFound
	}

	body := req.GetBody()
	signingSecret := w.globalSecret
	if settings.WebhookSigningSecret != nil && strings.TrimSpace(*settings.WebhookSigningSecret) != "" {
		signingSecret = *settings.WebhookSigningSecret
	}
	if !w.verifier.Verify(signingSecret, body, req.GetSignature()) {
		return nil, ErrInvalidSignature
	}

	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])
	logger := w.logger.WithFields(logrus.Fields{
		"tenant_id":  settings.TenantID.String(),
		"event_hash": hash,
	})

	event, duplicate, err := w.claimEvent(ctx, settings, providerCode, hash, body)
	if err != nil {
		return nil, err
	}
	if duplicate {
		logger.Info("webhook_duplicate")
		return &WebhookResult{Outcome: WebhookOutcomeDuplicate}, nil
	}

	incoming, err := w.transformer.ToTransaction(body, nil)
	if err != nil {
		w.recordEventError(ctx, event, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(incoming.ExternalID) == "" {
		w.recordEventError(ctx, event, "payload has no external id")
		return nil, fmt.Errorf("%w: payload has no external id", ErrInvalidPayload)
	}
	incoming.TenantID = settings.TenantID
	incoming.BillingStatus = entity.BillingStatusNotApplicable
	logger = logger.WithField("external_id", incoming.ExternalID)

	current, err := w.txRepo.FindByExternalID(ctx, settings.TenantID, incoming.ExternalID)
	if err != nil {
		w.recordEventError(ctx, event, err.Error())
		return nil, err
	}

	stored, err := w.txRepo.Upsert(ctx, incoming)
	if err != nil {
		w.recordEventError(ctx, event, err.Error())
		return nil, err
	}

	result := &WebhookResult{Outcome: WebhookOutcomeProcessed, Transaction: stored}

	// The processor's status is stored first; a refund of an invoiced payment
	// then gets its credit note.
	refund := stored.Status == entity.TransactionStatusRefunded &&
		current != nil &&
		current.Status == entity.TransactionStatusPaid &&
		stored.HasInvoiceNumber() &&
		!stored.HasCreditNote()

	switch {
	case refund:
		if _, err := w.creditNotes.ProcessRefund(ctx, stored, settings, transformer.RefundReason(body)); err != nil {
			logger.WithError(err).Error("credit note failed during webhook processing")
			w.recordCreditNoteFailure(ctx, stored, err)
			result.Outcome = WebhookOutcomeAccepted
			result.Error = err.Error()
		}
	case stored.Status == entity.TransactionStatusPaid && !stored.IsBilled():
		if err := w.invoice(ctx, logger, stored, settings, body); err != nil {
			result.Outcome = WebhookOutcomeAccepted
			result.Error = err.Error()
		}
	}

	if err := w.eventRepo.MarkProcessed(ctx, event.ID, w.now().UTC()); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"outcome":        result.Outcome,
		"status":         stored.Status,
		"billing_status": stored.BillingStatus,
	}).Info("webhook_processed")
	return result, nil
}

// invoice either holds the transaction for confirmation or invoices it. An
// invoicing failure is stored on the transaction and returned, never raised.
func (w *WebhookIngress) invoice(ctx context.Context, logger logrus.FieldLogger, tx *entity.Transaction, settings *entity.BillingSettings, body []byte) error {
	if settings.RequireBillingConfirmation {
		if tx.BillingStatus == entity.BillingStatusPending {
			return nil
		}
		tx.BillingStatus = entity.BillingStatusPending
		tx.UpdatedAt = w.now().UTC()
		if err := w.txRepo.Update(ctx, tx); err != nil {
			logger.WithError(err).Error("failed to hold transaction for billing confirmation")
			return err
		}
		return nil
	}

	if _, err := w.invoices.Generate(ctx, tx, settings, body); err != nil {
		if errors.Is(err, ErrAlreadyBilled) {
			return nil
		}
		logger.WithError(err).Error("invoicing failed during webhook processing")
		if recordErr := recordBillingFailure(ctx, w.txRepo, tx, err, w.now().UTC()); recordErr != nil {
			logger.WithError(recordErr).Error("failed to record billing error")
		}
		return err
	}
	return nil
}

// claimEvent returns the event to process, or duplicate=true when the body
// was already processed or is being processed by a concurrent delivery.
func (w *WebhookIngress) claimEvent(ctx context.Context, settings *entity.BillingSettings, providerCode, hash string, body []byte) (*entity.WebhookEvent, bool, error) {
	existing, err := w.eventRepo.FindByHash(ctx, settings.TenantID, hash)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, existing.Processed, nil
	}

	now := w.now().UTC()
	event := &entity.WebhookEvent{
		TenantID:    settings.TenantID,
		Provider:    providerCode,
		EventHash:   hash,
		PayloadJSON: string(body),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := w.eventRepo.Create(ctx, event); err != nil {
		if errors.Is(err, repository.ErrWebhookEventAlreadyExists) {
			return nil, true, nil
		}
		return nil, false, err
	}
	return event, false, nil
}

func (w *WebhookIngress) recordEventError(ctx context.Context, event *entity.WebhookEvent, message string) {
	if err := w.eventRepo.RecordError(ctx, event.ID, truncate(message, maxErrorLength), w.now().UTC()); err != nil {
		w.logger.WithError(err).WithField("event_id", event.ID).Error("failed to record webhook event error")
	}
}

// recordCreditNoteFailure keeps the billing status, which tracks the invoice,
// and stores the credit note failure as the billing error.
func (w *WebhookIngress) recordCreditNoteFailure(ctx context.Context, tx *entity.Transaction, cause error) {
	msg := truncate("credit note: "+cause.Error(), maxErrorLength)
	tx.BillingError = &msg
	tx.UpdatedAt = w.now().UTC()
	if err := w.txRepo.Update(ctx, tx); err != nil {
		w.logger.WithError(err).WithField("external_id", tx.ExternalID).Error("failed to record credit note error")
	}
}
