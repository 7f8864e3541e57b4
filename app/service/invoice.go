package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
	"github.com/vibast-solutions/ms-go-billing-connector/app/factory"
	"github.com/vibast-solutions/ms-go-billing-connector/app/metrics"
	"github.com/vibast-solutions/ms-go-billing-connector/app/provider"
	"github.com/vibast-solutions/ms-go-billing-connector/app/validator"
)

// InvoiceGenerator runs one invoicing attempt for a transaction. It only
// writes the transaction on success; callers decide how a failure is recorded
// on the transaction.
type InvoiceGenerator struct {
	txRepo      transactionRepository
	invoiceRepo invoiceRepository
	transformer payloadTransformer
	provider    provider.InvoicingProvider
	metrics     *metrics.Metrics
	logger      logrus.FieldLogger
	now         func() time.Time
}

func NewInvoiceGenerator(
	txRepo transactionRepository,
	invoiceRepo invoiceRepository,
	transformer payloadTransformer,
	invoicing provider.InvoicingProvider,
	m *metrics.Metrics,
) *InvoiceGenerator {
	return &InvoiceGenerator{
		txRepo:      txRepo,
		invoiceRepo: invoiceRepo,
		transformer: transformer,
		provider:    invoicing,
		metrics:     m,
		logger:      factory.NewModuleLogger("invoice-generator"),
		now:         time.Now,
	}
}

// Generate validates tx, records a pending invoice, calls the provider and
// stores the outcome. rawBody is the originating webhook body, if any, and
// is used for line items.
func (g *InvoiceGenerator) Generate(ctx context.Context, tx *entity.Transaction, settings *entity.BillingSettings, rawBody []byte) (*entity.Invoice, error) {
	if tx.IsBilled() {
		return nil, ErrAlreadyBilled
	}

	logger := g.logger.WithFields(logrus.Fields{
		"tenant_id":   tx.TenantID.String(),
		"external_id": tx.ExternalID,
	})

	result := validator.ValidateTransaction(tx)
	if !result.Valid {
		g.metrics.InvoiceAttempt(metrics.InvoiceOutcomeInvalid)
		logger.WithField("errors", result.ErrorMessage()).Warn("billing_validation_failed")
		return nil, &ValidationError{Errors: result.Errors, Warnings: result.Warnings}
	}
	if len(result.Warnings) > 0 {
		logger.WithField("warnings", result.WarningMessage()).Info("billing_validation_warnings")
	}

	now := g.now().UTC()
	invoice := &entity.Invoice{
		TenantID:      tx.TenantID,
		TransactionID: tx.ID,
		Status:        entity.InvoiceStatusPending,
		Total:         tx.Amount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := g.invoiceRepo.Create(ctx, invoice); err != nil {
		return nil, err
	}

	req, warnings, err := g.transformer.ToProviderRequest(tx, settings, rawBody)
	if err != nil {
		g.metrics.InvoiceAttempt(metrics.InvoiceOutcomeFailed)
		return invoice, g.failInvoice(ctx, invoice, err.Error(), fmt.Errorf("build provider request: %w", err))
	}
	invoice.DocumentType = req.Header.DocumentType
	invoice.PointOfSale = req.Header.PointOfSale
	invoice.RequestJSON = marshalAudit(req)
	for _, warning := range warnings {
		logger.WithField("warning", warning).Info("provider_request_adjusted")
	}

	requestResult := validator.ValidateProviderRequest(req)
	if !requestResult.Valid {
		g.metrics.InvoiceAttempt(metrics.InvoiceOutcomeInvalid)
		logger.WithField("errors", requestResult.ErrorMessage()).Warn("billing_validation_failed")
		validationErr := &ValidationError{Errors: requestResult.Errors, Warnings: requestResult.Warnings}
		return invoice, g.failInvoice(ctx, invoice, requestResult.ErrorMessage(), validationErr)
	}

	resp, err := g.provider.CreateDocument(ctx, req)
	if err != nil {
		g.metrics.InvoiceAttempt(metrics.InvoiceOutcomeFailed)
		logger.WithError(err).Error("provider_call_failed")
		return invoice, g.failInvoice(ctx, invoice, err.Error(), fmt.Errorf("create invoice: %w", err))
	}
	invoice.ResponseJSON = marshalAudit(resp)

	if !resp.Issued() {
		g.metrics.InvoiceAttempt(metrics.InvoiceOutcomeRejected)
		reason := resp.RejectionReason()
		logger.WithFields(logrus.Fields{
			"provider_state": resp.State,
			"reason":         reason,
		}).Warn("provider_rejected")
		return invoice, g.failInvoice(ctx, invoice, "", fmt.Errorf("%w: %s", ErrProviderRejected, reason))
	}

	now = g.now().UTC()
	invoice.Status = entity.InvoiceStatusSent
	invoice.InvoiceNumber = stringPtr(resp.Number)
	invoice.CAE = stringPtr(resp.CAE)
	invoice.CAEExpiresAt = stringPtr(resp.CAEExpiresAt)
	invoice.PDFURL = stringPtr(resp.PDFURL)
	invoice.UpdatedAt = now
	if err := g.invoiceRepo.Update(ctx, invoice); err != nil {
		return invoice, err
	}

	tx.BillingStatus = entity.BillingStatusBilled
	tx.BillingError = nil
	tx.InvoiceNumber = invoice.InvoiceNumber
	tx.CAE = invoice.CAE
	tx.InvoicePDFURL = invoice.PDFURL
	tx.UpdatedAt = now
	if err := g.txRepo.Update(ctx, tx); err != nil {
		logger.WithError(err).WithField("invoice_number", resp.Number).Error("invoice issued but transaction update failed")
		return invoice, err
	}

	g.metrics.InvoiceAttempt(metrics.InvoiceOutcomeSent)
	logger.WithField("invoice_number", resp.Number).Info("invoice_issued")
	return invoice, nil
}

// failInvoice moves the invoice to error. detail, when set, replaces the
// response payload for audit.
func (g *InvoiceGenerator) failInvoice(ctx context.Context, invoice *entity.Invoice, detail string, cause error) error {
	invoice.Status = entity.InvoiceStatusError
	if detail != "" {
		invoice.ResponseJSON = marshalAudit(map[string]string{"error": truncate(detail, maxErrorLength)})
	}
	invoice.UpdatedAt = g.now().UTC()
	if err := g.invoiceRepo.Update(ctx, invoice); err != nil {
		g.logger.WithError(err).WithField("invoice_id", invoice.ID).Error("failed to record invoice error")
	}
	return cause
}

// recordBillingFailure stores a failed invoicing attempt on the transaction
// so it stays visible after the error itself is handled.
func recordBillingFailure(ctx context.Context, repo transactionRepository, tx *entity.Transaction, cause error, now time.Time) error {
	msg := truncate(cause.Error(), maxErrorLength)
	tx.BillingStatus = entity.BillingStatusError
	tx.BillingError = &msg
	tx.UpdatedAt = now
	return repo.Update(ctx, tx)
}
