package service

import (
	"context"
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
)

const defaultRefundReason = "Reembolso solicitado por el cliente"

type creditNoteStrategy int

const (
	strategyStub creditNoteStrategy = iota
	strategyManual
	strategyAutomatic
)

// parseCreditNoteStrategy falls back to stub for unset or unknown values.
func parseCreditNoteStrategy(raw string) creditNoteStrategy {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case entity.CreditNoteStrategyAutomatic:
		return strategyAutomatic
	case entity.CreditNoteStrategyManual:
		return strategyManual
	default:
		return strategyStub
	}
}

func (s creditNoteStrategy) String() string {
	switch s {
	case strategyAutomatic:
		return entity.CreditNoteStrategyAutomatic
	case strategyManual:
		return entity.CreditNoteStrategyManual
	default:
		return entity.CreditNoteStrategyStub
	}
}

type CreditNoteEngine struct {
	txRepo      transactionRepository
	noteRepo    creditNoteRepository
	transformer payloadTransformer
	provider    provider.InvoicingProvider
	metrics     *metrics.Metrics
	logger      logrus.FieldLogger
	now         func() time.Time
}

func NewCreditNoteEngine(
	txRepo transactionRepository,
	noteRepo creditNoteRepository,
	transformer payloadTransformer,
	invoicing provider.InvoicingProvider,
	m *metrics.Metrics,
) *CreditNoteEngine {
	return &CreditNoteEngine{
		txRepo:      txRepo,
		noteRepo:    noteRepo,
		transformer: transformer,
		provider:    invoicing,
		metrics:     m,
		logger:      factory.NewModuleLogger("credit-note-engine"),
		now:         time.Now,
	}
}

// ProcessRefund converts the refund of a paid transaction into a credit note
// using the tenant's strategy. The transaction may already carry the REFUNDED
// status reported by the processor. An existing credit note is returned
// unchanged. The transaction is marked REFUNDED even when the provider call
// fails; the failure is kept on the credit note and returned.
func (e *CreditNoteEngine) ProcessRefund(ctx context.Context, tx *entity.Transaction, settings *entity.BillingSettings, reason string) (*entity.CreditNote, error) {
	existing, err := e.noteRepo.FindByTransactionID(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	if tx.Status != entity.TransactionStatusPaid && tx.Status != entity.TransactionStatusRefunded {
		return nil, fmt.Errorf("%w: credit notes require a PAID or REFUNDED transaction, got %s", ErrInvalidStatus, tx.Status)
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRefundReason
	}

	strategy := strategyStub
	if settings != nil {
		strategy = parseCreditNoteStrategy(settings.CreditNoteStrategy)
	}

	now := e.now().UTC()
	note := &entity.CreditNote{
		TenantID:      tx.TenantID,
		TransactionID: tx.ID,
		Status:        entity.CreditNoteStatusPending,
		Strategy:      strategy.String(),
		RefundReason:  reason,
		Amount:        tx.Amount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if strategy == strategyStub {
		stamp := now.UnixMilli()
		note.Status = entity.CreditNoteStatusStub
		note.CreditNoteNumber = stringPtr(fmt.Sprintf("NC-STUB-%d", stamp))
		note.CAE = stringPtr(fmt.Sprintf("STUB-CAE-%d", stamp))
	}

	if err := e.noteRepo.Create(ctx, note); err != nil {
		return e.existingOnConflict(ctx, tx, err)
	}

	var issueErr error
	switch strategy {
	case strategyAutomatic:
		issueErr = e.issue(ctx, tx, settings, note)
	case strategyManual:
		// Stays pending until ProcessManualCreditNote.
	case strategyStub:
		// Issued locally above.
	}

	e.metrics.CreditNote(note.Strategy, note.Status)

	tx.Status = entity.TransactionStatusRefunded
	tx.RefundReason = &note.RefundReason
	tx.RefundedAt = &now
	e.mirror(tx, note)
	if err := e.txRepo.Update(ctx, tx); err != nil {
		return note, err
	}

	e.logger.WithFields(logrus.Fields{
		"tenant_id":   tx.TenantID.String(),
		"external_id": tx.ExternalID,
		"strategy":    note.Strategy,
		"status":      note.Status,
	}).Info("credit_note_processed")

	return note, issueErr
}

// ProcessManualCreditNote sends a pending (or previously failed) credit note
// through the provider.
func (e *CreditNoteEngine) ProcessManualCreditNote(ctx context.Context, tx *entity.Transaction, settings *entity.BillingSettings) (*entity.CreditNote, error) {
	note, err := e.noteRepo.FindByTransactionID(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	if note == nil || (note.Status != entity.CreditNoteStatusPending && note.Status != entity.CreditNoteStatusError) {
		return note, ErrCreditNoteNotPending
	}

	note.Strategy = entity.CreditNoteStrategyAutomatic
	issueErr := e.issue(ctx, tx, settings, note)
	e.metrics.CreditNote(note.Strategy, note.Status)

	e.mirror(tx, note)
	tx.UpdatedAt = e.now().UTC()
	if err := e.txRepo.Update(ctx, tx); err != nil {
		return note, err
	}
	return note, issueErr
}

// issue calls the provider for note and stores the outcome on it.
func (e *CreditNoteEngine) issue(ctx context.Context, tx *entity.Transaction, settings *entity.BillingSettings, note *entity.CreditNote) error {
	logger := e.logger.WithFields(logrus.Fields{
		"tenant_id":   tx.TenantID.String(),
		"external_id": tx.ExternalID,
	})

	var issueErr error
	req, err := e.transformer.ToCreditNoteRequest(tx, settings)
	if err != nil {
		issueErr = fmt.Errorf("build credit note request: %w", err)
	} else {
		note.RequestJSON = marshalAudit(req)
		resp, callErr := e.provider.CreateDocument(ctx, req)
		switch {
		case callErr != nil:
			logger.WithError(callErr).Error("provider_call_failed")
			issueErr = fmt.Errorf("create credit note: %w", callErr)
		case !resp.Issued():
			note.ResponseJSON = marshalAudit(resp)
			logger.WithField("reason", resp.RejectionReason()).Warn("provider_rejected")
			issueErr = fmt.Errorf("%w: %s", ErrProviderRejected, resp.RejectionReason())
		default:
			note.ResponseJSON = marshalAudit(resp)
			note.Status = entity.CreditNoteStatusSent
			note.CreditNoteNumber = stringPtr(resp.Number)
			note.CAE = stringPtr(resp.CAE)
			note.PDFURL = stringPtr(resp.PDFURL)
		}
	}

	if issueErr != nil {
		note.Status = entity.CreditNoteStatusError
		if note.ResponseJSON == nil {
			note.ResponseJSON = marshalAudit(map[string]string{"error": truncate(issueErr.Error(), maxErrorLength)})
		}
	}

	note.UpdatedAt = e.now().UTC()
	if err := e.noteRepo.Update(ctx, note); err != nil {
		return keepFirstErr(issueErr, err)
	}
	return issueErr
}

// existingOnConflict resolves a lost race against a concurrent writer by
// returning the credit note it stored.
func (e *CreditNoteEngine) existingOnConflict(ctx context.Context, tx *entity.Transaction, cause error) (*entity.CreditNote, error) {
	if !errors.Is(cause, repository.ErrCreditNoteAlreadyExists) {
		return nil, cause
	}
	existing, err := e.noteRepo.FindByTransactionID(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, cause
	}
	return existing, nil
}

func (e *CreditNoteEngine) mirror(tx *entity.Transaction, note *entity.CreditNote) {
	status := note.Status
	strategy := note.Strategy
	tx.CreditNoteStatus = &status
	tx.CreditNoteStrategy = &strategy
	tx.CreditNoteNumber = note.CreditNoteNumber
	tx.CreditNoteCAE = note.CAE
	tx.UpdatedAt = e.now().UTC()
}
