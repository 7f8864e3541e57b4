package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
	"github.com/vibast-solutions/ms-go-billing-connector/app/factory"
)

type TransactionActionRequest interface {
	GetTenantId() string
	GetExternalId() string
}

type RefundRequest interface {
	TransactionActionRequest
	GetReason() string
}

// BillingService backs the operator actions on a single transaction.
type BillingService struct {
	txRepo       transactionRepository
	settingsRepo billingSettingsRepository
	invoices     *InvoiceGenerator
	creditNotes  *CreditNoteEngine
	logger       logrus.FieldLogger
	now          func() time.Time
}

func NewBillingService(
	txRepo transactionRepository,
	settingsRepo billingSettingsRepository,
	invoices *InvoiceGenerator,
	creditNotes *CreditNoteEngine,
) *BillingService {
	return &BillingService{
		txRepo:       txRepo,
		settingsRepo: settingsRepo,
		invoices:     invoices,
		creditNotes:  creditNotes,
		logger:       factory.NewModuleLogger("billing-service"),
		now:          time.Now,
	}
}

// ConfirmBilling invoices a paid transaction that is held for confirmation or
// whose previous attempt failed. A failure is stored on the transaction and
// returned alongside it.
func (s *BillingService) ConfirmBilling(ctx context.Context, req TransactionActionRequest) (*entity.Transaction, error) {
	tx, settings, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}
	if tx.IsBilled() {
		return tx, ErrAlreadyBilled
	}
	if tx.Status != entity.TransactionStatusPaid {
		return tx, fmt.Errorf("%w: only PAID transactions can be billed, got %s", ErrInvalidStatus, tx.Status)
	}

	if _, err := s.invoices.Generate(ctx, tx, settings, nil); err != nil {
		if recordErr := recordBillingFailure(ctx, s.txRepo, tx, err, s.now().UTC()); recordErr != nil {
			s.logger.WithError(recordErr).WithField("external_id", tx.ExternalID).Error("failed to record billing error")
		}
		return tx, err
	}
	return tx, nil
}

// RequestRefund issues the credit note for an invoiced transaction that is
// PAID, or already REFUNDED by the processor without a credit note.
func (s *BillingService) RequestRefund(ctx context.Context, req RefundRequest) (*entity.CreditNote, error) {
	tx, settings, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}
	refundable := tx.Status == entity.TransactionStatusPaid || tx.Status == entity.TransactionStatusRefunded
	if !tx.HasCreditNote() && (!refundable || !tx.HasInvoiceNumber()) {
		return nil, fmt.Errorf("%w: refunds require an invoiced PAID or REFUNDED transaction", ErrInvalidStatus)
	}
	return s.creditNotes.ProcessRefund(ctx, tx, settings, strings.TrimSpace(req.GetReason()))
}

func (s *BillingService) ProcessManualCreditNote(ctx context.Context, req TransactionActionRequest) (*entity.CreditNote, error) {
	tx, settings, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.creditNotes.ProcessManualCreditNote(ctx, tx, settings)
}

func (s *BillingService) load(ctx context.Context, req TransactionActionRequest) (*entity.Transaction, *entity.BillingSettings, error) {
	tenantID, err := parseTenantID(req.GetTenantId())
	if err != nil {
		return nil, nil, err
	}
	externalID := strings.TrimSpace(req.GetExternalId())
	if externalID == "" {
		return nil, nil, ErrInvalidRequest
	}

	settings, err := findActiveSettings(ctx, s.settingsRepo, tenantID)
	if err != nil {
		return nil, nil, err
	}

	tx, err := s.txRepo.FindByExternalID(ctx, tenantID, externalID)
	if err != nil {
		return nil, nil, err
	}
	if tx == nil {
		return nil, nil, ErrTransactionNotFound
	}
	return tx, settings, nil
}
