package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TransactionStatusAuthorized = "AUTHORIZED"
	TransactionStatusPaid       = "PAID"
	TransactionStatusRefunded   = "REFUNDED"
	TransactionStatusFailed     = "FAILED"
)

// Billing status tracks the fiscal document lifecycle, independent from the
// payment status.
const (
	BillingStatusNotApplicable = "not_applicable"
	BillingStatusPending       = "pending"
	BillingStatusBilled        = "billed"
	BillingStatusError         = "error"
)

type Transaction struct {
	ID         uint64
	TenantID   uuid.UUID
	ExternalID string

	Amount      decimal.Decimal
	Currency    string
	Status      string
	CustomerDoc *string

	CustomerName  *string
	CustomerEmail *string

	BillingStatus string
	BillingError  *string

	InvoiceNumber *string
	CAE           *string
	InvoicePDFURL *string

	RefundReason       *string
	RefundedAt         *time.Time
	CreditNoteNumber   *string
	CreditNoteCAE      *string
	CreditNoteStatus   *string
	CreditNoteStrategy *string

	Reconciled bool
	CapturedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *Transaction) IsBilled() bool {
	return t.BillingStatus == BillingStatusBilled
}

func (t *Transaction) HasInvoiceNumber() bool {
	return t.InvoiceNumber != nil && *t.InvoiceNumber != ""
}

func (t *Transaction) HasCreditNote() bool {
	return t.CreditNoteNumber != nil && *t.CreditNoteNumber != ""
}
