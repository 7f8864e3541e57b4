package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	CreditNoteStatusPending = "pending"
	CreditNoteStatusSent    = "sent"
	CreditNoteStatusError   = "error"
	CreditNoteStatusStub    = "stub"
)

type CreditNote struct {
	ID            uint64
	TenantID      uuid.UUID
	TransactionID uint64

	Status       string
	Strategy     string
	RefundReason string
	Amount       decimal.Decimal

	CreditNoteNumber *string
	CAE              *string
	PDFURL           *string

	RequestJSON  *string
	ResponseJSON *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
