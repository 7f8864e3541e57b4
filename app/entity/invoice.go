package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	InvoiceStatusPending = "pending"
	InvoiceStatusSent    = "sent"
	InvoiceStatusError   = "error"
)

type Invoice struct {
	ID            uint64
	TenantID      uuid.UUID
	TransactionID uint64

	Status        string
	DocumentType  string
	PointOfSale   string
	Total         decimal.Decimal
	InvoiceNumber *string
	CAE           *string
	CAEExpiresAt  *string
	PDFURL        *string

	RequestJSON  *string
	ResponseJSON *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
