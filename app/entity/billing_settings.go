package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	CreditNoteStrategyAutomatic = "automatic"
	CreditNoteStrategyManual    = "manual"
	CreditNoteStrategyStub      = "stub"
)

const (
	DefaultFinalConsumerDoc  = "00000000000"
	DefaultFinalConsumerName = "Consumidor Final"
)

// BillingSettings is owned by the tenant configuration surface. This service
// only reads it.
type BillingSettings struct {
	ID       uint64
	TenantID uuid.UUID

	CompanyCUIT      string
	CompanyLegalName string
	PointOfSale      string
	DocumentType     string
	DefaultTaxRate   decimal.Decimal

	// InvoicePaidOnly is kept as tenant configuration. Only PAID
	// transactions are invoiced whatever its value.
	InvoicePaidOnly            bool
	RequireBillingConfirmation bool
	PreferFinalConsumer        bool
	FinalConsumerDoc           string
	FinalConsumerName          string

	BillingEmail       *string
	SendDocument       bool
	CreditNoteStrategy string

	WebhookTenantSecret  string
	WebhookSigningSecret *string

	Active bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *BillingSettings) FinalConsumerIdentity() (string, string) {
	doc := s.FinalConsumerDoc
	if doc == "" {
		doc = DefaultFinalConsumerDoc
	}
	name := s.FinalConsumerName
	if name == "" {
		name = DefaultFinalConsumerName
	}
	return doc, name
}
