package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReconciliationLog struct {
	ID          uint64
	TenantID    uuid.UUID
	WindowStart time.Time
	WindowEnd   time.Time

	ProcessedCount int
	ErrorCount     int
	OrphanCount    int
	SuccessRate    decimal.Decimal
	Partial        bool
	DetailsJSON    string

	CreatedAt time.Time
}
