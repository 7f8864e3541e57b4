package entity

import (
	"time"

	"github.com/google/uuid"
)

type WebhookEvent struct {
	ID          uint64
	TenantID    uuid.UUID
	Provider    string
	EventHash   string
	PayloadJSON string
	Processed   bool
	Error       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
