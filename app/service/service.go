package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
	"github.com/vibast-solutions/ms-go-billing-connector/app/provider"
)

const maxErrorLength = 1024

type transactionRepository interface {
	Upsert(ctx context.Context, tx *entity.Transaction) (*entity.Transaction, error)
	Update(ctx context.Context, tx *entity.Transaction) error
	FindByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (*entity.Transaction, error)
	ListByExternalIDs(ctx context.Context, tenantID uuid.UUID, externalIDs []string) (map[string]*entity.Transaction, error)
}

type invoiceRepository interface {
	Create(ctx context.Context, invoice *entity.Invoice) error
	Update(ctx context.Context, invoice *entity.Invoice) error
}

type creditNoteRepository interface {
	Create(ctx context.Context, note *entity.CreditNote) error
	Update(ctx context.Context, note *entity.CreditNote) error
	FindByTransactionID(ctx context.Context, transactionID uint64) (*entity.CreditNote, error)
}

type webhookEventRepository interface {
	Create(ctx context.Context, event *entity.WebhookEvent) error
	FindByHash(ctx context.Context, tenantID uuid.UUID, eventHash string) (*entity.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id uint64, now time.Time) error
	RecordError(ctx context.Context, id uint64, message string, now time.Time) error
}

type billingSettingsRepository interface {
	FindByTenantID(ctx context.Context, tenantID uuid.UUID) (*entity.BillingSettings, error)
	FindByWebhookTenantSecret(ctx context.Context, secret string) (*entity.BillingSettings, error)
	ListActive(ctx context.Context) ([]*entity.BillingSettings, error)
}

type reconciliationLogRepository interface {
	Create(ctx context.Context, log *entity.ReconciliationLog) error
}

type payloadTransformer interface {
	ToTransaction(rawBody []byte, fields map[string]interface{}) (*entity.Transaction, error)
	ToProviderRequest(tx *entity.Transaction, settings *entity.BillingSettings, rawBody []byte) (*provider.DocumentRequest, []string, error)
	ToCreditNoteRequest(tx *entity.Transaction, settings *entity.BillingSettings) (*provider.DocumentRequest, error)
}

func findActiveSettings(ctx context.Context, repo billingSettingsRepository, tenantID uuid.UUID) (*entity.BillingSettings, error) {
	settings, err := repo.FindByTenantID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if settings == nil || !settings.Active {
		return nil, ErrTenantNotFound
	}
	return settings, nil
}

func parseTenantID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, ErrInvalidRequest
	}
	return id, nil
}

func marshalAudit(v interface{}) *string {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(raw)
	return &s
}

func stringPtr(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
