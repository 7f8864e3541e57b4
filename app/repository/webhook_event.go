package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
)

var ErrWebhookEventAlreadyExists = errors.New("webhook event already exists")

type WebhookEventRepository struct {
	db DBTX
}

func NewWebhookEventRepository(db DBTX) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) Create(ctx context.Context, event *entity.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (tenant_id, provider, event_hash, payload_json, processed, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		event.TenantID,
		event.Provider,
		event.EventHash,
		event.PayloadJSON,
		event.Processed,
		nullableStringValue(event.Error),
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrWebhookEventAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)
	return nil
}

func (r *WebhookEventRepository) FindByHash(ctx context.Context, tenantID uuid.UUID, eventHash string) (*entity.WebhookEvent, error) {
	query := `
		SELECT id, tenant_id, provider, event_hash, payload_json, processed, error, created_at, updated_at
		FROM webhook_events
		WHERE tenant_id = ? AND event_hash = ?
	`

	var errMsg sql.NullString
	event := &entity.WebhookEvent{}
	err := r.db.QueryRowContext(ctx, query, tenantID, eventHash).Scan(
		&event.ID,
		&event.TenantID,
		&event.Provider,
		&event.EventHash,
		&event.PayloadJSON,
		&event.Processed,
		&errMsg,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	event.Error = stringPtrFromNull(errMsg)
	return event, nil
}

func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id uint64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE webhook_events SET processed = 1, error = NULL, updated_at = ? WHERE id = ?`, now, id)
	return err
}

func (r *WebhookEventRepository) RecordError(ctx context.Context, id uint64, message string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE webhook_events SET error = ?, updated_at = ? WHERE id = ?`, message, now, id)
	return err
}
