package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
)

type ReconciliationLogRepository struct {
	db DBTX
}

func NewReconciliationLogRepository(db DBTX) *ReconciliationLogRepository {
	return &ReconciliationLogRepository{db: db}
}

func (r *ReconciliationLogRepository) Create(ctx context.Context, log *entity.ReconciliationLog) error {
	query := `
		INSERT INTO reconciliation_logs (
			tenant_id, window_start, window_end, processed_count, error_count, orphan_count,
			success_rate, partial, details_json, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		log.TenantID,
		log.WindowStart,
		log.WindowEnd,
		log.ProcessedCount,
		log.ErrorCount,
		log.OrphanCount,
		log.SuccessRate,
		log.Partial,
		log.DetailsJSON,
		log.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	log.ID = uint64(id)
	return nil
}
