package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
)

var (
	ErrCreditNoteNotFound      = errors.New("credit note not found")
	ErrCreditNoteAlreadyExists = errors.New("credit note already exists")
)

type CreditNoteRepository struct {
	db DBTX
}

func NewCreditNoteRepository(db DBTX) *CreditNoteRepository {
	return &CreditNoteRepository{db: db}
}

func (r *CreditNoteRepository) Create(ctx context.Context, note *entity.CreditNote) error {
	query := `
		INSERT INTO credit_notes (
			tenant_id, transaction_id, status, strategy, refund_reason, amount,
			credit_note_number, cae, pdf_url, request_json, response_json,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		note.TenantID,
		note.TransactionID,
		note.Status,
		note.Strategy,
		note.RefundReason,
		note.Amount,
		nullableStringValue(note.CreditNoteNumber),
		nullableStringValue(note.CAE),
		nullableStringValue(note.PDFURL),
		nullableStringValue(note.RequestJSON),
		nullableStringValue(note.ResponseJSON),
		note.CreatedAt,
		note.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrCreditNoteAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	note.ID = uint64(id)
	return nil
}

func (r *CreditNoteRepository) Update(ctx context.Context, note *entity.CreditNote) error {
	query := `
		UPDATE credit_notes SET
			status = ?,
			strategy = ?,
			credit_note_number = ?,
			cae = ?,
			pdf_url = ?,
			request_json = ?,
			response_json = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		note.Status,
		note.Strategy,
		nullableStringValue(note.CreditNoteNumber),
		nullableStringValue(note.CAE),
		nullableStringValue(note.PDFURL),
		nullableStringValue(note.RequestJSON),
		nullableStringValue(note.ResponseJSON),
		note.UpdatedAt,
		note.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCreditNoteNotFound
	}
	return nil
}

func (r *CreditNoteRepository) FindByTransactionID(ctx context.Context, transactionID uint64) (*entity.CreditNote, error) {
	query := `
		SELECT id, tenant_id, transaction_id, status, strategy, refund_reason, amount,
			credit_note_number, cae, pdf_url, request_json, response_json,
			created_at, updated_at
		FROM credit_notes
		WHERE transaction_id = ?
	`

	var (
		number       sql.NullString
		cae          sql.NullString
		pdfURL       sql.NullString
		requestJSON  sql.NullString
		responseJSON sql.NullString
	)
	note := &entity.CreditNote{}
	err := r.db.QueryRowContext(ctx, query, transactionID).Scan(
		&note.ID,
		&note.TenantID,
		&note.TransactionID,
		&note.Status,
		&note.Strategy,
		&note.RefundReason,
		&note.Amount,
		&number,
		&cae,
		&pdfURL,
		&requestJSON,
		&responseJSON,
		&note.CreatedAt,
		&note.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	note.CreditNoteNumber = stringPtrFromNull(number)
	note.CAE = stringPtrFromNull(cae)
	note.PDFURL = stringPtrFromNull(pdfURL)
	note.RequestJSON = stringPtrFromNull(requestJSON)
	note.ResponseJSON = stringPtrFromNull(responseJSON)
	return note, nil
}
