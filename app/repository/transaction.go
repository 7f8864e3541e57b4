package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
)

var ErrTransactionNotFound = errors.New("transaction not found")

const externalIDLookupChunk = 500

const transactionColumns = `
	id, tenant_id, external_id, amount, currency, status, customer_doc, customer_name, customer_email,
	billing_status, billing_error, invoice_number, cae, invoice_pdf_url,
	refund_reason, refunded_at, credit_note_number, credit_note_cae, credit_note_status, credit_note_strategy,
	reconciled, captured_at, created_at, updated_at
`

type TransactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Upsert inserts the transaction or refreshes the payment fields of the row
// that already owns (tenant_id, external_id). Billing fields are only written
// on insert. The stored row is returned so callers see any state committed by
// a concurrent writer.
func (r *TransactionRepository) Upsert(ctx context.Context, tx *entity.Transaction) (*entity.Transaction, error) {
	query := `
		INSERT INTO transactions (
			tenant_id, external_id, amount, currency, status, customer_doc, customer_name, customer_email,
			billing_status, reconciled, captured_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			amount = VALUES(amount),
			currency = VALUES(currency),
			status = VALUES(status),
			customer_doc = COALESCE(VALUES(customer_doc), customer_doc),
			customer_name = COALESCE(VALUES(customer_name), customer_name),
			customer_email = COALESCE(VALUES(customer_email), customer_email),
			captured_at = COALESCE(captured_at, VALUES(captured_at)),
			updated_at = VALUES(updated_at)
	`

	if _, err := r.db.ExecContext(ctx, query,
		tx.TenantID,
		tx.ExternalID,
		tx.Amount,
		tx.Currency,
		tx.Status,
		nullableStringValue(tx.CustomerDoc),
		nullableStringValue(tx.CustomerName),
		nullableStringValue(tx.CustomerEmail),
		tx.BillingStatus,
		tx.Reconciled,
		nullableTimeValue(tx.CapturedAt),
		tx.CreatedAt,
		tx.UpdatedAt,
	); err != nil {
		return nil, err
	}

	stored, err := r.FindByExternalID(ctx, tx.TenantID, tx.ExternalID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ErrTransactionNotFound
	}
	return stored, nil
}

func (r *TransactionRepository) Update(ctx context.Context, tx *entity.Transaction) error {
	query := `
		UPDATE transactions SET
			amount = ?,
			currency = ?,
			status = ?,
			customer_doc = ?,
			customer_name = ?,
			customer_email = ?,
			billing_status = ?,
			billing_error = ?,
			invoice_number = ?,
			cae = ?,
			invoice_pdf_url = ?,
			refund_reason = ?,
			refunded_at = ?,
			credit_note_number = ?,
			credit_note_cae = ?,
			credit_note_status = ?,
			credit_note_strategy = ?,
			reconciled = ?,
			captured_at = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		tx.Amount,
		tx.Currency,
		tx.Status,
		nullableStringValue(tx.CustomerDoc),
		nullableStringValue(tx.CustomerName),
		nullableStringValue(tx.CustomerEmail),
		tx.BillingStatus,
		nullableStringValue(tx.BillingError),
		nullableStringValue(tx.InvoiceNumber),
		nullableStringValue(tx.CAE),
		nullableStringValue(tx.InvoicePDFURL),
		nullableStringValue(tx.RefundReason),
		nullableTimeValue(tx.RefundedAt),
		nullableStringValue(tx.CreditNoteNumber),
		nullableStringValue(tx.CreditNoteCAE),
		nullableStringValue(tx.CreditNoteStatus),
		nullableStringValue(tx.CreditNoteStrategy),
		tx.Reconciled,
		nullableTimeValue(tx.CapturedAt),
		tx.UpdatedAt,
		tx.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}

	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id uint64) (*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

	tx := &entity.Transaction{}
	if err := scanTransaction(r.db.QueryRowContext(ctx, query, id), tx); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return tx, nil
}

func (r *TransactionRepository) FindByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE tenant_id = ? AND external_id = ?`

	tx := &entity.Transaction{}
	if err := scanTransaction(r.db.QueryRowContext(ctx, query, tenantID, externalID), tx); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return tx, nil
}

// ListByExternalIDs returns the tenant's transactions among externalIDs,
// keyed by external id.
func (r *TransactionRepository) ListByExternalIDs(ctx context.Context, tenantID uuid.UUID, externalIDs []string) (map[string]*entity.Transaction, error) {
	items := make(map[string]*entity.Transaction, len(externalIDs))
	for _, chunk := range lo.Chunk(lo.Uniq(externalIDs), externalIDLookupChunk) {
		args := make([]interface{}, 0, len(chunk)+1)
		args = append(args, tenantID)
		for _, id := range chunk {
			args = append(args, id)
		}

		query := `SELECT ` + transactionColumns + ` FROM transactions WHERE tenant_id = ? AND external_id IN (` + placeholders(len(chunk)) + `)`
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}

		for rows.Next() {
			tx := &entity.Transaction{}
			if err := scanTransaction(rows, tx); err != nil {
				rows.Close()
				return nil, err
			}
			items[tx.ExternalID] = tx
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	return items, nil
}

func scanTransaction(scanner rowScanner, tx *entity.Transaction) error {
	var (
		customerDoc        sql.NullString
		customerName       sql.NullString
		customerEmail      sql.NullString
		billingError       sql.NullString
		invoiceNumber      sql.NullString
		cae                sql.NullString
		invoicePDFURL      sql.NullString
		refundReason       sql.NullString
		refundedAt         sql.NullTime
		creditNoteNumber   sql.NullString
		creditNoteCAE      sql.NullString
		creditNoteStatus   sql.NullString
		creditNoteStrategy sql.NullString
		capturedAt         sql.NullTime
	)

	if err := scanner.Scan(
		&tx.ID,
		&tx.TenantID,
		&tx.ExternalID,
		&tx.Amount,
		&tx.Currency,
		&tx.Status,
		&customerDoc,
		&customerName,
		&customerEmail,
		&tx.BillingStatus,
		&billingError,
		&invoiceNumber,
		&cae,
		&invoicePDFURL,
		&refundReason,
		&refundedAt,
		&creditNoteNumber,
		&creditNoteCAE,
		&creditNoteStatus,
		&creditNoteStrategy,
		&tx.Reconciled,
		&capturedAt,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	); err != nil {
		return err
	}

	tx.CustomerDoc = stringPtrFromNull(customerDoc)
	tx.CustomerName = stringPtrFromNull(customerName)
	tx.CustomerEmail = stringPtrFromNull(customerEmail)
	tx.BillingError = stringPtrFromNull(billingError)
	tx.InvoiceNumber = stringPtrFromNull(invoiceNumber)
	tx.CAE = stringPtrFromNull(cae)
	tx.InvoicePDFURL = stringPtrFromNull(invoicePDFURL)
	tx.RefundReason = stringPtrFromNull(refundReason)
	tx.RefundedAt = timePtrFromNull(refundedAt)
	tx.CreditNoteNumber = stringPtrFromNull(creditNoteNumber)
	tx.CreditNoteCAE = stringPtrFromNull(creditNoteCAE)
	tx.CreditNoteStatus = stringPtrFromNull(creditNoteStatus)
	tx.CreditNoteStrategy = stringPtrFromNull(creditNoteStrategy)
	tx.CapturedAt = timePtrFromNull(capturedAt)

	return nil
}
