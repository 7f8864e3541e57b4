package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
)

var ErrInvoiceNotFound = errors.New("invoice not found")

type InvoiceRepository struct {
	db DBTX
}

func NewInvoiceRepository(db DBTX) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) Create(ctx context.Context, invoice *entity.Invoice) error {
	query := `
		INSERT INTO invoices (
			tenant_id, transaction_id, status, document_type, point_of_sale, total,
			invoice_number, cae, cae_expires_at, pdf_url, request_json, response_json,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		invoice.TenantID,
		invoice.TransactionID,
		invoice.Status,
		invoice.DocumentType,
		invoice.PointOfSale,
		invoice.Total,
		nullableStringValue(invoice.InvoiceNumber),
		nullableStringValue(invoice.CAE),
		nullableStringValue(invoice.CAEExpiresAt),
		nullableStringValue(invoice.PDFURL),
		nullableStringValue(invoice.RequestJSON),
		nullableStringValue(invoice.ResponseJSON),
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	invoice.ID = uint64(id)
	return nil
}

func (r *InvoiceRepository) Update(ctx context.Context, invoice *entity.Invoice) error {
	query := `
		UPDATE invoices SET
			status = ?,
			document_type = ?,
			point_of_sale = ?,
			total = ?,
			invoice_number = ?,
			cae = ?,
			cae_expires_at = ?,
			pdf_url = ?,
			request_json = ?,
			response_json = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		invoice.Status,
		invoice.DocumentType,
		invoice.PointOfSale,
		invoice.Total,
		nullableStringValue(invoice.InvoiceNumber),
		nullableStringValue(invoice.CAE),
		nullableStringValue(invoice.CAEExpiresAt),
		nullableStringValue(invoice.PDFURL),
		nullableStringValue(invoice.RequestJSON),
		nullableStringValue(invoice.ResponseJSON),
		invoice.UpdatedAt,
		invoice.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// FindCurrentByTransactionID returns the most recent sent invoice, or nil
// when every attempt failed.
func (r *InvoiceRepository) FindCurrentByTransactionID(ctx context.Context, transactionID uint64) (*entity.Invoice, error) {
	query := `
		SELECT id, tenant_id, transaction_id, status, document_type, point_of_sale, total,
			invoice_number, cae, cae_expires_at, pdf_url, request_json, response_json,
			created_at, updated_at
		FROM invoices
		WHERE transaction_id = ? AND status = ?
		ORDER BY id DESC
		LIMIT 1
	`

	var (
		invoiceNumber sql.NullString
		cae           sql.NullString
		caeExpiresAt  sql.NullString
		pdfURL        sql.NullString
		requestJSON   sql.NullString
		responseJSON  sql.NullString
	)
	invoice := &entity.Invoice{}
	err := r.db.QueryRowContext(ctx, query, transactionID, entity.InvoiceStatusSent).Scan(
		&invoice.ID,
		&invoice.TenantID,
		&invoice.TransactionID,
		&invoice.Status,
		&invoice.DocumentType,
		&invoice.PointOfSale,
		&invoice.Total,
		&invoiceNumber,
		&cae,
		&caeExpiresAt,
		&pdfURL,
		&requestJSON,
		&responseJSON,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	invoice.InvoiceNumber = stringPtrFromNull(invoiceNumber)
	invoice.CAE = stringPtrFromNull(cae)
	invoice.CAEExpiresAt = stringPtrFromNull(caeExpiresAt)
	invoice.PDFURL = stringPtrFromNull(pdfURL)
	invoice.RequestJSON = stringPtrFromNull(requestJSON)
	invoice.ResponseJSON = stringPtrFromNull(responseJSON)
	return invoice, nil
}
