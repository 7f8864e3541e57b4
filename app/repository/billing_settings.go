package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
)

const billingSettingsColumns = `
	id, tenant_id, company_cuit, company_legal_name, point_of_sale, document_type, default_tax_rate,
	invoice_paid_only, require_billing_confirmation, prefer_final_consumer, final_consumer_doc, final_consumer_name,
	billing_email, send_document, credit_note_strategy, webhook_tenant_secret, webhook_signing_secret,
	active, created_at, updated_at
`

// BillingSettingsRepository is read-only; settings are managed by the tenant
// configuration surface.
type BillingSettingsRepository struct {
	db DBTX
}

func NewBillingSettingsRepository(db DBTX) *BillingSettingsRepository {
	return &BillingSettingsRepository{db: db}
}

func (r *BillingSettingsRepository) FindByTenantID(ctx context.Context, tenantID uuid.UUID) (*entity.BillingSettings, error) {
	query := `SELECT ` + billingSettingsColumns + ` FROM billing_settings WHERE tenant_id = ? AND active = 1`
	return r.findOne(ctx, query, tenantID)
}

func (r *BillingSettingsRepository) FindByWebhookTenantSecret(ctx context.Context, secret string) (*entity.BillingSettings, error) {
	query := `SELECT ` + billingSettingsColumns + ` FROM billing_settings WHERE webhook_tenant_secret = ? AND active = 1`
	return r.findOne(ctx, query, secret)
}

func (r *BillingSettingsRepository) ListActive(ctx context.Context) ([]*entity.BillingSettings, error) {
	query := `SELECT ` + billingSettingsColumns + ` FROM billing_settings WHERE active = 1 ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*entity.BillingSettings, 0)
	for rows.Next() {
		settings := &entity.BillingSettings{}
		if err := scanBillingSettings(rows, settings); err != nil {
			return nil, err
		}
		items = append(items, settings)
	}
	return items, rows.Err()
}

func (r *BillingSettingsRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.BillingSettings, error) {
	settings := &entity.BillingSettings{}
	if err := scanBillingSettings(r.db.QueryRowContext(ctx, query, args...), settings); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return settings, nil
}

func scanBillingSettings(scanner rowScanner, settings *entity.BillingSettings) error {
	var (
		billingEmail  sql.NullString
		signingSecret sql.NullString
	)

	if err := scanner.Scan(
		&settings.ID,
		&settings.TenantID,
		&settings.CompanyCUIT,
		&settings.CompanyLegalName,
		&settings.PointOfSale,
		&settings.DocumentType,
		&settings.DefaultTaxRate,
		&settings.InvoicePaidOnly,
		&settings.RequireBillingConfirmation,
		&settings.PreferFinalConsumer,
		&settings.FinalConsumerDoc,
		&settings.FinalConsumerName,
		&billingEmail,
		&settings.SendDocument,
		&settings.CreditNoteStrategy,
		&settings.WebhookTenantSecret,
		&signingSecret,
		&settings.Active,
		&settings.CreatedAt,
		&settings.UpdatedAt,
	); err != nil {
		return err
	}

	settings.BillingEmail = stringPtrFromNull(billingEmail)
	settings.WebhookSigningSecret = stringPtrFromNull(signingSecret)
	return nil
}
