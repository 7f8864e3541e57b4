package transformer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
	"github.com/vibast-solutions/ms-go-billing-connector/app/factory"
	"github.com/vibast-solutions/ms-go-billing-connector/app/provider"
	"github.com/vibast-solutions/ms-go-billing-connector/app/validator"
)

var ErrMalformedPayload = errors.New("malformed payload")

var (
	one            = decimal.NewFromInt(1)
	defaultTaxRate = decimal.NewFromInt(21)
	centTolerance  = decimal.RequireFromString("0.01")
)

const (
	defaultDocument = "FB"
	defaultPrefix   = "0001"
)

// Defaults are the deployment-wide values used when tenant settings leave a
// field empty.
type Defaults struct {
	Auth                   provider.Authentication
	DocumentType           string
	PointOfSale            string
	CreditNoteDocumentType string
}

type Transformer struct {
	normalizer *AmountNormalizer
	defaults   Defaults
	logger     logrus.FieldLogger
	now        func() time.Time
}

func New(normalizer *AmountNormalizer, defaults Defaults) *Transformer {
	return &Transformer{
		normalizer: normalizer,
		defaults:   defaults,
		logger:     factory.NewModuleLogger("transformer"),
		now:        time.Now,
	}
}

// ToTransaction maps a webhook body onto a Transaction. fields may carry the
// already decoded body; when nil, rawBody is decoded. TenantID is left for the
// caller to set.
func (t *Transformer) ToTransaction(rawBody []byte, fields map[string]interface{}) (*entity.Transaction, error) {
	p := payload(fields)
	if p == nil {
		decoded, err := decodePayload(rawBody)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		p = decoded
	}

	s := detectShape(p)
	ex, err := s.extract(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s shape: %v", ErrMalformedPayload, s.name, err)
	}

	conversion := t.normalizer.Conversion(ex.Amount, ex.Currency, ex.MinorUnits)
	if conversion.Warning != "" {
		t.logger.WithFields(logrus.Fields{
			"external_id": ex.ExternalID,
			"shape":       s.name,
		}).Warn(conversion.Warning)
	}

	now := t.now().UTC()
	tx := &entity.Transaction{
		ExternalID:    ex.ExternalID,
		Amount:        conversion.Apply(ex.Amount),
		Currency:      conversion.Currency,
		Status:        MapStatus(ex.Status),
		CustomerDoc:   ex.CustomerDoc,
		CustomerName:  ex.CustomerName,
		CustomerEmail: ex.CustomerEmail,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if tx.Status == entity.TransactionStatusPaid {
		tx.CapturedAt = &now
	}

	t.logger.WithFields(logrus.Fields{
		"external_id": tx.ExternalID,
		"shape":       s.name,
		"status":      tx.Status,
	}).Debug("payload_transformed")

	return tx, nil
}

// RefundReason returns the refund reason carried by a webhook body, if any.
func RefundReason(rawBody []byte) string {
	p, err := decodePayload(rawBody)
	if err != nil {
		return ""
	}
	if reason := p.str("refund_reason", "reason", "description"); reason != "" {
		return reason
	}
	return p.object("data").str("refund_reason", "reason", "description")
}

// ToProviderRequest builds the invoice request for tx. Line items are taken
// from rawBody when present and consistent with the transaction amount;
// otherwise a single synthetic line carries the whole amount. The returned
// warnings describe any fallback taken.
func (t *Transformer) ToProviderRequest(tx *entity.Transaction, settings *entity.BillingSettings, rawBody []byte) (*provider.DocumentRequest, []string, error) {
	if tx == nil {
		return nil, nil, errors.New("transaction is required")
	}

	var warnings []string
	customer, warning := t.customer(tx, settings)
	if warning != "" {
		warnings = append(warnings, warning)
	}

	rate := taxRate(settings)
	items, warning := t.lineItems(tx, rawBody, rate)
	if warning != "" {
		warnings = append(warnings, warning)
	}
	if len(items) == 0 {
		items = []provider.DocumentItem{syntheticItem(
			"GETNET-"+tx.ExternalID,
			"Venta POS Getnet #"+tx.ExternalID,
			tx.Amount,
			rate,
		)}
	}

	documentType := t.defaults.DocumentType
	pointOfSale := t.defaults.PointOfSale
	if settings != nil {
		documentType = firstNonEmpty(settings.DocumentType, documentType)
		pointOfSale = firstNonEmpty(settings.PointOfSale, pointOfSale)
	}

	return &provider.DocumentRequest{
		Auth:     t.defaults.Auth,
		Customer: customer,
		Header:   t.header(firstNonEmpty(documentType, defaultDocument), firstNonEmpty(pointOfSale, defaultPrefix), tx.Amount, items),
		Items:    items,
	}, warnings, nil
}

// ToCreditNoteRequest builds the credit note that voids the invoice of tx.
func (t *Transformer) ToCreditNoteRequest(tx *entity.Transaction, settings *entity.BillingSettings) (*provider.DocumentRequest, error) {
	if tx == nil {
		return nil, errors.New("transaction is required")
	}

	customer, _ := t.customer(tx, settings)
	rate := taxRate(settings)
	items := []provider.DocumentItem{syntheticItem(
		"NC-GETNET-"+tx.ExternalID,
		"Reembolso POS Getnet #"+tx.ExternalID,
		tx.Amount,
		rate,
	)}

	pointOfSale := t.defaults.PointOfSale
	if settings != nil {
		pointOfSale = firstNonEmpty(settings.PointOfSale, pointOfSale)
	}

	header := t.header(firstNonEmpty(t.defaults.CreditNoteDocumentType, "NC"), firstNonEmpty(pointOfSale, defaultPrefix), tx.Amount, items)
	if tx.InvoiceNumber != nil {
		header.RelatedDocumentNo = *tx.InvoiceNumber
	}

	return &provider.DocumentRequest{
		Auth:     t.defaults.Auth,
		Customer: customer,
		Header:   header,
		Items:    items,
	}, nil
}

// customer picks the billed identity. The final consumer identity is used
// when the tenant prefers it or the payload has no usable CUIT or DNI.
func (t *Transformer) customer(tx *entity.Transaction, settings *entity.BillingSettings) (provider.Customer, string) {
	finalDoc, finalName := entity.DefaultFinalConsumerDoc, entity.DefaultFinalConsumerName
	preferFinal := false
	sendDocument := false
	var billingEmail string
	if settings != nil {
		finalDoc, finalName = settings.FinalConsumerIdentity()
		preferFinal = settings.PreferFinalConsumer
		sendDocument = settings.SendDocument
		if settings.BillingEmail != nil {
			billingEmail = strings.TrimSpace(*settings.BillingEmail)
		}
	}

	doc := trimmed(tx.CustomerDoc)
	var warning string
	docType := provider.DocumentTypeFinalConsumer
	switch {
	case preferFinal || doc == "":
	case validator.IsValidCUIT(doc):
		docType = provider.DocumentTypeCUIT
	case validator.IsValidDNI(doc):
		docType = provider.DocumentTypeDNI
	default:
		warning = fmt.Sprintf("customer document %s is not a valid CUIT or DNI, billed to final consumer", doc)
	}

	customer := provider.Customer{
		LegalName:      finalName,
		DocumentType:   provider.DocumentTypeFinalConsumer,
		DocumentNumber: finalDoc,
	}
	if docType != provider.DocumentTypeFinalConsumer {
		customer.DocumentType = docType
		customer.DocumentNumber = doc
		customer.LegalName = firstNonEmpty(trimmed(tx.CustomerName), finalName)
	}

	customer.Email = firstNonEmpty(billingEmail, trimmed(tx.CustomerEmail))
	customer.SendDocument = sendDocument && customer.Email != ""

	return customer, warning
}

// lineItems converts the payload's items with the same rule applied to the
// transaction amount. Prices are tax inclusive.
func (t *Transformer) lineItems(tx *entity.Transaction, rawBody []byte, rate decimal.Decimal) ([]provider.DocumentItem, string) {
	if len(rawBody) == 0 {
		return nil, ""
	}
	p, err := decodePayload(rawBody)
	if err != nil {
		return nil, ""
	}
	ex, err := detectShape(p).extract(p)
	if err != nil || len(ex.Items) == 0 {
		return nil, ""
	}

	conversion := t.normalizer.Conversion(ex.Amount, ex.Currency, ex.MinorUnits)
	divisor := one.Add(rate.Div(decimal.NewFromInt(100)))

	items := make([]provider.DocumentItem, 0, len(ex.Items))
	gross := decimal.Zero
	for _, item := range ex.Items {
		if !item.Quantity.IsPositive() {
			continue
		}
		lineGross := conversion.Apply(item.UnitPrice).Mul(item.Quantity).Round(2)
		lineNet := lineGross.Div(divisor).Round(2)
		gross = gross.Add(lineGross)

		items = append(items, provider.DocumentItem{
			Code:      item.Code,
			Detail:    item.Detail,
			Quantity:  provider.NewAmount(item.Quantity),
			UnitPrice: provider.NewAmount(lineNet.Div(item.Quantity).Round(2)),
			TaxRate:   provider.NewAmount(rate),
			Taxed:     true,
			Total:     provider.NewAmount(lineNet),
		})
	}
	if len(items) == 0 {
		return nil, ""
	}

	tolerance := centTolerance.Mul(decimal.NewFromInt(int64(len(items))))
	if gross.Sub(tx.Amount).Abs().GreaterThan(tolerance) {
		return nil, fmt.Sprintf("line items total %s does not match amount %s, using a single line", gross.StringFixed(2), tx.Amount.StringFixed(2))
	}
	return items, ""
}

func (t *Transformer) header(documentType, pointOfSale string, total decimal.Decimal, items []provider.DocumentItem) provider.DocumentHeader {
	net := decimal.Zero
	for _, item := range items {
		net = net.Add(item.Total.Decimal)
	}

	return provider.DocumentHeader{
		DocumentType:  documentType,
		PointOfSale:   pointOfSale,
		SaleCondition: provider.SaleConditionCash,
		GoodsType:     provider.GoodsTypeServices,
		IssuedAt:      t.now().UTC(),
		SubTotal:      provider.NewAmount(net),
		NetTotal:      provider.NewAmount(net),
		TaxTotal:      provider.NewAmount(total.Sub(net)),
		Total:         provider.NewAmount(total),
		Perceptions:   provider.NewAmount(decimal.Zero),
	}
}

func syntheticItem(code, detail string, total, rate decimal.Decimal) provider.DocumentItem {
	net := total.Div(one.Add(rate.Div(decimal.NewFromInt(100)))).Round(2)
	return provider.DocumentItem{
		Code:      code,
		Detail:    detail,
		Quantity:  provider.NewAmount(one),
		UnitPrice: provider.NewAmount(net),
		TaxRate:   provider.NewAmount(rate),
		Taxed:     true,
		Total:     provider.NewAmount(net),
	}
}

func taxRate(settings *entity.BillingSettings) decimal.Decimal {
	if settings != nil && settings.DefaultTaxRate.IsPositive() {
		return settings.DefaultTaxRate
	}
	return defaultTaxRate
}

func trimmed(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
