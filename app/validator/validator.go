// Package validator holds the pre-flight business and fiscal checks run before
// any invoicing call. Errors block processing; warnings are informational.
package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	playground "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
	"github.com/vibast-solutions/ms-go-billing-connector/app/provider"
)

var (
	MinAmount = decimal.RequireFromString("0.01")
	MaxAmount = decimal.RequireFromString("999999999.99")

	itemTolerance = decimal.RequireFromString("0.01")
)

const (
	maxLegalNameLength  = 100
	maxItemDetailLength = 200
)

var standardCurrencies = map[string]bool{"ARS": true, "BRL": true}

var fields = playground.New()

type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func (r Result) ErrorMessage() string {
	return strings.Join(r.Errors, "; ")
}

func (r Result) WarningMessage() string {
	return strings.Join(r.Warnings, "; ")
}

type collector struct {
	errors   []string
	warnings []string
}

func (c *collector) errorf(format string, args ...interface{}) {
	c.errors = append(c.errors, fmt.Sprintf(format, args...))
}

func (c *collector) warnf(format string, args ...interface{}) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

func (c *collector) result() Result {
	return Result{Valid: len(c.errors) == 0, Errors: c.errors, Warnings: c.warnings}
}

func ValidateTransaction(tx *entity.Transaction) Result {
	c := &collector{}
	if tx == nil {
		c.errorf("transaction is required")
		return c.result()
	}

	if strings.TrimSpace(tx.ExternalID) == "" {
		c.errorf("external id is required")
	}

	switch {
	case tx.Amount.LessThan(MinAmount):
		c.errorf("amount must be at least %s", MinAmount.StringFixed(2))
	case tx.Amount.GreaterThan(MaxAmount):
		c.errorf("amount exceeds the maximum of %s", MaxAmount.StringFixed(2))
	}

	currency := strings.TrimSpace(tx.Currency)
	if currency == "" {
		c.errorf("currency is required")
	} else if !standardCurrencies[strings.ToUpper(currency)] {
		c.warnf("non-standard currency %s", currency)
	}

	if strings.TrimSpace(tx.Status) == "" {
		c.errorf("status is required")
	}

	if tx.CustomerDoc != nil {
		doc := strings.TrimSpace(*tx.CustomerDoc)
		if doc != "" && !IsValidCUIT(doc) && !IsValidDNI(doc) {
			c.warnf("customer document %s is not a valid CUIT or DNI, final consumer will be used", doc)
		}
	}

	return c.result()
}

func ValidateProviderRequest(req *provider.DocumentRequest) Result {
	c := &collector{}
	if req == nil {
		c.errorf("provider request is required")
		return c.result()
	}

	if req.Auth.Company == "" {
		c.errorf("authentication company is required")
	}
	if req.Auth.User == "" {
		c.errorf("authentication user is required")
	}
	if req.Auth.Hash == "" {
		c.errorf("authentication hash is required")
	}

	validateCustomer(c, req.Customer)
	validateHeader(c, req.Header)

	if len(req.Items) == 0 {
		c.errorf("at least one item is required")
	}
	for i, item := range req.Items {
		validateItem(c, i+1, item)
	}

	return c.result()
}

func validateCustomer(c *collector, customer provider.Customer) {
	name := strings.TrimSpace(customer.LegalName)
	if name == "" {
		c.errorf("customer legal name is required")
	} else if utf8.RuneCountInString(name) > maxLegalNameLength {
		c.errorf("customer legal name exceeds %d characters", maxLegalNameLength)
	}

	switch customer.DocumentType {
	case 0:
		c.errorf("customer document type is required")
	case provider.DocumentTypeCUIT, provider.DocumentTypeDNI, provider.DocumentTypeFinalConsumer:
	default:
		c.warnf("non-standard document type %d", customer.DocumentType)
	}

	doc := strings.TrimSpace(customer.DocumentNumber)
	if doc == "" {
		c.errorf("customer document number is required")
	} else {
		switch customer.DocumentType {
		case provider.DocumentTypeCUIT:
			if !IsValidCUIT(doc) {
				c.errorf("customer CUIT %s is not valid", doc)
			}
		case provider.DocumentTypeDNI:
			if !IsValidDNI(doc) {
				c.errorf("customer DNI %s is not valid", doc)
			}
		}
	}

	if customer.Email != "" && fields.Var(customer.Email, "email") != nil {
		c.errorf("billing email %s is not valid", customer.Email)
	}
}

func validateHeader(c *collector, header provider.DocumentHeader) {
	if strings.TrimSpace(header.DocumentType) == "" {
		c.errorf("document type is required")
	}
	if strings.TrimSpace(header.PointOfSale) == "" {
		c.errorf("point of sale is required")
	}
	if header.SaleCondition == 0 {
		c.errorf("sale condition is required")
	}
	if !header.SubTotal.IsPositive() {
		c.errorf("subtotal must be greater than zero")
	}
	if !header.Total.IsPositive() {
		c.errorf("total must be greater than zero")
	}
	if header.Total.LessThan(header.SubTotal.Decimal) {
		c.errorf("total %s is less than subtotal %s", header.Total.StringFixed(2), header.SubTotal.StringFixed(2))
	}
}

func validateItem(c *collector, n int, item provider.DocumentItem) {
	detail := strings.TrimSpace(item.Detail)
	if detail == "" {
		c.errorf("item %d: detail is required", n)
	} else if utf8.RuneCountInString(detail) > maxItemDetailLength {
		c.errorf("item %d: detail exceeds %d characters", n, maxItemDetailLength)
	}
	if !item.Quantity.IsPositive() {
		c.errorf("item %d: quantity must be greater than zero", n)
	}
	if !item.UnitPrice.IsPositive() {
		c.errorf("item %d: unit price must be greater than zero", n)
	}
	if !item.Total.IsPositive() {
		c.errorf("item %d: total must be greater than zero", n)
		return
	}

	expected := item.Quantity.Mul(item.UnitPrice.Decimal)
	if item.Total.Sub(expected).Abs().GreaterThan(itemTolerance) {
		c.warnf("item %d: total %s differs from quantity x unit price %s", n, item.Total.StringFixed(2), expected.StringFixed(2))
	}
}
