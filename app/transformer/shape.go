package transformer

import (
	"github.com/shopspring/decimal"
)

type lineItem struct {
	Code      string
	Detail    string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// extraction is what a shape reads out of a payload, before amount
// normalization and status mapping.
type extraction struct {
	ExternalID    string
	Amount        decimal.Decimal
	MinorUnits    bool
	Currency      string
	Status        string
	CustomerDoc   *string
	CustomerName  *string
	CustomerEmail *string
	Items         []lineItem
}

type shape struct {
	name    string
	detect  func(p payload) bool
	extract func(p payload) (*extraction, error)
}

// shapes are tried in order; the generic shape accepts anything and must stay
// last.
var shapes = []shape{
	envelopeShape,
	checkoutShape,
	metadataItemsShape,
	flatShape,
	genericShape,
}

func detectShape(p payload) shape {
	for _, s := range shapes {
		if s.detect(p) {
			return s
		}
	}
	return genericShape
}

const (
	defaultItemDetail = "Producto"
	defaultItemCode   = "ITEM-001"
)

// parseItems reads line items using the key spellings seen across upstream
// payloads. Items without a usable price are skipped.
func parseItems(raw []interface{}) []lineItem {
	var items []lineItem
	for _, item := range objects(raw) {
		price, ok, err := item.decimal("unit_price", "unitPrice", "precioUnitario", "price")
		if err != nil || !ok {
			continue
		}
		quantity, ok, err := item.decimal("quantity", "cantidad")
		if err != nil {
			continue
		}
		if !ok {
			quantity = decimal.NewFromInt(1)
		}

		detail := item.str("name", "detalle", "description")
		if detail == "" {
			detail = defaultItemDetail
		}
		code := item.str("sku", "codigo", "code")
		if code == "" {
			code = defaultItemCode
		}

		items = append(items, lineItem{
			Code:      code,
			Detail:    detail,
			Quantity:  quantity,
			UnitPrice: price,
		})
	}
	return items
}
