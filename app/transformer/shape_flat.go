package transformer

// flatShape is {"id", "status", "amount", "currency", "customer": {...}}.
var flatShape = shape{
	name: "flat",
	detect: func(p payload) bool {
		return p.has("id") && p.has("status") && p.has("amount")
	},
	extract: func(p payload) (*extraction, error) {
		amount, _, err := p.decimal("amount")
		if err != nil {
			return nil, err
		}
		customer := p.object("customer")

		doc := customer.strPtr("document", "document_number")
		if doc == nil {
			doc = p.strPtr("customer_doc", "customerDoc")
		}

		return &extraction{
			ExternalID:    p.str("id"),
			Amount:        amount,
			Currency:      p.str("currency"),
			Status:        p.str("status"),
			CustomerDoc:   doc,
			CustomerName:  customer.strPtr("name"),
			CustomerEmail: customer.strPtr("email"),
		}, nil
	},
}
