package transformer

// envelopeShape is the event notification format:
// {"event_type": "...", "data": {"payment_id", "amount", "customer": {...}, "metadata": {"products": [...]}}}
var envelopeShape = shape{
	name: "envelope",
	detect: func(p payload) bool {
		return p.has("event_type") && p.object("data") != nil
	},
	extract: func(p payload) (*extraction, error) {
		data := p.object("data")
		amount, _, err := data.decimal("amount")
		if err != nil {
			return nil, err
		}
		customer := data.object("customer")

		return &extraction{
			ExternalID:    data.str("payment_id", "id"),
			Amount:        amount,
			Currency:      data.str("currency"),
			Status:        data.str("status"),
			CustomerDoc:   customer.strPtr("document_number", "document"),
			CustomerName:  customer.strPtr("name"),
			CustomerEmail: customer.strPtr("email"),
			Items:         parseItems(data.object("metadata").list("products")),
		}, nil
	},
}
