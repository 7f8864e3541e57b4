package transformer

// checkoutShape is the hosted checkout notification. Its amounts, including
// product prices, are always in minor units.
var checkoutShape = shape{
	name: "checkout",
	detect: func(p payload) bool {
		return p.object("payment") != nil && (p.has("payment_intent_id") || p.has("order_id"))
	},
	extract: func(p payload) (*extraction, error) {
		payment := p.object("payment")
		amount, _, err := payment.decimal("amount")
		if err != nil {
			return nil, err
		}

		status := payment.object("result").str("status")
		if status == "" {
			status = payment.str("status")
		}
		customer := p.object("customer")

		return &extraction{
			ExternalID:    p.str("payment_intent_id", "order_id"),
			Amount:        amount,
			MinorUnits:    true,
			Currency:      payment.str("currency"),
			Status:        status,
			CustomerDoc:   customer.strPtr("document_number", "document"),
			CustomerName:  customer.strPtr("name"),
			CustomerEmail: customer.strPtr("email"),
			Items:         parseItems(p.list("products")),
		}, nil
	},
}
