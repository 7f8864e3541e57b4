package transformer

var genericShape = shape{
	name: "generic",
	detect: func(p payload) bool {
		return true
	},
	extract: func(p payload) (*extraction, error) {
		amount, _, err := p.decimal("amount")
		if err != nil {
			return nil, err
		}

		return &extraction{
			ExternalID:    p.str("transaction_id", "id", "payment_id"),
			Amount:        amount,
			Currency:      p.str("currency"),
			Status:        p.str("status"),
			CustomerDoc:   p.strPtr("customer_doc", "customerDoc"),
			CustomerName:  p.strPtr("customer_name", "customerName"),
			CustomerEmail: p.strPtr("customer_email", "customerEmail"),
		}, nil
	},
}
