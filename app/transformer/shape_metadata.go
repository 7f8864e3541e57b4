package transformer

// metadataItemsShape carries the customer and line items under "metadata".
var metadataItemsShape = shape{
	name: "metadata_items",
	detect: func(p payload) bool {
		metadata := p.object("metadata")
		return metadata != nil && metadata.has("items")
	},
	extract: func(p payload) (*extraction, error) {
		amount, _, err := p.decimal("amount")
		if err != nil {
			return nil, err
		}
		metadata := p.object("metadata")

		return &extraction{
			ExternalID:    p.str("id"),
			Amount:        amount,
			Currency:      p.str("currency"),
			Status:        p.str("status"),
			CustomerDoc:   p.strPtr("customerDoc", "customer_doc"),
			CustomerName:  metadata.strPtr("customerName", "customer_name"),
			CustomerEmail: metadata.strPtr("customerEmail", "customer_email"),
			Items:         parseItems(metadata.list("items")),
		}, nil
	},
}
