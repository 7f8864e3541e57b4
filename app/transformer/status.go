package transformer

import (
	"strings"

	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
)

var statusVocabulary = map[string]string{
	"PAID":       entity.TransactionStatusPaid,
	"APPROVED":   entity.TransactionStatusPaid,
	"CAPTURED":   entity.TransactionStatusPaid,
	"AUTHORIZED": entity.TransactionStatusAuthorized,
	"PENDING":    entity.TransactionStatusAuthorized,
	"REFUNDED":   entity.TransactionStatusRefunded,
	"FAILED":     entity.TransactionStatusFailed,
	"REJECTED":   entity.TransactionStatusFailed,
	"DENIED":     entity.TransactionStatusFailed,
	"CANCELLED":  entity.TransactionStatusFailed,
	"CANCELED":   entity.TransactionStatusFailed,
}

// MapStatus maps an upstream status onto the canonical set. Anything not
// recognized, including an empty status, is treated as AUTHORIZED.
func MapStatus(upstream string) string {
	if status, ok := statusVocabulary[strings.ToUpper(strings.TrimSpace(upstream))]; ok {
		return status
	}
	return entity.TransactionStatusAuthorized
}
