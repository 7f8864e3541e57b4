package mapper

import (
	"encoding/json"
	"time"

	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
	"github.com/vibast-solutions/ms-go-billing-connector/app/service"
	"github.com/vibast-solutions/ms-go-billing-connector/app/types"
	"google.golang.org/protobuf/types/known/structpb"
)

func TransactionToResponse(item *entity.Transaction) *types.Transaction {
	if item == nil {
		return nil
	}

	return &types.Transaction{
		TenantId:           item.TenantID.String(),
		ExternalId:         item.ExternalID,
		Amount:             item.Amount.StringFixed(2),
		Currency:           item.Currency,
		Status:             item.Status,
		BillingStatus:      item.BillingStatus,
		BillingError:       derefString(item.BillingError),
		InvoiceNumber:      derefString(item.InvoiceNumber),
		Cae:                derefString(item.CAE),
		InvoicePdfUrl:      derefString(item.InvoicePDFURL),
		CreditNoteNumber:   derefString(item.CreditNoteNumber),
		CreditNoteStatus:   derefString(item.CreditNoteStatus),
		CreditNoteStrategy: derefString(item.CreditNoteStrategy),
		RefundReason:       derefString(item.RefundReason),
		Reconciled:         item.Reconciled,
		UpdatedAt:          formatTime(item.UpdatedAt),
	}
}

func CreditNoteToResponse(item *entity.CreditNote) *types.CreditNote {
	if item == nil {
		return nil
	}

	return &types.CreditNote{
		TransactionId:    item.TransactionID,
		Status:           item.Status,
		Strategy:         item.Strategy,
		RefundReason:     item.RefundReason,
		Amount:           item.Amount.StringFixed(2),
		CreditNoteNumber: derefString(item.CreditNoteNumber),
		Cae:              derefString(item.CAE),
		PdfUrl:           derefString(item.PDFURL),
		UpdatedAt:        formatTime(item.UpdatedAt),
	}
}

func ReconcileResultToResponse(result *service.ReconcileResult) *types.ReconcileResponse {
	if result == nil {
		return nil
	}

	errs := make(map[string]string, len(result.Errors))
	for id, msg := range result.Errors {
		errs[id] = msg
	}

	return &types.ReconcileResponse{
		TenantId:    result.TenantID.String(),
		From:        formatTime(result.From),
		To:          formatTime(result.To),
		Reported:    result.Reported,
		Orphans:     result.Orphans,
		Processed:   result.Processed,
		Errors:      errs,
		SuccessRate: result.SuccessRate().StringFixed(2),
		Partial:     result.Partial,
	}
}

// ToStruct converts a response into the generic message used by the gRPC
// service. The JSON field names are kept.
func ToStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
