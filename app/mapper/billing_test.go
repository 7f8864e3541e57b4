package mapper

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
	"github.com/vibast-solutions/ms-go-billing-connector/app/service"
)

func TestTransactionToResponse(t *testing.T) {
	number := "0001-00000012"
	item := &entity.Transaction{
		TenantID:      uuid.MustParse("7c4f0a8e-1d2b-4c3a-9e8f-0a1b2c3d4e5f"),
		ExternalID:    "P1",
		Amount:        decimal.RequireFromString("100"),
		Currency:      "ARS",
		Status:        entity.TransactionStatusPaid,
		BillingStatus: entity.BillingStatusBilled,
		InvoiceNumber: &number,
		UpdatedAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("ART", -3*3600)),
	}

	resp := TransactionToResponse(item)
	if resp.Amount != "100.00" || resp.InvoiceNumber != number || resp.Cae != "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.UpdatedAt != "2026-03-01T13:00:00Z" {
		t.Fatalf("expected UTC timestamp, got %s", resp.UpdatedAt)
	}
	if TransactionToResponse(nil) != nil {
		t.Fatal("expected nil for nil transaction")
	}
}

func TestReconcileResultToStruct(t *testing.T) {
	result := &service.ReconcileResult{
		TenantID:  uuid.New(),
		Orphans:   4,
		Processed: 3,
		Errors:    map[string]string{"X-1": "validation failed"},
	}

	resp := ReconcileResultToResponse(result)
	if resp.SuccessRate != "75.00" {
		t.Fatalf("unexpected success rate %s", resp.SuccessRate)
	}

	msg, err := ToStruct(resp)
	if err != nil {
		t.Fatalf("ToStruct() error = %v", err)
	}
	if got := msg.GetFields()["processed"].GetNumberValue(); got != 3 {
		t.Fatalf("expected processed=3, got %v", got)
	}
	if got := msg.GetFields()["errors"].GetStructValue().GetFields()["X-1"].GetStringValue(); got != "validation failed" {
		t.Fatalf("unexpected errors field %q", got)
	}
}
