package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
	"github.com/vibast-solutions/ms-go-billing-connector/app/provider"
)

type windowRequest struct {
	tenantID string
	from, to time.Time
}

func (r windowRequest) GetTenantId() string { return r.tenantID }
func (r windowRequest) GetFrom() time.Time  { return r.from }
func (r windowRequest) GetTo() time.Time    { return r.to }

func reported(id, amount string) provider.ReportedTransaction {
	return provider.ReportedTransaction{
		ID:       id,
		Status:   "PAID",
		Amount:   decimal.RequireFromString(amount),
		Currency: "ARS",
	}
}

func testWindow() (time.Time, time.Time) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 7)
}

func TestReconcileInvoicesOrphanOnce(t *testing.T) {
	h := newHarness()
	h.processor.items = []provider.ReportedTransaction{reported("X-1", "250.00")}
	ctx := context.Background()
	from, to := testWindow()

	result, err := h.reconciler.Reconcile(ctx, h.tenantID, from, to)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if result.Orphans != 1 || result.Processed != 1 || len(result.Errors) != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if !result.SuccessRate().Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected 100%% success rate, got %s", result.SuccessRate())
	}

	tx, _ := h.txRepo.FindByExternalID(ctx, h.tenantID, "X-1")
	if tx == nil {
		t.Fatalf("expected orphan to be stored")
	}
	if !tx.IsBilled() || !tx.Reconciled || !tx.HasInvoiceNumber() {
		t.Fatalf("expected billed reconciled transaction, got %s reconciled=%v", tx.BillingStatus, tx.Reconciled)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("250")) {
		t.Fatalf("unexpected amount %s", tx.Amount)
	}

	second, err := h.reconciler.Reconcile(ctx, h.tenantID, from, to)
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}
	if second.Orphans != 0 || second.Processed != 0 {
		t.Fatalf("expected no orphans on second run, got %+v", second)
	}
	if h.invoicing.callCount() != 1 {
		t.Fatalf("expected one provider call across runs, got %d", h.invoicing.callCount())
	}
	if len(h.logRepo.items) != 2 {
		t.Fatalf("expected a log row per run, got %d", len(h.logRepo.items))
	}
	if h.logRepo.items[0].ProcessedCount != 1 || h.logRepo.items[0].OrphanCount != 1 {
		t.Fatalf("unexpected log %+v", h.logRepo.items[0])
	}
	if h.processor.from != from || h.processor.to != to {
		t.Fatalf("processor queried with wrong window")
	}
}

func TestReconcileSkipsBilledAndRefundedTransactions(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	now := time.Now().UTC()

	billed := "0001-00000099"
	_, _ = h.txRepo.Upsert(ctx, &entity.Transaction{
		TenantID: h.tenantID, ExternalID: "B-1", Amount: decimal.NewFromInt(10), Currency: "ARS",
		Status: entity.TransactionStatusPaid, BillingStatus: entity.BillingStatusBilled, InvoiceNumber: &billed,
		CreatedAt: now, UpdatedAt: now,
	})
	_, _ = h.txRepo.Upsert(ctx, &entity.Transaction{
		TenantID: h.tenantID, ExternalID: "R-1", Amount: decimal.NewFromInt(10), Currency: "ARS",
		Status: entity.TransactionStatusRefunded, BillingStatus: entity.BillingStatusNotApplicable,
		CreatedAt: now, UpdatedAt: now,
	})
	_, _ = h.txRepo.Upsert(ctx, &entity.Transaction{
		TenantID: h.tenantID, ExternalID: "E-1", Amount: decimal.NewFromInt(10), Currency: "ARS",
		Status: entity.TransactionStatusPaid, BillingStatus: entity.BillingStatusError,
		CreatedAt: now, UpdatedAt: now,
	})

	h.processor.items = []provider.ReportedTransaction{
		reported("B-1", "10"),
		reported("R-1", "10"),
		reported("E-1", "10"),
		reported("E-1", "10"),
		{ID: "F-1", Status: "REJECTED", Amount: decimal.NewFromInt(10), Currency: "ARS"},
		{ID: "", Status: "PAID", Amount: decimal.NewFromInt(10)},
	}

	from, to := testWindow()
	result, err := h.reconciler.Reconcile(ctx, h.tenantID, from, to)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if result.Reported != 3 {
		t.Fatalf("expected 3 reported after filtering, got %d", result.Reported)
	}
	if result.Orphans != 1 || result.Processed != 1 {
		t.Fatalf("expected only E-1 to be reconciled, got %+v", result)
	}
	tx, _ := h.txRepo.FindByExternalID(ctx, h.tenantID, "E-1")
	if !tx.IsBilled() || tx.BillingError != nil {
		t.Fatalf("expected E-1 billed without error")
	}
}

func TestReconcileContinuesAfterOrphanFailure(t *testing.T) {
	h := newHarness()
	h.processor.items = []provider.ReportedTransaction{
		reported("X-1", "0"),
		reported("X-2", "80.50"),
	}
	ctx := context.Background()
	from, to := testWindow()

	result, err := h.reconciler.Reconcile(ctx, h.tenantID, from, to)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if result.Processed != 1 || len(result.Errors) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, ok := result.Errors["X-1"]; !ok {
		t.Fatalf("expected X-1 in errors, got %v", result.Errors)
	}
	if !result.SuccessRate().Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected 50%% success rate, got %s", result.SuccessRate())
	}

	failed, _ := h.txRepo.FindByExternalID(ctx, h.tenantID, "X-1")
	if failed.BillingStatus != entity.BillingStatusError || failed.BillingError == nil || failed.Reconciled {
		t.Fatalf("expected X-1 with recorded error, got %+v", failed)
	}
	ok, _ := h.txRepo.FindByExternalID(ctx, h.tenantID, "X-2")
	if !ok.IsBilled() || !ok.Reconciled {
		t.Fatalf("expected X-2 billed and reconciled")
	}
	if h.logRepo.items[0].ErrorCount != 1 {
		t.Fatalf("expected error count in log")
	}
}

func TestReconcileMarksCancelledRunPartial(t *testing.T) {
	h := newHarness()
	h.processor.items = []provider.ReportedTransaction{reported("X-1", "10")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	from, to := testWindow()

	result, err := h.reconciler.Reconcile(ctx, h.tenantID, from, to)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !result.Partial || result.Processed != 0 {
		t.Fatalf("expected partial run, got %+v", result)
	}
	if len(h.logRepo.items) != 1 || !h.logRepo.items[0].Partial {
		t.Fatalf("expected partial log row")
	}
	if h.invoicing.callCount() != 0 {
		t.Fatalf("expected no provider call")
	}
}

func TestReconcileProcessorFailure(t *testing.T) {
	h := newHarness()
	h.processor.err = errors.New("getnet down")
	from, to := testWindow()

	_, err := h.reconciler.Reconcile(context.Background(), h.tenantID, from, to)
	if err == nil || !strings.Contains(err.Error(), "getnet down") {
		t.Fatalf("expected processor error, got %v", err)
	}
}

func TestReconcileTenantValidatesRequest(t *testing.T) {
	h := newHarness()
	from, to := testWindow()
	ctx := context.Background()

	if _, err := h.reconciler.ReconcileTenant(ctx, windowRequest{tenantID: "nope", from: from, to: to}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for bad tenant id, got %v", err)
	}
	if _, err := h.reconciler.ReconcileTenant(ctx, windowRequest{tenantID: h.tenantID.String(), from: to, to: from}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for inverted window, got %v", err)
	}
	if _, err := h.reconciler.ReconcileTenant(ctx, windowRequest{tenantID: "7c4f0a8e-1d2b-4c3a-9e8f-0a1b2c3d4e5f", from: from, to: to}); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
	if _, err := h.reconciler.ReconcileTenant(ctx, windowRequest{tenantID: h.tenantID.String(), from: from, to: to}); err != nil {
		t.Fatalf("ReconcileTenant() error = %v", err)
	}
}

func TestRunReconcileBatchWindow(t *testing.T) {
	h := newHarness()
	h.reconciler.now = func() time.Time { return time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC) }
	ctx := context.Background()

	if err := h.reconciler.RunReconcileBatch(ctx, false); err != nil {
		t.Fatalf("RunReconcileBatch() error = %v", err)
	}
	wantTo := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
	if !h.processor.from.Equal(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)) || !h.processor.to.Equal(wantTo) {
		t.Fatalf("unexpected window %s - %s", h.processor.from, h.processor.to)
	}

	if err := h.reconciler.RunReconcileBatch(ctx, true); err != nil {
		t.Fatalf("deep RunReconcileBatch() error = %v", err)
	}
	if !h.processor.from.Equal(time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected deep window start %s", h.processor.from)
	}
}

func TestRunReconcileBatchReportsFailedOrphans(t *testing.T) {
	h := newHarness()
	h.processor.items = []provider.ReportedTransaction{reported("X-2", "0"), reported("X-1", "0")}

	err := h.reconciler.RunReconcileBatch(context.Background(), false)
	if err == nil {
		t.Fatalf("expected batch error")
	}
	if !strings.Contains(err.Error(), "2 orphans failed: X-1,X-2") {
		t.Fatalf("unexpected error %v", err)
	}
}
