package grpc

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
	"github.com/vibast-solutions/ms-go-billing-connector/app/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

const testTenant = "7c4f0a8e-1d2b-4c3a-9e8f-0a1b2c3d4e5f"

type fakeReconciler struct {
	reconcileFn func(ctx context.Context, req service.ReconcileRequest) (*service.ReconcileResult, error)
}

func (f *fakeReconciler) ReconcileTenant(ctx context.Context, req service.ReconcileRequest) (*service.ReconcileResult, error) {
	if f.reconcileFn != nil {
		return f.reconcileFn(ctx, req)
	}
	return &service.ReconcileResult{Errors: map[string]string{}}, nil
}

type fakeBilling struct {
	confirmFn func(ctx context.Context, req service.TransactionActionRequest) (*entity.Transaction, error)
	refundFn  func(ctx context.Context, req service.RefundRequest) (*entity.CreditNote, error)
	manualFn  func(ctx context.Context, req service.TransactionActionRequest) (*entity.CreditNote, error)
}

func (f *fakeBilling) ConfirmBilling(ctx context.Context, req service.TransactionActionRequest) (*entity.Transaction, error) {
	return f.confirmFn(ctx, req)
}

func (f *fakeBilling) RequestRefund(ctx context.Context, req service.RefundRequest) (*entity.CreditNote, error) {
	return f.refundFn(ctx, req)
}

func (f *fakeBilling) ProcessManualCreditNote(ctx context.Context, req service.TransactionActionRequest) (*entity.CreditNote, error) {
	return f.manualFn(ctx, req)
}

func mustStruct(t *testing.T, fields map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("NewStruct() error = %v", err)
	}
	return s
}

func TestReconcileValidatesWindow(t *testing.T) {
	s := NewServer(&fakeReconciler{}, &fakeBilling{})

	_, err := s.Reconcile(context.Background(), mustStruct(t, map[string]interface{}{"tenant_id": testTenant, "from": "2026-03-01"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestReconcileReturnsResult(t *testing.T) {
	s := NewServer(&fakeReconciler{reconcileFn: func(_ context.Context, req service.ReconcileRequest) (*service.ReconcileResult, error) {
		return &service.ReconcileResult{
			TenantID:  uuid.MustParse(req.GetTenantId()),
			From:      req.GetFrom(),
			To:        req.GetTo(),
			Reported:  3,
			Orphans:   1,
			Processed: 1,
			Errors:    map[string]string{},
		}, nil
	}}, &fakeBilling{})

	resp, err := s.Reconcile(context.Background(), mustStruct(t, map[string]interface{}{
		"tenant_id": testTenant,
		"from":      "2026-03-01",
		"to":        "2026-03-07",
	}))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if resp.GetFields()["orphans"].GetNumberValue() != 1 || resp.GetFields()["success_rate"].GetStringValue() != "100.00" {
		t.Fatalf("unexpected response %v", resp)
	}
}

func TestConfirmBillingErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{service.ErrTransactionNotFound, codes.NotFound},
		{service.ErrAlreadyBilled, codes.AlreadyExists},
		{service.ErrInvalidStatus, codes.FailedPrecondition},
		{&service.ValidationError{Errors: []string{"currency is required"}}, codes.InvalidArgument},
		{errors.New("create invoice: timeout"), codes.Unavailable},
	}

	for _, tc := range cases {
		err := tc.err
		s := NewServer(&fakeReconciler{}, &fakeBilling{confirmFn: func(context.Context, service.TransactionActionRequest) (*entity.Transaction, error) {
			return &entity.Transaction{}, err
		}})
		_, got := s.ConfirmBilling(context.Background(), mustStruct(t, map[string]interface{}{"tenant_id": testTenant, "external_id": "P1"}))
		if status.Code(got) != tc.code {
			t.Fatalf("%v: expected %s, got %v", err, tc.code, got)
		}
	}
}

func TestRequestRefundForwardsReason(t *testing.T) {
	s := NewServer(&fakeReconciler{}, &fakeBilling{refundFn: func(_ context.Context, req service.RefundRequest) (*entity.CreditNote, error) {
		if req.GetReason() != "producto fallado" || req.GetExternalId() != "P1" {
			t.Fatalf("unexpected request %q/%q", req.GetReason(), req.GetExternalId())
		}
		return &entity.CreditNote{Status: entity.CreditNoteStatusStub, Amount: decimal.NewFromInt(10)}, nil
	}})

	resp, err := s.RequestRefund(context.Background(), mustStruct(t, map[string]interface{}{
		"tenant_id":   testTenant,
		"external_id": "P1",
		"reason":      "producto fallado",
	}))
	if err != nil {
		t.Fatalf("RequestRefund() error = %v", err)
	}
	note := resp.GetFields()["credit_note"].GetStructValue()
	if note.GetFields()["status"].GetStringValue() != "stub" {
		t.Fatalf("unexpected response %v", resp)
	}
}

func TestProcessManualCreditNoteRequiresTenant(t *testing.T) {
	s := NewServer(&fakeReconciler{}, &fakeBilling{})
	_, err := s.ProcessManualCreditNote(context.Background(), mustStruct(t, map[string]interface{}{"external_id": "P1"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestServiceDescRoundTrip(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(RecoveryInterceptor(), RequestIDInterceptor(), LoggingInterceptor()))
	RegisterBillingConnectorServer(srv, NewServer(&fakeReconciler{}, &fakeBilling{}))
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer conn.Close()

	out := &structpb.Struct{}
	err = conn.Invoke(context.Background(), "/billing.BillingConnectorService/Health", &structpb.Struct{}, out)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument without request id, got %v", err)
	}

	ctx := metadata.AppendToOutgoingContext(context.Background(), requestIDHeader, "req-1")
	if err := conn.Invoke(ctx, "/billing.BillingConnectorService/Health", &structpb.Struct{}, out); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out.GetFields()["status"].GetStringValue() != "ok" {
		t.Fatalf("unexpected health response %v", out)
	}
}
