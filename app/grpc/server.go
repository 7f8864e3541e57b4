package grpc

import (
	"context"
	"errors"

	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
	"github.com/vibast-solutions/ms-go-billing-connector/app/mapper"
	"github.com/vibast-solutions/ms-go-billing-connector/app/service"
	"github.com/vibast-solutions/ms-go-billing-connector/app/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type reconciler interface {
	ReconcileTenant(ctx context.Context, req service.ReconcileRequest) (*service.ReconcileResult, error)
}

type billingOperator interface {
	ConfirmBilling(ctx context.Context, req service.TransactionActionRequest) (*entity.Transaction, error)
	RequestRefund(ctx context.Context, req service.RefundRequest) (*entity.CreditNote, error)
	ProcessManualCreditNote(ctx context.Context, req service.TransactionActionRequest) (*entity.CreditNote, error)
}

type Server struct {
	reconciler reconciler
	billing    billingOperator
}

func NewServer(reconciler reconciler, billing billingOperator) *Server {
	return &Server{reconciler: reconciler, billing: billing}
}

func (s *Server) Health(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return mapper.ToStruct(&types.HealthResponse{Status: "ok"})
}

func (s *Server) Reconcile(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := types.NewReconcileRequest(field(in, "tenant_id"), field(in, "from"), field(in, "to"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.reconciler.ReconcileTenant(ctx, req)
	if err != nil {
		return nil, s.statusError(ctx, err, "Reconcile failed")
	}
	return respond(mapper.ReconcileResultToResponse(result))
}

func (s *Server) ConfirmBilling(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := actionRequest(in)
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	tx, err := s.billing.ConfirmBilling(ctx, req)
	if err != nil {
		return nil, s.statusError(ctx, err, "Confirm billing failed")
	}
	return respond(&types.TransactionResponse{Transaction: mapper.TransactionToResponse(tx)})
}

func (s *Server) RequestRefund(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := &types.RefundRequest{
		TransactionActionRequest: *actionRequest(in),
		Reason:                   field(in, "reason"),
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	note, err := s.billing.RequestRefund(ctx, req)
	if err != nil {
		return nil, s.statusError(ctx, err, "Request refund failed")
	}
	return respond(&types.CreditNoteResponse{CreditNote: mapper.CreditNoteToResponse(note)})
}

func (s *Server) ProcessManualCreditNote(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := actionRequest(in)
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	note, err := s.billing.ProcessManualCreditNote(ctx, req)
	if err != nil {
		return nil, s.statusError(ctx, err, "Process manual credit note failed")
	}
	return respond(&types.CreditNoteResponse{CreditNote: mapper.CreditNoteToResponse(note)})
}

func (s *Server) statusError(ctx context.Context, err error, failure string) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrProviderUnsupported), errors.Is(err, service.ErrValidationFailed):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrTenantNotFound), errors.Is(err, service.ErrTransactionNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrAlreadyBilled):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, service.ErrInvalidStatus), errors.Is(err, service.ErrCreditNoteNotPending), errors.Is(err, service.ErrProviderRejected):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		loggerWithContext(ctx).WithError(err).Error(failure)
		return status.Error(codes.Unavailable, "invoicing provider call failed")
	}
}

func actionRequest(in *structpb.Struct) *types.TransactionActionRequest {
	return &types.TransactionActionRequest{
		TenantId:   field(in, "tenant_id"),
		ExternalId: field(in, "external_id"),
	}
}

func field(in *structpb.Struct, name string) string {
	return in.GetFields()[name].GetStringValue()
}

func respond(v interface{}) (*structpb.Struct, error) {
	out, err := mapper.ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return out, nil
}
