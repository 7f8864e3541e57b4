package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
	"github.com/vibast-solutions/ms-go-billing-connector/app/factory"
	"github.com/vibast-solutions/ms-go-billing-connector/app/mapper"
	"github.com/vibast-solutions/ms-go-billing-connector/app/service"
	"github.com/vibast-solutions/ms-go-billing-connector/app/types"
)

type reconciler interface {
	ReconcileTenant(ctx context.Context, req service.ReconcileRequest) (*service.ReconcileResult, error)
}

type billingOperator interface {
	ConfirmBilling(ctx context.Context, req service.TransactionActionRequest) (*entity.Transaction, error)
	RequestRefund(ctx context.Context, req service.RefundRequest) (*entity.CreditNote, error)
	ProcessManualCreditNote(ctx context.Context, req service.TransactionActionRequest) (*entity.CreditNote, error)
}

// OperatorController serves the internal operator actions.
type OperatorController struct {
	reconciler reconciler
	billing    billingOperator
	logger     logrus.FieldLogger
}

func NewOperatorController(reconciler reconciler, billing billingOperator) *OperatorController {
	return &OperatorController{
		reconciler: reconciler,
		billing:    billing,
		logger:     factory.NewModuleLogger("operator-controller"),
	}
}

func (c *OperatorController) Reconcile(ctx echo.Context) error {
	req, err := types.NewReconcileRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.reconciler.ReconcileTenant(ctx.Request().Context(), req)
	if err != nil {
		if code, msg, ok := operatorError(err); ok {
			return writeError(ctx, code, msg)
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Reconciliation failed")
		return writeError(ctx, http.StatusBadGateway, "reconciliation failed")
	}

	return ctx.JSON(http.StatusOK, mapper.ReconcileResultToResponse(result))
}

func (c *OperatorController) ConfirmBilling(ctx echo.Context) error {
	req, err := types.NewTransactionActionRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	tx, err := c.billing.ConfirmBilling(ctx.Request().Context(), req)
	if err != nil {
		code, msg, ok := operatorError(err)
		if !ok {
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Confirm billing failed")
			code, msg = http.StatusBadGateway, "invoicing provider call failed"
		}
		if tx == nil {
			return writeError(ctx, code, msg, validationDetails(err)...)
		}
		return ctx.JSON(code, &types.TransactionResponse{Transaction: mapper.TransactionToResponse(tx), Error: err.Error()})
	}

	return ctx.JSON(http.StatusOK, &types.TransactionResponse{Transaction: mapper.TransactionToResponse(tx)})
}

func (c *OperatorController) RequestRefund(ctx echo.Context) error {
	req, err := types.NewRefundRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	note, err := c.billing.RequestRefund(ctx.Request().Context(), req)
	return c.writeCreditNote(ctx, note, err, "Request refund failed")
}

func (c *OperatorController) ProcessManualCreditNote(ctx echo.Context) error {
	req, err := types.NewTransactionActionRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	note, err := c.billing.ProcessManualCreditNote(ctx.Request().Context(), req)
	return c.writeCreditNote(ctx, note, err, "Process manual credit note failed")
}

func (c *OperatorController) writeCreditNote(ctx echo.Context, note *entity.CreditNote, err error, failure string) error {
	if err == nil {
		return ctx.JSON(http.StatusOK, &types.CreditNoteResponse{CreditNote: mapper.CreditNoteToResponse(note)})
	}

	code, msg, ok := operatorError(err)
	if !ok {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(failure)
		code, msg = http.StatusBadGateway, "invoicing provider call failed"
	}
	if note == nil {
		return writeError(ctx, code, msg)
	}
	return ctx.JSON(code, &types.CreditNoteResponse{CreditNote: mapper.CreditNoteToResponse(note), Error: err.Error()})
}

// operatorError maps service errors that have a definite HTTP status.
func operatorError(err error) (int, string, bool) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrProviderUnsupported):
		return http.StatusBadRequest, err.Error(), true
	case errors.Is(err, service.ErrTenantNotFound):
		return http.StatusNotFound, "tenant not found", true
	case errors.Is(err, service.ErrTransactionNotFound):
		return http.StatusNotFound, "transaction not found", true
	case errors.Is(err, service.ErrAlreadyBilled), errors.Is(err, service.ErrInvalidStatus), errors.Is(err, service.ErrCreditNoteNotPending):
		return http.StatusConflict, err.Error(), true
	case errors.Is(err, service.ErrValidationFailed), errors.Is(err, service.ErrProviderRejected):
		return http.StatusUnprocessableEntity, err.Error(), true
	default:
		return 0, "", false
	}
}

func validationDetails(err error) []string {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Errors
	}
	return nil
}
