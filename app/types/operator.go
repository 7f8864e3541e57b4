package types

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const dateLayout = "2006-01-02"

type ReconcileRequest struct {
	TenantId string
	From     time.Time
	To       time.Time
}

func (r *ReconcileRequest) GetTenantId() string {
	if r == nil {
		return ""
	}
	return r.TenantId
}

func (r *ReconcileRequest) GetFrom() time.Time {
	if r == nil {
		return time.Time{}
	}
	return r.From
}

func (r *ReconcileRequest) GetTo() time.Time {
	if r == nil {
		return time.Time{}
	}
	return r.To
}

func NewReconcileRequestFromContext(ctx echo.Context) (*ReconcileRequest, error) {
	var body struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return NewReconcileRequest(ctx.Param("tenant"), body.From, body.To)
}

// NewReconcileRequest parses RFC 3339 timestamps or plain dates. A plain "to"
// date covers that whole day.
func NewReconcileRequest(tenantID, from, to string) (*ReconcileRequest, error) {
	req := &ReconcileRequest{TenantId: strings.TrimSpace(tenantID)}

	var err error
	if req.From, err = parseWindowBound(from, false); err != nil {
		return nil, errors.New("from must be a date or RFC 3339 timestamp")
	}
	if req.To, err = parseWindowBound(to, true); err != nil {
		return nil, errors.New("to must be a date or RFC 3339 timestamp")
	}
	return req, nil
}

func parseWindowBound(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}

func (r *ReconcileRequest) Validate() error {
	if _, err := uuid.Parse(r.GetTenantId()); err != nil {
		return errors.New("tenant must be a valid uuid")
	}
	if r.GetFrom().IsZero() {
		return errors.New("from is required")
	}
	if r.GetTo().IsZero() {
		return errors.New("to is required")
	}
	if r.GetTo().Before(r.GetFrom()) {
		return errors.New("to must not be before from")
	}
	return nil
}

type TransactionActionRequest struct {
	TenantId   string
	ExternalId string
}

func (r *TransactionActionRequest) GetTenantId() string {
	if r == nil {
		return ""
	}
	return r.TenantId
}

func (r *TransactionActionRequest) GetExternalId() string {
	if r == nil {
		return ""
	}
	return r.ExternalId
}

func NewTransactionActionRequestFromContext(ctx echo.Context) (*TransactionActionRequest, error) {
	return &TransactionActionRequest{
		TenantId:   strings.TrimSpace(ctx.Param("tenant")),
		ExternalId: strings.TrimSpace(ctx.Param("external_id")),
	}, nil
}

func (r *TransactionActionRequest) Validate() error {
	if _, err := uuid.Parse(r.GetTenantId()); err != nil {
		return errors.New("tenant must be a valid uuid")
	}
	if strings.TrimSpace(r.GetExternalId()) == "" {
		return errors.New("external_id is required")
	}
	return nil
}

type RefundRequest struct {
	TransactionActionRequest
	Reason string `json:"reason"`
}

func (r *RefundRequest) GetReason() string {
	if r == nil {
		return ""
	}
	return r.Reason
}

func NewRefundRequestFromContext(ctx echo.Context) (*RefundRequest, error) {
	var body RefundRequest
	if err := ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.TenantId = strings.TrimSpace(ctx.Param("tenant"))
	body.ExternalId = strings.TrimSpace(ctx.Param("external_id"))
	body.Reason = strings.TrimSpace(body.Reason)
	return &body, nil
}

func (r *RefundRequest) Validate() error {
	if err := r.TransactionActionRequest.Validate(); err != nil {
		return err
	}
	if len(r.GetReason()) > 255 {
		return errors.New("reason must be at most 255 characters")
	}
	return nil
}
