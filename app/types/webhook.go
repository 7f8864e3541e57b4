package types

import (
	"errors"
	"io"
	"strings"

	"github.com/labstack/echo/v4"
)

// WebhookHeaders names the headers that carry the signature and the tenant
// secret. Both are configurable per deployment.
type WebhookHeaders struct {
	Signature    string
	TenantSecret string
}

type IngestWebhookRequest struct {
	Provider     string
	TenantSecret string
	Signature    string
	Body         []byte
}

func (r *IngestWebhookRequest) GetProvider() string {
	if r == nil {
		return ""
	}
	return r.Provider
}

func (r *IngestWebhookRequest) GetTenantSecret() string {
	if r == nil {
		return ""
	}
	return r.TenantSecret
}

func (r *IngestWebhookRequest) GetSignature() string {
	if r == nil {
		return ""
	}
	return r.Signature
}

func (r *IngestWebhookRequest) GetBody() []byte {
	if r == nil {
		return nil
	}
	return r.Body
}

// NewIngestWebhookRequestFromContext keeps the body exactly as received; the
// signature is computed over those bytes.
func NewIngestWebhookRequestFromContext(ctx echo.Context, headers WebhookHeaders) (*IngestWebhookRequest, error) {
	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	return &IngestWebhookRequest{
		Provider:     strings.ToLower(strings.TrimSpace(ctx.Param("provider"))),
		TenantSecret: strings.TrimSpace(ctx.Request().Header.Get(headers.TenantSecret)),
		Signature:    strings.TrimSpace(ctx.Request().Header.Get(headers.Signature)),
		Body:         rawBody,
	}, nil
}

func (r *IngestWebhookRequest) Validate() error {
	if strings.TrimSpace(r.GetProvider()) == "" {
		return errors.New("provider is required")
	}
	if len(r.GetBody()) == 0 {
		return errors.New("body is required")
	}
	return nil
}

type WebhookResponse struct {
	Status        string `json:"status"`
	BillingStatus string `json:"billing_status,omitempty"`
	Error         string `json:"error,omitempty"`
}
