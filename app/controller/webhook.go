package controller

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing-connector/app/factory"
	"github.com/vibast-solutions/ms-go-billing-connector/app/metrics"
	"github.com/vibast-solutions/ms-go-billing-connector/app/ratelimit"
	"github.com/vibast-solutions/ms-go-billing-connector/app/service"
	"github.com/vibast-solutions/ms-go-billing-connector/app/types"
)

type webhookIngester interface {
	Ingest(ctx context.Context, req service.IngestWebhookRequest) (*service.WebhookResult, error)
}

type WebhookController struct {
	ingress webhookIngester
	limiter ratelimit.Limiter
	headers types.WebhookHeaders
	metrics *metrics.Metrics
	logger  logrus.FieldLogger
}

// NewWebhookController builds the public webhook endpoint. limiter may be nil
// to disable rate limiting.
func NewWebhookController(ingress webhookIngester, limiter ratelimit.Limiter, headers types.WebhookHeaders, m *metrics.Metrics) *WebhookController {
	return &WebhookController{
		ingress: ingress,
		limiter: limiter,
		headers: headers,
		metrics: m,
		logger:  factory.NewModuleLogger("webhook-controller"),
	}
}

func (c *WebhookController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *WebhookController) Ingest(ctx echo.Context) error {
	logger := factory.LoggerWithContext(c.logger, ctx)

	if limited, err := c.rateLimited(ctx, logger); limited {
		return err
	}

	req, err := types.NewIngestWebhookRequestFromContext(ctx, c.headers)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return writeError(ctx, http.StatusRequestEntityTooLarge, "request body too large")
		}
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.ingress.Ingest(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSignature), errors.Is(err, service.ErrTenantNotFound):
			logger.WithError(err).Warn("Webhook rejected")
			return writeError(ctx, http.StatusUnauthorized, "unauthorized")
		case errors.Is(err, service.ErrInvalidPayload):
			return writeError(ctx, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, service.ErrProviderUnsupported):
			return writeError(ctx, http.StatusNotFound, err.Error())
		default:
			logger.WithError(err).Error("Webhook ingestion failed")
			return writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	resp := &types.WebhookResponse{Status: result.Outcome}
	if result.Transaction != nil {
		resp.BillingStatus = result.Transaction.BillingStatus
	}
	if result.Outcome == service.WebhookOutcomeAccepted {
		resp.Error = result.Error
		return ctx.JSON(http.StatusAccepted, resp)
	}
	return ctx.JSON(http.StatusOK, resp)
}

// rateLimited answers 429 when the caller is over its budget. A limiter
// failure lets the request through.
func (c *WebhookController) rateLimited(ctx echo.Context, logger logrus.FieldLogger) (bool, error) {
	if c.limiter == nil {
		return false, nil
	}

	result, err := c.limiter.Allow(ctx.Request().Context(), ctx.RealIP())
	if err != nil {
		logger.WithError(err).Warn("Rate limiter unavailable")
		return false, nil
	}
	if result.Allowed {
		return false, nil
	}

	c.metrics.RateLimited()
	retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	ctx.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
	ctx.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	ctx.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	return true, writeError(ctx, http.StatusTooManyRequests, "rate limit exceeded")
}

func writeError(ctx echo.Context, statusCode int, message string, details ...string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message, Details: details})
}
