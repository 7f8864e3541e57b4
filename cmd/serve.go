package cmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"github.com/vibast-solutions/ms-go-billing-connector/app/controller"
	billinggrpc "github.com/vibast-solutions/ms-go-billing-connector/app/grpc"
	"github.com/vibast-solutions/ms-go-billing-connector/app/metrics"
	"github.com/vibast-solutions/ms-go-billing-connector/app/migration"
	"github.com/vibast-solutions/ms-go-billing-connector/app/ratelimit"
	"github.com/vibast-solutions/ms-go-billing-connector/app/types"
	"github.com/vibast-solutions/ms-go-billing-connector/config"
	"google.golang.org/grpc"
)

const limiterIdleTTL = 10 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start the webhook and operator HTTP server (Echo) and the operator gRPC server.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	app, cleanup := mustCreateApplication()
	defer cleanup()
	cfg := app.cfg

	if cfg.App.MigrateOnStartup {
		if err := migration.Up(app.db); err != nil {
			logrus.WithError(err).Fatal("Failed to apply migrations")
		}
		logrus.Info("Migrations applied")
	}

	limiter, closeLimiter := newWebhookLimiter(cfg)
	defer closeLimiter()

	webhookController := controller.NewWebhookController(app.webhooks, limiter, types.WebhookHeaders{
		Signature:    cfg.Webhook.SignatureHeader,
		TenantSecret: cfg.Webhook.TenantSecretHeader,
	}, app.metrics)
	operatorController := controller.NewOperatorController(app.reconciler, app.billing)
	grpcBillingServer := billinggrpc.NewServer(app.reconciler, app.billing)

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()

	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	echoInternalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)
	grpcInternalAuthMiddleware := authmiddleware.NewGRPCInternalAuthMiddleware(internalAuthService)

	e := setupHTTPServer(cfg, webhookController, operatorController, echoInternalAuthMiddleware, metrics.Handler(app.registry))
	grpcSrv, lis := setupGRPCServer(cfg, grpcBillingServer, grpcInternalAuthMiddleware)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	go func() {
		logrus.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		if err := grpcSrv.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("gRPC server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	grpcSrv.GracefulStop()

	logrus.Info("Server stopped")
}

// newWebhookLimiter picks the shared Redis limiter when REDIS_ADDR is set and
// the in-process one otherwise.
func newWebhookLimiter(cfg *config.Config) (ratelimit.Limiter, func()) {
	if !cfg.RateLimit.Enabled {
		return nil, func() {}
	}

	if cfg.Redis.Addr == "" {
		logrus.Info("Webhook rate limit is per instance, set REDIS_ADDR to share it across replicas")
		return ratelimit.NewMemoryLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, limiterIdleTTL), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	limiter := ratelimit.NewRedisLimiter(client, cfg.App.ServiceName+":webhook", cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	return limiter, func() {
		if err := client.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close redis client")
		}
	}
}

func setupHTTPServer(
	cfg *config.Config,
	webhookController *controller.WebhookController,
	operatorController *controller.OperatorController,
	internalAuthMiddleware *authmiddleware.EchoInternalAuthMiddleware,
	metricsHandler http.Handler,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			if v.RequestID != "" {
				fields["request_id"] = v.RequestID
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())

	e.GET("/health", webhookController.Health)
	e.GET("/metrics", echo.WrapHandler(metricsHandler))

	webhooks := e.Group("/webhooks/providers")
	webhooks.Use(limitBody(cfg.Webhook.MaxBodyBytes))
	webhooks.POST("/:provider", webhookController.Ingest)

	operator := e.Group("/operator")
	operator.Use(echomiddleware.CORS())
	operator.Use(requireRequestID())
	operator.Use(internalAuthMiddleware.RequireInternalAccess(cfg.App.ServiceName))
	operator.POST("/tenants/:tenant/reconcile", operatorController.Reconcile)
	operator.POST("/tenants/:tenant/transactions/:external_id/confirm-billing", operatorController.ConfirmBilling)
	operator.POST("/tenants/:tenant/transactions/:external_id/refund", operatorController.RequestRefund)
	operator.POST("/tenants/:tenant/transactions/:external_id/credit-note/process", operatorController.ProcessManualCreditNote)

	return e
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func limitBody(maxBytes int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if maxBytes > 0 {
				req := ctx.Request()
				if req.ContentLength > maxBytes {
					return ctx.JSON(http.StatusRequestEntityTooLarge, &types.ErrorResponse{Error: "request body too large"})
				}
				req.Body = http.MaxBytesReader(ctx.Response(), req.Body, maxBytes)
			}
			return next(ctx)
		}
	}
}

func setupGRPCServer(
	cfg *config.Config,
	billingServer *billinggrpc.Server,
	internalAuthMiddleware *authmiddleware.GRPCInternalAuthMiddleware,
) (*grpc.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			billinggrpc.RecoveryInterceptor(),
			billinggrpc.RequestIDInterceptor(),
			billinggrpc.LoggingInterceptor(),
			internalAuthMiddleware.UnaryRequireInternalAccess(cfg.App.ServiceName),
		),
	)
	billinggrpc.RegisterBillingConnectorServer(grpcSrv, billingServer)

	return grpcSrv, lis
}
