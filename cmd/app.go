package cmd

import (
	"database/sql"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing-connector/app/metrics"
	"github.com/vibast-solutions/ms-go-billing-connector/app/provider"
	"github.com/vibast-solutions/ms-go-billing-connector/app/repository"
	"github.com/vibast-solutions/ms-go-billing-connector/app/security"
	"github.com/vibast-solutions/ms-go-billing-connector/app/service"
	"github.com/vibast-solutions/ms-go-billing-connector/app/transformer"
	"github.com/vibast-solutions/ms-go-billing-connector/config"
)

type application struct {
	cfg      *config.Config
	db       *sql.DB
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	webhooks   *service.WebhookIngress
	reconciler *service.ReconciliationEngine
	billing    *service.BillingService
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	return cfg
}

func configureLogging(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stdout)
	logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	return nil
}

func mustOpenDB(cfg *config.Config) *sql.DB {
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}
	return db
}

func mustCreateApplication() (*application, func()) {
	cfg := mustLoadConfig()
	db := mustOpenDB(cfg)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	txRepo := repository.NewTransactionRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	creditNoteRepo := repository.NewCreditNoteRepository(db)
	eventRepo := repository.NewWebhookEventRepository(db)
	settingsRepo := repository.NewBillingSettingsRepository(db)
	logRepo := repository.NewReconciliationLogRepository(db)

	rates, err := transformer.NewStaticRateSource(cfg.FX.Rates)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid FX_RATES")
	}
	normalizer := transformer.NewAmountNormalizer(cfg.FX.SettlementCurrency, rates, cfg.FX.MinorUnitCurrencies, cfg.FX.MinorUnitThreshold)
	payloads := transformer.New(normalizer, transformer.Defaults{
		Auth: provider.Authentication{
			Company: cfg.Facturante.Company,
			User:    cfg.Facturante.User,
			Hash:    cfg.Facturante.Hash,
		},
		DocumentType:           cfg.Facturante.DefaultDocumentType,
		PointOfSale:            cfg.Facturante.DefaultPointOfSale,
		CreditNoteDocumentType: cfg.Facturante.CreditNoteDocumentType,
	})

	var invoicing provider.InvoicingProvider
	if cfg.Facturante.BaseURL == "" {
		logrus.Warn("FACTURANTE_BASE_URL is empty, fiscal documents are issued by the sandbox provider")
		invoicing = provider.NewSandboxProvider()
	} else {
		invoicing = provider.NewFacturanteProvider(provider.FacturanteConfig{
			BaseURL:     cfg.Facturante.BaseURL,
			HTTPTimeout: cfg.Facturante.HTTPTimeout,
		})
	}

	tokens := provider.NewTokenSource(provider.TokenSourceConfig{
		Endpoint:     cfg.Getnet.OAuthURL,
		ClientID:     cfg.Getnet.ClientID,
		ClientSecret: cfg.Getnet.ClientSecret,
		ExpiryMargin: cfg.Getnet.TokenExpiryMargin,
		HTTPTimeout:  cfg.Getnet.HTTPTimeout,
	})
	processors := provider.NewRegistry(provider.NewGetnetProcessor(provider.GetnetConfig{
		APIURL:      cfg.Getnet.APIURL,
		SellerID:    cfg.Getnet.SellerID,
		HTTPTimeout: cfg.Getnet.HTTPTimeout,
	}, tokens))

	invoices := service.NewInvoiceGenerator(txRepo, invoiceRepo, payloads, invoicing, m)
	creditNotes := service.NewCreditNoteEngine(txRepo, creditNoteRepo, payloads, invoicing, m)

	app := &application{
		cfg:      cfg,
		db:       db,
		registry: registry,
		metrics:  m,
		webhooks: service.NewWebhookIngress(
			txRepo,
			eventRepo,
			settingsRepo,
			payloads,
			security.NewVerifier(cfg.Webhook.AllowUnsigned),
			invoices,
			creditNotes,
			cfg.Webhook.Secret,
			m,
		),
		reconciler: service.NewReconciliationEngine(txRepo, settingsRepo, logRepo, processors, invoices, normalizer, cfg.Reconciliation, m),
		billing:    service.NewBillingService(txRepo, settingsRepo, invoices, creditNotes),
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return app, cleanup
}
