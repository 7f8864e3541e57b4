package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing-connector/app/entity"
	"github.com/vibast-solutions/ms-go-billing-connector/app/factory"
	"github.com/vibast-solutions/ms-go-billing-connector/app/metrics"
	"github.com/vibast-solutions/ms-go-billing-connector/app/provider"
	"github.com/vibast-solutions/ms-go-billing-connector/app/transformer"
	"github.com/vibast-solutions/ms-go-billing-connector/config"
)

type ReconcileRequest interface {
	GetTenantId() string
	GetFrom() time.Time
	GetTo() time.Time
}

type processorRegistry interface {
	Get(code string) (provider.PaymentProcessor, error)
}

type ReconcileResult struct {
	TenantID  uuid.UUID
	From      time.Time
	To        time.Time
	Reported  int
	Orphans   int
	Processed int
	Errors    map[string]string
	Partial   bool
}

func (r *ReconcileResult) SuccessRate() decimal.Decimal {
	if r.Orphans == 0 {
		return decimal.NewFromInt(100)
	}
	return decimal.NewFromInt(int64(r.Processed)).
		Div(decimal.NewFromInt(int64(r.Orphans))).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}

type ReconciliationEngine struct {
	txRepo       transactionRepository
	settingsRepo billingSettingsRepository
	logRepo      reconciliationLogRepository
	processors   processorRegistry
	invoices     *InvoiceGenerator
	normalizer   *transformer.AmountNormalizer
	cfg          config.ReconciliationConfig
	metrics      *metrics.Metrics
	logger       logrus.FieldLogger
	now          func() time.Time
}

func NewReconciliationEngine(
	txRepo transactionRepository,
	settingsRepo billingSettingsRepository,
	logRepo reconciliationLogRepository,
	processors processorRegistry,
	invoices *InvoiceGenerator,
	normalizer *transformer.AmountNormalizer,
	cfg config.ReconciliationConfig,
	m *metrics.Metrics,
) *ReconciliationEngine {
	return &ReconciliationEngine{
		txRepo:       txRepo,
		settingsRepo: settingsRepo,
		logRepo:      logRepo,
		processors:   processors,
		invoices:     invoices,
		normalizer:   normalizer,
		cfg:          cfg,
		metrics:      m,
		logger:       factory.NewModuleLogger("reconciliation"),
		now:          time.Now,
	}
}

func (e *ReconciliationEngine) ReconcileTenant(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error) {
	tenantID, err := parseTenantID(req.GetTenantId())
	if err != nil {
		return nil, err
	}
	from, to := req.GetFrom(), req.GetTo()
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, fmt.Errorf("%w: invalid reconciliation window", ErrInvalidRequest)
	}
	return e.Reconcile(ctx, tenantID, from, to)
}

// Reconcile invoices every transaction the processor reports as paid in
// [from, to] that is not billed locally. Each orphan is handled on its own;
// failures are collected in the result. When ctx ends mid-run the result is
// marked partial and the remaining orphans are left for the next run.
func (e *ReconciliationEngine) Reconcile(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*ReconcileResult, error) {
	started := e.now()
	settings, err := findActiveSettings(ctx, e.settingsRepo, tenantID)
	if err != nil {
		return nil, err
	}

	processor, err := e.processors.Get(provider.GetnetCode)
	if err != nil {
		return nil, ErrProviderUnsupported
	}

	logger := e.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID.String(),
		"from":      from.Format(time.RFC3339),
		"to":        to.Format(time.RFC3339),
	})

	reported, err := processor.ListPaidTransactions(ctx, tenantID.String(), from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch processor report: %w", err)
	}
	reported = lo.UniqBy(lo.Filter(reported, func(item provider.ReportedTransaction, _ int) bool {
		return item.ID != "" && (item.Status == "" || transformer.MapStatus(item.Status) == entity.TransactionStatusPaid)
	}), func(item provider.ReportedTransaction) string {
		return item.ID
	})

	local, err := e.txRepo.ListByExternalIDs(ctx, tenantID, lo.Map(reported, func(item provider.ReportedTransaction, _ int) string {
		return item.ID
	}))
	if err != nil {
		return nil, err
	}

	orphans := lo.Filter(reported, func(item provider.ReportedTransaction, _ int) bool {
		tx, ok := local[item.ID]
		if !ok {
			return true
		}
		return !tx.IsBilled() && tx.Status != entity.TransactionStatusRefunded
	})

	result := &ReconcileResult{
		TenantID: tenantID,
		From:     from,
		To:       to,
		Reported: len(reported),
		Orphans:  len(orphans),
		Errors:   map[string]string{},
	}

	for _, orphan := range orphans {
		if ctx.Err() != nil {
			result.Partial = true
			break
		}
		if err := e.reconcileOne(ctx, settings, orphan); err != nil {
			result.Errors[orphan.ID] = err.Error()
			logger.WithError(err).WithField("external_id", orphan.ID).Warn("orphan_reconciliation_failed")
			continue
		}
		result.Processed++
	}

	elapsed := e.now().Sub(started)
	e.metrics.Reconciliation(tenantID.String(), result.Orphans, len(result.Errors), elapsed, result.Partial)
	e.writeLog(ctx, result)

	logger.WithFields(logrus.Fields{
		"reported":  result.Reported,
		"orphans":   result.Orphans,
		"processed": result.Processed,
		"errors":    len(result.Errors),
		"partial":   result.Partial,
		"latency":   elapsed.String(),
	}).Info("reconciliation_completed")

	return result, nil
}

func (e *ReconciliationEngine) reconcileOne(ctx context.Context, settings *entity.BillingSettings, orphan provider.ReportedTransaction) error {
	conversion := e.normalizer.Conversion(orphan.Amount, orphan.Currency, false)
	now := e.now().UTC()
	capturedAt := orphan.Timestamp
	if capturedAt.IsZero() {
		capturedAt = now
	}

	stored, err := e.txRepo.Upsert(ctx, &entity.Transaction{
		TenantID:      settings.TenantID,
		ExternalID:    orphan.ID,
		Amount:        conversion.Apply(orphan.Amount),
		Currency:      conversion.Currency,
		Status:        entity.TransactionStatusPaid,
		BillingStatus: entity.BillingStatusNotApplicable,
		CapturedAt:    &capturedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return err
	}

	if _, err := e.invoices.Generate(ctx, stored, settings, nil); err != nil {
		if !errors.Is(err, ErrAlreadyBilled) {
			if recordErr := recordBillingFailure(ctx, e.txRepo, stored, err, e.now().UTC()); recordErr != nil {
				return keepFirstErr(err, recordErr)
			}
			return err
		}
	}

	stored.Reconciled = true
	stored.UpdatedAt = e.now().UTC()
	return e.txRepo.Update(ctx, stored)
}

func (e *ReconciliationEngine) writeLog(ctx context.Context, result *ReconcileResult) {
	details, err := json.Marshal(map[string]interface{}{
		"reported": result.Reported,
		"errors":   result.Errors,
	})
	if err != nil {
		details = []byte("{}")
	}

	// A cancelled run still gets its log row.
	writeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}

	if err := e.logRepo.Create(writeCtx, &entity.ReconciliationLog{
		TenantID:       result.TenantID,
		WindowStart:    result.From,
		WindowEnd:      result.To,
		ProcessedCount: result.Processed,
		ErrorCount:     len(result.Errors),
		OrphanCount:    result.Orphans,
		SuccessRate:    result.SuccessRate(),
		Partial:        result.Partial,
		DetailsJSON:    string(details),
		CreatedAt:      e.now().UTC(),
	}); err != nil {
		e.logger.WithError(err).WithField("tenant_id", result.TenantID.String()).Error("failed to write reconciliation log")
	}
}

// RunReconcileBatch reconciles every active tenant over the configured window
// ending yesterday. deep selects the longer window.
func (e *ReconciliationEngine) RunReconcileBatch(ctx context.Context, deep bool) error {
	days := e.cfg.DaysToCheck
	if deep {
		days = e.cfg.DeepDays
	}
	if days <= 0 {
		days = 1
	}

	today := e.now().UTC().Truncate(24 * time.Hour)
	to := today.Add(-time.Nanosecond)
	from := today.AddDate(0, 0, -days)

	tenants, err := e.settingsRepo.ListActive(ctx)
	if err != nil {
		return err
	}

	var firstErr error
	for _, settings := range tenants {
		if settings == nil {
			continue
		}
		if ctx.Err() != nil {
			return keepFirstErr(firstErr, ctx.Err())
		}

		result, err := e.reconcileWithTimeout(ctx, settings.TenantID, from, to)
		if err != nil {
			e.logger.WithError(err).WithField("tenant_id", settings.TenantID.String()).Error("reconciliation_failed")
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if len(result.Errors) > 0 {
			failed := lo.Keys(result.Errors)
			sort.Strings(failed)
			firstErr = keepFirstErr(firstErr, fmt.Errorf("tenant %s: %d orphans failed: %s",
				settings.TenantID, len(failed), strings.Join(failed, ",")))
		}
	}

	return firstErr
}

func (e *ReconciliationEngine) reconcileWithTimeout(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*ReconcileResult, error) {
	if e.cfg.Timeout <= 0 {
		return e.Reconcile(ctx, tenantID, from, to)
	}
	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	return e.Reconcile(runCtx, tenantID, from, to)
}
