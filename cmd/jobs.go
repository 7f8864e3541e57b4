package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-billing-connector/app/service"
	"github.com/vibast-solutions/ms-go-billing-connector/config"
)

var (
	workerMode bool
	deepMode   bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Invoice payments reported by Getnet that were never billed",
	Long:  "Compare the Getnet transaction report of every active tenant with local transactions and invoice the missing ones. --deep covers the longer window.",
	Run: func(_ *cobra.Command, _ []string) {
		name := "reconcile"
		if deepMode {
			name = "reconcile_deep"
		}
		runCommand(
			name,
			func(cfg *config.Config) time.Duration {
				if deepMode {
					return cfg.Jobs.DeepReconcileInterval
				}
				return cfg.Jobs.ReconcileInterval
			},
			func(e *service.ReconciliationEngine, ctx context.Context) error {
				return e.RunReconcileBatch(ctx, deepMode)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().BoolVar(&deepMode, "deep", false, "Use the deep reconciliation window")

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(e *service.ReconciliationEngine, ctx context.Context) error,
) {
	app, cleanup := mustCreateApplication()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(app.cfg), app.reconciler, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(app.reconciler, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	engine *service.ReconciliationEngine,
	fn func(e *service.ReconciliationEngine, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(engine, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(engine, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
