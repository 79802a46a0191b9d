package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vibast-solutions/ms-go-billing/app/service"
	"github.com/vibast-solutions/ms-go-billing/config"
)

var (
	workerMode bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Settle stale payment intents against the gateway",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"reconcile",
			func(cfg *config.Config) string { return cfg.Jobs.ReconcileSchedule },
			func(s *service.PaymentService, ctx context.Context) error {
				return s.RunReconcileBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using the configured schedule")
}

func runCommand(
	name string,
	scheduleResolver func(cfg *config.Config) string,
	fn func(s *service.PaymentService, ctx context.Context) error,
) {
	app, cleanup := mustCreateApplication()
	defer cleanup()

	if workerMode {
		runWorker(name, scheduleResolver(app.cfg), app.billing, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(app.billing, ctx) })
}

func runWorker(
	name string,
	schedule string,
	billing *service.PaymentService,
	fn func(s *service.PaymentService, ctx context.Context) error,
) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		runJob(name, func() error { return fn(billing, ctx) })
	}); err != nil {
		logrus.WithError(err).WithField("job", name).WithField("schedule", schedule).Fatal("invalid worker schedule")
	}

	runJob(name, func() error { return fn(billing, ctx) })
	c.Start()

	<-ctx.Done()
	logrus.WithField("job", name).Info("Worker shutdown requested")
	<-c.Stop().Done()
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
