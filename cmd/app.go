package cmd

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-billing/app/eventcache"
	"github.com/vibast-solutions/ms-go-billing/app/metrics"
	"github.com/vibast-solutions/ms-go-billing/app/provider"
	"github.com/vibast-solutions/ms-go-billing/app/service"
	"github.com/vibast-solutions/ms-go-billing/app/telemetry"
	"github.com/vibast-solutions/ms-go-billing/config"

	_ "github.com/go-sql-driver/mysql"
)

type application struct {
	cfg        *config.Config
	db         *sql.DB
	registry   *prometheus.Registry
	billing    *service.PaymentService
	reconciler *service.WebhookReconciler
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

	shutdownTracing, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: cfg.App.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize tracing")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, "billing"),
	)
	m := metrics.NewMetrics(registry)

	gateway := provider.NewStripeGateway(provider.NewStripeClient(provider.StripeConfig{
		SecretKey:          cfg.Stripe.SecretKey,
		APIBaseURL:         cfg.Stripe.APIBaseURL,
		MaxNetworkRetries:  cfg.Stripe.MaxNetworkRetries,
		SignatureTolerance: cfg.Stripe.SignatureTolerance,
		HTTPTimeout:        cfg.Stripe.HTTPTimeout,
	}), cfg.Stripe.SignatureTolerance)

	var redisClient *redis.Client
	var cache eventcache.Store
	if cfg.Redis.URL != "" {
		redisClient, err = eventcache.NewRedisClient(context.Background(), cfg.Redis.URL)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to initialize redis")
		}
		cache = eventcache.NewRedisStore(redisClient, cfg.Redis.EventTTL)
	} else {
		cache = eventcache.NewMemoryStore(cfg.Billing.EventCacheSize, cfg.Redis.EventTTL)
	}

	if cfg.Stripe.WebhookSecret == "" {
		logrus.Warn("STRIPE_WEBHOOK_SECRET is empty; every webhook will be rejected")
	}

	ledger := service.NewSQLLedger(db)
	app := &application{
		cfg:        cfg,
		db:         db,
		registry:   registry,
		billing:    service.NewPaymentService(ledger, gateway, cfg.Billing, m),
		reconciler: service.NewWebhookReconciler(ledger, gateway, cache, cfg.Stripe.WebhookSecret, m),
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logrus.WithError(err).Warn("Failed to flush traces")
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close redis")
			}
		}
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return app, cleanup
}
