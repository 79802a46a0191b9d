package grpc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vibast-solutions/ms-go-billing/app/factory"
)

const defaultCheckInterval = 15 * time.Second

type pinger interface {
	PingContext(ctx context.Context) error
}

// HealthReporter publishes the standard gRPC health status. The process is SERVING
// while the ledger database answers pings.
type HealthReporter struct {
	health   *health.Server
	db       pinger
	services []string
	interval time.Duration
	logger   logrus.FieldLogger
}

func NewHealthReporter(db pinger, serviceName string, interval time.Duration) *HealthReporter {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &HealthReporter{
		health:   health.NewServer(),
		db:       db,
		services: []string{"", serviceName},
		interval: interval,
		logger:   factory.NewModuleLogger("grpc-health"),
	}
}

func (r *HealthReporter) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, r.health)
}

// Check pings the database once and updates every reported service.
func (r *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, r.interval)
	defer cancel()

	servingStatus := healthpb.HealthCheckResponse_SERVING
	if err := r.db.PingContext(ctx); err != nil {
		r.logger.WithError(err).Warn("Ledger ping failed")
		servingStatus = healthpb.HealthCheckResponse_NOT_SERVING
	}
	for _, service := range r.services {
		r.health.SetServingStatus(service, servingStatus)
	}
	return servingStatus
}

// Run checks on every interval until ctx is done, then marks all services NOT_SERVING.
func (r *HealthReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			r.health.Shutdown()
			return
		case <-ticker.C:
			r.Check(ctx)
		}
	}
}
