// Package probe keeps the gRPC health status in line with the table store.
package probe

import (
	"context"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dtroode/sheetkeeper/internal/logger"
	"github.com/dtroode/sheetkeeper/internal/model"
)

// ServiceName is the health service name reported for the users service.
const ServiceName = "sheetkeeper.Users"

// StatusSetter is implemented by *health.Server.
type StatusSetter interface {
	SetServingStatus(service string, servingStatus healthpb.HealthCheckResponse_ServingStatus)
}

// Prober periodically checks the table store and publishes the result for
// both the overall server ("") and ServiceName.
type Prober struct {
	checker  model.HealthChecker
	status   StatusSetter
	interval time.Duration
	logger   *logger.Logger
}

func NewProber(checker model.HealthChecker, status StatusSetter, interval time.Duration, logger *logger.Logger) *Prober {
	return &Prober{
		checker:  checker,
		status:   status,
		interval: interval,
		logger:   logger,
	}
}

// Run probes immediately and then on every tick until ctx is done, at which
// point the service is marked as not serving.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		last = p.probe(ctx, last)

		select {
		case <-ctx.Done():
			p.set(healthpb.HealthCheckResponse_NOT_SERVING)
			return
		case <-ticker.C:
		}
	}
}

func (p *Prober) probe(ctx context.Context, last healthpb.HealthCheckResponse_ServingStatus) healthpb.HealthCheckResponse_ServingStatus {
	next := healthpb.HealthCheckResponse_SERVING
	err := p.checker.Check(ctx)
	if err != nil {
		next = healthpb.HealthCheckResponse_NOT_SERVING
	}

	if next != last {
		if err != nil {
			p.logger.Warn("Health prober: table store unhealthy", "error", err.Error())
		} else {
			p.logger.Info("Health prober: table store healthy")
		}
	}

	p.set(next)
	return next
}

func (p *Prober) set(s healthpb.HealthCheckResponse_ServingStatus) {
	p.status.SetServingStatus("", s)
	p.status.SetServingStatus(ServiceName, s)
}
