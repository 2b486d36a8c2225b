// Package grpc serves the standard gRPC health protocol for the scheduling
// engine so orchestrators can probe it next to the HTTP API.
package grpc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health key reported for the appointments engine. The
// empty name reports overall server health.
const ServiceName = "leadcal.appointments.v1"

type Probe func(ctx context.Context) error

// HealthReporter keeps the registered health server in step with a readiness
// probe.
type HealthReporter struct {
	srv      *health.Server
	probe    Probe
	interval time.Duration
	log      *slog.Logger

	mu   sync.Mutex
	last healthpb.HealthCheckResponse_ServingStatus
}

func RegisterHealth(s grpc.ServiceRegistrar, probe Probe, interval time.Duration, log *slog.Logger) *HealthReporter {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	srv := health.NewServer()
	healthpb.RegisterHealthServer(s, srv)

	r := &HealthReporter{
		srv:      srv,
		probe:    probe,
		interval: interval,
		log:      log.With(slog.String("component", "grpc.health")),
		last:     healthpb.HealthCheckResponse_UNKNOWN,
	}
	r.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return r
}

// Run probes immediately and then on every interval until ctx is done.
func (r *HealthReporter) Run(ctx context.Context) {
	r.Probe(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Probe(ctx)
		}
	}
}

// Probe runs the readiness probe once and publishes the result.
func (r *HealthReporter) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err := r.probe(pctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	status := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		if r.last != status {
			r.log.Warn("readiness probe failed", slog.Any("err", err))
		}
	} else if r.last != status {
		r.log.Info("readiness probe ok")
	}
	r.set(status)
	return status
}

// Shutdown marks everything NOT_SERVING and rejects later updates.
func (r *HealthReporter) Shutdown() {
	r.srv.Shutdown()
}

// set requires r.mu unless the reporter is not yet shared.
func (r *HealthReporter) set(status healthpb.HealthCheckResponse_ServingStatus) {
	r.last = status
	r.srv.SetServingStatus("", status)
	r.srv.SetServingStatus(ServiceName, status)
}
