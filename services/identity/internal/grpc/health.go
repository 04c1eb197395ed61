package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/chd000125/Study/internal/svcauth"
)

// ServiceName is the health-check name the gateway probes.
const ServiceName = "identity"

type Probe func(ctx context.Context) error

// NewServer builds the internal gRPC server with the health service behind
// the service-token interceptor.
func NewServer(serviceToken string) (*grpc.Server, *health.Server, error) {
	interceptor, err := svcauth.UnaryServerInterceptor(serviceToken)
	if err != nil {
		return nil, nil, err
	}
	server := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	return server, hs, nil
}

// WatchDependencies runs the probes every interval and reports SERVING only
// while all of them pass. It returns when ctx is done.
func WatchDependencies(ctx context.Context, hs *health.Server, interval time.Duration, logger *slog.Logger, probes ...Probe) {
	check := func() {
		status := healthpb.HealthCheckResponse_SERVING
		for _, probe := range probes {
			probeCtx, cancel := context.WithTimeout(ctx, interval)
			err := probe(probeCtx)
			cancel()
			if err != nil {
				logger.WarnContext(ctx, "dependency probe failed", "error", err)
				status = healthpb.HealthCheckResponse_NOT_SERVING
				break
			}
		}
		hs.SetServingStatus(ServiceName, status)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			check()
		}
	}
}
