package clients

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/chd000125/Study/internal/svcauth"
)

func startHealthServer(t *testing.T, token string) string {
	t.Helper()
	interceptor, err := svcauth.UnaryServerInterceptor(token)
	if err != nil {
		t.Fatalf("interceptor error: %v", err)
	}
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	server := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	hs := health.NewServer()
	hs.SetServingStatus("identity", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)
	return lis.Addr().String()
}

func TestIdentityHealthCarriesServiceToken(t *testing.T) {
	addr := startHealthServer(t, "svc-token")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := New(ctx, addr, "svc-token", time.Second)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer c.Close()

	resp, err := c.IdentityHealth.Check(ctx, &healthpb.HealthCheckRequest{Service: "identity"})
	if err != nil {
		t.Fatalf("check error: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", resp.GetStatus())
	}
}

func TestIdentityHealthWithWrongToken(t *testing.T) {
	addr := startHealthServer(t, "svc-token")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := New(ctx, addr, "other", time.Second)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer c.Close()

	_, err = c.IdentityHealth.Check(ctx, &healthpb.HealthCheckRequest{Service: "identity"})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}
