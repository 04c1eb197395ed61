package clients

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/chd000125/Study/internal/svcauth"
)

type Clients struct {
	IdentityConn   *grpc.ClientConn
	IdentityHealth healthpb.HealthClient
}

func New(ctx context.Context, identityAddr, serviceToken string, timeout time.Duration) (*Clients, error) {
	identityConn, err := dial(ctx, identityAddr, serviceToken, timeout)
	if err != nil {
		return nil, err
	}
	return &Clients{
		IdentityConn:   identityConn,
		IdentityHealth: healthpb.NewHealthClient(identityConn),
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.IdentityConn != nil {
		_ = c.IdentityConn.Close()
	}
}

func dial(ctx context.Context, addr, serviceToken string, timeout time.Duration) (*grpc.ClientConn, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return grpc.DialContext(ctx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(svcauth.UnaryClientInterceptor(serviceToken)),
	)
}
