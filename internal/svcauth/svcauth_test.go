package svcauth

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestClientTokenSatisfiesServer(t *testing.T) {
	server, err := UnaryServerInterceptor("s3cret")
	if err != nil {
		t.Fatalf("interceptor error: %v", err)
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil }

	// Pass the client's outgoing metadata to the server as incoming.
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		_, err := server(metadata.NewIncomingContext(ctx, md), req, &grpc.UnaryServerInfo{FullMethod: method}, handler)
		return err
	}

	if err := UnaryClientInterceptor("s3cret")(context.Background(), "/svc/M", nil, nil, nil, invoker); err != nil {
		t.Fatalf("expected call to pass, got %v", err)
	}
	err = UnaryClientInterceptor("wrong")(context.Background(), "/svc/M", nil, nil, nil, invoker)
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
	err = UnaryClientInterceptor("")(context.Background(), "/svc/M", nil, nil, nil, invoker)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}

func TestServerRequiresToken(t *testing.T) {
	if _, err := UnaryServerInterceptor(""); err != ErrTokenRequired {
		t.Fatalf("expected ErrTokenRequired, got %v", err)
	}
}
