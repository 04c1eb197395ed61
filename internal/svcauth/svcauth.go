// Package svcauth carries the shared service token on internal gRPC calls.
// Servers verify it with UnaryServerInterceptor; clients attach it with
// UnaryClientInterceptor.
package svcauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Header is the metadata key holding the service token.
const Header = "x-service-token"

var ErrTokenRequired = errors.New("service auth token required")

// UnaryServerInterceptor rejects calls without the expected token:
// Unauthenticated when absent, PermissionDenied when wrong.
func UnaryServerInterceptor(expected string) (grpc.UnaryServerInterceptor, error) {
	if expected == "" {
		return nil, ErrTokenRequired
	}
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		token := fromIncoming(ctx)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing_service_token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			return nil, status.Error(codes.PermissionDenied, "invalid_service_token")
		}
		return handler(ctx, req)
	}, nil
}

// UnaryClientInterceptor attaches token to every outgoing call. An empty
// token attaches nothing.
func UnaryClientInterceptor(token string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if token != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, Header, token)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func fromIncoming(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(Header)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
