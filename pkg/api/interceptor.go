package api

import (
	"context"
	"strings"

	"github.com/cuemby/cadence/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ReadOnlyInterceptor creates a gRPC unary interceptor that only allows
// read-only operations. The gRPC surface is an inspection endpoint; nothing
// reachable through it may change the ledger.
func ReadOnlyInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if !isReadOnlyMethod(info.FullMethod) {
			return nil, status.Errorf(codes.PermissionDenied, "method %s is not read-only", info.FullMethod)
		}
		return handler(ctx, req)
	}
}

// RecoveryInterceptor turns a handler panic into an Internal error
func RecoveryInterceptor() grpc.UnaryServerInterceptor {
	logger := log.WithComponent("grpc")
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Str("method", info.FullMethod).Interface("panic", r).Msg("gRPC handler panicked")
				err = status.Errorf(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// isReadOnlyMethod checks if a gRPC method is read-only
func isReadOnlyMethod(method string) bool {
	// Extract method name from full path (e.g., "/grpc.health.v1.Health/Check" -> "Check")
	parts := strings.Split(method, "/")
	if len(parts) < 2 {
		return false
	}
	methodName := parts[len(parts)-1]

	readOnlyPrefixes := []string{
		"Check",
		"Watch",
		"List",
		"Get",
	}

	for _, prefix := range readOnlyPrefixes {
		if strings.HasPrefix(methodName, prefix) {
			return true
		}
	}

	// Default: block
	return false
}
