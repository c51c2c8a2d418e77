package store

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/oshokin/silent-alarm/internal/logger"
)

// UnaryLoggingInterceptor logs method, duration and status code of every unary call.
func UnaryLoggingInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	started := time.Now()
	resp, err := handler(ctx, req)

	logger.DebugKV(ctx, "gRPC call finished",
		"method", info.FullMethod,
		"duration", time.Since(started),
		"code", status.Code(err).String())

	return resp, err
}

// StreamLoggingInterceptor logs method, duration and status code of every stream.
func StreamLoggingInterceptor(
	srv any,
	stream grpc.ServerStream,
	info *grpc.StreamServerInfo,
	handler grpc.StreamHandler,
) error {
	started := time.Now()
	err := handler(srv, stream)

	logger.DebugKV(stream.Context(), "gRPC stream finished",
		"method", info.FullMethod,
		"duration", time.Since(started),
		"code", status.Code(err).String())

	return err
}
