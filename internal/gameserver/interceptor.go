package gameserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/cory-johannsen/goldarena/internal/gameserver/arenav1"
)

// UnaryLogging logs every unary call with its duration and status code.
func UnaryLogging(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", status.Code(err).String()),
		}
		if err != nil {
			logger.Info("rpc failed", append(fields, zap.Error(err))...)
			return resp, err
		}
		logger.Debug("rpc completed", fields...)
		return resp, nil
	}
}

// StreamLogging logs the end of every streaming call.
func StreamLogging(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logger.Info("stream closed",
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", status.Code(err).String()),
		)
		return err
	}
}

// NewServer creates a gRPC server with ArenaService and the standard health
// service registered and logging interceptors installed.
func NewServer(svc *ArenaService, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(UnaryLogging(logger)),
		grpc.ChainStreamInterceptor(StreamLogging(logger)),
	)
	s := grpc.NewServer(opts...)
	arenav1.Register(s, svc)
	hs := health.NewServer()
	hs.SetServingStatus(arenav1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s
}
