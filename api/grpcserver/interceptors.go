package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Interceptors returns the server options for logging and panic
// recovery, in that order.
func Interceptors(log *zap.Logger) grpc.ServerOption {
	log = log.Named("grpc")
	return grpc.ChainUnaryInterceptor(loggingInterceptor(log), recoveryInterceptor(log))
}

func loggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			st, _ := status.FromError(err)
			fields = append(fields, zap.String("grpc_code", st.Code().String()), zap.Error(err))
			if st.Code() == codes.Internal {
				log.Error("call failed", fields...)
			} else {
				log.Info("call rejected", fields...)
			}
			return resp, err
		}
		log.Debug("call completed", fields...)
		return resp, nil
	}
}

func recoveryInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered", zap.String("method", info.FullMethod), zap.Any("panic", r), zap.Stack("stack"))
				err = status.Errorf(codes.Internal, "panic in %s", info.FullMethod)
			}
		}()
		return handler(ctx, req)
	}
}
