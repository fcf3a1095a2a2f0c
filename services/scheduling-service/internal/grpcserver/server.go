// Package grpcserver exposes the gRPC health service of the scheduling engine.
package grpcserver

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/md-rashed-zaman/clinicops/libs/grpcx"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "clinicops.scheduling.v1"

type Server struct {
	srv    *grpc.Server
	health *health.Server
	logger *slog.Logger
}

func New(logger *slog.Logger) *Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			grpcx.UnaryServerRequestIDInterceptor(),
			grpcx.UnaryServerLoggingInterceptor(logger),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return &Server{srv: srv, health: hs, logger: logger}
}

// Serve blocks until ctx is cancelled, then reports NOT_SERVING and stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.srv.GracefulStop()
	}()

	s.logger.Info("grpc server starting", "addr", lis.Addr().String())
	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
