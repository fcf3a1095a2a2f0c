package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/md-rashed-zaman/clinicops/libs/config"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/grpcserver"
)

func startGrpcServer(ctx context.Context, logger *slog.Logger) error {
	port, err := config.Port("GRPC_PORT", "9095")
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv := grpcserver.New(logger)
	go func() {
		if err := srv.Serve(ctx, lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
	return nil
}
