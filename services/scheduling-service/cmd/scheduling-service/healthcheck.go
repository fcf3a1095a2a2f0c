package main

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicops/libs/config"
	"github.com/md-rashed-zaman/clinicops/libs/grpcx"
	"github.com/md-rashed-zaman/clinicops/services/scheduling-service/internal/grpcserver"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// runHealthcheck asks the local gRPC health service whether the scheduling
// service is SERVING. It backs `scheduling-service healthcheck`, which container
// health checks run inside the image.
func runHealthcheck(ctx context.Context) error {
	port, err := config.Port("GRPC_PORT", "9095")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpcx.Dial(ctx, "127.0.0.1:"+port, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return err
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(grpcx.WithRequestID(ctx, "healthcheck"), &healthpb.HealthCheckRequest{Service: grpcserver.ServiceName})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("service status %s", resp.GetStatus())
	}
	return nil
}
