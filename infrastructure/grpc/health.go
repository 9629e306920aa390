package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name probes ask about. The empty name covers the whole server.
const ServiceName = "chat.delivery"

// AdminServer exposes the standard gRPC health service on the admin port.
type AdminServer struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

func NewAdminServer(log *slog.Logger) *AdminServer {
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(sdkgrpc.UnaryLoggingInterceptor(log)))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &AdminServer{log: log, server: server, health: healthServer}
}

// SetServing flips the reported status of both the server and the service.
func (a *AdminServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	a.health.SetServingStatus("", status)
	a.health.SetServingStatus(ServiceName, status)
}

// Serve blocks until the listener fails or the server is stopped.
func (a *AdminServer) Serve(listener net.Listener) error {
	a.log.Info("Starting gRPC admin server", "address", listener.Addr().String())
	if err := a.server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("gRPC admin server error: %w", err)
	}
	return nil
}

// Stop reports NOT_SERVING, then lets in-flight probes finish unless ctx expires first.
func (a *AdminServer) Stop(ctx context.Context) {
	a.health.Shutdown()
	done := make(chan struct{})
	go func() {
		a.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.server.Stop()
	}
}
