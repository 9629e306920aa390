package grpc

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestAdminServer_Reports_Serving(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	admin := NewAdminServer(logs.GetLoggerFromLevel(slog.LevelDebug))
	served := make(chan error, 1)
	go func() { served <- admin.Serve(listener) }()

	conn, err := grpc.NewClient(listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	req.NoError(err)
	defer func() { _ = conn.Close() }()
	client := healthpb.NewHealthClient(conn)

	// Given a server still booting
	response, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, response.Status)

	// When it is ready
	admin.SetServing(true)

	// Then probes see it serving
	response, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_SERVING, response.Status)

	admin.Stop(ctx)
	req.NoError(<-served)
}
