package grpcapi_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"

	grpcapi "tilt-relay/internal/api/grpc"
	"tilt-relay/internal/domain"
)

const bufSize = 1024 * 1024

func startServer(t *testing.T) (*grpcapi.Server, healthpb.HealthClient) {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	server, err := grpcapi.NewServer(nil, grpcapi.Options{
		Listener:   listener,
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return server, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, "x-correlation-id", "test-check")

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthOverallServing(t *testing.T) {
	_, client := startServer(t)

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))
}

func TestHealthUplinkFollowsConnection(t *testing.T) {
	server, client := startServer(t)

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, grpcapi.UplinkService))

	server.ObserveConnection(domain.ConnectionState{Kind: domain.Connected})
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, grpcapi.UplinkService))

	server.ObserveConnection(domain.ConnectionState{Kind: domain.Backoff, Backoff: time.Second})
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, grpcapi.UplinkService))
}

func TestHealthUnknownService(t *testing.T) {
	_, client := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "unknown"})

	assert.Error(t, err)
}

func TestNewServerRequiresAddress(t *testing.T) {
	_, err := grpcapi.NewServer(nil, grpcapi.Options{Registerer: prometheus.NewRegistry()})

	assert.Error(t, err)
}
