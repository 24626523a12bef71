package health

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestReportAndQuery(t *testing.T) {
	m := NewManager()
	assert.True(t, m.Healthy(), "no components means nothing is failing")

	m.Report("datadog", "upload ok", nil)
	assert.True(t, m.IsHealthy("datadog", time.Minute))
	assert.True(t, m.Healthy())

	m.Report("ingest.udp", "listener failed", errors.New("address in use"))
	assert.False(t, m.Healthy())

	s, ok := m.Get("ingest.udp")
	require.True(t, ok)
	assert.Equal(t, StatusUnhealthy, s.Status)
	assert.Equal(t, "address in use", s.Error)

	assert.Len(t, m.All(), 2)
	assert.False(t, m.IsHealthy("missing", time.Minute))
}

func TestIsHealthyExpires(t *testing.T) {
	m := NewManager()
	now := time.Unix(1700000000, 0)
	m.now = func() time.Time { return now }

	m.Report("datadog", "ok", nil)
	now = now.Add(10 * time.Minute)
	assert.False(t, m.IsHealthy("datadog", 5*time.Minute))
}

func TestGRPCHealthService(t *testing.T) {
	m := NewManager()
	m.Report("datadog", "ok", nil)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveGRPC(ctx, lis, m, zap.NewNop().Sugar()) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer ccancel()
		resp, err := client.Check(cctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check("datadog"))

	m.Report("datadog", "upload failed", errors.New("boom"))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check("datadog"))

	cancel()
	require.NoError(t, <-done)
}
