package health

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServeGRPC serves the health service on addr until ctx is cancelled
func ServeGRPC(ctx context.Context, addr string, m *Manager, logger *zap.SugaredLogger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", addr, err)
	}
	return serveGRPC(ctx, lis, m, logger)
}

func serveGRPC(ctx context.Context, lis net.Listener, m *Manager, logger *zap.SugaredLogger) error {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, m.GRPCServer())

	errc := make(chan error, 1)
	go func() {
		logger.Infof("gRPC health service listening on %s", lis.Addr())
		errc <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("stopping gRPC health service")
		m.grpc.Shutdown()
		srv.Stop()
		return nil
	case err := <-errc:
		return fmt.Errorf("gRPC health service: %w", err)
	}
}
