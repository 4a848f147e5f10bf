// Package probe serves the standard gRPC health checking protocol
// (grpc.health.v1.Health) so orchestrators can probe notifyhub-server.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall ("")
// status.
const ServiceName = "notifyhub.Hub"

// ErrDisabled is returned by ListenAndServe when the port is 0.
var ErrDisabled = errors.New("probe: disabled")

// Probe is a gRPC server exposing only the health service.
type Probe struct {
	srv    *grpc.Server
	health *health.Server
}

// New creates a Probe reporting SERVING.
func New() *Probe {
	hs := health.NewServer()
	srv := grpc.NewServer(grpc.UnaryInterceptor(logUnary))
	healthpb.RegisterHealthServer(srv, hs)

	p := &Probe{srv: srv, health: hs}
	p.SetServing(true)
	return p
}

// SetServing flips the reported status for the overall server and ServiceName.
func (p *Probe) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	p.health.SetServingStatus("", st)
	p.health.SetServingStatus(ServiceName, st)
}

// ListenAndServe listens on port and serves until ctx is cancelled.
func (p *Probe) ListenAndServe(ctx context.Context, port int) error {
	if port == 0 {
		return ErrDisabled
	}
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("probe: listen :%d: %w", port, err)
	}
	return p.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled. On cancellation every service
// is marked NOT_SERVING before the server stops gracefully.
func (p *Probe) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- p.srv.Serve(lis) }()
	slog.Info("probe: gRPC health listening", "addr", lis.Addr().String())

	select {
	case <-ctx.Done():
		p.health.Shutdown()
		p.srv.GracefulStop()
		<-errCh
		slog.Info("probe: stopped")
		return nil
	case err := <-errCh:
		return fmt.Errorf("probe: serve: %w", err)
	}
}

func logUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		slog.Debug("probe: call failed", "method", info.FullMethod, "err", err)
	}
	return resp, err
}
