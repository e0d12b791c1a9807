package server

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// AdminServer exposes the standard gRPC health-checking protocol plus
// reflection, so an operator (or provctl status) can probe a running
// provd without knowing its HTTP routes. It carries no provenance
// semantics of its own — it is pure operability surface (SPEC_FULL.md
// Domain Stack C.3), the server-side counterpart of the health *client*
// pattern in internal/server/ready/grpc.go.
type AdminServer struct {
	grpcServer *grpc.Server
	health     *health.Server
}

// NewAdminServer returns an AdminServer reporting SERVING for the
// overall system as soon as it's constructed. Call SetServing(false) to
// report NOT_SERVING (e.g. during shutdown).
func NewAdminServer() *AdminServer {
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, h)
	reflection.Register(gs)

	return &AdminServer{grpcServer: gs, health: h}
}

// SetServing updates the overall health status.
func (a *AdminServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	a.health.SetServingStatus("", status)
}

// Serve blocks accepting connections on lis until ctx is cancelled or
// Serve returns an error. On cancellation it gracefully stops the
// server.
func (a *AdminServer) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.grpcServer.Serve(lis) }()

	select {
	case <-ctx.Done():
		a.grpcServer.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}
