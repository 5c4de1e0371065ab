package api

import (
	"fmt"
	"net"

	"github.com/cuemby/cadence/pkg/log"
	"github.com/cuemby/cadence/pkg/metrics"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServicePrefix prefixes component names in the gRPC health service
const ServicePrefix = "cadence."

// GRPCServer exposes the standard gRPC health service. The overall status
// ("") follows readiness; each registered component is served as
// "cadence.<component>".
type GRPCServer struct {
	grpc     *grpc.Server
	health   *health.Server
	registry *metrics.Registry
	logger   zerolog.Logger
}

// NewGRPCServer creates the gRPC server with every service NOT_SERVING
// until the first SyncHealth from reg
func NewGRPCServer(reg *metrics.Registry) *GRPCServer {
	s := &GRPCServer{
		grpc: grpc.NewServer(
			grpc.ChainUnaryInterceptor(RecoveryInterceptor(), ReadOnlyInterceptor()),
		),
		health:   health.NewServer(),
		registry: reg,
		logger:   log.WithComponent("grpc"),
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// SyncHealth copies the component health registry into the health service
func (s *GRPCServer) SyncHealth() {
	overall := healthpb.HealthCheckResponse_SERVING
	if s.registry.Readiness().Status != metrics.StatusReady {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", overall)

	for _, c := range s.registry.Components() {
		status := healthpb.HealthCheckResponse_SERVING
		if !c.Healthy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		s.health.SetServingStatus(ServicePrefix+c.Name, status)
	}
}

// Serve accepts connections on lis until Stop
func (s *GRPCServer) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
	return s.grpc.Serve(lis)
}

// Start listens on addr and serves until Stop
func (s *GRPCServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Stop marks every service NOT_SERVING and gracefully stops the server
func (s *GRPCServer) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
