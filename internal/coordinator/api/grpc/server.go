package grpc

import (
	"errors"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/config"
	"github.com/MichaelOwenDyer/job-dispatch-service/internal/shared/logging"
)

// ServiceName is the health service name that tracks queue storage.
const ServiceName = "jobdispatch"

// Server exposes the standard gRPC health service so orchestrators can probe
// the dispatcher. The status of ServiceName follows queue storage health.
type Server struct {
	addr       string
	grpcServer *grpc.Server
	health     *health.Server
	logger     logging.Logger
}

func NewServer(cfg config.GRPCConfig, logger logging.Logger) *Server {
	grpcServer := grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             cfg.KeepaliveMinTime,
			PermitWithoutStream: true,
		}),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	if cfg.EnableReflection {
		reflection.Register(grpcServer)
	}

	return &Server{
		addr:       cfg.Addr,
		grpcServer: grpcServer,
		health:     healthServer,
		logger:     logger,
	}
}

// SetServing flips the health status of ServiceName.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !serving {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC server listening", "addr", lis.Addr().String())
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
