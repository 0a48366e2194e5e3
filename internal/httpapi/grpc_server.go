package httpapi

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"instituteos.app/internal/obs"
)

// HealthServer answers grpc.health.v1.Health/Check from the readiness check.
type HealthServer struct {
	healthpb.UnimplementedHealthServer

	readiness ReadinessChecker
	log       *zap.Logger
}

// NewHealthServer creates the gRPC health service.
func NewHealthServer(r ReadinessChecker, log *zap.Logger) *HealthServer {
	if r == nil {
		r = ReadyCheck{}
	}
	if log == nil {
		log = obs.Logger()
	}
	return &HealthServer{readiness: r, log: log}
}

// Check reports SERVING when dependencies are reachable. Only the empty
// service name and the API's own name are known.
func (s *HealthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	switch req.GetService() {
	case "", serviceName:
	default:
		return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
	}
	if err := s.readiness.Check(ctx); err != nil {
		obs.SetReady(false)
		s.log.Warn("readiness check failed", zap.Error(err))
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	obs.SetReady(true)
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
