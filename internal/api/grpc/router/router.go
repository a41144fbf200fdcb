package router

import (
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/dtroode/secret-relay/internal/api/grpc/middleware"
	"github.com/dtroode/secret-relay/internal/logger"
)

// ServiceName is the name the relay reports its health under.
const ServiceName = "relay"

// Router builds the gRPC server of the relay: the standard health service
// and server reflection behind logging and panic recovery.
type Router struct {
	health *health.Server
	logger *logger.Logger
}

// New creates a Router reporting through health.
func New(health *health.Server, logger *logger.Logger) *Router {
	return &Router{
		health: health,
		logger: logger,
	}
}

// Register creates the gRPC server and registers all services on it.
func (r *Router) Register() *grpc.Server {
	logs := middleware.NewLogging(r.logger)
	recoveryOpt := middleware.RecoveryOption(r.logger)

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			logs.HandleGRPC,
			recovery.UnaryServerInterceptor(recoveryOpt),
		),
		grpc.ChainStreamInterceptor(
			logging.StreamServerInterceptor(middleware.InterceptorLogger(r.logger)),
			recovery.StreamServerInterceptor(recoveryOpt),
		),
	)

	healthpb.RegisterHealthServer(s, r.health)
	reflection.Register(s)

	return s
}
