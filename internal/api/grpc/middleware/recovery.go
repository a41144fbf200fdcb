package middleware

import (
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dtroode/secret-relay/internal/logger"
)

// RecoveryOption turns handler panics into codes.Internal and logs them.
func RecoveryOption(l *logger.Logger) recovery.Option {
	return recovery.WithRecoveryHandler(func(p any) error {
		l.Error("gRPC handler panicked", "panic", p)
		return status.Error(codes.Internal, "internal error")
	})
}
