package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc/health"

	grpcRouter "github.com/dtroode/secret-relay/internal/api/grpc/router"
	grpcServer "github.com/dtroode/secret-relay/internal/api/grpc/server"
	"github.com/dtroode/secret-relay/internal/api/http/handler"
	"github.com/dtroode/secret-relay/internal/api/http/middleware"
	httpRouter "github.com/dtroode/secret-relay/internal/api/http/router"
	httpServer "github.com/dtroode/secret-relay/internal/api/http/server"
	"github.com/dtroode/secret-relay/internal/config"
	"github.com/dtroode/secret-relay/internal/crypto"
	"github.com/dtroode/secret-relay/internal/logger"
	"github.com/dtroode/secret-relay/internal/model"
	"github.com/dtroode/secret-relay/internal/server"
	"github.com/dtroode/secret-relay/internal/service"
	"github.com/dtroode/secret-relay/internal/store"
	"github.com/dtroode/secret-relay/internal/store/memory"
	"github.com/dtroode/secret-relay/internal/store/postgres"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

// messageStore is a store backend together with its optional capabilities.
type messageStore struct {
	model.MessageStore
	sweepable store.Sweepable
	pingers   []handler.Pinger
	close     func() error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger := logger.New(cfg.LogLevel, cfg.LogFormat)

	var kdfOpts []crypto.KeyDeriverOption
	if cfg.Relay.CacheKeys {
		kdfOpts = append(kdfOpts, crypto.WithCache())
	}
	keys, err := crypto.NewKeyDeriver([]byte(cfg.Relay.Secret), kdfOpts...)
	if err != nil {
		logger.Fatal("failed to initialize key derivation", "error", err)
	}
	cipher := crypto.NewCBC()

	ms, err := newMessageStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err, "driver", cfg.Store.Driver)
	}
	defer ms.close()

	var wg sync.WaitGroup

	if cfg.Store.SweepInterval > 0 {
		sweeper := store.NewSweeper(ms.sweepable, model.SystemClock{}, cfg.Store.SweepInterval, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper.Run(ctx)
		}()
	}

	relay := service.NewRelay(keys, cipher, ms, logger, cfg.Message.DefaultTTL, cfg.Message.MaxTTL)
	diagnostics := service.NewDiagnostics(cipher)

	rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst)
	wg.Add(1)
	go func() {
		defer wg.Done()
		rateLimiter.Run(ctx)
	}()

	if cfg.HTTP.EnableDebug {
		logger.Warn("debug routes enabled, raw-key decryption is reachable over HTTP")
	}

	httpSrv := httpServer.NewHTTPServer(httpRouter.New(httpRouter.Config{
		Relay:          relay,
		Diagnostics:    diagnostics,
		HealthChecks:   ms.pingers,
		RateLimiter:    rateLimiter,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		EnableDebug:    cfg.HTTP.EnableDebug,
		Logger:         logger,
	}), fmt.Sprintf(":%s", cfg.HTTP.Port))

	healthSrv := health.NewServer()
	grpcSrv := grpcServer.NewGRPCServer(
		grpcRouter.New(healthSrv, logger).Register(),
		healthSrv,
		grpcRouter.ServiceName,
		fmt.Sprintf(":%s", cfg.GRPC.Port),
	)

	servers := []struct {
		srv model.Server
		sl  model.SecurityLayer
	}{
		{httpSrv, server.NewSecurityLayer(cfg.HTTP.EnableHTTPS, cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName)},
		{grpcSrv, server.NewSecurityLayer(cfg.GRPC.EnableHTTPS, cfg.GRPC.CertFileName, cfg.GRPC.PrivateKeyFileName)},
	}

	for _, s := range servers {
		wg.Add(1)
		go func(s model.Server, sl model.SecurityLayer) {
			defer wg.Done()
			logger.Info("Starting server on", "address", s.Address())
			if err := s.Start(sl); err != nil {
				logger.Error("failed to start server", "error", err, "address", s.Address())
				stop()
			}
		}(s.srv, s.sl)
	}

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	for _, s := range servers {
		if err := s.srv.Stop(shutdownCtx); err != nil {
			logger.Error("error during server shutdown", "error", err, "address", s.srv.Address())
		}
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func newMessageStore(ctx context.Context, cfg *config.Config) (*messageStore, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		repo := postgres.NewMessageRepository(db, model.SystemClock{}, cfg.Store.MaxPerUser)
		return &messageStore{
			MessageStore: repo,
			sweepable:    repo,
			pingers:      []handler.Pinger{db},
			close:        db.Close,
		}, nil
	default:
		ms := memory.New(memory.WithMaxPerUser(cfg.Store.MaxPerUser))
		return &messageStore{
			MessageStore: ms,
			sweepable:    ms,
			close:        func() error { return nil },
		}, nil
	}
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
