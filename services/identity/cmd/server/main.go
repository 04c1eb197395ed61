package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/chd000125/Study/internal/logging"
	"github.com/chd000125/Study/services/identity/internal/auth"
	"github.com/chd000125/Study/services/identity/internal/cache"
	"github.com/chd000125/Study/services/identity/internal/config"
	"github.com/chd000125/Study/services/identity/internal/crypto"
	"github.com/chd000125/Study/services/identity/internal/db"
	internalgrpc "github.com/chd000125/Study/services/identity/internal/grpc"
	internalhttp "github.com/chd000125/Study/services/identity/internal/http"
	"github.com/chd000125/Study/services/identity/internal/identity"
	"github.com/chd000125/Study/services/identity/internal/jobs"
	"github.com/chd000125/Study/services/identity/internal/metrics"
	"github.com/chd000125/Study/services/identity/internal/profile"
	"github.com/chd000125/Study/services/identity/internal/repository"
)

type accountStore interface {
	identity.AccountStore
	profile.Store
	jobs.ExpiredTokenStore
}

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		fatal(logger, "invalid configuration", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store accountStore
	var probes []internalgrpc.Probe
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using in-memory account store")
		store = repository.NewMemoryStore()
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal(logger, "db connection failed", err)
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			fatal(logger, "db migration failed", err)
		}
		store = repository.NewStore(pool)
		probes = append(probes, pool.Ping)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}()
	sessions := cache.New(redisClient, cfg.RefreshTokenTTL, cfg.AuthCodeTTL)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := sessions.Ping(pingCtx); err != nil {
		cancel()
		fatal(logger, "redis ping failed", err)
	}
	cancel()
	probes = append(probes, sessions.Ping)

	jobs.StartTokenPruneJob(ctx, store, cfg.TokenPruneInterval, logger)

	codec, err := auth.NewCodec([]byte(cfg.JWTSecret), cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		fatal(logger, "token codec init failed", err)
	}
	m := metrics.New(prometheus.DefaultRegisterer)
	svc := identity.NewService(identity.Deps{
		Store:     store,
		Cache:     sessions,
		Profiles:  profile.NewGateway(store, sessions, m),
		Codec:     codec,
		Passwords: crypto.NewVerifier(bcrypt.DefaultCost),
		Metrics:   m,
		Logger:    logger,
	}, identity.Options{RequireVerificationCode: cfg.RequireVerificationCode})

	server := internalhttp.NewServer(cfg, svc, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("identity http listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "http server error", err)
		}
	}()

	if cfg.ServiceAuthToken == "" {
		logger.Warn("SERVICE_AUTH_TOKEN not set; internal grpc disabled")
	} else {
		grpcServer, hs, err := internalgrpc.NewServer(cfg.ServiceAuthToken)
		if err != nil {
			fatal(logger, "grpc init failed", err)
		}
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			fatal(logger, "grpc listen failed", err)
		}
		go internalgrpc.WatchDependencies(ctx, hs, 10*time.Second, logger, probes...)
		go func() {
			logger.Info("identity grpc listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("grpc server error", "error", err)
			}
		}()
		defer grpcServer.GracefulStop()
	}

	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
