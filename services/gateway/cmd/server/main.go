package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/chd000125/Study/internal/logging"
	"github.com/chd000125/Study/services/gateway/internal/auth"
	"github.com/chd000125/Study/services/gateway/internal/clients"
	"github.com/chd000125/Study/services/gateway/internal/config"
	"github.com/chd000125/Study/services/gateway/internal/edge"
	internalhttp "github.com/chd000125/Study/services/gateway/internal/http"
	"github.com/chd000125/Study/services/gateway/internal/metrics"
	"github.com/chd000125/Study/services/gateway/internal/proxy"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		fatal(logger, "invalid configuration", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens, err := auth.NewVerifier([]byte(cfg.JWTSecret))
	if err != nil {
		fatal(logger, "token verifier init failed", err)
	}
	m := metrics.New(prometheus.DefaultRegisterer)

	var upstreams internalhttp.Upstreams
	upstreams.Identity, err = proxy.New("identity", cfg.IdentityHTTPURL, cfg.UpstreamTimeout, m, logger)
	if err != nil {
		fatal(logger, "identity proxy init failed", err)
	}
	if cfg.BoardHTTPURL != "" {
		upstreams.Board, err = proxy.New("board", cfg.BoardHTTPURL, cfg.UpstreamTimeout, m, logger)
		if err != nil {
			fatal(logger, "board proxy init failed", err)
		}
	}

	var health healthpb.HealthClient
	if cfg.ServiceAuthToken == "" {
		logger.Warn("SERVICE_AUTH_TOKEN not set; readiness does not probe identity")
	} else {
		conns, err := clients.New(ctx, cfg.IdentityGRPCAddr, cfg.ServiceAuthToken, cfg.GRPCDialTimeout)
		if err != nil {
			fatal(logger, "grpc dial failed", err)
		}
		defer conns.Close()
		health = conns.IdentityHealth
	}

	verifier := edge.NewVerifier(tokens, cfg.PublicPaths, m)
	server := internalhttp.NewServer(cfg, verifier, upstreams, health, logger)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("gateway http listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "http server error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
