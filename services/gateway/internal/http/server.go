package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/chd000125/Study/internal/logging"
	"github.com/chd000125/Study/services/gateway/internal/config"
	"github.com/chd000125/Study/services/gateway/internal/edge"
)

// identityHealthService must match the name the identity service reports.
const identityHealthService = "identity"

type Upstreams struct {
	Identity http.Handler
	Board    http.Handler
}

type Server struct {
	cfg       config.Config
	verifier  *edge.Verifier
	upstreams Upstreams
	health    healthpb.HealthClient
	logger    *slog.Logger
}

func NewServer(cfg config.Config, verifier *edge.Verifier, upstreams Upstreams, health healthpb.HealthClient, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		verifier:  verifier,
		upstreams: upstreams,
		health:    health,
		logger:    logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Recover(s.logger))
	r.Use(logging.Requests(s.logger, "/health", "/ready", "/metrics"))
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)
	r.Use(s.verifier.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	if s.upstreams.Identity != nil {
		r.Handle("/api/users/*", s.upstreams.Identity)
		r.Handle("/api/mail/*", s.upstreams.Identity)
	}
	if s.upstreams.Board != nil {
		r.Handle("/api/boards", s.upstreams.Board)
		r.Handle("/api/boards/*", s.upstreams.Board)
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})

	return r
}

// handleReady asks the identity service for its gRPC health status.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "identity": "unchecked"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: identityHealthService})
	if err != nil {
		s.logger.WarnContext(r.Context(), "identity health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "identity": "unreachable"})
		return
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "identity": resp.GetStatus().String()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "identity": resp.GetStatus().String()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
