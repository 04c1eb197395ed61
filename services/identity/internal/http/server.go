package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/chd000125/Study/internal/logging"
	"github.com/chd000125/Study/services/identity/internal/apperr"
	"github.com/chd000125/Study/services/identity/internal/auth"
	"github.com/chd000125/Study/services/identity/internal/config"
	"github.com/chd000125/Study/services/identity/internal/identity"
	"github.com/chd000125/Study/services/identity/internal/model"
)

const (
	refreshCookieName = "refreshToken"
	accessCookieName  = "accessToken"
)

type Server struct {
	cfg     config.Config
	svc     *identity.Service
	codec   *auth.Codec
	logger  *slog.Logger
	metrics http.Handler
}

func NewServer(cfg config.Config, svc *identity.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		svc:     svc,
		codec:   svc.Codec(),
		logger:  logger,
		metrics: promhttp.Handler(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Recover(s.logger))
	r.Use(logging.Requests(s.logger, "/health", "/metrics"))
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.metrics)

	r.Route("/api/users", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
		r.Post("/register", s.handleRegister)
		r.Post("/verify-email/{email}", s.handleVerifyEmail)

		r.With(s.authMiddleware).Get("/me", s.handleGetMe)
		r.With(s.authMiddleware).Put("/update", s.handleUpdate)
		r.With(s.authMiddleware).Put("/change-password", s.handleChangePassword)
		r.With(s.authMiddleware).Post("/verify-password", s.handleVerifyPassword)
		r.With(s.authMiddleware).Post("/delete/{email}", s.handleDelete)
		r.With(s.authMiddleware).Get("/{userID}", s.handleGetUser)
	})

	r.Route("/api/mail", func(r chi.Router) {
		r.Post("/send-verification", s.handleSendVerification)
		r.Post("/verify-code", s.handleVerifyCode)
	})

	return r
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        string `json:"role"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	res, err := s.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	http.SetCookie(w, s.refreshCookie(res.RefreshToken, int(s.codec.RefreshTTL().Seconds())))
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: res.AccessToken,
		Email:       res.User.Email,
		Name:        res.User.Name,
		Role:        res.User.Role,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		token = cookie.Value
	}
	accessToken, err := s.svc.Refresh(r.Context(), token)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": accessToken})
}

// handleLogout expires both cookies on the client. The refresh mapping is
// left in place server-side.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var token string
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		token = cookie.Value
	}
	s.svc.Logout(r.Context(), token)

	http.SetCookie(w, s.expiredCookie(accessCookieName))
	http.SetCookie(w, s.expiredCookie(refreshCookieName))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	res, err := s.svc.Register(r.Context(), identity.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "registered",
		"token":   res.AccessToken,
	})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if err := s.svc.VerifyEmail(r.Context(), email, r.URL.Query().Get("token")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "email_verified"})
}

type profileResponse struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	Name          string  `json:"name"`
	Role          string  `json:"role"`
	EmailVerified bool    `json:"emailVerified"`
	DeletedAt     *string `json:"deletedAt"`
}

func mapProfile(user model.User) profileResponse {
	resp := profileResponse{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.Name,
		Role:          user.Role,
		EmailVerified: user.EmailVerified,
	}
	if user.DeletedAt != nil {
		deletedAt := user.DeletedAt.UTC().Format(time.RFC3339)
		resp.DeletedAt = &deletedAt
	}
	return resp
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	user, err := s.svc.Me(r.Context(), claims.Email)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapProfile(user))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.svc.UserByID(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapProfile(user))
}

type updateRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	claims := claimsFromContext(r.Context())
	user, err := s.svc.UpdateName(r.Context(), claims.Email, req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapProfile(user))
}

type changePasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	claims := claimsFromContext(r.Context())
	if err := s.svc.ChangePassword(r.Context(), claims.Email, req.NewPassword); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password_changed"})
}

type verifyPasswordRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleVerifyPassword(w http.ResponseWriter, r *http.Request) {
	var req verifyPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	claims := claimsFromContext(r.Context())
	ok, err := s.svc.VerifyPassword(r.Context(), claims.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": ok})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	err := s.svc.DeleteAccount(r.Context(), claims.Email, chi.URLParam(r, "email"), r.URL.Query().Get("type"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	http.SetCookie(w, s.expiredCookie(refreshCookieName))
	writeJSON(w, http.StatusOK, map[string]string{"message": "account_deleted"})
}

func (s *Server) handleSendVerification(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.SendVerificationCode(r.Context(), r.URL.Query().Get("email")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "code_sent"})
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	ok, err := s.svc.VerifyCode(r.Context(), query.Get("email"), query.Get("code"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, apperr.Code(apperr.ErrUnauthorized))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "code_verified"})
}

func (s *Server) refreshCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: s.cfg.CookieSameSite,
	}
}

// expiredCookie is sent with Max-Age=0.
func (s *Server) expiredCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: s.cfg.CookieSameSite,
	}
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := s.codec.ParseAccess(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	if claims == nil {
		return &auth.Claims{}
	}
	return claims
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	switch {
	case status == http.StatusServiceUnavailable:
		s.logger.WarnContext(r.Context(), "dependency unavailable", "path", r.URL.Path, "error", err)
	case status >= http.StatusInternalServerError:
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, apperr.Code(err))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
