// Package identity implements the account and session lifecycle: login,
// refresh, logout, registration, email verification and account deletion.
package identity

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/chd000125/Study/services/identity/internal/auth"
	"github.com/chd000125/Study/services/identity/internal/metrics"
	"github.com/chd000125/Study/services/identity/internal/model"
)

type AccountStore interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	CreateRefreshToken(ctx context.Context, token model.RefreshToken) error
	DeleteRefreshTokensByUser(ctx context.Context, userID string) (int64, error)
}

type SessionCache interface {
	PutRefresh(ctx context.Context, token string, identity auth.Identity) error
	Refresh(ctx context.Context, token string) (auth.Identity, bool, error)
	PutAuthCode(ctx context.Context, email, code string) error
	AuthCode(ctx context.Context, email string) (string, bool, error)
	DeleteAuthCode(ctx context.Context, email string) error
}

type Profiles interface {
	GetByID(ctx context.Context, userID string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	Update(ctx context.Context, userID string, update model.UserUpdate) (model.User, error)
	SoftDelete(ctx context.Context, userID string) (model.User, error)
	Delete(ctx context.Context, userID string) error
}

type PasswordVerifier interface {
	Encode(raw string) (string, error)
	Matches(raw, hash string) (bool, error)
}

type Options struct {
	// RequireVerificationCode makes VerifyEmail check the mailed code.
	RequireVerificationCode bool
}

type Service struct {
	store     AccountStore
	cache     SessionCache
	profiles  Profiles
	codec     *auth.Codec
	passwords PasswordVerifier
	mailer    Mailer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	opts      Options
	now       func() time.Time
}

type Deps struct {
	Store     AccountStore
	Cache     SessionCache
	Profiles  Profiles
	Codec     *auth.Codec
	Passwords PasswordVerifier
	Mailer    Mailer
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func NewService(deps Deps, opts Options) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mailer := deps.Mailer
	if mailer == nil {
		mailer = NewLogMailer(logger)
	}
	return &Service{
		store:     deps.Store,
		cache:     deps.Cache,
		profiles:  deps.Profiles,
		codec:     deps.Codec,
		passwords: deps.Passwords,
		mailer:    mailer,
		metrics:   deps.Metrics,
		logger:    logger,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Codec exposes the token codec so transports can verify bearer tokens with
// the same secret.
func (s *Service) Codec() *auth.Codec {
	return s.codec
}

func (s *Service) loginOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.Logins.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) refreshOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.Refreshes.WithLabelValues(outcome).Inc()
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
