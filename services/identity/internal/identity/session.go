package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chd000125/Study/services/identity/internal/apperr"
	"github.com/chd000125/Study/services/identity/internal/auth"
	"github.com/chd000125/Study/services/identity/internal/model"
)

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         model.User
}

// Login checks the credentials and opens a new session. Unknown, soft-deleted
// and wrong-password accounts all fail with the same ErrUnauthorized.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		s.loginOutcome("invalid_request")
		return LoginResult{}, fmt.Errorf("missing credentials: %w", apperr.ErrBadRequest)
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		s.loginOutcome("invalid_credentials")
		return LoginResult{}, apperr.ErrUnauthorized
	case err != nil:
		s.loginOutcome("error")
		return LoginResult{}, err
	case user.Deleted():
		s.loginOutcome("invalid_credentials")
		return LoginResult{}, apperr.ErrUnauthorized
	}

	ok, err := s.passwords.Matches(password, user.PasswordHash)
	if err != nil {
		s.loginOutcome("error")
		return LoginResult{}, fmt.Errorf("match password for %s: %w", user.ID, err)
	}
	if !ok {
		s.loginOutcome("invalid_credentials")
		return LoginResult{}, apperr.ErrUnauthorized
	}

	identity := auth.Identity{Email: user.Email, Name: user.Name, Role: user.Role}
	accessToken, err := s.codec.IssueAccessToken(identity)
	if err != nil {
		s.loginOutcome("error")
		return LoginResult{}, fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, err := s.codec.IssueRefreshToken(user.Email)
	if err != nil {
		s.loginOutcome("error")
		return LoginResult{}, fmt.Errorf("issue refresh token: %w", err)
	}

	if err := s.cache.PutRefresh(ctx, refreshToken, identity); err != nil {
		s.loginOutcome("error")
		return LoginResult{}, err
	}
	if err := s.store.CreateRefreshToken(ctx, model.RefreshToken{
		Token:      refreshToken,
		UserID:     user.ID,
		ExpiryDate: s.now().Add(s.codec.RefreshTTL()),
	}); err != nil {
		s.loginOutcome("error")
		return LoginResult{}, err
	}

	s.loginOutcome("success")
	s.logger.InfoContext(ctx, "login succeeded", "user_id", user.ID)
	return LoginResult{AccessToken: accessToken, RefreshToken: refreshToken, User: user}, nil
}

// Refresh redeems a refresh token for a new access token. Presence of the
// cache mapping is the only check; the durable rows are not consulted.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		s.refreshOutcome("missing")
		return "", apperr.ErrUnauthorized
	}
	identity, ok, err := s.cache.Refresh(ctx, refreshToken)
	if err != nil {
		s.refreshOutcome("error")
		return "", err
	}
	if !ok {
		s.refreshOutcome("miss")
		return "", apperr.ErrUnauthorized
	}
	accessToken, err := s.codec.IssueAccessToken(identity)
	if err != nil {
		s.refreshOutcome("error")
		return "", fmt.Errorf("issue access token: %w", err)
	}
	s.refreshOutcome("success")
	return accessToken, nil
}

// Logout only records the event. The refresh mapping stays redeemable until
// its TTL runs out; clearing cookies is the transport's job.
func (s *Service) Logout(ctx context.Context, refreshToken string) {
	s.logger.DebugContext(ctx, "logout", "had_refresh_cookie", refreshToken != "")
}
