package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/chd000125/Study/services/identity/internal/apperr"
	"github.com/chd000125/Study/services/identity/internal/auth"
	"github.com/chd000125/Study/services/identity/internal/model"
)

type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

type RegisterResult struct {
	AccessToken string
	User        model.User
}

// Register creates a USER account and signs it in straight away.
func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return RegisterResult{}, fmt.Errorf("missing email or password: %w", apperr.ErrBadRequest)
	}
	_, err := s.store.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return RegisterResult{}, apperr.ErrConflict
	case !errors.Is(err, apperr.ErrNotFound):
		return RegisterResult{}, err
	}

	hash, err := s.passwords.Encode(in.Password)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("hash password: %w", err)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	now := s.now()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Role:         model.RoleUser,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return RegisterResult{}, err
	}

	token, err := s.codec.IssueAccessToken(auth.Identity{Email: user.Email, Name: user.Name, Role: user.Role})
	if err != nil {
		return RegisterResult{}, fmt.Errorf("issue access token: %w", err)
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return RegisterResult{AccessToken: token, User: user}, nil
}

type DeleteMode string

const (
	DeleteSoft DeleteMode = "soft"
	DeleteHard DeleteMode = "hard"
)

// ParseDeleteMode accepts soft or hard in any case. An empty value means hard.
func ParseDeleteMode(value string) (DeleteMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(DeleteHard):
		return DeleteHard, nil
	case string(DeleteSoft):
		return DeleteSoft, nil
	default:
		return "", fmt.Errorf("unknown delete type %q: %w", value, apperr.ErrBadRequest)
	}
}

// DeleteAccount removes the caller's own account. Every durable refresh row
// of the user goes with it; cached refresh mappings are left to expire.
func (s *Service) DeleteAccount(ctx context.Context, callerEmail, targetEmail, deleteType string) error {
	callerEmail = normalizeEmail(callerEmail)
	targetEmail = normalizeEmail(targetEmail)
	if callerEmail == "" || callerEmail != targetEmail {
		return apperr.ErrForbidden
	}
	user, err := s.store.GetUserByEmail(ctx, targetEmail)
	if err != nil {
		return err
	}
	mode, err := ParseDeleteMode(deleteType)
	if err != nil {
		return err
	}

	// Refresh rows go first: a failure here leaves the account intact and
	// the request can be retried.
	removed, err := s.store.DeleteRefreshTokensByUser(ctx, user.ID)
	if err != nil {
		return err
	}

	switch mode {
	case DeleteSoft:
		_, err = s.profiles.SoftDelete(ctx, user.ID)
	case DeleteHard:
		err = s.profiles.Delete(ctx, user.ID)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "account deletion incomplete", "user_id", user.ID, "mode", string(mode), "refresh_tokens_removed", removed, "error", err)
		return err
	}
	s.logger.InfoContext(ctx, "account deleted", "user_id", user.ID, "mode", string(mode), "refresh_tokens_removed", removed)
	return nil
}

// VerifyEmail marks the address as verified. With codes required, the code
// mailed by SendVerificationCode must match and is consumed.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	user, err := s.activeUser(ctx, email)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return fmt.Errorf("email already verified: %w", apperr.ErrBadRequest)
	}
	if s.opts.RequireVerificationCode {
		ok, err := s.checkCode(ctx, email, code)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrUnauthorized
		}
	}

	verified := true
	if _, err := s.profiles.Update(ctx, user.ID, model.UserUpdate{EmailVerified: &verified}); err != nil {
		return err
	}
	if s.opts.RequireVerificationCode {
		if err := s.cache.DeleteAuthCode(ctx, email); err != nil {
			s.logger.WarnContext(ctx, "auth code cleanup failed", "error", err)
		}
	}
	return nil
}

func (s *Service) VerifyPassword(ctx context.Context, email, password string) (bool, error) {
	if password == "" {
		return false, fmt.Errorf("missing password: %w", apperr.ErrBadRequest)
	}
	user, err := s.activeUser(ctx, normalizeEmail(email))
	if err != nil {
		return false, err
	}
	return s.passwords.Matches(password, user.PasswordHash)
}

// ChangePassword stores a new hash through the profile gateway so cached
// snapshots stay in step with the row.
func (s *Service) ChangePassword(ctx context.Context, email, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("empty password: %w", apperr.ErrBadRequest)
	}
	user, err := s.activeUser(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}
	hash, err := s.passwords.Encode(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = s.profiles.Update(ctx, user.ID, model.UserUpdate{PasswordHash: &hash})
	return err
}

func (s *Service) Me(ctx context.Context, email string) (model.User, error) {
	return s.profiles.GetByEmail(ctx, normalizeEmail(email))
}

func (s *Service) UserByID(ctx context.Context, userID string) (model.User, error) {
	return s.profiles.GetByID(ctx, userID)
}

func (s *Service) UpdateName(ctx context.Context, email, name string) (model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.User{}, fmt.Errorf("empty name: %w", apperr.ErrBadRequest)
	}
	user, err := s.profiles.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return model.User{}, err
	}
	if user.Deleted() {
		return model.User{}, apperr.ErrUserDeleted
	}
	return s.profiles.Update(ctx, user.ID, model.UserUpdate{Name: &name})
}

// activeUser reads the row from the store; soft-deleted accounts read as
// missing.
func (s *Service) activeUser(ctx context.Context, email string) (model.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return model.User{}, err
	}
	if user.Deleted() {
		return model.User{}, apperr.ErrNotFound
	}
	return user, nil
}
