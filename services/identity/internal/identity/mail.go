package identity

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"

	"github.com/chd000125/Study/services/identity/internal/apperr"
	"github.com/chd000125/Study/services/identity/internal/crypto"
)

// Mailer delivers verification codes.
type Mailer interface {
	SendVerificationCode(ctx context.Context, email, code string) error
}

// LogMailer writes the code to the log instead of sending mail.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendVerificationCode(ctx context.Context, email, code string) error {
	m.logger.InfoContext(ctx, "verification code issued", "email", email, "code", code)
	return nil
}

// SendVerificationCode stores a fresh six-digit code under the address and
// hands it to the mailer. A previous code is overwritten.
func (s *Service) SendVerificationCode(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("missing email: %w", apperr.ErrBadRequest)
	}
	code, err := crypto.NewVerificationCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	if err := s.cache.PutAuthCode(ctx, email, code); err != nil {
		return err
	}
	if err := s.mailer.SendVerificationCode(ctx, email, code); err != nil {
		return fmt.Errorf("send verification code: %w", err)
	}
	return nil
}

// VerifyCode reports whether code is the one currently stored for the address.
func (s *Service) VerifyCode(ctx context.Context, email, code string) (bool, error) {
	return s.checkCode(ctx, normalizeEmail(email), code)
}

func (s *Service) checkCode(ctx context.Context, email, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	stored, ok, err := s.cache.AuthCode(ctx, email)
	if err != nil || !ok {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 1, nil
}
