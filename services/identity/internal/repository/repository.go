package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chd000125/Study/services/identity/internal/apperr"
	"github.com/chd000125/Study/services/identity/internal/model"
)

const uniqueViolation = "23505"

// Store is the PostgreSQL-backed account store. Reads return soft-deleted
// rows as well; callers decide how to treat them.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = `id, email, name, role, password_hash, email_verified, deleted_at, created_at, updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.PasswordHash,
		&user.EmailVerified,
		&user.DeletedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *Store) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, user.ID, user.Email, user.Name, user.Role, user.PasswordHash, user.EmailVerified, user.DeletedAt, user.CreatedAt, user.UpdatedAt)
	return mapWriteError("create user", err)
}

// validID reports whether id can match the uuid primary key. Anything else
// cannot exist, so callers answer not found without a round trip.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	if !validID(userID) {
		return model.User{}, apperr.ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	user, err := scanUser(row)
	return user, mapReadError("get user by id", err)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	return user, mapReadError("get user by email", err)
}

// SaveUser overwrites every mutable column of an existing user.
func (s *Store) SaveUser(ctx context.Context, user model.User) error {
	if !validID(user.ID) {
		return apperr.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET email = $2, name = $3, role = $4, password_hash = $5, email_verified = $6, deleted_at = $7, updated_at = $8
		WHERE id = $1
	`, user.ID, user.Email, user.Name, user.Role, user.PasswordHash, user.EmailVerified, user.DeletedAt, user.UpdatedAt)
	if err != nil {
		return mapWriteError("save user", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	if !validID(userID) {
		return apperr.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return apperr.Unavailable("delete user", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *Store) CreateRefreshToken(ctx context.Context, token model.RefreshToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (token, user_id, expiry_date)
		VALUES ($1, $2, $3)
	`, token.Token, token.UserID, token.ExpiryDate)
	return mapWriteError("create refresh token", err)
}

func (s *Store) ListRefreshTokens(ctx context.Context, userID string) ([]model.RefreshToken, error) {
	if !validID(userID) {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT token, user_id, expiry_date
		FROM refresh_tokens
		WHERE user_id = $1
		ORDER BY expiry_date
	`, userID)
	if err != nil {
		return nil, apperr.Unavailable("list refresh tokens", err)
	}
	tokens, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.RefreshToken, error) {
		var token model.RefreshToken
		err := row.Scan(&token.Token, &token.UserID, &token.ExpiryDate)
		return token, err
	})
	if err != nil {
		return nil, apperr.Unavailable("list refresh tokens", err)
	}
	return tokens, nil
}

// DeleteRefreshTokensByUser removes every durable refresh row of the user and
// reports how many were removed.
func (s *Store) DeleteRefreshTokensByUser(ctx context.Context, userID string) (int64, error) {
	if !validID(userID) {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, apperr.Unavailable("delete refresh tokens", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpiredRefreshTokens removes rows whose expiry is at or before the
// cutoff.
func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expiry_date <= $1`, before)
	if err != nil {
		return 0, apperr.Unavailable("delete expired refresh tokens", err)
	}
	return tag.RowsAffected(), nil
}

func mapReadError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return apperr.ErrNotFound
	default:
		return apperr.Unavailable(op, err)
	}
}

func mapWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, apperr.ErrConflict)
	}
	return apperr.Unavailable(op, err)
}
