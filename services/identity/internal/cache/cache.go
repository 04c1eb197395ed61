// Package cache is the Redis-backed session cache: profile snapshots indexed
// by id and by email, refresh-token mappings and one-time verification codes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chd000125/Study/services/identity/internal/apperr"
	"github.com/chd000125/Study/services/identity/internal/auth"
	"github.com/chd000125/Study/services/identity/internal/model"
)

const (
	DefaultRefreshTTL  = 7 * 24 * time.Hour
	DefaultAuthCodeTTL = 5 * time.Minute
)

type SessionCache struct {
	client      redis.UniversalClient
	refreshTTL  time.Duration
	authCodeTTL time.Duration
}

func New(client redis.UniversalClient, refreshTTL, authCodeTTL time.Duration) *SessionCache {
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	if authCodeTTL <= 0 {
		authCodeTTL = DefaultAuthCodeTTL
	}
	return &SessionCache{client: client, refreshTTL: refreshTTL, authCodeTTL: authCodeTTL}
}

func (c *SessionCache) Ping(ctx context.Context) error {
	return apperr.Unavailable("redis ping", c.client.Ping(ctx).Err())
}

func profileIDKey(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}

func profileEmailKey(email string) string {
	return fmt.Sprintf("user:email:%s", email)
}

func profileTokenKey(userID string) string {
	return fmt.Sprintf("user:token:%s", userID)
}

func refreshKey(token string) string {
	return fmt.Sprintf("refresh:%s", token)
}

func authCodeKey(email string) string {
	return fmt.Sprintf("authCode:%s", email)
}

func (c *SessionCache) ProfileByID(ctx context.Context, userID string) (model.User, bool, error) {
	return c.loadProfile(ctx, profileIDKey(userID))
}

func (c *SessionCache) ProfileByEmail(ctx context.Context, email string) (model.User, bool, error) {
	return c.loadProfile(ctx, profileEmailKey(email))
}

func (c *SessionCache) loadProfile(ctx context.Context, key string) (model.User, bool, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, apperr.Unavailable("load profile", err)
	}
	var user model.User
	if err := json.Unmarshal(value, &user); err != nil {
		return model.User{}, false, fmt.Errorf("decode profile %s: %w", key, apperr.ErrInternal)
	}
	return user, true, nil
}

// PutProfileByEmail populates only the email index. Read-through on the email
// path uses it.
func (c *SessionCache) PutProfileByEmail(ctx context.Context, user model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode profile: %w", apperr.ErrInternal)
	}
	return apperr.Unavailable("store profile", c.client.Set(ctx, profileEmailKey(user.Email), data, 0).Err())
}

// PutProfile writes both index keys of one profile entry in a single
// transaction. When previousEmail differs from the current email its key is
// removed in the same transaction.
func (c *SessionCache) PutProfile(ctx context.Context, user model.User, previousEmail string) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode profile: %w", apperr.ErrInternal)
	}
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, profileIDKey(user.ID), data, 0)
		pipe.Set(ctx, profileEmailKey(user.Email), data, 0)
		if previousEmail != "" && previousEmail != user.Email {
			pipe.Del(ctx, profileEmailKey(previousEmail))
		}
		return nil
	})
	return apperr.Unavailable("store profile", err)
}

// DeleteProfile removes every key of the profile entry.
func (c *SessionCache) DeleteProfile(ctx context.Context, user model.User) error {
	keys := []string{profileIDKey(user.ID), profileTokenKey(user.ID)}
	if user.Email != "" {
		keys = append(keys, profileEmailKey(user.Email))
	}
	return apperr.Unavailable("delete profile", c.client.Del(ctx, keys...).Err())
}

func (c *SessionCache) PutRefresh(ctx context.Context, token string, identity auth.Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("encode refresh identity: %w", apperr.ErrInternal)
	}
	return apperr.Unavailable("store refresh token", c.client.Set(ctx, refreshKey(token), data, c.refreshTTL).Err())
}

// Refresh returns the identity cached behind a refresh token. A missing entry
// is reported through the boolean, never as an error.
func (c *SessionCache) Refresh(ctx context.Context, token string) (auth.Identity, bool, error) {
	value, err := c.client.Get(ctx, refreshKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return auth.Identity{}, false, nil
	}
	if err != nil {
		return auth.Identity{}, false, apperr.Unavailable("load refresh token", err)
	}
	var identity auth.Identity
	if err := json.Unmarshal(value, &identity); err != nil {
		return auth.Identity{}, false, fmt.Errorf("decode refresh identity: %w", apperr.ErrInternal)
	}
	return identity, true, nil
}

func (c *SessionCache) PutAuthCode(ctx context.Context, email, code string) error {
	return apperr.Unavailable("store auth code", c.client.Set(ctx, authCodeKey(email), code, c.authCodeTTL).Err())
}

func (c *SessionCache) AuthCode(ctx context.Context, email string) (string, bool, error) {
	value, err := c.client.Get(ctx, authCodeKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Unavailable("load auth code", err)
	}
	return value, true, nil
}

func (c *SessionCache) DeleteAuthCode(ctx context.Context, email string) error {
	return apperr.Unavailable("delete auth code", c.client.Del(ctx, authCodeKey(email)).Err())
}
