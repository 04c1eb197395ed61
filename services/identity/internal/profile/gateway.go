// Package profile serves user profiles cache-aside over the account store and
// writes changes through to both.
package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chd000125/Study/services/identity/internal/apperr"
	"github.com/chd000125/Study/services/identity/internal/metrics"
	"github.com/chd000125/Study/services/identity/internal/model"
)

type Store interface {
	GetUserByID(ctx context.Context, userID string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	SaveUser(ctx context.Context, user model.User) error
	DeleteUser(ctx context.Context, userID string) error
}

type Cache interface {
	ProfileByID(ctx context.Context, userID string) (model.User, bool, error)
	ProfileByEmail(ctx context.Context, email string) (model.User, bool, error)
	PutProfileByEmail(ctx context.Context, user model.User) error
	PutProfile(ctx context.Context, user model.User, previousEmail string) error
	DeleteProfile(ctx context.Context, user model.User) error
}

type Gateway struct {
	store   Store
	cache   Cache
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewGateway(store Store, cache Cache, m *metrics.Metrics) *Gateway {
	return &Gateway{
		store:   store,
		cache:   cache,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GetByID fails with ErrUserDeleted for soft-deleted accounts whether the
// snapshot comes from the cache or the store. A store hit does not populate
// the cache.
func (g *Gateway) GetByID(ctx context.Context, userID string) (model.User, error) {
	user, ok, err := g.cache.ProfileByID(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	g.observe("id", ok)
	if !ok {
		user, err = g.store.GetUserByID(ctx, userID)
		if err != nil {
			return model.User{}, err
		}
	}
	if user.Deleted() {
		return model.User{}, apperr.ErrUserDeleted
	}
	return user, nil
}

// GetByEmail returns a cached snapshot as is, soft-deleted or not. On a miss
// the store row is cached under the email key only.
func (g *Gateway) GetByEmail(ctx context.Context, email string) (model.User, error) {
	user, ok, err := g.cache.ProfileByEmail(ctx, email)
	if err != nil {
		return model.User{}, err
	}
	g.observe("email", ok)
	if ok {
		return user, nil
	}
	user, err = g.store.GetUserByEmail(ctx, email)
	if err != nil {
		return model.User{}, err
	}
	if err := g.cache.PutProfileByEmail(ctx, user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// Update applies the changes to the stored row, persists it and then
// overwrites the whole cache entry.
func (g *Gateway) Update(ctx context.Context, userID string, update model.UserUpdate) (model.User, error) {
	user, err := g.store.GetUserByID(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	previousEmail := user.Email
	update.Apply(&user)
	user.UpdatedAt = g.now()
	if err := g.store.SaveUser(ctx, user); err != nil {
		return model.User{}, err
	}
	if err := g.cache.PutProfile(ctx, user, previousEmail); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// SoftDelete stamps the deletion time through Update so both cache keys see it.
func (g *Gateway) SoftDelete(ctx context.Context, userID string) (model.User, error) {
	deletedAt := g.now()
	return g.Update(ctx, userID, model.UserUpdate{DeletedAt: &deletedAt})
}

// Delete removes the row and every cache key of the entry.
func (g *Gateway) Delete(ctx context.Context, userID string) error {
	user, err := g.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := g.store.DeleteUser(ctx, userID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("delete user %s: %w", userID, err)
	}
	return g.cache.DeleteProfile(ctx, user)
}

func (g *Gateway) observe(key string, hit bool) {
	if g.metrics == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	g.metrics.ProfileCache.WithLabelValues(key, result).Inc()
}
