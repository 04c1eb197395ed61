package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chd000125/Study/services/identity/internal/apperr"
	"github.com/chd000125/Study/services/identity/internal/model"
)

// MemoryStore keeps accounts in process memory. It backs STORE_DRIVER=memory
// and the service tests.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]model.User
	byEmail map[string]string
	tokens  map[string]model.RefreshToken
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]model.User),
		byEmail: make(map[string]string),
		tokens:  make(map[string]model.RefreshToken),
	}
}

func (m *MemoryStore) CreateUser(ctx context.Context, user model.User) error {
	if err := ctx.Err(); err != nil {
		return apperr.Unavailable("create user", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[user.Email]; ok {
		return apperr.ErrConflict
	}
	if _, ok := m.users[user.ID]; ok {
		return apperr.ErrConflict
	}
	m.users[user.ID] = user
	m.byEmail[user.Email] = user.ID
	return nil
}

func (m *MemoryStore) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, apperr.Unavailable("get user by id", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[userID]
	if !ok {
		return model.User{}, apperr.ErrNotFound
	}
	return user, nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, apperr.Unavailable("get user by email", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[email]
	if !ok {
		return model.User{}, apperr.ErrNotFound
	}
	return m.users[id], nil
}

func (m *MemoryStore) SaveUser(ctx context.Context, user model.User) error {
	if err := ctx.Err(); err != nil {
		return apperr.Unavailable("save user", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.users[user.ID]
	if !ok {
		return apperr.ErrNotFound
	}
	if user.Email != current.Email {
		if owner, taken := m.byEmail[user.Email]; taken && owner != user.ID {
			return apperr.ErrConflict
		}
		delete(m.byEmail, current.Email)
		m.byEmail[user.Email] = user.ID
	}
	m.users[user.ID] = user
	return nil
}

func (m *MemoryStore) DeleteUser(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return apperr.Unavailable("delete user", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return apperr.ErrNotFound
	}
	delete(m.users, userID)
	delete(m.byEmail, user.Email)
	return nil
}

func (m *MemoryStore) CreateRefreshToken(ctx context.Context, token model.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return apperr.Unavailable("create refresh token", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token.Token]; ok {
		return apperr.ErrConflict
	}
	m.tokens[token.Token] = token
	return nil
}

func (m *MemoryStore) ListRefreshTokens(ctx context.Context, userID string) ([]model.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Unavailable("list refresh tokens", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.RefreshToken
	for _, token := range m.tokens {
		if token.UserID == userID {
			out = append(out, token)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiryDate.Before(out[j].ExpiryDate) })
	return out, nil
}

func (m *MemoryStore) DeleteRefreshTokensByUser(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperr.Unavailable("delete refresh tokens", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for key, token := range m.tokens {
		if token.UserID == userID {
			delete(m.tokens, key)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, apperr.Unavailable("delete expired refresh tokens", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for key, token := range m.tokens {
		if !token.ExpiryDate.After(before) {
			delete(m.tokens, key)
			removed++
		}
	}
	return removed, nil
}
