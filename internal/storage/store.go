// Package storage persists the session credentials shared by the transport and
// the session facade. Every backend stores the same three entries under fixed
// keys: access_token, refresh_token and user_data.
package storage

import (
	"context"
	"fmt"
	"sync"

	"miniapp-wallet-client/internal/config"
	"miniapp-wallet-client/internal/models"
)

const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserData     = "user_data"
)

// CredentialStore is the single source of truth for session credentials.
// SaveTokens with an empty refresh token keeps the stored one.
type CredentialStore interface {
	Load(ctx context.Context) (models.Session, error)
	SaveTokens(ctx context.Context, accessToken, refreshToken string) error
	SaveUser(ctx context.Context, user *models.User) error
	Clear(ctx context.Context) error
}

// New builds the backend selected by cfg.CredentialStore.
func New(cfg *config.Config) (CredentialStore, error) {
	switch cfg.CredentialStore {
	case config.StoreMemory:
		return NewMemoryStore(), nil
	case config.StoreFile:
		return NewFileStore(cfg.CredentialFile), nil
	case config.StoreRedis:
		return NewRedisStore(cfg)
	default:
		return nil, fmt.Errorf("unknown credential store %q", cfg.CredentialStore)
	}
}

type MemoryStore struct {
	mu      sync.RWMutex
	session models.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.session
	if out.User != nil {
		u := *out.User
		out.User = &u
	}
	return out, nil
}

func (s *MemoryStore) SaveTokens(ctx context.Context, accessToken, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.AccessToken = accessToken
	if refreshToken != "" {
		s.session.RefreshToken = refreshToken
	}
	return nil
}

func (s *MemoryStore) SaveUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user == nil {
		s.session.User = nil
		return nil
	}
	u := *user
	s.session.User = &u
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = models.Session{}
	return nil
}
