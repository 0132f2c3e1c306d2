package services

import (
	"context"
	"errors"
	"sync"

	"miniapp-wallet-client/internal/apierror"
	"miniapp-wallet-client/internal/logger"
	"miniapp-wallet-client/internal/models"
	"miniapp-wallet-client/internal/storage"
	"miniapp-wallet-client/internal/transport"
)

type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateLoggedOut       State = "logged_out"
)

// Reason explains why a session ended.
type Reason string

const (
	ReasonUserLogout Reason = "user_logout"
	ReasonExpired    Reason = "session_expired"
)

var ErrLoginInProgress = errors.New("login already in progress")

// Session is the application-facing view of authentication. It owns the
// state machine; credentials themselves live in the store.
type Session struct {
	auth  *AuthService
	store storage.CredentialStore
	cache *BalanceCache

	mu    sync.RWMutex
	state State
	user  *models.User
	hooks []func(Reason)
}

// NewSession subscribes to the client's forced-logout signal. cache may be nil.
func NewSession(auth *AuthService, client *transport.Client, cache *BalanceCache) *Session {
	s := &Session{
		auth:  auth,
		store: client.Store(),
		cache: cache,
		state: StateUnauthenticated,
	}
	client.OnLogout(s.forceLogout)
	return s
}

// Restore picks up a persisted session without contacting the server.
func (s *Session) Restore(ctx context.Context) error {
	creds, err := s.store.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if creds.HasToken() {
		s.state = StateAuthenticated
		s.user = creds.User
	} else {
		s.state = StateUnauthenticated
		s.user = nil
	}
	return nil
}

func (s *Session) Login(ctx context.Context, req models.LoginRequest) (*models.User, error) {
	s.mu.Lock()
	if s.state == StateAuthenticating {
		s.mu.Unlock()
		return nil, ErrLoginInProgress
	}
	s.state = StateAuthenticating
	s.mu.Unlock()

	resp, err := s.auth.Login(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateUnauthenticated
		s.user = nil
		return nil, err
	}
	s.state = StateAuthenticated
	s.user = resp.User
	if s.cache != nil {
		s.cache.Reset()
		if resp.User.HasBalance() {
			s.cache.Set(resp.User.Balance, "")
		}
	}
	return resp.User, nil
}

// Logout clears stored credentials. The server keeps no session to revoke.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.end(ReasonUserLogout)
	logger.Info(ctx, "logged out")
	return nil
}

// CurrentUser fetches the profile, falling back to the cached one when the
// server is unreachable.
func (s *Session) CurrentUser(ctx context.Context) (*models.User, error) {
	if !s.IsAuthenticated(ctx) {
		return nil, apierror.Auth("not logged in", nil)
	}

	user, err := s.auth.GetCurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	return user, nil
}

// IsAuthenticated reports whether an access token is stored. It says nothing
// about whether the server still accepts it.
func (s *Session) IsAuthenticated(ctx context.Context) bool {
	creds, err := s.store.Load(ctx)
	if err != nil {
		return false
	}
	return creds.HasToken()
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// User returns the last known profile without a network call.
func (s *Session) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) OnLogout(fn func(Reason)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *Session) forceLogout(cause error) {
	logger.Warn(context.Background(), "session ended by server", "error", cause)
	s.end(ReasonExpired)
}

func (s *Session) end(reason Reason) {
	s.mu.Lock()
	s.state = StateLoggedOut
	s.user = nil
	hooks := make([]func(Reason), len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	if s.cache != nil {
		s.cache.Reset()
	}
	for _, fn := range hooks {
		fn(reason)
	}
}
