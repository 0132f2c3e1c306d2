package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"miniapp-wallet-client/internal/apierror"
	"miniapp-wallet-client/internal/logger"
	"miniapp-wallet-client/internal/models"
	"miniapp-wallet-client/internal/storage"
	"miniapp-wallet-client/internal/transport"
)

const (
	PathLogin   = "/api/auth/login"
	PathRefresh = "/api/auth/refresh"
	PathMe      = "/api/auth/me"
	PathHealth  = "/health"
)

type AuthService struct {
	client *transport.Client
	store  storage.CredentialStore
}

// NewAuthService installs itself as the client's refresher.
func NewAuthService(client *transport.Client) *AuthService {
	s := &AuthService{
		client: client,
		store:  client.Store(),
	}
	client.SetRefresher(s)
	return s
}

// Login exchanges an identity assertion for a session and persists it.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, apierror.Validation("credentials", err.Error())
	}

	var resp models.LoginResponse
	err := s.client.Do(ctx, transport.Request{
		Method:      http.MethodPost,
		Path:        PathLogin,
		Body:        req,
		SkipAuth:    true,
		SkipRefresh: true,
	}, &resp)
	if err != nil {
		switch apierror.StatusOf(err) {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity:
			return nil, authFailure("login rejected", err)
		}
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, apierror.Auth("login response carried no access token", nil)
	}

	// Drop any refresh token left over from a previous account.
	if err := s.store.Clear(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset credentials: %w", err)
	}
	if err := s.store.SaveTokens(ctx, resp.AccessToken, resp.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to save tokens: %w", err)
	}

	if resp.User == nil {
		user, err := s.fetchUser(ctx)
		if err != nil {
			return nil, s.abandonLogin(ctx, err)
		}
		resp.User = user
	}
	if err := s.store.SaveUser(ctx, resp.User); err != nil {
		return nil, s.abandonLogin(ctx, fmt.Errorf("failed to save user: %w", err))
	}

	logger.Info(ctx, "logged in", "method", req.Method(), "user_id", resp.User.ID)
	return &resp, nil
}

// abandonLogin drops the half-written session so a failed login leaves no
// credentials behind.
func (s *AuthService) abandonLogin(ctx context.Context, cause error) error {
	if err := s.store.Clear(ctx); err != nil {
		logger.Error(ctx, "failed to clear credentials after login failure", "error", err)
	}
	return cause
}

// Refresh mints a new access token. It sends the stored refresh token when one
// exists, and otherwise relies on the bearer header alone.
func (s *AuthService) Refresh(ctx context.Context) (string, error) {
	session, err := s.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load credentials: %w", err)
	}

	req := transport.Request{
		Method:      http.MethodPost,
		Path:        PathRefresh,
		SkipRefresh: true,
	}
	if session.RefreshToken != "" {
		req.Body = models.RefreshRequest{RefreshToken: session.RefreshToken}
	}

	var resp models.RefreshResponse
	if err := s.client.Do(ctx, req, &resp); err != nil {
		// Only a 4xx is a verdict on the credentials; offline or 5xx may pass.
		if status := apierror.StatusOf(err); status >= 400 && status < 500 {
			return "", authFailure("refresh rejected", err)
		}
		return "", err
	}
	if resp.AccessToken == "" {
		return "", apierror.Auth("refresh response carried no access token", nil)
	}

	if err := s.store.SaveTokens(ctx, resp.AccessToken, resp.RefreshToken); err != nil {
		return "", fmt.Errorf("failed to save tokens: %w", err)
	}
	logger.Info(ctx, "access token refreshed", "rotated_refresh", resp.RefreshToken != "")
	return resp.AccessToken, nil
}

// GetCurrentUser fetches the authoritative profile. Failures other than a
// rejected session fall back to the last stored profile.
func (s *AuthService) GetCurrentUser(ctx context.Context) (*models.User, error) {
	user, err := s.fetchUser(ctx)
	if err == nil {
		if saveErr := s.store.SaveUser(ctx, user); saveErr != nil {
			logger.Warn(ctx, "failed to cache user", "error", saveErr)
		}
		return user, nil
	}

	if apierror.IsAuth(err) || apierror.IsUnauthorized(err) {
		return nil, err
	}

	session, loadErr := s.store.Load(ctx)
	if loadErr != nil || session.User == nil {
		return nil, err
	}
	logger.Warn(ctx, "profile fetch failed, using cached user", "error", err)
	return session.User, nil
}

func (s *AuthService) fetchUser(ctx context.Context) (*models.User, error) {
	var raw json.RawMessage
	if err := s.client.Do(ctx, transport.Request{Path: PathMe}, &raw); err != nil {
		return nil, err
	}
	return decodeUser(raw)
}

// decodeUser accepts a bare user object or one nested under "user".
func decodeUser(raw json.RawMessage) (*models.User, error) {
	var wrapped struct {
		User json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.User) > 0 && bytes.HasPrefix(bytes.TrimSpace(wrapped.User), []byte("{")) {
		raw = wrapped.User
	}

	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		e := apierror.API(http.StatusOK, "INVALID_RESPONSE", "malformed user profile")
		e.Err = err
		return nil, e
	}
	if user.ID == "" {
		return nil, apierror.API(http.StatusOK, "INVALID_RESPONSE", "user profile has no id")
	}
	return &user, nil
}

func (s *AuthService) Health(ctx context.Context) error {
	return s.client.Do(ctx, transport.Request{
		Path:        PathHealth,
		SkipAuth:    true,
		SkipRefresh: true,
	}, nil)
}

var ErrOpaqueToken = errors.New("access token is not a JWT")

// TokenExpiry reads the exp claim of the stored access token without verifying
// it. Diagnostic only: validity is decided by the server.
func (s *AuthService) TokenExpiry(ctx context.Context) (time.Time, error) {
	session, err := s.store.Load(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if !session.HasToken() {
		return time.Time{}, apierror.Auth("not logged in", nil)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(session.AccessToken, claims); err != nil {
		return time.Time{}, ErrOpaqueToken
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("access token has no expiry")
	}
	return exp.Time, nil
}

func authFailure(prefix string, err error) error {
	message := prefix
	var e *apierror.Error
	if errors.As(err, &e) && e.Message != "" {
		message = prefix + ": " + e.Message
	}
	return apierror.Auth(message, err)
}
