package services_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miniapp-wallet-client/internal/apierror"
	"miniapp-wallet-client/internal/models"
	"miniapp-wallet-client/internal/services"
)

func TestLogin_PersistsSession(t *testing.T) {
	api := newStubAPI(t)
	api.reply("POST /api/auth/login", http.StatusOK, ok(map[string]any{
		"access_token":  "access-1",
		"refresh_token": "refresh-1",
		"user":          map[string]any{"id": 123456789, "first_name": "Ada", "balance": 2500},
	}))
	h := newHarness(t, api.URL())
	ctx := context.Background()

	resp, err := h.auth.Login(ctx, models.TelegramLogin("query_id=1&user=x&hash=y"))
	require.NoError(t, err)
	assert.Equal(t, models.UserID("123456789"), resp.User.ID)

	req := api.last(t)
	assert.Empty(t, req.Header.Get("Authorization"), "login is sent without a bearer token")
	var body map[string]string
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, "query_id=1&user=x&hash=y", body["init_data"])

	session, err := h.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-1", session.AccessToken)
	assert.Equal(t, "refresh-1", session.RefreshToken)
	require.NotNil(t, session.User)
	assert.Equal(t, "Ada", session.User.FirstName)
}

func TestLogin_FetchesProfileWhenMissing(t *testing.T) {
	api := newStubAPI(t)
	api.reply("POST /api/auth/login", http.StatusOK, map[string]any{"access_token": "access-1"})
	api.handle("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "no token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"id": "web_42", "username": "webplayer"}})
	})
	h := newHarness(t, api.URL())

	resp, err := h.auth.Login(context.Background(), models.PasswordLogin("a@b.c", "pw"))
	require.NoError(t, err)
	assert.Equal(t, models.UserID("web_42"), resp.User.ID)

	session, _ := h.store.Load(context.Background())
	require.NotNil(t, session.User)
	assert.Equal(t, "webplayer", session.User.Username)
}

func TestLogin_Rejected(t *testing.T) {
	api := newStubAPI(t)
	api.reply("POST /api/auth/login", http.StatusUnauthorized, map[string]any{
		"success": false, "error": "invalid email or password", "code": "INVALID_CREDENTIALS",
	})
	h := newHarness(t, api.URL())
	ctx := context.Background()

	_, err := h.auth.Login(ctx, models.PasswordLogin("a@b.c", "wrong"))
	require.Error(t, err)
	assert.True(t, apierror.IsAuth(err))
	assert.Contains(t, err.Error(), "invalid email or password")
	assert.Equal(t, 0, api.countPath("/api/auth/refresh"), "a rejected login never triggers refresh")

	session, _ := h.store.Load(ctx)
	assert.False(t, session.HasToken())
}

func TestLogin_ValidatesAssertion(t *testing.T) {
	api := newStubAPI(t)
	h := newHarness(t, api.URL())

	_, err := h.auth.Login(context.Background(), models.LoginRequest{})
	assert.True(t, apierror.IsValidation(err))

	_, err = h.auth.Login(context.Background(), models.LoginRequest{InitData: "x", Email: "a@b.c", Password: "pw"})
	assert.True(t, apierror.IsValidation(err))
	assert.Zero(t, api.count())
}

func TestLogin_ReplacesPreviousAccount(t *testing.T) {
	api := newStubAPI(t)
	api.reply("POST /api/auth/login", http.StatusOK, map[string]any{
		"access_token": "access-2",
		"user":         map[string]any{"id": 2},
	})
	h := newHarness(t, api.URL())
	ctx := context.Background()
	require.NoError(t, h.store.SaveTokens(ctx, "access-1", "refresh-of-user-1"))

	_, err := h.auth.Login(ctx, models.PasswordLogin("a@b.c", "pw"))
	require.NoError(t, err)

	session, _ := h.store.Load(ctx)
	assert.Equal(t, "access-2", session.AccessToken)
	assert.Empty(t, session.RefreshToken, "a stale refresh token from another account must not survive login")
}

func TestGetCurrentUser_RoundTrip(t *testing.T) {
	api := newStubAPI(t)
	api.reply("POST /api/auth/login", http.StatusOK, map[string]any{
		"access_token": "a", "user": map[string]any{"id": 987},
	})
	api.reply("GET /api/auth/me", http.StatusOK, ok(map[string]any{"id": 987, "first_name": "Grace", "balance": 10}))
	h := newHarness(t, api.URL())
	ctx := context.Background()

	resp, err := h.auth.Login(ctx, models.TelegramLogin("init"))
	require.NoError(t, err)

	user, err := h.auth.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, user.ID)
	assert.Equal(t, "Grace", user.FirstName)

	session, _ := h.store.Load(ctx)
	assert.Equal(t, "Grace", session.User.FirstName, "fresh profile replaces the stored one")
}

func TestGetCurrentUser_FallsBackToStoredProfile(t *testing.T) {
	api := newStubAPI(t)
	api.reply("GET /api/auth/me", http.StatusInternalServerError, map[string]any{"message": "database down"})
	h := newHarness(t, api.URL())
	ctx := context.Background()

	require.NoError(t, h.store.SaveTokens(ctx, "a", ""))
	require.NoError(t, h.store.SaveUser(ctx, &models.User{ID: "42", FirstName: "Cached"}))

	user, err := h.auth.GetCurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Cached", user.FirstName)

	require.NoError(t, h.store.SaveUser(ctx, nil))
	_, err = h.auth.GetCurrentUser(ctx)
	require.Error(t, err, "without a stored profile the failure surfaces")
	assert.Equal(t, http.StatusInternalServerError, apierror.StatusOf(err))
}

func TestGetCurrentUser_NoFallbackWhenSessionRejected(t *testing.T) {
	api := newStubAPI(t)
	api.reply("GET /api/auth/me", http.StatusUnauthorized, map[string]any{"message": "expired"})
	api.reply("POST /api/auth/refresh", http.StatusUnauthorized, map[string]any{"message": "refresh expired"})
	h := newHarness(t, api.URL())
	ctx := context.Background()

	require.NoError(t, h.store.SaveTokens(ctx, "a", "r"))
	require.NoError(t, h.store.SaveUser(ctx, &models.User{ID: "42"}))

	_, err := h.auth.GetCurrentUser(ctx)
	require.Error(t, err)
	assert.True(t, apierror.IsAuth(err))
}

func TestGetCurrentUser_RejectsProfileWithoutID(t *testing.T) {
	api := newStubAPI(t)
	api.reply("GET /api/auth/me", http.StatusOK, map[string]any{"first_name": "Nobody"})
	h := newHarness(t, api.URL())

	_, err := h.auth.GetCurrentUser(context.Background())
	require.Error(t, err)
	var e *apierror.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "INVALID_RESPONSE", e.Code)
}

func TestRefresh_SendsStoredRefreshToken(t *testing.T) {
	api := newStubAPI(t)
	api.reply("POST /api/auth/refresh", http.StatusOK, ok(map[string]any{
		"access_token": "access-2", "refresh_token": "refresh-2",
	}))
	h := newHarness(t, api.URL())
	ctx := context.Background()
	require.NoError(t, h.store.SaveTokens(ctx, "access-1", "refresh-1"))

	token, err := h.auth.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)

	var body map[string]string
	require.NoError(t, json.Unmarshal(api.last(t).Body, &body))
	assert.Equal(t, "refresh-1", body["refresh_token"])

	session, _ := h.store.Load(ctx)
	assert.Equal(t, "access-2", session.AccessToken)
	assert.Equal(t, "refresh-2", session.RefreshToken)
}

func TestRefresh_BearerOnly(t *testing.T) {
	api := newStubAPI(t)
	api.reply("POST /api/auth/refresh", http.StatusOK, map[string]any{"access_token": "access-2"})
	h := newHarness(t, api.URL())
	ctx := context.Background()
	require.NoError(t, h.store.SaveTokens(ctx, "access-1", ""))

	_, err := h.auth.Refresh(ctx)
	require.NoError(t, err)

	req := api.last(t)
	assert.Empty(t, req.Body)
	assert.Equal(t, "Bearer access-1", req.Header.Get("Authorization"))
}

func TestRefresh_RejectedIsAuthError(t *testing.T) {
	api := newStubAPI(t)
	api.reply("POST /api/auth/refresh", http.StatusForbidden, map[string]any{"detail": "refresh revoked"})
	h := newHarness(t, api.URL())
	require.NoError(t, h.store.SaveTokens(context.Background(), "a", "r"))

	_, err := h.auth.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, apierror.IsAuth(err))
	assert.Equal(t, http.StatusForbidden, apierror.StatusOf(err))
}

func TestTokenExpiry(t *testing.T) {
	api := newStubAPI(t)
	h := newHarness(t, api.URL())
	ctx := context.Background()

	_, err := h.auth.TokenExpiry(ctx)
	assert.True(t, apierror.IsAuth(err))

	exp := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("server-only-secret"))
	require.NoError(t, err)
	require.NoError(t, h.store.SaveTokens(ctx, token, ""))

	got, err := h.auth.TokenExpiry(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(exp), "expiry = %s, want %s", got, exp)

	require.NoError(t, h.store.SaveTokens(ctx, "opaque-token", ""))
	_, err = h.auth.TokenExpiry(ctx)
	assert.ErrorIs(t, err, services.ErrOpaqueToken)
	assert.Zero(t, api.count(), "expiry inspection is local")
}

func TestHealth(t *testing.T) {
	api := newStubAPI(t)
	api.reply("GET /health", http.StatusOK, map[string]any{"status": "ok"})
	h := newHarness(t, api.URL())
	require.NoError(t, h.auth.Health(context.Background()))

	down := newStubAPI(t)
	down.reply("GET /health", http.StatusServiceUnavailable, map[string]any{"message": "maintenance"})
	h = newHarness(t, down.URL())
	err := h.auth.Health(context.Background())
	assert.Equal(t, http.StatusServiceUnavailable, apierror.StatusOf(err))
}
