package services_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miniapp-wallet-client/internal/apierror"
	"miniapp-wallet-client/internal/models"
	"miniapp-wallet-client/internal/services"
)

func TestSession_LoginAndLogout(t *testing.T) {
	api := newStubAPI(t)
	api.reply("POST /api/auth/login", http.StatusOK, ok(map[string]any{
		"access_token": "a", "refresh_token": "r",
		"user": map[string]any{"id": 1, "first_name": "Ada", "balance": 2500},
	}))
	h := newHarness(t, api.URL())
	ctx := context.Background()

	assert.Equal(t, services.StateUnauthenticated, h.session.State())

	var reasons []services.Reason
	h.session.OnLogout(func(r services.Reason) { reasons = append(reasons, r) })

	user, err := h.session.Login(ctx, models.TelegramLogin("init"))
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.FirstName)
	assert.Equal(t, services.StateAuthenticated, h.session.State())
	assert.True(t, h.session.IsAuthenticated(ctx))
	assert.Equal(t, user, h.session.User())

	b, valid := h.cache.Authoritative()
	require.True(t, valid, "login seeds the balance cache from the profile")
	assert.True(t, b.Equal(decimal.NewFromInt(2500)))

	require.NoError(t, h.session.Logout(ctx))
	assert.Equal(t, services.StateLoggedOut, h.session.State())
	assert.False(t, h.session.IsAuthenticated(ctx))
	assert.Nil(t, h.session.User())
	assert.Equal(t, []services.Reason{services.ReasonUserLogout}, reasons)

	session, _ := h.store.Load(ctx)
	assert.Equal(t, models.Session{}, session, "logout clears every stored credential")
	_, known := h.cache.Snapshot()
	assert.False(t, known)

	_, err = h.session.Login(ctx, models.TelegramLogin("init"))
	require.NoError(t, err, "login is allowed again after logout")
	assert.Equal(t, services.StateAuthenticated, h.session.State())
}

func TestSession_LoginFailure(t *testing.T) {
	api := newStubAPI(t)
	api.reply("POST /api/auth/login", http.StatusUnauthorized, map[string]any{"message": "bad init data"})
	h := newHarness(t, api.URL())

	_, err := h.session.Login(context.Background(), models.TelegramLogin("init"))
	require.Error(t, err)
	assert.True(t, apierror.IsAuth(err))
	assert.Equal(t, services.StateUnauthenticated, h.session.State())
}

func TestSession_LoginProfileFailureLeavesNoSession(t *testing.T) {
	api := newStubAPI(t)
	api.reply("POST /api/auth/login", http.StatusOK, map[string]any{"access_token": "access-1", "refresh_token": "r1"})
	api.reply("GET /api/auth/me", http.StatusInternalServerError, map[string]any{"message": "database down"})
	h := newHarness(t, api.URL())
	ctx := context.Background()

	_, err := h.session.Login(ctx, models.TelegramLogin("init"))
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apierror.StatusOf(err))

	assert.Equal(t, services.StateUnauthenticated, h.session.State())
	assert.False(t, h.session.IsAuthenticated(ctx))
	session, _ := h.store.Load(ctx)
	assert.Equal(t, models.Session{}, session, "a failed login must not leave tokens behind")

	require.NoError(t, h.session.Restore(ctx))
	assert.Equal(t, services.StateUnauthenticated, h.session.State())
}

func TestSession_LoginSeedsZeroBalance(t *testing.T) {
	api := newStubAPI(t)
	api.reply("POST /api/auth/login", http.StatusOK, map[string]any{
		"access_token": "a", "user": map[string]any{"id": 1, "balance": 0},
	})
	h := newHarness(t, api.URL())

	_, err := h.session.Login(context.Background(), models.TelegramLogin("init"))
	require.NoError(t, err)

	b, valid := h.cache.Authoritative()
	require.True(t, valid, "a zero balance is still a server reading")
	assert.True(t, b.IsZero())
}

func TestSession_LoginWithoutBalanceLeavesCacheUnknown(t *testing.T) {
	api := newStubAPI(t)
	api.reply("POST /api/auth/login", http.StatusOK, map[string]any{
		"access_token": "a", "user": map[string]any{"id": 1},
	})
	h := newHarness(t, api.URL())

	_, err := h.session.Login(context.Background(), models.TelegramLogin("init"))
	require.NoError(t, err)

	_, known := h.cache.Snapshot()
	assert.False(t, known)
}

func TestSession_LoginInProgress(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once

	api := newStubAPI(t)
	api.handle("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(entered) })
		<-release
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "a", "user": map[string]any{"id": 1}})
	})
	h := newHarness(t, api.URL())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := h.session.Login(ctx, models.TelegramLogin("init"))
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first login never reached the server")
	}
	assert.Equal(t, services.StateAuthenticating, h.session.State())

	_, err := h.session.Login(ctx, models.TelegramLogin("init"))
	assert.ErrorIs(t, err, services.ErrLoginInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, services.StateAuthenticated, h.session.State())
}

func TestSession_RefreshFailureForcesLogout(t *testing.T) {
	api := newStubAPI(t)
	api.reply("GET /api/wallet/balance", http.StatusUnauthorized, map[string]any{"message": "token expired"})
	api.reply("POST /api/auth/refresh", http.StatusUnauthorized, map[string]any{"message": "refresh expired"})
	h := newHarness(t, api.URL())
	ctx := context.Background()

	require.NoError(t, h.store.SaveTokens(ctx, "stale", "stale-refresh"))
	require.NoError(t, h.store.SaveUser(ctx, &models.User{ID: "1"}))
	require.NoError(t, h.session.Restore(ctx))
	require.Equal(t, services.StateAuthenticated, h.session.State())

	reasons := make(chan services.Reason, 1)
	h.session.OnLogout(func(r services.Reason) { reasons <- r })

	_, err := h.wallet.GetBalance(ctx)
	require.Error(t, err)
	assert.True(t, apierror.IsAuth(err))

	assert.Equal(t, services.ReasonExpired, <-reasons)
	assert.Equal(t, services.StateLoggedOut, h.session.State())
	assert.False(t, h.session.IsAuthenticated(ctx))

	session, _ := h.store.Load(ctx)
	assert.False(t, session.HasToken())
	assert.Empty(t, session.RefreshToken)
	assert.Nil(t, session.User)
	assert.Equal(t, 1, api.countPath("/api/auth/refresh"))
}

func TestSession_RefreshServerErrorKeepsSession(t *testing.T) {
	api := newStubAPI(t)
	api.reply("GET /api/wallet/balance", http.StatusUnauthorized, map[string]any{"message": "token expired"})
	api.reply("POST /api/auth/refresh", http.StatusBadGateway, map[string]any{"message": "upstream down"})
	h := newHarness(t, api.URL())
	ctx := context.Background()

	require.NoError(t, h.store.SaveTokens(ctx, "stale", "stale-refresh"))
	require.NoError(t, h.session.Restore(ctx))

	logouts := 0
	h.session.OnLogout(func(services.Reason) { logouts++ })

	_, err := h.wallet.GetBalance(ctx)
	require.Error(t, err)
	assert.False(t, apierror.IsAuth(err))
	assert.Equal(t, http.StatusBadGateway, apierror.StatusOf(err))

	assert.Zero(t, logouts)
	assert.Equal(t, services.StateAuthenticated, h.session.State())
	session, _ := h.store.Load(ctx)
	assert.Equal(t, "stale", session.AccessToken)
	assert.Equal(t, "stale-refresh", session.RefreshToken)
}

func TestSession_RefreshAndReplayKeepsSession(t *testing.T) {
	api := newStubAPI(t)
	api.handle("GET /api/wallet/balance", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "token expired"})
			return
		}
		writeJSON(w, http.StatusOK, ok(map[string]any{"balance": 75}))
	})
	api.reply("POST /api/auth/refresh", http.StatusOK, map[string]any{"access_token": "fresh"})
	h := newHarness(t, api.URL())
	ctx := context.Background()

	require.NoError(t, h.store.SaveTokens(ctx, "stale", "r"))
	require.NoError(t, h.session.Restore(ctx))

	balance, err := h.wallet.GetBalance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(decimal.NewFromInt(75)))
	assert.Equal(t, services.StateAuthenticated, h.session.State())
	assert.Equal(t, 2, api.countPath("/api/wallet/balance"))
}

func TestSession_CurrentUserRequiresLogin(t *testing.T) {
	api := newStubAPI(t)
	h := newHarness(t, api.URL())

	_, err := h.session.CurrentUser(context.Background())
	assert.True(t, apierror.IsAuth(err))
	assert.Zero(t, api.count())
}

func TestSession_Restore(t *testing.T) {
	api := newStubAPI(t)
	h := newHarness(t, api.URL())
	ctx := context.Background()

	require.NoError(t, h.session.Restore(ctx))
	assert.Equal(t, services.StateUnauthenticated, h.session.State())

	require.NoError(t, h.store.SaveTokens(ctx, "a", ""))
	require.NoError(t, h.store.SaveUser(ctx, &models.User{ID: "7", Username: "restored"}))
	require.NoError(t, h.session.Restore(ctx))
	assert.Equal(t, services.StateAuthenticated, h.session.State())
	require.NotNil(t, h.session.User())
	assert.Equal(t, "restored", h.session.User().Username)
	assert.Zero(t, api.count(), "restore does not contact the server")
}
