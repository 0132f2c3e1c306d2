package storage_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"miniapp-wallet-client/internal/config"
	"miniapp-wallet-client/internal/models"
	"miniapp-wallet-client/internal/storage"
)

func TestRedisStore(t *testing.T) {
	cfg := &config.Config{
		RedisURL:       "localhost:6379",
		RedisPass:      "",
		RedisDB:        0,
		RedisNamespace: "test-" + uuid.NewString(),
	}

	store, err := storage.NewRedisStore(cfg)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	defer store.Clear(ctx)

	exerciseStore(t, store)
}

func TestRedisStore_KeepsRefreshTokenWhenOmitted(t *testing.T) {
	cfg := &config.Config{
		RedisURL:       "localhost:6379",
		RedisNamespace: "test-" + uuid.NewString(),
	}

	store, err := storage.NewRedisStore(cfg)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	defer store.Clear(ctx)

	if err := store.SaveTokens(ctx, "access-1", "refresh-1"); err != nil {
		t.Fatalf("SaveTokens: %v", err)
	}
	if err := store.SaveTokens(ctx, "access-2", ""); err != nil {
		t.Fatalf("SaveTokens: %v", err)
	}

	session, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if session.AccessToken != "access-2" || session.RefreshToken != "refresh-1" {
		t.Errorf("session = %+v", session)
	}

	if err := store.SaveUser(ctx, &models.User{ID: "7"}); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	if err := store.SaveUser(ctx, nil); err != nil {
		t.Fatalf("SaveUser(nil): %v", err)
	}
	session, _ = store.Load(ctx)
	if session.User != nil {
		t.Errorf("user should be removed, got %+v", session.User)
	}
}
