package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"miniapp-wallet-client/internal/config"
	"miniapp-wallet-client/internal/models"
)

type RedisStore struct {
	client    *redis.Client
	namespace string
}

func NewRedisStore(cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	namespace := cfg.RedisNamespace
	if namespace == "" {
		namespace = "default"
	}
	return NewRedisStoreFromClient(client, namespace), nil
}

func NewRedisStoreFromClient(client *redis.Client, namespace string) *RedisStore {
	return &RedisStore{client: client, namespace: namespace}
}

func (s *RedisStore) key(name string) string {
	return fmt.Sprintf(KeyPattern, s.namespace, name)
}

func (s *RedisStore) Load(ctx context.Context) (models.Session, error) {
	var session models.Session

	vals, err := s.client.MGet(ctx,
		s.key(KeyAccessToken),
		s.key(KeyRefreshToken),
		s.key(KeyUserData),
	).Result()
	if err != nil {
		return session, fmt.Errorf("failed to load credentials: %w", err)
	}

	if v, ok := vals[0].(string); ok {
		session.AccessToken = v
	}
	if v, ok := vals[1].(string); ok {
		session.RefreshToken = v
	}
	if v, ok := vals[2].(string); ok && v != "" {
		var user models.User
		if err := json.Unmarshal([]byte(v), &user); err != nil {
			return session, fmt.Errorf("failed to decode stored user: %w", err)
		}
		session.User = &user
	}
	return session, nil
}

func (s *RedisStore) SaveTokens(ctx context.Context, accessToken, refreshToken string) error {
	tx := s.client.TxPipeline()
	tx.Set(ctx, s.key(KeyAccessToken), accessToken, TTLCredentials)
	if refreshToken != "" {
		tx.Set(ctx, s.key(KeyRefreshToken), refreshToken, TTLCredentials)
	}
	if _, err := tx.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return s.client.Del(ctx, s.key(KeyUserData)).Err()
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := s.client.Set(ctx, s.key(KeyUserData), data, TTLCredentials).Err(); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	err := s.client.Del(ctx,
		s.key(KeyAccessToken),
		s.key(KeyRefreshToken),
		s.key(KeyUserData),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
