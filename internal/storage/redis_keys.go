package storage

import "time"

const (
	// Namespaced per profile so several CLI profiles can share one Redis.
	KeyPattern = "wallet:%s:%s"

	TTLCredentials = 30 * 24 * time.Hour // 30 days
)
