package providers

import (
	"context"
)

// CacheProvider defines the interface for caching operations
type CacheProvider interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration
	Set(ctx context.Context, key string, value []byte, expirationSeconds int) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// DeletePattern removes every key matching a glob pattern and returns how many were removed
	DeletePattern(ctx context.Context, pattern string) (int, error)

	// Increment atomically adds one to a counter, refreshing its expiration, and returns the new value
	Increment(ctx context.Context, key string, expirationSeconds int) (int64, error)

	// Exists checks if a key exists in cache
	Exists(ctx context.Context, key string) (bool, error)
}
