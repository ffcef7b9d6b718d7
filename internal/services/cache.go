package services

import (
	"context"
	"time"
)

// Cache is the key/value store behind the rehearsal stats cache
type Cache interface {
	// Ping tests the cache connection
	Ping(ctx context.Context) error

	// Set stores a value with an optional expiration; 0 means no expiry
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error

	// Get returns the value for key, or "" when the key is absent
	Get(ctx context.Context, key string) (string, error)

	Del(ctx context.Context, keys ...string) error

	Exists(ctx context.Context, keys ...string) (bool, error)

	Close() error

	// WaitForConnection pings with retries until the cache answers
	WaitForConnection(ctx context.Context) error
}
