// Package cache provides the process-wide TTL cache used by the
// authorization and linkage layers, plus the coordinator that turns
// write operations into cache entry removal.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when a key is absent or logically expired.
var ErrMiss = errors.New("cache: miss")

// Store is a key/value cache with per-entry time-to-live. Implementations
// must be safe for concurrent use and must never return an entry whose
// TTL has elapsed.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
}
