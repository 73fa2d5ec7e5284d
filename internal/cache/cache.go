package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache: key not found")

// Cache is a minimal key/value cache interface (e.g. Redis).
type Cache interface {
	// Ping checks if the cache is reachable.
	Ping(ctx context.Context) error

	// Set stores a value with the given TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Get retrieves a value by key, or ErrMiss.
	Get(ctx context.Context, key string) (string, error)

	// Del removes a key. No-op if the key does not exist.
	Del(ctx context.Context, key string) error

	// Incr atomically increments a numeric value and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
}

// Noop is the cache used when no Redis is configured. Every read misses.
type Noop struct{}

func (Noop) Ping(context.Context) error { return nil }
func (Noop) Set(context.Context, string, string, time.Duration) error { return nil }
func (Noop) Get(context.Context, string) (string, error) { return "", ErrMiss }
func (Noop) Del(context.Context, string) error { return nil }
func (Noop) Incr(context.Context, string) (int64, error) { return 0, nil }

var _ Cache = Noop{}
