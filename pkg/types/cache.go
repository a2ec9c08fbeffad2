package types

import (
	"context"
	"time"
)

// Cache is the shared (multi-instance) key/value tier.
// Get returns ErrCacheMiss when the key does not exist.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	SetEx(ctx context.Context, key, value string, expiresAt time.Duration) error
	Del(ctx context.Context, key string) error
}
