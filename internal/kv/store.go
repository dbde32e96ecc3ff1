// Package kv provides the key-value store backing sessions and the idempotency cache.
package kv

import (
	"context"
	"time"
)

// Store is a minimal key-value contract with per-key expiry. Single-key
// operations are atomic; nothing spans multiple keys. Get returns
// found=false for an absent key rather than an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set writes value with ttl. A non-positive ttl stores without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Keys returns every key matching the glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
}
