package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jnst/theshop-core/internal/kv"
	"github.com/jnst/theshop-core/internal/model"
)

const (
	idempotencyPrefix      = "idempotency:"
	idempotencyClaimPrefix = "idempotency:claim:"
)

// IdempotencyServiceImpl implements IdempotencyService on a kv.Store.
type IdempotencyServiceImpl struct {
	store    kv.Store
	ttl      time.Duration
	claimTTL time.Duration
}

// NewIdempotencyServiceImpl creates a new IdempotencyService implementation.
// ttl is the default record lifetime; claimTTL bounds how long an in-flight
// request holds its key.
func NewIdempotencyServiceImpl(store kv.Store, ttl, claimTTL time.Duration) IdempotencyService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	if claimTTL <= 0 {
		claimTTL = 30 * time.Second
	}

	return &IdempotencyServiceImpl{store: store, ttl: ttl, claimTTL: claimTTL}
}

// Get returns the stored response for key, or nil when there is none.
func (s *IdempotencyServiceImpl) Get(ctx context.Context, key string) (*model.IdempotencyRecord, error) {
	raw, found, err := s.store.Get(ctx, idempotencyPrefix+key)
	if err != nil {
		return nil, fmt.Errorf("failed to read idempotency record: %w", err)
	}

	if !found {
		return nil, nil
	}

	var rec model.IdempotencyRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		slog.WarnContext(ctx, "discarding unreadable idempotency record",
			slog.String("key", key), slog.String("error", err.Error()))

		return nil, nil
	}

	return &rec, nil
}

// Store saves a response for key. A non-positive ttl uses the default.
func (s *IdempotencyServiceImpl) Store(ctx context.Context, key string, statusCode int, body string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}

	raw, err := json.Marshal(model.IdempotencyRecord{Key: key, StatusCode: statusCode, ResponseBody: body})
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	if err := s.store.Set(ctx, idempotencyPrefix+key, string(raw), ttl); err != nil {
		return fmt.Errorf("failed to store idempotency record: %w", err)
	}

	return nil
}

// TryClaim places a short-lived pending marker for key and reports whether
// this caller owns it. A false result means another request with the same
// key is executing.
func (s *IdempotencyServiceImpl) TryClaim(ctx context.Context, key string) (bool, error) {
	ok, err := s.store.SetNX(ctx, idempotencyClaimPrefix+key, "pending", s.claimTTL)
	if err != nil {
		return false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}

	return ok, nil
}

// Release drops the pending marker for key.
func (s *IdempotencyServiceImpl) Release(ctx context.Context, key string) error {
	if err := s.store.Del(ctx, idempotencyClaimPrefix+key); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}

	return nil
}
