package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

const scanCount = 500

// RedisStore implements Store using rueidis.
type RedisStore struct {
	client rueidis.Client
}

// NewRedisStore wraps an existing rueidis client.
func NewRedisStore(client rueidis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient connects to the Redis server at addr.
func NewRedisClient(addr string) (rueidis.Client, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// Get returns the value stored at key.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if rueidis.IsRedisNil(err) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}

	return v, true, nil
}

// millis converts ttl to whole milliseconds for PX and PEXPIRE. A positive
// ttl never becomes 0.
func millis(ttl time.Duration) int64 {
	if ttl > 0 && ttl < time.Millisecond {
		return 1
	}

	return ttl.Milliseconds()
}

// Set stores value at key with ttl.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = s.client.B().Set().Key(key).Value(value).PxMilliseconds(millis(ttl)).Build()
	} else {
		cmd = s.client.B().Set().Key(key).Value(value).Build()
	}

	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

// SetNX stores value at key only if the key does not exist.
func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = s.client.B().Set().Key(key).Value(value).Nx().PxMilliseconds(millis(ttl)).Build()
	} else {
		cmd = s.client.B().Set().Key(key).Value(value).Nx().Build()
	}

	err := s.client.Do(ctx, cmd).Error()
	if rueidis.IsRedisNil(err) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}

	return true, nil
}

// Del removes keys.
func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if err := s.client.Do(ctx, s.client.B().Del().Key(keys...).Build()).Error(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// SAdd adds members to the set at key.
func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	if err := s.client.Do(ctx, s.client.B().Sadd().Key(key).Member(members...).Build()).Error(); err != nil {
		return fmt.Errorf("redis sadd %s: %w", key, err)
	}

	return nil
}

// SRem removes members from the set at key.
func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	if err := s.client.Do(ctx, s.client.B().Srem().Key(key).Member(members...).Build()).Error(); err != nil {
		return fmt.Errorf("redis srem %s: %w", key, err)
	}

	return nil
}

// SMembers returns the members of the set at key.
func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.Do(ctx, s.client.B().Smembers().Key(key).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", key, err)
	}

	return members, nil
}

// Expire sets the ttl of key.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	cmd := s.client.B().Pexpire().Key(key).Milliseconds(millis(ttl)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis expire %s: %w", key, err)
	}

	return nil
}

// Keys walks the keyspace with SCAN and returns the keys matching pattern.
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)

	for {
		entry, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanCount).Build(),
		).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("redis scan %s: %w", pattern, err)
		}

		keys = append(keys, entry.Elements...)

		cursor = entry.Cursor
		if cursor == 0 {
			return keys, nil
		}
	}
}
