//go:build integration

package kv

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *RedisStore {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewRedisClient(fmt.Sprintf("%s:%s", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return NewRedisStore(client)
}

func TestRedisStore(t *testing.T) {
	s := setupRedis(t)
	ctx := context.Background()

	_, found, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.Set(ctx, "session:1", "one", time.Minute))
	v, found, err := s.Get(ctx, "session:1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "one", v)

	ok, err := s.SetNX(ctx, "session:1", "two", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.SetNX(ctx, "claim", "x", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.SAdd(ctx, "user:sessions:u", "1", "2"))
	require.NoError(t, s.SRem(ctx, "user:sessions:u", "2"))
	members, err := s.SMembers(ctx, "user:sessions:u")
	require.NoError(t, err)
	require.Equal(t, []string{"1"}, members)
	require.NoError(t, s.Expire(ctx, "user:sessions:u", time.Hour))

	require.NoError(t, s.Set(ctx, "session:jti:abc", "1", time.Minute))
	keys, err := s.Keys(ctx, "session:*")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"session:1", "session:jti:abc"}, keys)

	require.NoError(t, s.Del(ctx, "session:1", "session:jti:abc"))
	_, found, err = s.Get(ctx, "session:1")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.Set(ctx, "short", "x", 500*time.Microsecond))
	ok, err = s.SetNX(ctx, "short-claim", "x", 500*time.Microsecond)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Expire(ctx, "user:sessions:u", 500*time.Microsecond))
}
