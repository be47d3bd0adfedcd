package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/worker-portal/internal/auth"
	"github.com/spec-kit/worker-portal/internal/domain"
)

// Runs against a live server when REDIS_ADDR is set.
func TestRedisStoreAgainstServer(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	sealer, err := auth.NewSealer("secret")
	require.NoError(t, err)
	store := NewSealedStore(NewRedisStore(client, time.Minute), sealer)
	sid := auth.NewSessionID()
	t.Cleanup(func() { _ = store.Delete(ctx, sid) })

	_, err = store.Load(ctx, sid)
	assert.ErrorIs(t, err, ErrNotFound)

	rec := Record{Token: "tok-1", Profile: domain.WorkerProfile{ID: "9", Username: "jdoe", Department: "Roads"}}
	require.NoError(t, store.Save(ctx, sid, rec))

	raw, err := client.HGet(ctx, redisKeyPrefix+sid, KeyToken).Result()
	require.NoError(t, err)
	assert.NotEqual(t, "tok-1", raw, "token is sealed at rest")

	got, err := store.Load(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	ttl, err := client.TTL(ctx, redisKeyPrefix+sid).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Delete(ctx, sid))
	_, err = store.Load(ctx, sid)
	assert.ErrorIs(t, err, ErrNotFound)
}
