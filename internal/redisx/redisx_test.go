package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestMarker(t *testing.T) {
	rdb, mr := newClient(t)
	ctx := context.Background()
	m := NewMarker(rdb, "reconciler")

	ok, err := m.MarkApplied(ctx, "mv1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.MarkApplied(ctx, "mv1")
	require.NoError(t, err)
	assert.False(t, ok, "second mark is a duplicate")
	assert.True(t, mr.Exists("applied:reconciler:mv1"))
	assert.Zero(t, mr.TTL("applied:reconciler:mv1"))

	mr.FastForward(365 * 24 * time.Hour)
	ok, err = m.MarkApplied(ctx, "mv1")
	require.NoError(t, err)
	assert.False(t, ok, "markers never expire")
}

func TestMarker_RedisDown(t *testing.T) {
	rdb, mr := newClient(t)
	mr.Close()
	_, err := NewMarker(rdb, "reconciler").MarkApplied(context.Background(), "mv1")
	assert.Error(t, err)
}

func TestIdempotency(t *testing.T) {
	rdb, mr := newClient(t)
	ctx := context.Background()
	idem := NewIdempotency(rdb)

	claimed, existing, err := idem.Claim(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Empty(t, existing)

	claimed, existing, err = idem.Claim(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.False(t, claimed, "in flight")
	assert.Empty(t, existing)

	require.NoError(t, idem.Complete(ctx, "u1", "k1", "mv-9"))
	claimed, existing, err = idem.Claim(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "mv-9", existing)
	assert.Equal(t, TTLIdempotency, mr.TTL("idem:movement:create:u1:k1"))

	claimed, _, err = idem.Claim(ctx, "u2", "k1")
	require.NoError(t, err)
	assert.True(t, claimed, "keys are scoped per user")

	require.NoError(t, idem.Release(ctx, "u2", "k1"))
	claimed, _, err = idem.Claim(ctx, "u2", "k1")
	require.NoError(t, err)
	assert.True(t, claimed)
}
