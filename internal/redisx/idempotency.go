package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Idempotency remembers which movement an Idempotency-Key produced.
type Idempotency struct {
	rdb *redis.Client
}

func NewIdempotency(rdb *redis.Client) *Idempotency {
	return &Idempotency{rdb: rdb}
}

// Claim reserves key for the calling request. When the key is already
// taken it returns the movement id stored for it, which is empty while the
// first request is still running.
func (i *Idempotency) Claim(ctx context.Context, userID, key string) (bool, string, error) {
	k := fmt.Sprintf(KeyIdemMovementCreate, userID, key)
	ok, err := i.rdb.SetNX(ctx, k, pending, TTLClaim).Result()
	if err != nil {
		return false, "", fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return true, "", nil
	}
	v, err := i.rdb.Get(ctx, k).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// expired between SETNX and GET
		return i.Claim(ctx, userID, key)
	case err != nil:
		return false, "", fmt.Errorf("read idempotency key: %w", err)
	case v == pending:
		return false, "", nil
	}
	return false, v, nil
}

// Complete stores the created movement id for TTLIdempotency.
func (i *Idempotency) Complete(ctx context.Context, userID, key, movementID string) error {
	return i.rdb.Set(ctx, fmt.Sprintf(KeyIdemMovementCreate, userID, key), movementID, TTLIdempotency).Err()
}

// Release frees a claim whose request failed.
func (i *Idempotency) Release(ctx context.Context, userID, key string) error {
	return i.rdb.Del(ctx, fmt.Sprintf(KeyIdemMovementCreate, userID, key)).Err()
}
