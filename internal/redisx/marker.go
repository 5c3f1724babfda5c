package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Marker records applied stock movements in Redis so a restarted
// reconciler does not apply them twice.
type Marker struct {
	rdb     *redis.Client
	service string
}

// NewMarker keeps markers without expiry: the movement log is replayed in
// full on every start.
func NewMarker(rdb *redis.Client, service string) *Marker {
	return &Marker{rdb: rdb, service: service}
}

func (m *Marker) MarkApplied(ctx context.Context, movementID string) (bool, error) {
	ok, err := m.rdb.SetNX(ctx, fmt.Sprintf(KeyApplied, m.service, movementID), "1", 0).Result()
	if err != nil {
		return false, fmt.Errorf("mark movement %s: %w", movementID, err)
	}
	return ok, nil
}
