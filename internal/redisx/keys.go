package redisx

import "time"

const (
	// Applied movement marker: applied:{service}:{movement_id} -> "1"
	KeyApplied = "applied:%s:%s"

	// Idempotency create movement: idem:movement:create:{user_id}:{key} -> movement_id
	KeyIdemMovementCreate = "idem:movement:create:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	// TTLClaim bounds how long an unfinished request holds its key.
	TTLClaim = 30 * time.Second
)

// pending marks a claimed key whose request has not finished yet.
const pending = "-"
