// Package docstore is the gateway to the document database. Every entity
// the service persists lives in a named collection as a JSON document, and
// every committed write is broadcast to live subscribers of that collection.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("document not found")

// Kind tags a change delivered to subscribers.
type Kind string

const (
	Added    Kind = "added"
	Modified Kind = "modified"
	Removed  Kind = "removed"
)

// Document is a stored JSON document. Version increases by one on every
// committed write and is owned by the store.
type Document struct {
	ID        string          `json:"id"`
	Version   int64           `json:"version"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Change is one entry of a collection's change stream. For Removed changes
// Doc carries the last committed data.
type Change struct {
	Kind       Kind     `json:"kind"`
	Collection string   `json:"collection"`
	Doc        Document `json:"doc"`
}

// Handler receives changes of one subscription, one at a time and in the
// order the store applied them.
type Handler func(Change)

// Subscription is released with Unsubscribe. It must not be called from
// inside its own Handler.
type Subscription interface {
	Unsubscribe()
}

// MutateFunc returns the replacement data for the current document. A
// non-nil error aborts the mutation and nothing is written.
type MutateFunc func(current Document) (json.RawMessage, error)

// Store is the document-store capability used by the ledger, the
// reconciler, the borrowing manager and the API.
type Store interface {
	Create(ctx context.Context, collection string, data json.RawMessage) (Document, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	// Set replaces the whole document, creating it when missing.
	Set(ctx context.Context, collection, id string, data json.RawMessage) (Document, error)
	// Mutate is an atomic read-modify-write of a single document.
	Mutate(ctx context.Context, collection, id string, fn MutateFunc) (Document, error)
	Delete(ctx context.Context, collection, id string) error
	// Query returns matching documents in creation order.
	Query(ctx context.Context, collection string, filter Filter) ([]Document, error)
	// Subscribe delivers the matching documents as Added, then every later
	// matching change, until Unsubscribe or ctx is done.
	Subscribe(ctx context.Context, collection string, filter Filter, h Handler) (Subscription, error)
}
