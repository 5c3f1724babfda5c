package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ryujihub/MMHHINVmobile/internal/docstore"
	"github.com/ryujihub/MMHHINVmobile/internal/domain"
)

// Marker durably records movements that were handed to the ledger.
// MarkApplied reports true only for the first call per movement id.
type Marker interface {
	MarkApplied(ctx context.Context, movementID string) (bool, error)
}

// StoreMarker keeps one appliedMovements document per movement id in the
// same store as the items, so markers live exactly as long as the stock
// they guard.
type StoreMarker struct {
	store docstore.Store
	now   func() time.Time
}

func NewStoreMarker(store docstore.Store) *StoreMarker {
	return &StoreMarker{store: store, now: time.Now}
}

type appliedDoc struct {
	AppliedAt time.Time `json:"appliedAt"`
}

// MarkApplied upserts the marker; a document that already existed comes
// back with a version above one.
func (m *StoreMarker) MarkApplied(ctx context.Context, movementID string) (bool, error) {
	data, err := json.Marshal(appliedDoc{AppliedAt: m.now().UTC()})
	if err != nil {
		return false, err
	}
	doc, err := m.store.Set(ctx, domain.CollectionApplied, movementID, data)
	if err != nil {
		return false, fmt.Errorf("mark movement %s applied: %w", movementID, err)
	}
	return doc.Version == 1, nil
}
