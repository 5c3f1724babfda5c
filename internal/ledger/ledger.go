// Package ledger owns inventory items and is the only writer of their
// stock quantity.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ryujihub/MMHHINVmobile/internal/docstore"
	"github.com/ryujihub/MMHHINVmobile/internal/domain"
)

type Ledger struct {
	store docstore.Store
	log   *zap.Logger
	now   func() time.Time
}

func New(store docstore.Store, log *zap.Logger) *Ledger {
	return &Ledger{
		store: store,
		log:   log.With(zap.String("component", "ledger")),
		now:   time.Now,
	}
}

// ApplyDelta adds delta to the item's stock in one atomic write. A delta
// that would leave the stock negative fails with *domain.OutOfStockError
// and nothing is written.
func (l *Ledger) ApplyDelta(ctx context.Context, itemID string, delta int) (domain.Item, error) {
	var out domain.Item
	doc, err := l.store.Mutate(ctx, domain.CollectionInventory, itemID, func(cur docstore.Document) (json.RawMessage, error) {
		it, err := domain.DecodeItem(cur)
		if err != nil {
			return nil, err
		}
		next := it.CurrentStock + delta
		if next < 0 {
			return nil, &domain.OutOfStockError{ItemID: itemID, Available: it.CurrentStock, Delta: delta}
		}
		it.CurrentStock = next
		it.LastUpdated = l.now().UTC()
		it.Recompute()
		out = it
		return domain.EncodeItem(it)
	})
	if err != nil {
		return domain.Item{}, mapError(fmt.Sprintf("apply delta %d to item %s", delta, itemID), err)
	}
	out.Version = doc.Version
	l.log.Debug("stock delta applied",
		zap.String("item_id", itemID),
		zap.Int("delta", delta),
		zap.Int("current_stock", out.CurrentStock),
		zap.Int64("version", out.Version),
	)
	return out, nil
}

// Create validates and stores a new item for userID.
func (l *Ledger) Create(ctx context.Context, userID string, d ItemDraft) (domain.Item, error) {
	if userID == "" {
		return domain.Item{}, domain.NewValidationError("userId", "required")
	}
	it := d.item()
	it.UserID = userID

	verr := &domain.ValidationError{}
	requireText(verr, "name", it.Name)
	requireText(verr, "productCode", it.ProductCode)
	requireText(verr, "unit", it.Unit)
	if err := verr.Err(); err != nil {
		return domain.Item{}, err
	}
	if err := it.Validate(); err != nil {
		return domain.Item{}, err
	}
	if err := l.ensureUniqueCode(ctx, userID, it.ProductCode, ""); err != nil {
		return domain.Item{}, err
	}

	now := l.now().UTC()
	it.CreatedAt = now
	it.LastUpdated = now
	it.Recompute()

	data, err := domain.EncodeItem(it)
	if err != nil {
		return domain.Item{}, fmt.Errorf("encode item: %w", err)
	}
	doc, err := l.store.Create(ctx, domain.CollectionInventory, data)
	if err != nil {
		return domain.Item{}, fmt.Errorf("failed to create item: %w", err)
	}
	it.ID = doc.ID
	it.Version = doc.Version
	l.log.Info("item created",
		zap.String("item_id", it.ID),
		zap.String("user_id", userID),
		zap.String("product_code", it.ProductCode),
	)
	return it, nil
}

// Update replaces the supplied fields with the same coercion rules as
// Create and recomputes variance.
func (l *Ledger) Update(ctx context.Context, itemID string, p ItemPatch) (domain.Item, error) {
	cur, err := l.Get(ctx, itemID)
	if err != nil {
		return domain.Item{}, err
	}
	if p.ProductCode != nil {
		code := strings.TrimSpace(string(*p.ProductCode))
		if code != cur.ProductCode {
			if err := l.ensureUniqueCode(ctx, cur.UserID, code, itemID); err != nil {
				return domain.Item{}, err
			}
		}
	}

	var out domain.Item
	doc, err := l.store.Mutate(ctx, domain.CollectionInventory, itemID, func(d docstore.Document) (json.RawMessage, error) {
		it, err := domain.DecodeItem(d)
		if err != nil {
			return nil, err
		}
		if err := p.apply(&it); err != nil {
			return nil, err
		}
		if err := it.Validate(); err != nil {
			return nil, err
		}
		it.LastUpdated = l.now().UTC()
		it.Recompute()
		out = it
		return domain.EncodeItem(it)
	})
	if err != nil {
		return domain.Item{}, mapError("update item "+itemID, err)
	}
	out.Version = doc.Version
	l.log.Info("item updated", zap.String("item_id", itemID), zap.Int64("version", out.Version))
	return out, nil
}

// Delete removes the item. Borrow requests keep their snapshots.
func (l *Ledger) Delete(ctx context.Context, itemID string) error {
	if err := l.store.Delete(ctx, domain.CollectionInventory, itemID); err != nil {
		return mapError("delete item "+itemID, err)
	}
	l.log.Info("item deleted", zap.String("item_id", itemID))
	return nil
}

func (l *Ledger) Get(ctx context.Context, itemID string) (domain.Item, error) {
	doc, err := l.store.Get(ctx, domain.CollectionInventory, itemID)
	if err != nil {
		return domain.Item{}, mapError("get item "+itemID, err)
	}
	return domain.DecodeItem(doc)
}

// List returns the user's items in creation order. Documents that fail
// decoding are logged and left out.
func (l *Ledger) List(ctx context.Context, userID string, f ItemFilter) ([]domain.Item, error) {
	docs, err := l.store.Query(ctx, domain.CollectionInventory, docstore.Where("userId", userID))
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	items := make([]domain.Item, 0, len(docs))
	for _, d := range docs {
		it, err := domain.DecodeItem(d)
		if err != nil {
			l.log.Warn("skipping malformed item", zap.String("item_id", d.ID), zap.Error(err))
			continue
		}
		if f.Match(it) {
			items = append(items, it)
		}
	}
	return items, nil
}

// FindByProductCode returns domain.ErrNotFound when the user has no item
// with that code.
func (l *Ledger) FindByProductCode(ctx context.Context, userID, code string) (domain.Item, error) {
	docs, err := l.store.Query(ctx, domain.CollectionInventory,
		docstore.Where("userId", userID).And("productCode", code))
	if err != nil {
		return domain.Item{}, fmt.Errorf("failed to find item by product code: %w", err)
	}
	for _, d := range docs {
		if it, err := domain.DecodeItem(d); err == nil {
			return it, nil
		}
	}
	return domain.Item{}, fmt.Errorf("product code %q: %w", code, domain.ErrNotFound)
}

func (l *Ledger) ensureUniqueCode(ctx context.Context, userID, code, selfID string) error {
	it, err := l.FindByProductCode(ctx, userID, code)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil
	case err != nil:
		return err
	case it.ID == selfID:
		return nil
	}
	return fmt.Errorf("product code %q: %w", code, domain.ErrAlreadyExists)
}

func mapError(op string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireText(verr *domain.ValidationError, field, v string) {
	if strings.TrimSpace(v) == "" {
		verr.Add(field, "required")
	}
}
