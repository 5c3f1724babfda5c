// Package movements appends stock movements to the movement log. It never
// touches item stock: the reconciler applies every recorded movement.
package movements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ryujihub/MMHHINVmobile/internal/docstore"
	"github.com/ryujihub/MMHHINVmobile/internal/domain"
)

// Items is the ledger lookup the recorder needs.
type Items interface {
	Get(ctx context.Context, itemID string) (domain.Item, error)
	FindByProductCode(ctx context.Context, userID, code string) (domain.Item, error)
}

type Input struct {
	ProductCode string              `json:"productCode"`
	Type        domain.MovementType `json:"type"`
	Quantity    int                 `json:"quantity"`
	Source      string              `json:"source"`
}

type Recorder struct {
	store docstore.Store
	items Items
	log   *zap.Logger
	now   func() time.Time
}

func NewRecorder(store docstore.Store, items Items, log *zap.Logger) *Recorder {
	return &Recorder{
		store: store,
		items: items,
		log:   log.With(zap.String("component", "movements")),
		now:   time.Now,
	}
}

// Record validates and appends a movement for userID. The product code must
// name one of the user's items, and an outgoing quantity may not exceed the
// stock known at this moment.
func (r *Recorder) Record(ctx context.Context, userID string, in Input) (domain.StockMovement, error) {
	if userID == "" {
		return domain.StockMovement{}, domain.NewValidationError("userId", "required")
	}
	mv := domain.StockMovement{
		UserID:      userID,
		ProductCode: strings.TrimSpace(in.ProductCode),
		Type:        domain.MovementType(strings.ToLower(string(in.Type))),
		Quantity:    in.Quantity,
		Source:      in.Source,
		Timestamp:   r.now().UTC(),
	}
	if mv.Source == "" {
		mv.Source = domain.SourceManual
	}
	if err := mv.Validate(); err != nil {
		return domain.StockMovement{}, err
	}
	if !domain.IsMovementSource(mv.Source) {
		return domain.StockMovement{}, domain.NewValidationError("source", `must be "scan", "manual" or "quick-update"`)
	}

	item, err := r.items.FindByProductCode(ctx, userID, mv.ProductCode)
	if err != nil {
		return domain.StockMovement{}, err
	}
	if mv.Type == domain.MovementOut && mv.Quantity > item.CurrentStock {
		return domain.StockMovement{}, &domain.OutOfStockError{ItemID: item.ID, Available: item.CurrentStock, Delta: mv.Delta()}
	}
	return r.append(ctx, mv)
}

// QuickUpdate records amount as an incoming (positive) or outgoing
// (negative) movement for one of the user's items.
func (r *Recorder) QuickUpdate(ctx context.Context, userID, itemID string, amount int) (domain.StockMovement, error) {
	if amount == 0 {
		return domain.StockMovement{}, domain.NewValidationError("amount", "must not be zero")
	}
	item, err := r.items.Get(ctx, itemID)
	if err != nil {
		return domain.StockMovement{}, err
	}
	if item.UserID != userID {
		return domain.StockMovement{}, fmt.Errorf("item %s: %w", itemID, domain.ErrNotFound)
	}
	in := Input{ProductCode: item.ProductCode, Type: domain.MovementIn, Quantity: amount, Source: domain.SourceQuickUpdate}
	if amount < 0 {
		in.Type, in.Quantity = domain.MovementOut, -amount
	}
	return r.Record(ctx, userID, in)
}

func (r *Recorder) Get(ctx context.Context, movementID string) (domain.StockMovement, error) {
	doc, err := r.store.Get(ctx, domain.CollectionMovements, movementID)
	if err != nil {
		return domain.StockMovement{}, fmt.Errorf("get movement %s: %w", movementID, mapNotFound(err))
	}
	return domain.DecodeMovement(doc)
}

// List returns the user's movements, newest first.
func (r *Recorder) List(ctx context.Context, userID string) ([]domain.StockMovement, error) {
	docs, err := r.store.Query(ctx, domain.CollectionMovements, docstore.Where("userId", userID))
	if err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	out := make([]domain.StockMovement, 0, len(docs))
	for i := len(docs) - 1; i >= 0; i-- {
		mv, err := domain.DecodeMovement(docs[i])
		if err != nil {
			r.log.Warn("skipping malformed movement", zap.String("movement_id", docs[i].ID), zap.Error(err))
			continue
		}
		out = append(out, mv)
	}
	return out, nil
}

func (r *Recorder) append(ctx context.Context, mv domain.StockMovement) (domain.StockMovement, error) {
	data, err := domain.EncodeMovement(mv)
	if err != nil {
		return domain.StockMovement{}, fmt.Errorf("encode movement: %w", err)
	}
	doc, err := r.store.Create(ctx, domain.CollectionMovements, data)
	if err != nil {
		return domain.StockMovement{}, fmt.Errorf("failed to record movement: %w", err)
	}
	mv.ID = doc.ID
	r.log.Info("movement recorded",
		zap.String("movement_id", mv.ID),
		zap.String("user_id", mv.UserID),
		zap.String("product_code", mv.ProductCode),
		zap.String("type", string(mv.Type)),
		zap.Int("quantity", mv.Quantity),
		zap.String("source", mv.Source),
	)
	return mv, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.ErrNotFound
	}
	return err
}
