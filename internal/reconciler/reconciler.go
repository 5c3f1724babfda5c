// Package reconciler keeps item stock in step with the stock movement log.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ryujihub/MMHHINVmobile/internal/docstore"
	"github.com/ryujihub/MMHHINVmobile/internal/domain"
)

// StockApplier is the ledger operation the reconciler needs.
type StockApplier interface {
	ApplyDelta(ctx context.Context, itemID string, delta int) (domain.Item, error)
}

type Config struct {
	// UserID limits both streams to one owner. Empty means every user.
	UserID string
	// Buffer is the capacity of each stream channel.
	Buffer int
	// Window is how many recently applied movements are remembered in
	// memory. Older ones are still caught by the Marker.
	Window int
}

type Stats struct {
	Applied int64
	Skipped int64
}

type Reconciler struct {
	store  docstore.Store
	ledger StockApplier
	marker Marker
	cache  *ItemCache
	cfg    Config
	log    *zap.Logger

	// movement id -> item version produced by its delta, oldest first in
	// appliedOrder; loop goroutine only
	applied      map[string]int64
	appliedOrder []string

	nApplied atomic.Int64
	nSkipped atomic.Int64
}

func New(store docstore.Store, ledger StockApplier, marker Marker, cfg Config, log *zap.Logger) *Reconciler {
	if marker == nil {
		marker = NewStoreMarker(store)
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.Window <= 0 {
		cfg.Window = 4096
	}
	return &Reconciler{
		store:   store,
		ledger:  ledger,
		marker:  marker,
		cache:   NewItemCache(),
		cfg:     cfg,
		log:     log.With(zap.String("component", "reconciler")),
		applied: make(map[string]int64),
	}
}

// Cache exposes the reconciler's item view for read-only use.
func (r *Reconciler) Cache() *ItemCache { return r.cache }

func (r *Reconciler) Stats() Stats {
	return Stats{Applied: r.nApplied.Load(), Skipped: r.nSkipped.Load()}
}

func (r *Reconciler) scope() docstore.Filter {
	if r.cfg.UserID == "" {
		return nil
	}
	return docstore.Where("userId", r.cfg.UserID)
}

// Run subscribes to the inventory and movement streams and reconciles until
// ctx is done. Both subscriptions are released before Run returns.
func (r *Reconciler) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	// prime the cache so the movement snapshot resolves against real items
	docs, err := r.store.Query(ctx, domain.CollectionInventory, r.scope())
	if err != nil {
		cancel()
		return fmt.Errorf("prime item cache: %w", err)
	}
	for _, d := range docs {
		if _, err := r.cache.Apply(docstore.Change{Kind: docstore.Added, Collection: domain.CollectionInventory, Doc: d}); err != nil {
			r.log.Warn("malformed item ignored", zap.String("item_id", d.ID), zap.Error(err))
		}
	}

	itemsCh := make(chan docstore.Change, r.cfg.Buffer)
	movesCh := make(chan docstore.Change, r.cfg.Buffer)
	forward := func(out chan<- docstore.Change) docstore.Handler {
		return func(c docstore.Change) {
			select {
			case out <- c:
			case <-ctx.Done():
			}
		}
	}

	itemSub, err := r.store.Subscribe(ctx, domain.CollectionInventory, r.scope(), forward(itemsCh))
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe inventory: %w", err)
	}
	moveSub, err := r.store.Subscribe(ctx, domain.CollectionMovements, r.scope(), forward(movesCh))
	if err != nil {
		cancel()
		itemSub.Unsubscribe()
		return fmt.Errorf("subscribe movements: %w", err)
	}
	defer func() {
		cancel()
		moveSub.Unsubscribe()
		itemSub.Unsubscribe()
	}()

	r.log.Info("reconciler started", zap.String("user_id", r.cfg.UserID), zap.Int("items", r.cache.Len()))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped", zap.Int64("applied", r.nApplied.Load()), zap.Int64("skipped", r.nSkipped.Load()))
			return nil
		case c := <-itemsCh:
			r.applyItem(c)
		case c := <-movesCh:
			// fold pending item changes first so the guard sees the freshest stock
			r.drainItems(itemsCh)
			if err := r.HandleMovement(ctx, c); err != nil {
				r.report(err)
			}
		}
	}
}

func (r *Reconciler) drainItems(ch <-chan docstore.Change) {
	for {
		select {
		case c := <-ch:
			r.applyItem(c)
		default:
			return
		}
	}
}

func (r *Reconciler) applyItem(c docstore.Change) {
	if _, err := r.cache.Apply(c); err != nil {
		r.log.Warn("malformed item ignored", zap.String("item_id", c.Doc.ID), zap.Error(err))
	}
}

// HandleMovement reconciles one movement change. A non-nil result is always
// a *domain.ReconciliationSkipped. It must only be called from the
// goroutine that owns the cache.
func (r *Reconciler) HandleMovement(ctx context.Context, c docstore.Change) error {
	if c.Kind == docstore.Removed {
		return nil
	}
	mv, err := domain.DecodeMovement(c.Doc)
	if err != nil {
		return r.skip(domain.StockMovement{ID: c.Doc.ID}, domain.SkipMalformed, err)
	}

	item, reason := r.cache.Resolve(mv.UserID, mv.ProductCode)
	if reason != "" {
		return r.skip(mv, reason, nil)
	}

	if v, ok := r.applied[mv.ID]; ok {
		if item.Version >= v {
			return r.skip(mv, domain.SkipAlreadyObserved, nil)
		}
		return r.skip(mv, domain.SkipAlreadyApplied, nil)
	}

	// nothing is applied without a recorded marker
	first, err := r.marker.MarkApplied(ctx, mv.ID)
	if err != nil {
		return r.skip(mv, domain.SkipMarkerFailed, err)
	}
	if !first {
		return r.skip(mv, domain.SkipAlreadyApplied, nil)
	}

	delta := mv.Delta()
	updated, err := r.ledger.ApplyDelta(ctx, item.ID, delta)
	if err != nil {
		return r.skip(mv, domain.SkipApplyFailed, err)
	}
	r.remember(mv.ID, updated.Version)
	r.cache.Put(updated)
	r.nApplied.Add(1)
	r.log.Info("movement applied",
		zap.String("movement_id", mv.ID),
		zap.String("item_id", item.ID),
		zap.String("product_code", mv.ProductCode),
		zap.Int("delta", delta),
		zap.Int("current_stock", updated.CurrentStock),
	)
	return nil
}

func (r *Reconciler) remember(movementID string, version int64) {
	if len(r.appliedOrder) >= r.cfg.Window {
		delete(r.applied, r.appliedOrder[0])
		r.appliedOrder = r.appliedOrder[1:]
	}
	r.applied[movementID] = version
	r.appliedOrder = append(r.appliedOrder, movementID)
}

func (r *Reconciler) skip(mv domain.StockMovement, reason string, cause error) error {
	r.nSkipped.Add(1)
	return &domain.ReconciliationSkipped{
		MovementID:  mv.ID,
		ProductCode: mv.ProductCode,
		Reason:      reason,
		Cause:       cause,
	}
}

func (r *Reconciler) report(err error) {
	var skip *domain.ReconciliationSkipped
	if !errors.As(err, &skip) {
		r.log.Error("reconcile failed", zap.Error(err))
		return
	}
	fields := []zap.Field{
		zap.String("movement_id", skip.MovementID),
		zap.String("product_code", skip.ProductCode),
		zap.String("reason", skip.Reason),
	}
	switch skip.Reason {
	case domain.SkipApplyFailed, domain.SkipMalformed, domain.SkipMarkerFailed:
		r.log.Warn("movement skipped", append(fields, zap.Error(skip.Cause))...)
	case domain.SkipAlreadyObserved, domain.SkipAlreadyApplied:
		r.log.Debug("movement skipped", fields...)
	default:
		r.log.Info("movement skipped", fields...)
	}
}
