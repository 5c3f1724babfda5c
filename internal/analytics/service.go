package analytics

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ryujihub/MMHHINVmobile/internal/docstore"
	"github.com/ryujihub/MMHHINVmobile/internal/domain"
	"github.com/ryujihub/MMHHINVmobile/internal/ledger"
)

// ItemLister is the ledger read the dashboard needs.
type ItemLister interface {
	List(ctx context.Context, userID string, f ledger.ItemFilter) ([]domain.Item, error)
}

// Service loads a user's items and sales history and aggregates them.
type Service struct {
	items ItemLister
	store docstore.Store
	log   *zap.Logger
}

func NewService(items ItemLister, store docstore.Store, log *zap.Logger) *Service {
	return &Service{items: items, store: store, log: log.With(zap.String("component", "analytics"))}
}

func (s *Service) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	items, err := s.items.List(ctx, userID, ledger.ItemFilter{})
	if err != nil {
		return Dashboard{}, err
	}
	docs, err := s.store.Query(ctx, domain.CollectionSales, docstore.Where("userId", userID))
	if err != nil {
		return Dashboard{}, fmt.Errorf("failed to load sales: %w", err)
	}
	sales := make([]domain.Sale, 0, len(docs))
	for _, d := range docs {
		sale, err := domain.DecodeSale(d)
		if err != nil {
			s.log.Warn("skipping malformed sale", zap.String("sale_id", d.ID), zap.Error(err))
			continue
		}
		sales = append(sales, sale)
	}
	return Aggregate(items, sales...), nil
}
