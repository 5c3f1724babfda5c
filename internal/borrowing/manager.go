// Package borrowing runs the borrow request lifecycle
// pending -> approved -> returned on top of the item ledger.
package borrowing

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

// Items is the slice of the ledger the manager depends on.
type Items interface {
	Get(ctx context.Context, itemID string) (domain.Item, error)
	ApplyDelta(ctx context.Context, itemID string, delta int) (domain.Item, error)
}

type SubmitInput struct {
	ItemID             string    `json:"itemId"`
	Quantity           int       `json:"quantity"`
	Purpose            string    `json:"purpose"`
	ExpectedReturnDate time.Time `json:"expectedReturnDate"`
	RequestedBy        string    `json:"requestedBy"`
}

type Manager struct {
	store docstore.Store
	items Items
	log   *zap.Logger
	now   func() time.Time
}

func NewManager(store docstore.Store, items Items, log *zap.Logger) *Manager {
	return &Manager{
		store: store,
		items: items,
		log:   log.With(zap.String("component", "borrowing")),
		now:   time.Now,
	}
}

// Submit creates a pending request. Stock is checked but not reserved.
func (m *Manager) Submit(ctx context.Context, in SubmitInput) (domain.BorrowRequest, error) {
	verr := &domain.ValidationError{}
	if strings.TrimSpace(in.ItemID) == "" {
		verr.Add("itemId", "required")
	}
	if strings.TrimSpace(in.Purpose) == "" {
		verr.Add("purpose", "required")
	}
	if in.ExpectedReturnDate.IsZero() {
		verr.Add("expectedReturnDate", "required")
	}
	if in.Quantity <= 0 {
		verr.Add("quantity", "must be a positive integer")
	}
	if strings.TrimSpace(in.RequestedBy) == "" {
		verr.Add("requestedBy", "required")
	}
	if err := verr.Err(); err != nil {
		return domain.BorrowRequest{}, err
	}

	item, err := m.items.Get(ctx, in.ItemID)
	if err != nil {
		return domain.BorrowRequest{}, err
	}
	if item.UserID != in.RequestedBy {
		return domain.BorrowRequest{}, fmt.Errorf("item %s: %w", in.ItemID, domain.ErrNotFound)
	}
	if !domain.IsBorrowable(item.Category) {
		return domain.BorrowRequest{}, domain.NewValidationError("itemId",
			fmt.Sprintf("items in category %q cannot be borrowed", item.Category))
	}
	if in.Quantity > item.CurrentStock {
		return domain.BorrowRequest{}, domain.NewValidationError("quantity",
			fmt.Sprintf("requested %d exceeds available stock %d", in.Quantity, item.CurrentStock))
	}

	req := domain.BorrowRequest{
		ItemID:             item.ID,
		ItemName:           item.Name,
		ItemCategory:       item.Category,
		ItemUnit:           item.Unit,
		CurrentStock:       item.CurrentStock,
		Quantity:           in.Quantity,
		Purpose:            strings.TrimSpace(in.Purpose),
		ExpectedReturnDate: in.ExpectedReturnDate.UTC(),
		Status:             domain.BorrowPending,
		RequestedBy:        in.RequestedBy,
		RequestedAt:        m.now().UTC(),
	}
	data, err := domain.EncodeBorrowRequest(req)
	if err != nil {
		return domain.BorrowRequest{}, fmt.Errorf("encode borrow request: %w", err)
	}
	doc, err := m.store.Create(ctx, domain.CollectionBorrows, data)
	if err != nil {
		return domain.BorrowRequest{}, fmt.Errorf("failed to create borrow request: %w", err)
	}
	req.ID = doc.ID
	req.Version = doc.Version
	m.log.Info("borrow request submitted",
		zap.String("request_id", req.ID),
		zap.String("item_id", req.ItemID),
		zap.Int("quantity", req.Quantity),
		zap.String("requested_by", req.RequestedBy),
	)
	return req, nil
}

// Approve moves a pending request to approved. Stock is not touched. Only
// the requester sees the request; anyone else gets domain.ErrNotFound.
func (m *Manager) Approve(ctx context.Context, requestID, approverID string) (domain.BorrowRequest, error) {
	if strings.TrimSpace(approverID) == "" {
		return domain.BorrowRequest{}, domain.NewValidationError("approvedBy", "required")
	}
	req, err := m.transition(ctx, requestID, approverID, domain.BorrowApproved, func(r *domain.BorrowRequest) {
		now := m.now().UTC()
		r.ApprovedBy = approverID
		r.ApprovedAt = &now
	})
	if err != nil {
		return domain.BorrowRequest{}, err
	}
	m.log.Info("borrow request approved", zap.String("request_id", requestID), zap.String("approved_by", approverID))
	return req, nil
}

// MarkReturned closes an approved request and puts its quantity back into
// stock. When the item is gone the request stays approved and
// domain.ErrNotFound is returned, as it is for a caller other than the
// requester.
func (m *Manager) MarkReturned(ctx context.Context, requestID, callerID string) (domain.BorrowRequest, error) {
	cur, err := m.Get(ctx, requestID)
	if err != nil {
		return domain.BorrowRequest{}, err
	}
	if cur.RequestedBy != callerID {
		return domain.BorrowRequest{}, notOwned(requestID)
	}
	if !domain.CanTransition(cur.Status, domain.BorrowReturned) {
		return domain.BorrowRequest{}, fmt.Errorf("request %s is %s: %w", requestID, cur.Status, domain.ErrInvalidTransition)
	}
	if _, err := m.items.Get(ctx, cur.ItemID); err != nil {
		return domain.BorrowRequest{}, fmt.Errorf("return request %s: %w", requestID, err)
	}

	req, err := m.transition(ctx, requestID, callerID, domain.BorrowReturned, func(r *domain.BorrowRequest) {
		now := m.now().UTC()
		r.ReturnedAt = &now
	})
	if err != nil {
		return domain.BorrowRequest{}, err
	}

	item, err := m.items.ApplyDelta(ctx, req.ItemID, req.Quantity)
	if err != nil {
		m.reopen(ctx, requestID)
		return domain.BorrowRequest{}, fmt.Errorf("restore stock for request %s: %w", requestID, err)
	}
	m.log.Info("borrow request returned",
		zap.String("request_id", requestID),
		zap.String("item_id", item.ID),
		zap.Int("quantity", req.Quantity),
		zap.Int("current_stock", item.CurrentStock),
	)
	return req, nil
}

func (m *Manager) Get(ctx context.Context, requestID string) (domain.BorrowRequest, error) {
	doc, err := m.store.Get(ctx, domain.CollectionBorrows, requestID)
	if err != nil {
		return domain.BorrowRequest{}, mapError("get borrow request "+requestID, err)
	}
	return domain.DecodeBorrowRequest(doc)
}

// List returns the requests of one requester in creation order.
func (m *Manager) List(ctx context.Context, requestedBy string) ([]domain.BorrowRequest, error) {
	docs, err := m.store.Query(ctx, domain.CollectionBorrows, docstore.Where("requestedBy", requestedBy))
	if err != nil {
		return nil, fmt.Errorf("failed to list borrow requests: %w", err)
	}
	out := make([]domain.BorrowRequest, 0, len(docs))
	for _, d := range docs {
		r, err := domain.DecodeBorrowRequest(d)
		if err != nil {
			m.log.Warn("skipping malformed borrow request", zap.String("request_id", d.ID), zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Watch streams the requester's requests until the subscription is
// released.
func (m *Manager) Watch(ctx context.Context, requestedBy string, fn func(docstore.Kind, domain.BorrowRequest)) (docstore.Subscription, error) {
	return m.store.Subscribe(ctx, domain.CollectionBorrows, docstore.Where("requestedBy", requestedBy), func(c docstore.Change) {
		r, err := domain.DecodeBorrowRequest(c.Doc)
		if err != nil {
			m.log.Warn("skipping malformed borrow request", zap.String("request_id", c.Doc.ID), zap.Error(err))
			return
		}
		fn(c.Kind, r)
	})
}

func (m *Manager) transition(ctx context.Context, requestID, callerID string, to domain.BorrowStatus, stamp func(*domain.BorrowRequest)) (domain.BorrowRequest, error) {
	var out domain.BorrowRequest
	doc, err := m.store.Mutate(ctx, domain.CollectionBorrows, requestID, func(d docstore.Document) (json.RawMessage, error) {
		r, err := domain.DecodeBorrowRequest(d)
		if err != nil {
			return nil, err
		}
		if r.RequestedBy != callerID {
			return nil, notOwned(requestID)
		}
		if !domain.CanTransition(r.Status, to) {
			return nil, fmt.Errorf("request %s is %s, cannot become %s: %w", requestID, r.Status, to, domain.ErrInvalidTransition)
		}
		r.Status = to
		stamp(&r)
		out = r
		return domain.EncodeBorrowRequest(r)
	})
	if err != nil {
		return domain.BorrowRequest{}, mapError("transition request "+requestID, err)
	}
	out.Version = doc.Version
	return out, nil
}

// reopen undoes a return whose stock restore failed.
func (m *Manager) reopen(ctx context.Context, requestID string) {
	_, err := m.store.Mutate(ctx, domain.CollectionBorrows, requestID, func(d docstore.Document) (json.RawMessage, error) {
		r, err := domain.DecodeBorrowRequest(d)
		if err != nil {
			return nil, err
		}
		r.Status = domain.BorrowApproved
		r.ReturnedAt = nil
		return domain.EncodeBorrowRequest(r)
	})
	if err != nil {
		m.log.Error("failed to reopen borrow request", zap.String("request_id", requestID), zap.Error(err))
		return
	}
	m.log.Warn("borrow request left approved after failed restore", zap.String("request_id", requestID))
}

func notOwned(requestID string) error {
	return fmt.Errorf("borrow request %s: %w", requestID, domain.ErrNotFound)
}

func mapError(op string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
