package httpx

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ryujihub/MMHHINVmobile/internal/domain"
	"github.com/ryujihub/MMHHINVmobile/internal/ledger"
	"github.com/ryujihub/MMHHINVmobile/internal/movements"
)

type ItemsHandler struct {
	Ledger    *ledger.Ledger
	Movements *movements.Recorder
	Log       *zap.Logger
}

type QuickUpdateReq struct {
	Amount int `json:"amount"`
}

func (h *ItemsHandler) Register(r chi.Router) {
	r.Get("/items", h.list)
	r.Post("/items", h.create)
	r.Get("/items/{id}", h.get)
	r.Put("/items/{id}", h.update)
	r.Delete("/items/{id}", h.delete)
	r.Post("/items/{id}/quick-update", h.quickUpdate)
}

func (h *ItemsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	q := r.URL.Query()
	items, err := h.Ledger.List(ctx, userID(r), ledger.ItemFilter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
	})
	if err != nil {
		handleError(h.Log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ItemsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req ledger.ItemDraft
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	it, err := h.Ledger.Create(ctx, userID(r), req)
	if err != nil {
		handleError(h.Log, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (h *ItemsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	it, err := h.owned(ctx, r)
	if err != nil {
		handleError(h.Log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *ItemsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req ledger.ItemPatch
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cur, err := h.owned(ctx, r)
	if err != nil {
		handleError(h.Log, w, r, err)
		return
	}
	it, err := h.Ledger.Update(ctx, cur.ID, req)
	if err != nil {
		handleError(h.Log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *ItemsHandler) delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cur, err := h.owned(ctx, r)
	if err != nil {
		handleError(h.Log, w, r, err)
		return
	}
	if err := h.Ledger.Delete(ctx, cur.ID); err != nil {
		handleError(h.Log, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// quickUpdate records a movement; the stock changes once the reconciler
// applies it.
func (h *ItemsHandler) quickUpdate(w http.ResponseWriter, r *http.Request) {
	var req QuickUpdateReq
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	mv, err := h.Movements.QuickUpdate(ctx, userID(r), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		handleError(h.Log, w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, mv)
}

// owned loads the item in the URL; items of other users are reported as
// missing.
func (h *ItemsHandler) owned(ctx context.Context, r *http.Request) (domain.Item, error) {
	id := chi.URLParam(r, "id")
	it, err := h.Ledger.Get(ctx, id)
	if err != nil {
		return domain.Item{}, err
	}
	if it.UserID != userID(r) {
		return domain.Item{}, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
	}
	return it, nil
}
