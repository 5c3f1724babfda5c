package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ryujihub/MMHHINVmobile/internal/borrowing"
	"github.com/ryujihub/MMHHINVmobile/internal/docstore"
	"github.com/ryujihub/MMHHINVmobile/internal/domain"
)

type BorrowsHandler struct {
	Manager *borrowing.Manager
	Log     *zap.Logger
}

func (h *BorrowsHandler) Register(r chi.Router) {
	r.Post("/borrows", h.submit)
	r.Get("/borrows", h.list)
	r.Post("/borrows/{id}/approve", h.approve)
	r.Post("/borrows/{id}/return", h.markReturned)
}

func (h *BorrowsHandler) RegisterStreams(r chi.Router) {
	r.Get("/borrows/stream", h.stream)
}

func (h *BorrowsHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req borrowing.SubmitInput
	if !decodeJSON(w, r, &req) {
		return
	}
	req.RequestedBy = userID(r)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	br, err := h.Manager.Submit(ctx, req)
	if err != nil {
		handleError(h.Log, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, br)
}

func (h *BorrowsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Manager.List(ctx, userID(r))
	if err != nil {
		handleError(h.Log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *BorrowsHandler) approve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	br, err := h.Manager.Approve(ctx, chi.URLParam(r, "id"), userID(r))
	if err != nil {
		handleError(h.Log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, br)
}

func (h *BorrowsHandler) markReturned(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	br, err := h.Manager.MarkReturned(ctx, chi.URLParam(r, "id"), userID(r))
	if err != nil {
		handleError(h.Log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, br)
}

type borrowEvent struct {
	kind docstore.Kind
	req  domain.BorrowRequest
}

// stream sends the caller's requests as server-sent events: one "added"
// event per existing request, then every later change.
func (h *BorrowsHandler) stream(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	events := make(chan borrowEvent, 64)
	sub, err := h.Manager.Watch(ctx, userID(r), func(k docstore.Kind, br domain.BorrowRequest) {
		select {
		case events <- borrowEvent{kind: k, req: br}:
		case <-ctx.Done():
		}
	})
	if err != nil {
		cancel()
		handleError(h.Log, w, r, err)
		return
	}
	defer func() {
		cancel()
		sub.Unsubscribe()
	}()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.Log.Warn("borrow stream not flushable", zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			data, err := json.Marshal(ev.req)
			if err != nil {
				h.Log.Error("encode borrow event", zap.String("request_id", ev.req.ID), zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.kind, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
