package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ryujihub/MMHHINVmobile/internal/movements"
)

const headerIdempotencyKey = "Idempotency-Key"

// Idempotency is satisfied by *redisx.Idempotency.
type Idempotency interface {
	Claim(ctx context.Context, userID, key string) (bool, string, error)
	Complete(ctx context.Context, userID, key, movementID string) error
	Release(ctx context.Context, userID, key string) error
}

type MovementsHandler struct {
	Recorder *movements.Recorder
	// Idem is optional; without it Idempotency-Key is ignored.
	Idem Idempotency
	Log  *zap.Logger
}

func (h *MovementsHandler) Register(r chi.Router) {
	r.Post("/movements", h.create)
	r.Get("/movements", h.list)
}

func (h *MovementsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req movements.Input
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	uid := userID(r)
	key := r.Header.Get(headerIdempotencyKey)
	if h.Idem != nil && key != "" {
		claimed, existing, err := h.Idem.Claim(ctx, uid, key)
		if err != nil {
			handleError(h.Log, w, r, err)
			return
		}
		if !claimed {
			if existing == "" {
				writeError(w, http.StatusConflict, "a request with this Idempotency-Key is in progress")
				return
			}
			mv, err := h.Recorder.Get(ctx, existing)
			if err != nil {
				handleError(h.Log, w, r, err)
				return
			}
			w.Header().Set("Idempotent-Replayed", "true")
			writeJSON(w, http.StatusOK, mv)
			return
		}
	}

	mv, err := h.Recorder.Record(ctx, uid, req)
	if err != nil {
		if h.Idem != nil && key != "" {
			if rerr := h.Idem.Release(ctx, uid, key); rerr != nil {
				h.Log.Warn("idempotency key not released", zap.String("key", key), zap.Error(rerr))
			}
		}
		handleError(h.Log, w, r, err)
		return
	}
	if h.Idem != nil && key != "" {
		if err := h.Idem.Complete(ctx, uid, key, mv.ID); err != nil {
			h.Log.Warn("idempotency key not stored", zap.String("key", key), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusAccepted, mv)
}

func (h *MovementsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Recorder.List(ctx, userID(r))
	if err != nil {
		handleError(h.Log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
