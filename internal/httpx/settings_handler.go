package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ryujihub/MMHHINVmobile/internal/domain"
	"github.com/ryujihub/MMHHINVmobile/internal/settings"
)

type SettingsHandler struct {
	Settings *settings.Service
	Log      *zap.Logger
}

func (h *SettingsHandler) Register(r chi.Router) {
	r.Get("/settings", h.get)
	r.Put("/settings", h.put)
}

func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	s, err := h.Settings.Get(ctx, userID(r))
	if err != nil {
		handleError(h.Log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// put replaces the whole document; fields left out fall back to defaults.
func (h *SettingsHandler) put(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	req := domain.DefaultSettings(uid)
	if !decodeJSON(w, r, &req) {
		return
	}
	req.UserID = uid

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	s, err := h.Settings.Save(ctx, req)
	if err != nil {
		handleError(h.Log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
