package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ryujihub/MMHHINVmobile/internal/analytics"
)

type DashboardHandler struct {
	Analytics *analytics.Service
	Log       *zap.Logger
}

func (h *DashboardHandler) Register(r chi.Router) {
	r.Get("/dashboard", h.get)
}

func (h *DashboardHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	d, err := h.Analytics.Dashboard(ctx, userID(r))
	if err != nil {
		handleError(h.Log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
