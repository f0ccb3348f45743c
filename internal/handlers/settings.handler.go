package handlers

import (
	"context"

	"github.com/nimasrn/donation-ledger/internal/settings"
	xhttp "github.com/nimasrn/donation-ledger/pkg/http"
)

type SettingsService interface {
	Get(ctx context.Context) (settings.Settings, error)
	Update(ctx context.Context, p settings.Patch) (settings.Settings, error)
}

type SettingsHandler struct {
	store SettingsService
}

func RegisterSettingsRoutes(e *xhttp.Group, h *SettingsHandler, admin *Admin) {
	e.GET("/settings", admin.Require(h.GetSettings))
	e.PATCH("/settings", admin.Require(h.UpdateSettings))
}

func NewSettingsHandler(store SettingsService) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// GetSettings never returns the site token.
func (h *SettingsHandler) GetSettings(ctx *xhttp.RequestCtx) {
	st, err := h.store.Get(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, st.Public())
}

func (h *SettingsHandler) UpdateSettings(ctx *xhttp.RequestCtx) {
	var p settings.Patch
	if err := readJSON(ctx, &p); err != nil {
		badJSON(ctx, err)
		return
	}
	st, err := h.store.Update(ctx, p)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, st.Public())
}
