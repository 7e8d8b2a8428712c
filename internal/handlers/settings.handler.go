package handlers

import (
	"context"
	"errors"

	"github.com/fasthttp/router"
	"github.com/ulugbek-dev/broadcast-gateway/internal/services"
	xhttp "github.com/ulugbek-dev/broadcast-gateway/pkg/http"
)

type SettingsService interface {
	BroadcastRateLimit(ctx context.Context) int
	SetBroadcastRateLimit(ctx context.Context, v int) error
}

type SettingsHandler struct {
	svc SettingsService
}

func RegisterSettingsRoutes(e *router.Group, h *SettingsHandler) {
	e.GET("/settings/rate-limit", h.GetRateLimit)
	e.PUT("/settings/rate-limit", h.UpdateRateLimit)
}

func NewSettingsHandler(settingsService SettingsService) *SettingsHandler {
	return &SettingsHandler{
		svc: settingsService,
	}
}

type rateLimitResponse struct {
	RateLimit int `json:"rate_limit"`
}

type updateRateLimitRequest struct {
	RateLimit int `json:"rate_limit"`
}

func (h *SettingsHandler) GetRateLimit(ctx *xhttp.RequestCtx) {
	writeJSON(ctx, 200, rateLimitResponse{RateLimit: h.svc.BroadcastRateLimit(ctx)})
}

func (h *SettingsHandler) UpdateRateLimit(ctx *xhttp.RequestCtx) {
	var req updateRateLimitRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	if err := h.svc.SetBroadcastRateLimit(ctx, req.RateLimit); err != nil {
		if errors.Is(err, services.ErrRateLimitOutOfBounds) {
			writeError(ctx, 400, err.Error())
			return
		}
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, rateLimitResponse{RateLimit: h.svc.BroadcastRateLimit(ctx)})
}
