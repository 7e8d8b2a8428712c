package handlers

import (
	"github.com/fasthttp/router"
	xhttp "github.com/ulugbek-dev/broadcast-gateway/pkg/http"
)

type HealthService interface {
	Get() error
}
type HealthHandler struct {
	healthService HealthService
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(healthService HealthService) *HealthHandler {
	return &HealthHandler{
		healthService: healthService,
	}
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	ctx.Response.SetBodyString("success")
}
