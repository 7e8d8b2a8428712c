package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/fasthttp/router"
	"github.com/ulugbek-dev/broadcast-gateway/internal/model"
	"github.com/ulugbek-dev/broadcast-gateway/internal/services"
	xhttp "github.com/ulugbek-dev/broadcast-gateway/pkg/http"
)

type BroadcastService interface {
	Create(ctx context.Context, p model.BroadcastCreateRequest) (*model.Broadcast, error)
	Get(ctx context.Context, id string) (*model.Broadcast, error)
	List(ctx context.Context, f model.BroadcastFilter) ([]*model.Broadcast, int64, error)
	ListRecipients(ctx context.Context, f model.RecipientFilter) ([]*model.Recipient, int64, error)
	Cancel(ctx context.Context, id string) (*model.Broadcast, error)
}

type BroadcastHandler struct {
	svc BroadcastService
}

func RegisterBroadcastRoutes(e *router.Group, h *BroadcastHandler) {
	e.POST("/broadcasts", h.CreateBroadcast)
	e.GET("/broadcasts", h.ListBroadcasts)
	e.GET("/broadcasts/{id}", h.GetBroadcast)
	e.GET("/broadcasts/{id}/recipients", h.ListRecipients)
	e.POST("/broadcasts/{id}/cancel", h.CancelBroadcast)
}

func NewBroadcastHandler(broadcastService BroadcastService) *BroadcastHandler {
	return &BroadcastHandler{
		svc: broadcastService,
	}
}

type createBroadcastRequest struct {
	Message      string                 `json:"message"`
	TargetFilter string                 `json:"target_filter"`
	RateLimit    int                    `json:"rate_limit"`
	Recipients   []model.RecipientInput `json:"recipients"`
}

type pagination struct {
	Total       int64 `json:"total"`
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalPages  int   `json:"total_pages"`
	HasNextPage bool  `json:"has_next_page"`
	HasPrevPage bool  `json:"has_prev_page"`
}

type listBroadcastsResponse struct {
	Items      []*model.Broadcast `json:"items"`
	Pagination pagination         `json:"pagination"`
}

type listRecipientsResponse struct {
	Items      []*model.Recipient `json:"items"`
	Pagination pagination         `json:"pagination"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *BroadcastHandler) CreateBroadcast(ctx *xhttp.RequestCtx) {
	var req createBroadcastRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	p := model.BroadcastCreateRequest{
		Message:      req.Message,
		TargetFilter: req.TargetFilter,
		RateLimit:    req.RateLimit,
		Recipients:   req.Recipients,
	}
	b, err := h.svc.Create(ctx, p)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyMessage),
			errors.Is(err, services.ErrNoRecipients),
			errors.Is(err, services.ErrDuplicateTarget):
			writeError(ctx, 400, err.Error())
		default:
			writeError(ctx, 500, err.Error())
		}
		return
	}
	writeJSON(ctx, 201, b)
}

func (h *BroadcastHandler) GetBroadcast(ctx *xhttp.RequestCtx) {
	id := param(ctx, "id")
	b, err := h.svc.Get(ctx, id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(ctx, 404, err.Error())
			return
		}
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, b)
}

func (h *BroadcastHandler) ListBroadcasts(ctx *xhttp.RequestCtx) {
	var f model.BroadcastFilter

	if v := query(ctx, "status"); v != "" {
		s := model.BroadcastStatus(v)
		f.Status = &s
	}
	f.Page, f.Limit = pageParams(ctx, 20)

	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, listBroadcastsResponse{
		Items:      items,
		Pagination: paginate(total, f.Page, f.Limit),
	})
}

func (h *BroadcastHandler) ListRecipients(ctx *xhttp.RequestCtx) {
	id := param(ctx, "id")

	// 404 on an unknown broadcast instead of an empty page
	if _, err := h.svc.Get(ctx, id); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(ctx, 404, err.Error())
			return
		}
		writeError(ctx, 500, err.Error())
		return
	}

	f := model.RecipientFilter{BroadcastID: id}
	if v := query(ctx, "status"); v != "" {
		s := model.RecipientStatus(v)
		f.Status = &s
	}
	f.Page, f.Limit = pageParams(ctx, 50)

	items, total, err := h.svc.ListRecipients(ctx, f)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, listRecipientsResponse{
		Items:      items,
		Pagination: paginate(total, f.Page, f.Limit),
	})
}

func (h *BroadcastHandler) CancelBroadcast(ctx *xhttp.RequestCtx) {
	id := param(ctx, "id")
	b, err := h.svc.Cancel(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFound):
			writeError(ctx, 404, err.Error())
		case errors.Is(err, services.ErrAlreadyTerminal):
			writeError(ctx, 400, err.Error())
		default:
			writeError(ctx, 500, err.Error())
		}
		return
	}
	writeJSON(ctx, 200, b)
}

/* -------------------------------- Helpers ------------------------------------ */

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func param(ctx *xhttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}

func pageParams(ctx *xhttp.RequestCtx, defaultLimit int) (page, limit int) {
	page = 1
	limit = defaultLimit
	if v := query(ctx, "page"); v != "" {
		if n, e := strconv.Atoi(v); e == nil && n > 0 {
			page = n
		}
	}
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil && n > 0 {
			limit = n
		}
	}
	return page, limit
}

func paginate(total int64, page, limit int) pagination {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return pagination{
		Total:       total,
		Page:        page,
		Limit:       limit,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1 && total > 0,
	}
}
