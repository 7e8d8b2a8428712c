package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ulugbek-dev/broadcast-gateway/internal/model"
	"github.com/ulugbek-dev/broadcast-gateway/internal/services"
	xhttp "github.com/ulugbek-dev/broadcast-gateway/pkg/http"
	"github.com/valyala/fasthttp"
)

type MockBroadcastService struct {
	mock.Mock
}

func (m *MockBroadcastService) Create(ctx context.Context, p model.BroadcastCreateRequest) (*model.Broadcast, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Broadcast), args.Error(1)
}

func (m *MockBroadcastService) Get(ctx context.Context, id string) (*model.Broadcast, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Broadcast), args.Error(1)
}

func (m *MockBroadcastService) List(ctx context.Context, f model.BroadcastFilter) ([]*model.Broadcast, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Broadcast), args.Get(1).(int64), args.Error(2)
}

func (m *MockBroadcastService) ListRecipients(ctx context.Context, f model.RecipientFilter) ([]*model.Recipient, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Recipient), args.Get(1).(int64), args.Error(2)
}

func (m *MockBroadcastService) Cancel(ctx context.Context, id string) (*model.Broadcast, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Broadcast), args.Error(1)
}

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func TestBroadcastHandler_CreateBroadcast(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		reqBody := createBroadcastRequest{
			Message:   "Hello subscribers",
			RateLimit: 10,
			Recipients: []model.RecipientInput{
				{TargetID: 1, ChatID: 100},
				{TargetID: 2, ChatID: 200},
			},
		}
		bodyBytes, _ := json.Marshal(reqBody)

		expected := &model.Broadcast{
			ID:      "b-1",
			Message: "Hello subscribers",
			Status:  model.BroadcastStatusPending,
			Stats:   model.BroadcastStats{Total: 2, Pending: 2},
		}

		svc.On("Create", mock.Anything, mock.MatchedBy(func(p model.BroadcastCreateRequest) bool {
			return p.Message == "Hello subscribers" && p.RateLimit == 10 && len(p.Recipients) == 2
		})).Return(expected, nil)

		ctx := setupTestContext("POST", "/broadcasts", bodyBytes)
		handler.CreateBroadcast(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())

		var response model.Broadcast
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Equal(t, "b-1", response.ID)
		assert.Equal(t, model.BroadcastStatusPending, response.Status)

		svc.AssertExpectations(t)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		ctx := setupTestContext("POST", "/broadcasts", []byte("not json"))
		handler.CreateBroadcast(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("validation error maps to 400", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		bodyBytes, _ := json.Marshal(createBroadcastRequest{Message: "  "})
		svc.On("Create", mock.Anything, mock.Anything).Return(nil, services.ErrEmptyMessage)

		ctx := setupTestContext("POST", "/broadcasts", bodyBytes)
		handler.CreateBroadcast(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("duplicate target maps to 400", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		bodyBytes, _ := json.Marshal(createBroadcastRequest{Message: "hi"})
		svc.On("Create", mock.Anything, mock.Anything).Return(nil, services.ErrDuplicateTarget)

		ctx := setupTestContext("POST", "/broadcasts", bodyBytes)
		handler.CreateBroadcast(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("storage error maps to 500", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		bodyBytes, _ := json.Marshal(createBroadcastRequest{Message: "hi"})
		svc.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("create broadcast: connection refused"))

		ctx := setupTestContext("POST", "/broadcasts", bodyBytes)
		handler.CreateBroadcast(ctx)

		assert.Equal(t, 500, ctx.Response.StatusCode())
	})
}

func TestBroadcastHandler_GetBroadcast(t *testing.T) {
	t.Run("existing broadcast", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("Get", mock.Anything, "b-1").Return(&model.Broadcast{ID: "b-1"}, nil)

		ctx := setupTestContext("GET", "/broadcasts/b-1", nil)
		ctx.SetUserValue("id", "b-1")
		handler.GetBroadcast(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
	})

	t.Run("missing broadcast maps to 404", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("Get", mock.Anything, "nope").Return(nil, services.ErrNotFound)

		ctx := setupTestContext("GET", "/broadcasts/nope", nil)
		ctx.SetUserValue("id", "nope")
		handler.GetBroadcast(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})
}

func TestBroadcastHandler_ListBroadcasts(t *testing.T) {
	t.Run("pagination envelope", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		items := []*model.Broadcast{{ID: "b-1"}, {ID: "b-2"}}
		svc.On("List", mock.Anything, mock.MatchedBy(func(f model.BroadcastFilter) bool {
			return f.Page == 2 && f.Limit == 2 && f.Status == nil
		})).Return(items, int64(5), nil)

		ctx := setupTestContext("GET", "/broadcasts?page=2&limit=2", nil)
		handler.ListBroadcasts(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var response listBroadcastsResponse
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Len(t, response.Items, 2)
		assert.Equal(t, int64(5), response.Pagination.Total)
		assert.Equal(t, 3, response.Pagination.TotalPages)
		assert.True(t, response.Pagination.HasNextPage)
		assert.True(t, response.Pagination.HasPrevPage)
	})

	t.Run("status filter", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("List", mock.Anything, mock.MatchedBy(func(f model.BroadcastFilter) bool {
			return f.Status != nil && *f.Status == model.BroadcastStatusCompleted
		})).Return([]*model.Broadcast{}, int64(0), nil)

		ctx := setupTestContext("GET", "/broadcasts?status=completed", nil)
		handler.ListBroadcasts(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})
}

func TestBroadcastHandler_ListRecipients(t *testing.T) {
	t.Run("existing broadcast", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("Get", mock.Anything, "b-1").Return(&model.Broadcast{ID: "b-1"}, nil)
		svc.On("ListRecipients", mock.Anything, mock.MatchedBy(func(f model.RecipientFilter) bool {
			return f.BroadcastID == "b-1" && f.Status != nil && *f.Status == model.RecipientStatusFailed
		})).Return([]*model.Recipient{{ID: 1, BroadcastID: "b-1"}}, int64(1), nil)

		ctx := setupTestContext("GET", "/broadcasts/b-1/recipients?status=failed", nil)
		ctx.SetUserValue("id", "b-1")
		handler.ListRecipients(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var response listRecipientsResponse
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Len(t, response.Items, 1)
		assert.Equal(t, int64(1), response.Pagination.Total)
	})

	t.Run("missing broadcast maps to 404", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("Get", mock.Anything, "nope").Return(nil, services.ErrNotFound)

		ctx := setupTestContext("GET", "/broadcasts/nope/recipients", nil)
		ctx.SetUserValue("id", "nope")
		handler.ListRecipients(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
		svc.AssertNotCalled(t, "ListRecipients", mock.Anything, mock.Anything)
	})
}

func TestBroadcastHandler_CancelBroadcast(t *testing.T) {
	t.Run("cancel running broadcast", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("Cancel", mock.Anything, "b-1").Return(&model.Broadcast{ID: "b-1", Status: model.BroadcastStatusCancelled}, nil)

		ctx := setupTestContext("POST", "/broadcasts/b-1/cancel", nil)
		ctx.SetUserValue("id", "b-1")
		handler.CancelBroadcast(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var response model.Broadcast
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Equal(t, model.BroadcastStatusCancelled, response.Status)
	})

	t.Run("terminal broadcast maps to 400", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("Cancel", mock.Anything, "b-1").Return(nil, services.ErrAlreadyTerminal)

		ctx := setupTestContext("POST", "/broadcasts/b-1/cancel", nil)
		ctx.SetUserValue("id", "b-1")
		handler.CancelBroadcast(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("missing broadcast maps to 404", func(t *testing.T) {
		svc := new(MockBroadcastService)
		handler := NewBroadcastHandler(svc)

		svc.On("Cancel", mock.Anything, "nope").Return(nil, services.ErrNotFound)

		ctx := setupTestContext("POST", "/broadcasts/nope/cancel", nil)
		ctx.SetUserValue("id", "nope")
		handler.CancelBroadcast(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})
}
