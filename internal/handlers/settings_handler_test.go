package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ulugbek-dev/broadcast-gateway/internal/services"
)

type MockSettingsService struct {
	mock.Mock
}

func (m *MockSettingsService) BroadcastRateLimit(ctx context.Context) int {
	args := m.Called(ctx)
	return args.Int(0)
}

func (m *MockSettingsService) SetBroadcastRateLimit(ctx context.Context, v int) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func TestSettingsHandler_GetRateLimit(t *testing.T) {
	svc := new(MockSettingsService)
	handler := NewSettingsHandler(svc)

	svc.On("BroadcastRateLimit", mock.Anything).Return(15)

	ctx := setupTestContext("GET", "/settings/rate-limit", nil)
	handler.GetRateLimit(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())

	var response rateLimitResponse
	err := json.Unmarshal(ctx.Response.Body(), &response)
	require.NoError(t, err)
	assert.Equal(t, 15, response.RateLimit)
}

func TestSettingsHandler_UpdateRateLimit(t *testing.T) {
	t.Run("valid update", func(t *testing.T) {
		svc := new(MockSettingsService)
		handler := NewSettingsHandler(svc)

		svc.On("SetBroadcastRateLimit", mock.Anything, 10).Return(nil)
		svc.On("BroadcastRateLimit", mock.Anything).Return(10)

		bodyBytes, _ := json.Marshal(updateRateLimitRequest{RateLimit: 10})
		ctx := setupTestContext("PUT", "/settings/rate-limit", bodyBytes)
		handler.UpdateRateLimit(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var response rateLimitResponse
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Equal(t, 10, response.RateLimit)
	})

	t.Run("out-of-bounds value maps to 400", func(t *testing.T) {
		svc := new(MockSettingsService)
		handler := NewSettingsHandler(svc)

		svc.On("SetBroadcastRateLimit", mock.Anything, 99).Return(services.ErrRateLimitOutOfBounds)

		bodyBytes, _ := json.Marshal(updateRateLimitRequest{RateLimit: 99})
		ctx := setupTestContext("PUT", "/settings/rate-limit", bodyBytes)
		handler.UpdateRateLimit(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("invalid JSON", func(t *testing.T) {
		svc := new(MockSettingsService)
		handler := NewSettingsHandler(svc)

		ctx := setupTestContext("PUT", "/settings/rate-limit", []byte("nope"))
		handler.UpdateRateLimit(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		svc.AssertNotCalled(t, "SetBroadcastRateLimit", mock.Anything, mock.Anything)
	})
}
