package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ulugbek-dev/broadcast-gateway/internal/model"
)

type MockSettingRepository struct {
	mock.Mock
}

func (m *MockSettingRepository) Get(ctx context.Context, key string) (*model.Setting, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Setting), args.Error(1)
}

func (m *MockSettingRepository) GetInt(ctx context.Context, key string, def int) (int, error) {
	args := m.Called(ctx, key, def)
	return args.Int(0), args.Error(1)
}

func (m *MockSettingRepository) SetValue(ctx context.Context, key string, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockSettingRepository) Upsert(ctx context.Context, s *model.Setting) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func rateLimitSetting() *model.Setting {
	min := model.RateLimitMin
	max := model.RateLimitMax
	return &model.Setting{
		Key:      model.SettingKeyBroadcastRateLimit,
		Value:    "20",
		MinValue: &min,
		MaxValue: &max,
	}
}

func TestSettingsService_BroadcastRateLimit(t *testing.T) {
	ctx := context.Background()

	t.Run("returns stored value", func(t *testing.T) {
		repo := new(MockSettingRepository)
		svc := NewSettingsService(repo)

		repo.On("GetInt", mock.Anything, model.SettingKeyBroadcastRateLimit, model.RateLimitDefault).Return(10, nil)

		assert.Equal(t, 10, svc.BroadcastRateLimit(ctx))
	})

	t.Run("falls back to default on error", func(t *testing.T) {
		repo := new(MockSettingRepository)
		svc := NewSettingsService(repo)

		repo.On("GetInt", mock.Anything, model.SettingKeyBroadcastRateLimit, model.RateLimitDefault).Return(0, errors.New("db down"))

		assert.Equal(t, model.RateLimitDefault, svc.BroadcastRateLimit(ctx))
	})

	t.Run("clamps out-of-range stored value", func(t *testing.T) {
		repo := new(MockSettingRepository)
		svc := NewSettingsService(repo)

		repo.On("GetInt", mock.Anything, model.SettingKeyBroadcastRateLimit, model.RateLimitDefault).Return(100, nil)

		assert.Equal(t, model.RateLimitMax, svc.BroadcastRateLimit(ctx))
	})
}

func TestSettingsService_SetBroadcastRateLimit(t *testing.T) {
	ctx := context.Background()

	t.Run("stores a value inside the bounds", func(t *testing.T) {
		repo := new(MockSettingRepository)
		svc := NewSettingsService(repo)

		repo.On("Get", mock.Anything, model.SettingKeyBroadcastRateLimit).Return(rateLimitSetting(), nil)
		repo.On("SetValue", mock.Anything, model.SettingKeyBroadcastRateLimit, "15").Return(nil)

		require.NoError(t, svc.SetBroadcastRateLimit(ctx, 15))
		repo.AssertExpectations(t)
	})

	t.Run("rejects a value above the ceiling", func(t *testing.T) {
		repo := new(MockSettingRepository)
		svc := NewSettingsService(repo)

		repo.On("Get", mock.Anything, model.SettingKeyBroadcastRateLimit).Return(rateLimitSetting(), nil)

		err := svc.SetBroadcastRateLimit(ctx, 26)
		assert.ErrorIs(t, err, ErrRateLimitOutOfBounds)
		repo.AssertNotCalled(t, "SetValue", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects a value below the floor", func(t *testing.T) {
		repo := new(MockSettingRepository)
		svc := NewSettingsService(repo)

		repo.On("Get", mock.Anything, model.SettingKeyBroadcastRateLimit).Return(rateLimitSetting(), nil)

		err := svc.SetBroadcastRateLimit(ctx, 0)
		assert.ErrorIs(t, err, ErrRateLimitOutOfBounds)
	})
}

func TestSettingsService_EffectiveRate(t *testing.T) {
	ctx := context.Background()

	t.Run("job limit below global wins", func(t *testing.T) {
		repo := new(MockSettingRepository)
		svc := NewSettingsService(repo)

		repo.On("GetInt", mock.Anything, model.SettingKeyBroadcastRateLimit, model.RateLimitDefault).Return(20, nil)

		assert.Equal(t, 5, svc.EffectiveRate(ctx, 5))
	})

	t.Run("global limit below job wins", func(t *testing.T) {
		repo := new(MockSettingRepository)
		svc := NewSettingsService(repo)

		repo.On("GetInt", mock.Anything, model.SettingKeyBroadcastRateLimit, model.RateLimitDefault).Return(3, nil)

		assert.Equal(t, 3, svc.EffectiveRate(ctx, 25))
	})

	t.Run("zero job limit uses the default", func(t *testing.T) {
		repo := new(MockSettingRepository)
		svc := NewSettingsService(repo)

		repo.On("GetInt", mock.Anything, model.SettingKeyBroadcastRateLimit, model.RateLimitDefault).Return(25, nil)

		assert.Equal(t, model.RateLimitDefault, svc.EffectiveRate(ctx, 0))
	})
}
