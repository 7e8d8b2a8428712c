package services

import (
	"context"
	"errors"
	"strconv"

	"github.com/ulugbek-dev/broadcast-gateway/internal/model"
	"github.com/ulugbek-dev/broadcast-gateway/pkg/logger"
)

var (
	ErrRateLimitOutOfBounds = errors.New("rate limit outside allowed bounds")
)

type SettingRepository interface {
	Get(ctx context.Context, key string) (*model.Setting, error)
	GetInt(ctx context.Context, key string, def int) (int, error)
	SetValue(ctx context.Context, key string, value string) error
	Upsert(ctx context.Context, s *model.Setting) error
}

// SettingsService owns the operator-adjustable configuration. For the
// dispatcher it is the rate-limit source: the effective per-job rate is
// min(global setting, job rate limit).
type SettingsService struct {
	settingRepo SettingRepository
}

func NewSettingsService(settingRepo SettingRepository) *SettingsService {
	return &SettingsService{
		settingRepo: settingRepo,
	}
}

// InitDefaults seeds missing settings. Existing values are kept, only the
// metadata (description, bounds) is refreshed.
func (s *SettingsService) InitDefaults(ctx context.Context) error {
	min := model.RateLimitMin
	max := model.RateLimitMax
	return s.settingRepo.Upsert(ctx, &model.Setting{
		Key:         model.SettingKeyBroadcastRateLimit,
		Value:       strconv.Itoa(model.RateLimitDefault),
		Description: "Messages per second for broadcasts",
		MinValue:    &min,
		MaxValue:    &max,
	})
}

// BroadcastRateLimit reads the global messages/second ceiling. A missing or
// unreadable setting falls back to the default instead of blocking dispatch.
func (s *SettingsService) BroadcastRateLimit(ctx context.Context) int {
	v, err := s.settingRepo.GetInt(ctx, model.SettingKeyBroadcastRateLimit, model.RateLimitDefault)
	if err != nil {
		logger.Warn("failed to read broadcast rate limit, using default", "error", err, "default", model.RateLimitDefault)
		return model.RateLimitDefault
	}
	return model.ClampRateLimit(v)
}

// SetBroadcastRateLimit updates the global ceiling, enforcing the bounds
// stored with the setting.
func (s *SettingsService) SetBroadcastRateLimit(ctx context.Context, v int) error {
	setting, err := s.settingRepo.Get(ctx, model.SettingKeyBroadcastRateLimit)
	if err != nil {
		return err
	}
	if setting.MinValue != nil && v < *setting.MinValue {
		return ErrRateLimitOutOfBounds
	}
	if setting.MaxValue != nil && v > *setting.MaxValue {
		return ErrRateLimitOutOfBounds
	}
	return s.settingRepo.SetValue(ctx, model.SettingKeyBroadcastRateLimit, strconv.Itoa(v))
}

// EffectiveRate is the messages/second ceiling for one job: the lesser of
// the global setting and the job's own limit. Read-only, no side effects.
func (s *SettingsService) EffectiveRate(ctx context.Context, jobRateLimit int) int {
	global := s.BroadcastRateLimit(ctx)
	job := model.ClampRateLimit(jobRateLimit)
	if job < global {
		return job
	}
	return global
}
