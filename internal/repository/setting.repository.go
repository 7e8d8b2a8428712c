package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ulugbek-dev/broadcast-gateway/internal/model"
	"github.com/ulugbek-dev/broadcast-gateway/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrSettingNotFound is returned when a configuration key does not exist.
	ErrSettingNotFound = errors.New("setting not found")
)

type SettingEntity struct {
	Key         string    `db:"key"         gorm:"primaryKey;column:key;type:varchar(64)"`
	Value       string    `db:"value"       gorm:"column:value;not null"`
	Description string    `db:"description" gorm:"column:description;not null;default:''"`
	MinValue    *int      `db:"min_value"   gorm:"column:min_value"`
	MaxValue    *int      `db:"max_value"   gorm:"column:max_value"`
	UpdatedAt   time.Time `db:"updated_at"  gorm:"column:updated_at;autoUpdateTime"`
}

func (SettingEntity) TableName() string {
	return "settings"
}

func toSettingModel(e *SettingEntity) *model.Setting {
	if e == nil {
		return nil
	}
	return &model.Setting{
		Key:         e.Key,
		Value:       e.Value,
		Description: e.Description,
		MinValue:    e.MinValue,
		MaxValue:    e.MaxValue,
		UpdatedAt:   e.UpdatedAt,
	}
}

type SettingRepository struct {
	*pg.DB
}

func NewSettingRepository(db *pg.DB) *SettingRepository {
	return &SettingRepository{
		db,
	}
}

func (r *SettingRepository) Get(ctx context.Context, key string) (*model.Setting, error) {
	var entity SettingEntity
	err := r.Read(ctx).WithContext(ctx).Where("key = ?", key).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettingNotFound
		}
		return nil, err
	}
	return toSettingModel(&entity), nil
}

// GetInt reads a numeric setting, falling back to def when the key is
// missing or does not parse.
func (r *SettingRepository) GetInt(ctx context.Context, key string, def int) (int, error) {
	s, err := r.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrSettingNotFound) {
			return def, nil
		}
		return def, err
	}
	v, err := strconv.Atoi(s.Value)
	if err != nil {
		return def, nil
	}
	return v, nil
}

// SetValue updates the value of an existing key.
func (r *SettingRepository) SetValue(ctx context.Context, key string, value string) error {
	res := r.Write(ctx).WithContext(ctx).
		Model(&SettingEntity{}).
		Where("key = ?", key).
		Updates(map[string]interface{}{
			"value":      value,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSettingNotFound
	}
	return nil
}

// Upsert creates the key or refreshes its metadata while keeping an existing
// value. Used to seed defaults at startup.
func (r *SettingRepository) Upsert(ctx context.Context, s *model.Setting) error {
	entity := &SettingEntity{
		Key:         s.Key,
		Value:       s.Value,
		Description: s.Description,
		MinValue:    s.MinValue,
		MaxValue:    s.MaxValue,
	}
	return r.Write(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"description", "min_value", "max_value"}),
		}).
		Create(entity).Error
}
