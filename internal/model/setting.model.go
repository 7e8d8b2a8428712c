package model

import "time"

// SettingKeyBroadcastRateLimit is the operator-adjustable global ceiling on
// broadcast messages/second. The effective per-job rate is the lesser of this
// value and the job's own rate limit.
const SettingKeyBroadcastRateLimit = "broadcast_rate_limit"

// Setting is an operator-adjustable configuration value with optional
// numeric bounds enforced on update.
type Setting struct {
	Key         string    `json:"key"         gorm:"primaryKey;column:key;type:varchar(64)"`
	Value       string    `json:"value"       gorm:"column:value;not null"`
	Description string    `json:"description" gorm:"column:description;not null;default:''"`
	MinValue    *int      `json:"min_value"   gorm:"column:min_value"`
	MaxValue    *int      `json:"max_value"   gorm:"column:max_value"`
	UpdatedAt   time.Time `json:"updated_at"  gorm:"column:updated_at;autoUpdateTime"`
}

func (Setting) TableName() string { return "settings" }
