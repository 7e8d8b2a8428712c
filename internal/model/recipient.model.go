package model

import "time"

// RecipientStatus is the delivery state of a single recipient record. It is
// set exactly once after creation: pending -> sent or pending -> failed,
// never back.
type RecipientStatus string

const (
	RecipientStatusPending RecipientStatus = "pending"
	RecipientStatusSent    RecipientStatus = "sent"
	RecipientStatusFailed  RecipientStatus = "failed"
)

// Recipient is the per-target delivery unit of one broadcast. All recipients
// of a job are created together before dispatch starts and the set is frozen
// afterwards.
type Recipient struct {
	ID          int64           `json:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	BroadcastID string          `json:"broadcast_id" gorm:"column:broadcast_id;type:varchar(36);not null;uniqueIndex:idx_recipients_broadcast_target;index:idx_recipients_broadcast_status"`
	TargetID    int64           `json:"target_id"    gorm:"column:target_id;not null;uniqueIndex:idx_recipients_broadcast_target"`
	ChatID      int64           `json:"chat_id"      gorm:"column:chat_id;not null"`
	Status      RecipientStatus `json:"status"       gorm:"column:status;not null;default:pending;index:idx_recipients_broadcast_status"`
	Error       *string         `json:"error"        gorm:"column:error"`
	SentAt      *time.Time      `json:"sent_at"      gorm:"column:sent_at"`
	CreatedAt   time.Time       `json:"created_at"   gorm:"column:created_at;autoCreateTime"`
}

func (Recipient) TableName() string { return "broadcast_recipients" }

// DeliveryOutcome is the result of one delivery attempt through the outbound
// channel. Any non-success (API rejection, timeout, transport error) is a
// failed outcome with a human-readable reason; there are no structured codes.
type DeliveryOutcome struct {
	OK     bool
	Reason string
}

// RecipientFilter controls recipient list queries.
type RecipientFilter struct {
	BroadcastID string
	Status      *RecipientStatus // equals
	Page        int              // 1-based, default 1
	Limit       int              // default 50
}
