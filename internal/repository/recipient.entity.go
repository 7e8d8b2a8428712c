package repository

import (
	"time"

	"github.com/ulugbek-dev/broadcast-gateway/internal/model"
)

type RecipientEntity struct {
	ID          int64      `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	BroadcastID string     `db:"broadcast_id" gorm:"column:broadcast_id;type:varchar(36);not null;uniqueIndex:idx_recipients_broadcast_target;index:idx_recipients_broadcast_status"`
	TargetID    int64      `db:"target_id"    gorm:"column:target_id;not null;uniqueIndex:idx_recipients_broadcast_target"`
	ChatID      int64      `db:"chat_id"      gorm:"column:chat_id;not null"`
	Status      string     `db:"status"       gorm:"column:status;not null;default:pending;index:idx_recipients_broadcast_status"`
	Error       *string    `db:"error"        gorm:"column:error"`
	SentAt      *time.Time `db:"sent_at"      gorm:"column:sent_at"`
	CreatedAt   time.Time  `db:"created_at"   gorm:"column:created_at;autoCreateTime"`
}

func (RecipientEntity) TableName() string {
	return "broadcast_recipients"
}

func toRecipientModel(e *RecipientEntity) *model.Recipient {
	if e == nil {
		return nil
	}
	return &model.Recipient{
		ID:          e.ID,
		BroadcastID: e.BroadcastID,
		TargetID:    e.TargetID,
		ChatID:      e.ChatID,
		Status:      model.RecipientStatus(e.Status),
		Error:       e.Error,
		SentAt:      e.SentAt,
		CreatedAt:   e.CreatedAt,
	}
}

func toRecipientModels(entities []*RecipientEntity) []*model.Recipient {
	if entities == nil {
		return nil
	}
	models := make([]*model.Recipient, len(entities))
	for i, e := range entities {
		models[i] = toRecipientModel(e)
	}
	return models
}
