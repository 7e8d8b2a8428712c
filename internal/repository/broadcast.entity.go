package repository

import (
	"time"

	"github.com/ulugbek-dev/broadcast-gateway/internal/model"
)

type BroadcastEntity struct {
	ID           string     `db:"id"            gorm:"primaryKey;column:id;type:varchar(36)"`
	Message      string     `db:"message"       gorm:"column:message;not null"`
	TargetFilter *string    `db:"target_filter" gorm:"column:target_filter"`
	RateLimit    int        `db:"rate_limit"    gorm:"column:rate_limit;not null;default:20"`
	Status       string     `db:"status"        gorm:"column:status;not null;default:pending;index"`
	StatsTotal   int        `db:"stats_total"   gorm:"column:stats_total;not null;default:0"`
	StatsSent    int        `db:"stats_sent"    gorm:"column:stats_sent;not null;default:0"`
	StatsFailed  int        `db:"stats_failed"  gorm:"column:stats_failed;not null;default:0"`
	StatsPending int        `db:"stats_pending" gorm:"column:stats_pending;not null;default:0"`
	StartedAt    *time.Time `db:"started_at"    gorm:"column:started_at"`
	CompletedAt  *time.Time `db:"completed_at"  gorm:"column:completed_at"`
	Error        *string    `db:"error"         gorm:"column:error"`
	CreatedAt    time.Time  `db:"created_at"    gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `db:"updated_at"    gorm:"column:updated_at;autoUpdateTime"`
}

func (BroadcastEntity) TableName() string {
	return "broadcasts"
}

func toBroadcastEntity(b *model.Broadcast) *BroadcastEntity {
	if b == nil {
		return nil
	}
	return &BroadcastEntity{
		ID:           b.ID,
		Message:      b.Message,
		TargetFilter: b.TargetFilter,
		RateLimit:    b.RateLimit,
		Status:       string(b.Status),
		StatsTotal:   b.Stats.Total,
		StatsSent:    b.Stats.Sent,
		StatsFailed:  b.Stats.Failed,
		StatsPending: b.Stats.Pending,
		StartedAt:    b.StartedAt,
		CompletedAt:  b.CompletedAt,
		Error:        b.Error,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
}

func toBroadcastModel(e *BroadcastEntity) *model.Broadcast {
	if e == nil {
		return nil
	}
	return &model.Broadcast{
		ID:           e.ID,
		Message:      e.Message,
		TargetFilter: e.TargetFilter,
		RateLimit:    e.RateLimit,
		Status:       model.BroadcastStatus(e.Status),
		Stats: model.BroadcastStats{
			Total:   e.StatsTotal,
			Sent:    e.StatsSent,
			Failed:  e.StatsFailed,
			Pending: e.StatsPending,
		},
		StartedAt:   e.StartedAt,
		CompletedAt: e.CompletedAt,
		Error:       e.Error,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func toBroadcastModels(entities []*BroadcastEntity) []*model.Broadcast {
	if entities == nil {
		return nil
	}
	models := make([]*model.Broadcast, len(entities))
	for i, e := range entities {
		models[i] = toBroadcastModel(e)
	}
	return models
}
