package model

import (
	"time"
)

// BroadcastStatus is the lifecycle state of a broadcast job.
type BroadcastStatus string

const (
	BroadcastStatusPending    BroadcastStatus = "pending"
	BroadcastStatusInProgress BroadcastStatus = "in_progress"
	BroadcastStatusCompleted  BroadcastStatus = "completed"
	BroadcastStatusCancelled  BroadcastStatus = "cancelled"
	BroadcastStatusFailed     BroadcastStatus = "failed"
)

const (
	// RateLimitMin and RateLimitMax bound both the per-job rate limit and the
	// operator-configured global one. Telegram rejects bots that sustain more
	// than ~30 messages/second, so the ceiling stays below that.
	RateLimitMin     = 1
	RateLimitMax     = 25
	RateLimitDefault = 20
)

// broadcastTransitions lists the allowed edges of the status state machine.
// completed, cancelled and failed are terminal.
var broadcastTransitions = map[BroadcastStatus][]BroadcastStatus{
	BroadcastStatusPending:    {BroadcastStatusInProgress, BroadcastStatusCancelled, BroadcastStatusFailed},
	BroadcastStatusInProgress: {BroadcastStatusCompleted, BroadcastStatusCancelled, BroadcastStatusFailed},
}

// Terminal reports whether no further transition can leave s.
func (s BroadcastStatus) Terminal() bool {
	switch s {
	case BroadcastStatusCompleted, BroadcastStatusCancelled, BroadcastStatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the edge s -> to is allowed.
func (s BroadcastStatus) CanTransitionTo(to BroadcastStatus) bool {
	for _, allowed := range broadcastTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionSources returns every status from which `to` is reachable.
func TransitionSources(to BroadcastStatus) []BroadcastStatus {
	var from []BroadcastStatus
	for s, targets := range broadcastTransitions {
		for _, t := range targets {
			if t == to {
				from = append(from, s)
			}
		}
	}
	return from
}

// BroadcastStats are the aggregate per-job delivery counters. The invariant
// Sent+Failed+Pending == Total holds after every update.
type BroadcastStats struct {
	Total   int `json:"total"   gorm:"column:stats_total;not null;default:0"`
	Sent    int `json:"sent"    gorm:"column:stats_sent;not null;default:0"`
	Failed  int `json:"failed"  gorm:"column:stats_failed;not null;default:0"`
	Pending int `json:"pending" gorm:"column:stats_pending;not null;default:0"`
}

type Broadcast struct {
	ID           string          `json:"id"            gorm:"primaryKey;column:id;type:varchar(36)"`
	Message      string          `json:"message"       gorm:"column:message;not null"`
	TargetFilter *string         `json:"target_filter" gorm:"column:target_filter"` // nil = all targets
	RateLimit    int             `json:"rate_limit"    gorm:"column:rate_limit;not null;default:20"`
	Status       BroadcastStatus `json:"status"        gorm:"column:status;not null;default:pending;index"`
	Stats        BroadcastStats  `json:"stats"         gorm:"embedded"`
	StartedAt    *time.Time      `json:"started_at"    gorm:"column:started_at"`
	CompletedAt  *time.Time      `json:"completed_at"  gorm:"column:completed_at"`
	Error        *string         `json:"error"         gorm:"column:error"`
	CreatedAt    time.Time       `json:"created_at"    gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `json:"updated_at"    gorm:"column:updated_at;autoUpdateTime"`
}

func (Broadcast) TableName() string { return "broadcasts" }

// RecipientInput is one pre-computed delivery target handed in at creation.
type RecipientInput struct {
	TargetID int64 `json:"target_id"`
	ChatID   int64 `json:"chat_id"`
}

// BroadcastCreateRequest is the input for creating a broadcast job together
// with its frozen recipient snapshot.
type BroadcastCreateRequest struct {
	Message      string
	TargetFilter string
	RateLimit    int
	Recipients   []RecipientInput
}

// ClampRateLimit forces v into [RateLimitMin, RateLimitMax]; zero or negative
// values fall back to the default.
func ClampRateLimit(v int) int {
	if v <= 0 {
		return RateLimitDefault
	}
	if v < RateLimitMin {
		return RateLimitMin
	}
	if v > RateLimitMax {
		return RateLimitMax
	}
	return v
}

// StatsDelta is an atomic adjustment to the aggregate counters. Every
// delivery outcome applies a delta summing to zero (one counter up, pending
// down), which preserves the Sent+Failed+Pending == Total invariant.
type StatsDelta struct {
	Sent    int
	Failed  int
	Pending int
}

// BroadcastFilter controls List queries.
type BroadcastFilter struct {
	Status *BroadcastStatus // equals
	Page   int              // 1-based, default 1
	Limit  int              // default 20
}
