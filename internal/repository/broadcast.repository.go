package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ulugbek-dev/broadcast-gateway/internal/model"
	"github.com/ulugbek-dev/broadcast-gateway/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrBroadcastNotFound is returned when a broadcast job does not exist.
	ErrBroadcastNotFound = errors.New("broadcast not found")
	// ErrInvalidTransition is returned when a status change violates the
	// state machine (e.g. completing a job that is not in progress).
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAlreadyTerminal is returned when cancelling a job that already
	// reached completed, cancelled or failed.
	ErrAlreadyTerminal = errors.New("broadcast already in a terminal state")
)

type BroadcastRepository struct {
	*pg.DB
}

func NewBroadcastRepository(db *pg.DB) *BroadcastRepository {
	return &BroadcastRepository{
		db,
	}
}

func (r *BroadcastRepository) Create(ctx context.Context, b *model.Broadcast) (*model.Broadcast, error) {
	entity := toBroadcastEntity(b)
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toBroadcastModel(entity), nil
}

func (r *BroadcastRepository) Get(ctx context.Context, id string) (*model.Broadcast, error) {
	var entity BroadcastEntity
	err := r.Read(ctx).WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBroadcastNotFound
		}
		return nil, err
	}
	return toBroadcastModel(&entity), nil
}

func (r *BroadcastRepository) List(ctx context.Context, f model.BroadcastFilter) ([]*model.Broadcast, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&BroadcastEntity{})

	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}

	// Count before pagination
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}

	var entities []*BroadcastEntity
	if err := q.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toBroadcastModels(entities), total, nil
}

// ListByStatus returns all jobs currently in the given status. Used by the
// dispatcher's startup sweep; broadcast counts are small enough that no
// pagination is needed here.
func (r *BroadcastRepository) ListByStatus(ctx context.Context, status model.BroadcastStatus) ([]*model.Broadcast, error) {
	var entities []*BroadcastEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toBroadcastModels(entities), nil
}

// TransitionStatus moves a job along an allowed edge of the state machine.
// The guard is a conditional UPDATE on the allowed source statuses, so a
// concurrent cancel always wins: once the row left the source set the update
// affects zero rows and ErrInvalidTransition is returned.
func (r *BroadcastRepository) TransitionStatus(ctx context.Context, id string, to model.BroadcastStatus) error {
	from := model.TransitionSources(to)
	if len(from) == 0 {
		return ErrInvalidTransition
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	switch to {
	case model.BroadcastStatusInProgress:
		updates["started_at"] = time.Now()
	case model.BroadcastStatusCompleted:
		updates["completed_at"] = time.Now()
	}

	res := r.Write(ctx).WithContext(ctx).
		Model(&BroadcastEntity{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.explainMissedUpdate(ctx, id)
	}
	return nil
}

// MarkFailed aborts a job with the causing error text. Allowed from pending
// and in_progress; unresolved recipients keep their pending status.
func (r *BroadcastRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	res := r.Write(ctx).WithContext(ctx).
		Model(&BroadcastEntity{}).
		Where("id = ? AND status IN ?", id, []model.BroadcastStatus{model.BroadcastStatusPending, model.BroadcastStatusInProgress}).
		Updates(map[string]interface{}{
			"status":       model.BroadcastStatusFailed,
			"error":        reason,
			"completed_at": time.Now(),
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.explainMissedUpdate(ctx, id)
	}
	return nil
}

// RequestCancel flips a pending or in_progress job to cancelled. The running
// dispatcher observes the new status at its next re-read and stops. Repeated
// cancels of a terminal job get ErrAlreadyTerminal.
func (r *BroadcastRepository) RequestCancel(ctx context.Context, id string) error {
	res := r.Write(ctx).WithContext(ctx).
		Model(&BroadcastEntity{}).
		Where("id = ? AND status IN ?", id, []model.BroadcastStatus{model.BroadcastStatusPending, model.BroadcastStatusInProgress}).
		Updates(map[string]interface{}{
			"status":       model.BroadcastStatusCancelled,
			"completed_at": time.Now(),
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		err := r.explainMissedUpdate(ctx, id)
		if errors.Is(err, ErrInvalidTransition) {
			return ErrAlreadyTerminal
		}
		return err
	}
	return nil
}

// IncrementStats applies a counter delta in a single UPDATE statement. No
// read-modify-write: concurrent increments from the dispatcher and the sweep
// serialize inside the database.
func (r *BroadcastRepository) IncrementStats(ctx context.Context, id string, delta model.StatsDelta) error {
	res := r.Write(ctx).WithContext(ctx).
		Model(&BroadcastEntity{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"stats_sent":    gorm.Expr("stats_sent + ?", delta.Sent),
			"stats_failed":  gorm.Expr("stats_failed + ?", delta.Failed),
			"stats_pending": gorm.Expr("stats_pending + ?", delta.Pending),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrBroadcastNotFound
	}
	return nil
}

// explainMissedUpdate distinguishes a missing row from a state-machine
// rejection after a guarded UPDATE touched nothing.
func (r *BroadcastRepository) explainMissedUpdate(ctx context.Context, id string) error {
	var entity BroadcastEntity
	err := r.Read(ctx).WithContext(ctx).Select("id").Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBroadcastNotFound
		}
		return err
	}
	return ErrInvalidTransition
}
