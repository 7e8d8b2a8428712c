package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ulugbek-dev/broadcast-gateway/internal/model"
	"github.com/ulugbek-dev/broadcast-gateway/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateTarget is returned when a batch contains a target that
	// already has a record for the same broadcast.
	ErrDuplicateTarget = errors.New("target already present in broadcast")
	// ErrAlreadyResolved is returned when marking a recipient that is no
	// longer pending. A recipient resolves exactly once.
	ErrAlreadyResolved = errors.New("recipient already resolved")
)

type RecipientRepository struct {
	*pg.DB
}

func NewRecipientRepository(db *pg.DB) *RecipientRepository {
	return &RecipientRepository{
		db,
	}
}

// CreateBatch inserts the full recipient snapshot of one broadcast, all
// pending. The UNIQUE(broadcast_id, target_id) constraint rejects duplicate
// targets.
func (r *RecipientRepository) CreateBatch(ctx context.Context, broadcastID string, inputs []model.RecipientInput) error {
	if len(inputs) == 0 {
		return nil
	}

	entities := make([]*RecipientEntity, len(inputs))
	for i, in := range inputs {
		entities[i] = &RecipientEntity{
			BroadcastID: broadcastID,
			TargetID:    in.TargetID,
			ChatID:      in.ChatID,
			Status:      string(model.RecipientStatusPending),
		}
	}

	if err := r.Write(ctx).WithContext(ctx).CreateInBatches(entities, 500).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateTarget
		}
		return err
	}
	return nil
}

// NextPendingBatch returns up to limit pending recipients of one broadcast in
// insertion order. Order carries no meaning for the caller, only exhaustion
// does: an empty result means every recipient is resolved.
func (r *RecipientRepository) NextPendingBatch(ctx context.Context, broadcastID string, limit int) ([]*model.Recipient, error) {
	if limit <= 0 {
		limit = 30
	}
	var entities []*RecipientEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("broadcast_id = ? AND status = ?", broadcastID, model.RecipientStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toRecipientModels(entities), nil
}

// MarkDelivered resolves a pending recipient with the outcome of its single
// delivery attempt. The UPDATE is guarded on status=pending, so a second
// resolution of the same record affects zero rows and fails.
func (r *RecipientRepository) MarkDelivered(ctx context.Context, id int64, outcome model.DeliveryOutcome) error {
	updates := map[string]interface{}{}
	if outcome.OK {
		updates["status"] = model.RecipientStatusSent
		updates["sent_at"] = time.Now()
	} else {
		updates["status"] = model.RecipientStatusFailed
		updates["error"] = outcome.Reason
	}

	res := r.Write(ctx).WithContext(ctx).
		Model(&RecipientEntity{}).
		Where("id = ? AND status = ?", id, model.RecipientStatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

// List returns a page of one broadcast's recipients, optionally filtered by
// status, resolved-last-first (sent_at DESC, then created_at DESC).
func (r *RecipientRepository) List(ctx context.Context, f model.RecipientFilter) ([]*model.Recipient, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&RecipientEntity{}).
		Where("broadcast_id = ?", f.BroadcastID)

	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}

	// Count before pagination
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}

	var entities []*RecipientEntity
	if err := q.Order("sent_at DESC").Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toRecipientModels(entities), total, nil
}
