package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ulugbek-dev/broadcast-gateway/internal/model"
	"github.com/ulugbek-dev/broadcast-gateway/internal/repository"
)

var (
	ErrEmptyMessage    = errors.New("message text cannot be empty")
	ErrNoRecipients    = errors.New("no target recipients provided")
	ErrDuplicateTarget = errors.New("duplicate target in recipient list")
	ErrNotFound        = errors.New("broadcast not found")
	ErrAlreadyTerminal = errors.New("broadcast already finished or cancelled")
)

type BroadcastRepository interface {
	Create(ctx context.Context, b *model.Broadcast) (*model.Broadcast, error)
	Get(ctx context.Context, id string) (*model.Broadcast, error)
	List(ctx context.Context, f model.BroadcastFilter) ([]*model.Broadcast, int64, error) // results, totalCount
	RequestCancel(ctx context.Context, id string) error
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type RecipientRepository interface {
	CreateBatch(ctx context.Context, broadcastID string, inputs []model.RecipientInput) error
	List(ctx context.Context, f model.RecipientFilter) ([]*model.Recipient, int64, error)
}

// Dispatcher hands a freshly created job to the dispatch engine. The call
// must not block: delivery runs in the background and callers observe
// progress by polling.
type Dispatcher interface {
	Dispatch(id string)
}

type BroadcastService struct {
	broadcastRepo BroadcastRepository
	recipientRepo RecipientRepository
	dispatcher    Dispatcher
}

func NewBroadcastService(broadcastRepo BroadcastRepository, recipientRepo RecipientRepository, dispatcher Dispatcher) *BroadcastService {
	return &BroadcastService{
		broadcastRepo: broadcastRepo,
		recipientRepo: recipientRepo,
		dispatcher:    dispatcher,
	}
}

// Create validates the request, persists the job together with its frozen
// recipient snapshot in one transaction and hands the job id to the
// dispatcher. Nothing is persisted when validation fails.
func (s *BroadcastService) Create(ctx context.Context, p model.BroadcastCreateRequest) (*model.Broadcast, error) {
	p.Message = strings.TrimSpace(p.Message)
	if p.Message == "" {
		return nil, ErrEmptyMessage
	}
	if len(p.Recipients) == 0 {
		return nil, ErrNoRecipients
	}

	b := &model.Broadcast{
		Message:   p.Message,
		RateLimit: model.ClampRateLimit(p.RateLimit),
		Status:    model.BroadcastStatusPending,
		Stats: model.BroadcastStats{
			Total:   len(p.Recipients),
			Pending: len(p.Recipients),
		},
	}
	if f := strings.TrimSpace(p.TargetFilter); f != "" && f != "all" {
		b.TargetFilter = &f
	}

	var created *model.Broadcast
	err := s.broadcastRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.broadcastRepo.Create(ctx, b)
		if err != nil {
			return fmt.Errorf("create broadcast: %w", err)
		}
		if err := s.recipientRepo.CreateBatch(ctx, created.ID, p.Recipients); err != nil {
			// Transaction will auto-rollback, removing the job record
			if errors.Is(err, repository.ErrDuplicateTarget) {
				return ErrDuplicateTarget
			}
			return fmt.Errorf("create recipients: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.Dispatch(created.ID)
	return created, nil
}

func (s *BroadcastService) Get(ctx context.Context, id string) (*model.Broadcast, error) {
	b, err := s.broadcastRepo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrBroadcastNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *BroadcastService) List(ctx context.Context, f model.BroadcastFilter) ([]*model.Broadcast, int64, error) {
	return s.broadcastRepo.List(ctx, f)
}

func (s *BroadcastService) ListRecipients(ctx context.Context, f model.RecipientFilter) ([]*model.Recipient, int64, error) {
	return s.recipientRepo.List(ctx, f)
}

// Cancel requests cancellation of a pending or in_progress job. The running
// dispatcher notices within one delivery-plus-wait cycle; recipients already
// resolved keep their status. Cancelling a terminal job is rejected with
// ErrAlreadyTerminal.
func (s *BroadcastService) Cancel(ctx context.Context, id string) (*model.Broadcast, error) {
	err := s.broadcastRepo.RequestCancel(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrBroadcastNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrAlreadyTerminal):
			return nil, ErrAlreadyTerminal
		default:
			return nil, err
		}
	}
	return s.Get(ctx, id)
}
