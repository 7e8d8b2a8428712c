package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ulugbek-dev/broadcast-gateway/internal/model"
	"github.com/ulugbek-dev/broadcast-gateway/internal/repository"
	"github.com/ulugbek-dev/broadcast-gateway/pkg/logger"
)

type JobStore interface {
	Get(ctx context.Context, id string) (*model.Broadcast, error)
	ListByStatus(ctx context.Context, status model.BroadcastStatus) ([]*model.Broadcast, error)
	TransitionStatus(ctx context.Context, id string, to model.BroadcastStatus) error
	MarkFailed(ctx context.Context, id string, reason string) error
	IncrementStats(ctx context.Context, id string, delta model.StatsDelta) error
}

type LedgerStore interface {
	NextPendingBatch(ctx context.Context, broadcastID string, limit int) ([]*model.Recipient, error)
	MarkDelivered(ctx context.Context, id int64, outcome model.DeliveryOutcome) error
}

// DeliveryChannel performs a single delivery attempt. Implementations never
// retry; any failure is reported through the outcome.
type DeliveryChannel interface {
	Deliver(ctx context.Context, chatID int64, text string) model.DeliveryOutcome
}

// RateLimitSource resolves the effective messages/second ceiling for a job:
// min(operator-configured global limit, the job's own limit). Re-read at
// dispatch time so a changed setting applies to newly started jobs.
type RateLimitSource interface {
	EffectiveRate(ctx context.Context, jobRateLimit int) int
}

// Dispatcher drains broadcast jobs one goroutine per job. Each recipient gets
// exactly one delivery attempt, paced by a fixed inter-message delay. Job and
// recipient state live in storage, so a cancel written by the API is observed
// at the next re-read and process restarts are recoverable via Sweep.
type Dispatcher struct {
	jobs      JobStore
	ledger    LedgerStore
	channel   DeliveryChannel
	rates     RateLimitSource
	batchSize int

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(jobs JobStore, ledger LedgerStore, channel DeliveryChannel, rates RateLimitSource, batchSize int) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 30
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		jobs:      jobs,
		ledger:    ledger,
		channel:   channel,
		rates:     rates,
		batchSize: batchSize,
		runCtx:    ctx,
		cancel:    cancel,
	}
}

// Sweep recovers jobs left behind by a previous process. Jobs stuck in
// in_progress cannot tell which deliveries already happened, so they are
// failed rather than resumed; pending jobs are simply re-dispatched.
func (d *Dispatcher) Sweep(ctx context.Context) error {
	stale, err := d.jobs.ListByStatus(ctx, model.BroadcastStatusInProgress)
	if err != nil {
		return err
	}
	for _, b := range stale {
		if err := d.jobs.MarkFailed(ctx, b.ID, "dispatcher restarted before completion"); err != nil {
			logger.Error("[dispatcher] failed to sweep stale job", "broadcast_id", b.ID, "error", err)
			continue
		}
		logger.Warn("[dispatcher] marked stale job as failed", "broadcast_id", b.ID)
	}

	pending, err := d.jobs.ListByStatus(ctx, model.BroadcastStatusPending)
	if err != nil {
		return err
	}
	for _, b := range pending {
		logger.Info("[dispatcher] re-dispatching pending job", "broadcast_id", b.ID)
		d.Dispatch(b.ID)
	}
	return nil
}

// Dispatch starts delivery of one job in the background and returns
// immediately. Safe to call for jobs that turn out cancelled or missing; the
// worker verifies the state before sending anything.
func (d *Dispatcher) Dispatch(id string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(id)
	}()
}

// Stop halts all workers and waits for them to return. In-flight jobs stay
// in_progress and are swept at the next start.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) run(id string) {
	ctx := d.runCtx
	// Storage calls run on their own context: cancelling runCtx means
	// "stop working", not "the store is gone", and a shutdown must never
	// turn a healthy job into failed or record a delivery that did not
	// happen. Only the loop below watches runCtx.
	store := context.Background()

	if ctx.Err() != nil {
		// Stopped before pickup; the job stays pending and the next
		// Sweep re-dispatches it
		return
	}

	job, err := d.jobs.Get(store, id)
	if err != nil {
		logger.Error("[dispatcher] failed to load job", "broadcast_id", id, "error", err)
		return
	}
	if job.Status.Terminal() {
		// Cancelled (or otherwise finished) between creation and pickup
		logger.Info("[dispatcher] job already terminal, skipping", "broadcast_id", id, "status", job.Status)
		return
	}

	err = d.jobs.TransitionStatus(store, id, model.BroadcastStatusInProgress)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			// Lost the race against a cancel
			logger.Info("[dispatcher] job no longer startable, skipping", "broadcast_id", id)
			return
		}
		logger.Error("[dispatcher] failed to start job", "broadcast_id", id, "error", err)
		return
	}

	rate := d.rates.EffectiveRate(store, job.RateLimit)
	delay := Delay(rate)

	logger.Info("[dispatcher] job started",
		"broadcast_id", id,
		"total", job.Stats.Total,
		"rate", rate,
		"delay", delay.String(),
	)
	observeJobStarted()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			d.shutdown(id)
			return
		}

		// Re-read the job before every batch so an API cancel wins
		job, err = d.jobs.Get(store, id)
		if err != nil {
			d.fail(id, "failed to re-read job: "+err.Error())
			return
		}
		if job.Status == model.BroadcastStatusCancelled {
			d.finish(id, model.BroadcastStatusCancelled, job.Stats)
			return
		}

		batch, err := d.ledger.NextPendingBatch(store, id, d.batchSize)
		if err != nil {
			d.fail(id, "failed to load pending recipients: "+err.Error())
			return
		}
		if len(batch) == 0 {
			d.complete(id)
			return
		}

		for _, rec := range batch {
			if ctx.Err() != nil {
				d.shutdown(id)
				return
			}

			// Cancellation check before each attempt, not just per batch
			job, err = d.jobs.Get(store, id)
			if err != nil {
				d.fail(id, "failed to re-read job: "+err.Error())
				return
			}
			if job.Status == model.BroadcastStatusCancelled {
				d.finish(id, model.BroadcastStatusCancelled, job.Stats)
				return
			}

			started := time.Now()
			outcome := d.channel.Deliver(ctx, rec.ChatID, job.Message)
			if ctx.Err() != nil && !outcome.OK {
				// The attempt was aborted by shutdown, not refused by the
				// channel; the recipient stays pending for the next run
				d.shutdown(id)
				return
			}
			observeDelivery(outcome, started)

			if err := d.resolve(store, id, rec, outcome); err != nil {
				d.fail(id, "failed to record delivery: "+err.Error())
				return
			}

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				d.shutdown(id)
				return
			}
		}
	}
}

// shutdown leaves the job in_progress on purpose: no terminal bookkeeping
// happens on Stop, the next process start sweeps the job instead.
func (d *Dispatcher) shutdown(id string) {
	logger.Warn("[dispatcher] shutdown while job in progress", "broadcast_id", id)
	observeJobFinished(model.BroadcastStatusInProgress)
}

// resolve records one delivery outcome and bumps the aggregate counters. The
// counter delta always sums to zero, so sent+failed+pending keeps matching
// total. A recipient that was already resolved (e.g. by a previous process)
// is skipped without touching the counters.
func (d *Dispatcher) resolve(ctx context.Context, broadcastID string, rec *model.Recipient, outcome model.DeliveryOutcome) error {
	err := d.ledger.MarkDelivered(ctx, rec.ID, outcome)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyResolved) {
			logger.Warn("[dispatcher] recipient already resolved, skipping",
				"broadcast_id", broadcastID,
				"recipient_id", rec.ID,
			)
			return nil
		}
		return err
	}

	delta := model.StatsDelta{Sent: 1, Pending: -1}
	if !outcome.OK {
		delta = model.StatsDelta{Failed: 1, Pending: -1}
		logger.Warn("[dispatcher] delivery failed",
			"broadcast_id", broadcastID,
			"target_id", rec.TargetID,
			"reason", outcome.Reason,
		)
	}
	return d.jobs.IncrementStats(ctx, broadcastID, delta)
}

func (d *Dispatcher) complete(id string) {
	// Terminal bookkeeping runs on a fresh context so a shutdown-cancelled
	// runCtx cannot block the final status write.
	ctx := context.Background()
	err := d.jobs.TransitionStatus(ctx, id, model.BroadcastStatusCompleted)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			// Cancel landed after the last delivery; cancelled stands
			logger.Info("[dispatcher] job cancelled at the finish line", "broadcast_id", id)
			observeJobFinished(model.BroadcastStatusCancelled)
			return
		}
		logger.Error("[dispatcher] failed to complete job", "broadcast_id", id, "error", err)
		return
	}
	logger.Info("[dispatcher] job completed", "broadcast_id", id)
	observeJobFinished(model.BroadcastStatusCompleted)
}

func (d *Dispatcher) finish(id string, status model.BroadcastStatus, stats model.BroadcastStats) {
	logger.Info("[dispatcher] job stopped",
		"broadcast_id", id,
		"status", status,
		"sent", stats.Sent,
		"failed", stats.Failed,
		"pending", stats.Pending,
	)
	observeJobFinished(status)
}

func (d *Dispatcher) fail(id string, reason string) {
	ctx := context.Background()
	if err := d.jobs.MarkFailed(ctx, id, reason); err != nil {
		logger.Error("[dispatcher] failed to mark job as failed", "broadcast_id", id, "error", err)
	}
	logger.Error("[dispatcher] job failed", "broadcast_id", id, "reason", reason)
	observeJobFinished(model.BroadcastStatusFailed)
}
