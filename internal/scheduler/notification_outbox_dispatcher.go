package scheduler

import (
	"context"
	"fmt"
	"time"

	"leadflow_backend/internal/notification/outbox"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	outboxPollInterval = 2 * time.Second
	outboxClaimBatch   = 50
	outboxMaxRetry     = 8

	outboxReclaimInterval = time.Minute
	outboxStaleAfter      = 5 * time.Minute
)

// OutboxClaimer hands out pending records exactly once.
type OutboxClaimer interface {
	ClaimPending(ctx context.Context, limit int) ([]outbox.Record, error)
	MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type NotificationOutboxDispatcher struct {
	client taskEnqueuer
	queue  string
	repo   OutboxClaimer
	log    *logger.Logger
}

func NewNotificationOutboxDispatcher(cfg config.SchedulerConfig, repo OutboxClaimer, log *logger.Logger) (*NotificationOutboxDispatcher, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &NotificationOutboxDispatcher{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
		repo:   repo,
		log:    log,
	}, nil
}

func (d *NotificationOutboxDispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *NotificationOutboxDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.repo == nil {
		return
	}

	ticker := time.NewTicker(outboxPollInterval)
	defer ticker.Stop()
	reclaimTicker := time.NewTicker(outboxReclaimInterval)
	defer reclaimTicker.Stop()

	d.reclaim(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-reclaimTicker.C:
			d.reclaim(ctx)
		case <-ticker.C:
			d.dispatch(ctx)
		}
	}
}

// reclaim puts records stranded in enqueued back in line for dispatch.
func (d *NotificationOutboxDispatcher) reclaim(ctx context.Context) int64 {
	n, err := d.repo.ReclaimStale(ctx, outboxStaleAfter)
	if err != nil {
		d.log.Warn("outbox reclaim failed", "error", err)
		return 0
	}
	if n > 0 {
		d.log.Warn("outbox records reclaimed", "count", n, "staleAfter", outboxStaleAfter.String())
	}
	return n
}

// dispatch enqueues one claimed batch and returns how many records made it
// onto the queue. Records that could not be enqueued go back to pending.
func (d *NotificationOutboxDispatcher) dispatch(ctx context.Context) int {
	records, err := d.repo.ClaimPending(ctx, outboxClaimBatch)
	if err != nil {
		d.log.Warn("outbox claim failed", "error", err)
		return 0
	}

	enqueued := 0
	for _, rec := range records {
		task, err := NewNotificationOutboxDueTask(NotificationOutboxDuePayload{
			OutboxID: rec.ID.String(),
			TenantID: rec.TenantID.String(),
		})
		if err == nil {
			_, err = d.client.EnqueueContext(ctx, task,
				asynq.ProcessAt(rec.RunAt),
				asynq.Queue(d.queue),
				asynq.MaxRetry(outboxMaxRetry),
			)
		}
		if err != nil {
			msg := err.Error()
			if markErr := d.repo.MarkPending(ctx, rec.ID, &msg); markErr != nil {
				d.log.Error("outbox record stuck in enqueued state", "outboxId", rec.ID.String(), "error", markErr)
			}
			continue
		}
		enqueued++
	}
	return enqueued
}
