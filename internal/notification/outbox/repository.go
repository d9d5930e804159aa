// Package outbox persists agent and admin alerts until the scheduler hands
// them to the task queue. A record moves pending -> enqueued -> processing and
// ends succeeded or failed; failed records are retried by the queue.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusEnqueued   Status = "enqueued"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Recipient kinds. The Deliverer drops records of any other kind.
const (
	KindAgent = "agent"
	KindAdmin = "admin"
)

const (
	TemplateAgentAlert = "agent_alert"
	TemplateAdminAlert = "admin_alert"
)

const defaultClaimLimit = 50

type Record struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Kind      string
	Template  string
	Payload   json.RawMessage
	RunAt     time.Time
	Status    Status
	Attempts  int
	LastError *string
}

type InsertParams struct {
	TenantID  uuid.UUID
	Kind      string
	Template  string
	Payload   any
	RunAt     time.Time
	Status    Status // defaults to pending
	LastError *string
}

// normalize fills defaults and rejects records the Deliverer could never route.
func (p InsertParams) normalize(now time.Time) (InsertParams, []byte, error) {
	switch {
	case p.TenantID == uuid.Nil:
		return p, nil, apperr.Validation("outbox record needs a tenant")
	case p.Kind == "":
		return p, nil, apperr.Validation("outbox record needs a recipient kind")
	case p.Template == "":
		return p, nil, apperr.Validation("outbox record needs a template")
	}
	if p.RunAt.IsZero() {
		p.RunAt = now.UTC()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return p, nil, apperr.Wrap(apperr.KindValidation, "outbox payload is not JSON", err)
	}
	return p, payload, nil
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) ready() error {
	if r == nil || r.pool == nil {
		return apperr.Unavailable("notification outbox not configured")
	}
	return nil
}

func (r *Repository) Insert(ctx context.Context, p InsertParams) (uuid.UUID, error) {
	if err := r.ready(); err != nil {
		return uuid.Nil, err
	}
	p, payload, err := p.normalize(time.Now())
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx, `
		INSERT INTO notification_outbox (tenant_id, kind, template, payload, run_at, status, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		p.TenantID, p.Kind, p.Template, payload, p.RunAt, string(p.Status), p.LastError,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert %s alert: %w", p.Kind, err)
	}
	return id, nil
}

const recordColumns = `id, tenant_id, kind, template, payload, run_at, status, attempts, last_error`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var status string
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.Kind, &rec.Template, &rec.Payload, &rec.RunAt, &status, &rec.Attempts, &rec.LastError)
	rec.Status = Status(status)
	return rec, err
}

// GetByID returns pgx.ErrNoRows unwrapped so the Deliverer can drop tasks
// whose record is gone.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Record, error) {
	if err := r.ready(); err != nil {
		return Record{}, err
	}
	return scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM notification_outbox WHERE id = $1`, id))
}

// ClaimPending flips up to limit due records to enqueued. Concurrent
// dispatchers never receive the same record.
func (r *Repository) ClaimPending(ctx context.Context, limit int) ([]Record, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = defaultClaimLimit
	}

	var claimed []Record
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			WITH due AS (
				SELECT id FROM notification_outbox
				WHERE status = 'pending' AND run_at <= now()
				ORDER BY run_at
				LIMIT $1
				FOR UPDATE SKIP LOCKED
			)
			UPDATE notification_outbox o
			SET status = 'enqueued', updated_at = now()
			FROM due
			WHERE o.id = due.id
			RETURNING `+claimedColumns, limit)
		if err != nil {
			return err
		}
		claimed, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
			return scanRecord(row)
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("claim outbox records: %w", err)
	}
	return claimed, nil
}

const claimedColumns = `o.id, o.tenant_id, o.kind, o.template, o.payload, o.run_at, o.status, o.attempts, o.last_error`

// ReclaimStale returns records left enqueued for longer than olderThan to
// pending. Such a record was claimed but its task never reached the queue,
// typically because the dispatcher stopped between the two steps.
func (r *Repository) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_outbox
		SET status = 'pending', last_error = 'reclaimed after stalling in enqueued', updated_at = now()
		WHERE status = 'enqueued' AND updated_at < now() - make_interval(secs => $1)`,
		olderThan.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale outbox records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error {
	return r.transition(ctx, id, StatusPending, lastError, false)
}

// MarkProcessing also counts the delivery attempt.
func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, StatusProcessing, nil, true)
}

func (r *Repository) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, StatusSucceeded, nil, false)
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.transition(ctx, id, StatusFailed, &lastError, false)
}

// transition keeps last_error when moving to processing so a retried record
// still shows why the previous attempt failed.
func (r *Repository) transition(ctx context.Context, id uuid.UUID, to Status, lastError *string, countAttempt bool) error {
	if err := r.ready(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_outbox
		SET status = $2,
		    last_error = CASE WHEN $2 = 'processing' THEN last_error ELSE $3 END,
		    attempts = attempts + CASE WHEN $4 THEN 1 ELSE 0 END,
		    updated_at = now()
		WHERE id = $1`,
		id, string(to), lastError, countAttempt,
	)
	if err != nil {
		return fmt.Errorf("mark outbox record %s %s: %w", id, to, err)
	}
	return nil
}
