// Package audit appends governance actions to the audit log. Writes happen on
// a background worker and never fail the caller.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one audit row.
type Entry struct {
	TenantID uuid.UUID
	Actor    string
	Action   string
	EntityID string
	Metadata map[string]any
}

// Writer persists entries.
type Writer interface {
	Insert(ctx context.Context, e Entry) error
}

// Repository writes entries to Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, e Entry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_log (tenant_id, actor, action, entity_id, metadata) VALUES ($1, $2, $3, $4, $5)`,
		e.TenantID, e.Actor, e.Action, e.EntityID, meta,
	)
	return err
}

// Logger queues entries for a single background writer.
type Logger struct {
	writer  Writer
	log     *logger.Logger
	queue   chan Entry
	timeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// New starts the writer goroutine. buffer bounds the number of queued entries;
// entries beyond it are dropped and counted.
func New(writer Writer, log *logger.Logger, buffer int) *Logger {
	if buffer < 1 {
		buffer = 256
	}
	l := &Logger{
		writer:  writer,
		log:     log,
		queue:   make(chan Entry, buffer),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Log enqueues an entry. It never blocks and never returns an error.
func (l *Logger) Log(_ context.Context, tenantID uuid.UUID, actor, action, entityID string, metadata map[string]any) {
	if l == nil {
		return
	}
	defer func() {
		// Send on a closed queue after shutdown.
		if r := recover(); r != nil {
			metrics.BestEffortFailures.WithLabelValues("audit").Inc()
		}
	}()
	select {
	case l.queue <- Entry{TenantID: tenantID, Actor: actor, Action: action, EntityID: entityID, Metadata: metadata}:
	default:
		metrics.BestEffortFailures.WithLabelValues("audit").Inc()
		l.log.Warn("audit queue full, entry dropped", "action", action, "tenant_id", tenantID.String())
	}
}

// Close drains queued entries and stops the worker.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.closeOnce.Do(func() { close(l.queue) })
	<-l.done
}

func (l *Logger) run() {
	defer close(l.done)
	for e := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		if err := l.writer.Insert(ctx, e); err != nil {
			metrics.BestEffortFailures.WithLabelValues("audit").Inc()
			l.log.BestEffortFailure("audit", err, "action", e.Action, "tenant_id", e.TenantID.String())
		}
		cancel()
	}
}
