package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/notification/outbox"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type fakeRecoverer struct {
	tenantID uuid.UUID
	leadID   uuid.UUID
	err      error
}

func (f *fakeRecoverer) RecoverCold(_ context.Context, tenantID, leadID uuid.UUID) error {
	f.tenantID, f.leadID = tenantID, leadID
	return f.err
}

func TestLeadAIRecoveryTaskCallsRecoverer(t *testing.T) {
	rec := &fakeRecoverer{}
	w := newWorker(nil, rec, logger.New("development"))
	tenantID, leadID := uuid.New(), uuid.New()

	task, err := NewLeadAIRecoveryTask(LeadAIRecoveryPayload{TenantID: tenantID.String(), LeadID: leadID.String()})
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	if err := w.handleLeadAIRecovery(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if rec.tenantID != tenantID || rec.leadID != leadID {
		t.Fatalf("recoverer got tenant=%s lead=%s", rec.tenantID, rec.leadID)
	}
}

func TestLeadAIRecoveryErrorIsRetried(t *testing.T) {
	rec := &fakeRecoverer{err: errors.New("model timeout")}
	w := newWorker(nil, rec, logger.New("development"))

	task, _ := NewLeadAIRecoveryTask(LeadAIRecoveryPayload{TenantID: uuid.NewString(), LeadID: uuid.NewString()})
	err := w.handleLeadAIRecovery(context.Background(), task)
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestMalformedPayloadSkipsRetry(t *testing.T) {
	w := newWorker(nil, &fakeRecoverer{}, logger.New("development"))

	task := asynq.NewTask(TaskLeadAIRecovery, []byte(`{"tenantId":"nope","leadId":"nope"}`))
	if err := w.handleLeadAIRecovery(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestOutboxDueTaskPublishesEvent(t *testing.T) {
	log := logger.New("development")
	bus := events.NewInMemoryBus(log)
	var got events.NotificationOutboxDue
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		got = e.(events.NotificationOutboxDue)
		return nil
	}))
	w := newWorker(bus, nil, log)

	outboxID, tenantID := uuid.New(), uuid.New()
	task, _ := NewNotificationOutboxDueTask(NotificationOutboxDuePayload{OutboxID: outboxID.String(), TenantID: tenantID.String()})
	if err := w.handleNotificationOutboxDue(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got.OutboxID != outboxID || got.TenantID != tenantID {
		t.Fatalf("unexpected event %+v", got)
	}
}

type fakeClaimer struct {
	records    []outbox.Record
	pending    []uuid.UUID
	stale      int64
	staleAfter time.Duration
	reclaimErr error
}

func (f *fakeClaimer) ClaimPending(context.Context, int) ([]outbox.Record, error) {
	out := f.records
	f.records = nil
	return out, nil
}

func (f *fakeClaimer) MarkPending(_ context.Context, id uuid.UUID, _ *string) error {
	f.pending = append(f.pending, id)
	return nil
}

func (f *fakeClaimer) ReclaimStale(_ context.Context, olderThan time.Duration) (int64, error) {
	f.staleAfter = olderThan
	n := f.stale
	f.stale = 0
	return n, f.reclaimErr
}

type fakeEnqueuer struct {
	fail  map[string]bool
	types []string
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	p, _ := ParseNotificationOutboxDuePayload(task)
	if f.fail[p.OutboxID] {
		return nil, errors.New("redis down")
	}
	f.types = append(f.types, task.Type())
	return &asynq.TaskInfo{}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func TestDispatchReturnsUnqueuedRecordsToPending(t *testing.T) {
	ok, bad := uuid.New(), uuid.New()
	claimer := &fakeClaimer{records: []outbox.Record{{ID: ok}, {ID: bad}}}
	enq := &fakeEnqueuer{fail: map[string]bool{bad.String(): true}}
	d := &NotificationOutboxDispatcher{client: enq, queue: "default", repo: claimer, log: logger.New("development")}

	if n := d.dispatch(context.Background()); n != 1 {
		t.Fatalf("expected 1 enqueued, got %d", n)
	}
	if len(claimer.pending) != 1 || claimer.pending[0] != bad {
		t.Fatalf("expected only the failed record back in pending, got %v", claimer.pending)
	}
	if len(enq.types) != 1 || enq.types[0] != TaskNotificationOutboxDue {
		t.Fatalf("unexpected enqueued tasks %v", enq.types)
	}
}

func TestReclaimReturnsStrandedRecordsToDispatch(t *testing.T) {
	claimer := &fakeClaimer{stale: 3}
	d := &NotificationOutboxDispatcher{client: &fakeEnqueuer{}, queue: "default", repo: claimer, log: logger.New("development")}

	if n := d.reclaim(context.Background()); n != 3 {
		t.Fatalf("expected 3 reclaimed, got %d", n)
	}
	if claimer.staleAfter != outboxStaleAfter {
		t.Fatalf("expected stale threshold %s, got %s", outboxStaleAfter, claimer.staleAfter)
	}
	if n := d.reclaim(context.Background()); n != 0 {
		t.Fatalf("expected nothing left to reclaim, got %d", n)
	}

	claimer.reclaimErr = errors.New("pool closed")
	if n := d.reclaim(context.Background()); n != 0 {
		t.Fatalf("expected 0 on error, got %d", n)
	}
}
