package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"leadflow_backend/internal/abuse/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/cache"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var detectNow = time.Date(2026, 7, 1, 15, 0, 0, 0, time.UTC)

// windowed answers range queries with a fixed total for the baseline window
// and another for the most recent hour.
type windowed struct {
	baseline int64
	recent   int64
	err      error
}

func (w windowed) count(from, to time.Time) (int64, error) {
	if w.err != nil {
		return 0, w.err
	}
	if to.Equal(detectNow) && from.Equal(detectNow.Add(-time.Hour)) {
		return w.recent, nil
	}
	if to.Equal(detectNow.Add(-time.Hour)) && from.Equal(detectNow.Add(-25*time.Hour)) {
		return w.baseline, nil
	}
	return 0, errors.New("unexpected window")
}

type spendStub struct{ windowed }

func (s spendStub) SpendBetween(_ context.Context, _ uuid.UUID, from, to time.Time) (int64, error) {
	return s.count(from, to)
}

type leadsStub struct{ windowed }

func (l leadsStub) CountCreatedBetween(_ context.Context, _ uuid.UUID, from, to time.Time) (int64, error) {
	return l.count(from, to)
}

type eventStore struct {
	mu      sync.Mutex
	tenants []uuid.UUID
	events  []repository.Event
}

func (e *eventStore) ListActiveTenants(context.Context) ([]uuid.UUID, error) { return e.tenants, nil }

func (e *eventStore) AppendEvent(_ context.Context, ev repository.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

type adminStub struct {
	mu     sync.Mutex
	alerts []string
	err    error
}

func (a *adminStub) NotifyAdmins(_ context.Context, _ uuid.UUID, title, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, title)
	return a.err
}

type fixture struct {
	mr     *miniredis.Miniredis
	client *redis.Client
	events *eventStore
	admins *adminStub
	svc    *Service
}

func newFixture(t *testing.T, spend, leads windowed) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{mr: mr, client: client, events: &eventStore{}, admins: &adminStub{}}
	f.svc = New(Deps{
		Spend:    spendStub{spend},
		Leads:    leadsStub{leads},
		Failures: cache.NewWindowCounter(client, "abuse:failures", time.Hour),
		Pauses:   NewPauseStore(client),
		Events:   f.events,
		Admins:   f.admins,
	}, config.DefaultGovernance().Abuse, logger.New("test"))
	f.svc.now = func() time.Time { return detectNow }
	return f
}

func TestTokenDrainPausesTenantForConfiguredWindow(t *testing.T) {
	// 240 tokens over the previous 24 hours is a mean of 10 per hour.
	f := newFixture(t, windowed{baseline: 240, recent: 150}, windowed{baseline: 24, recent: 1})
	tenantID := uuid.New()
	ctx := context.Background()

	r, err := f.svc.DetectAbusePatterns(ctx, tenantID)
	require.NoError(t, err)
	assert.True(t, r.TokenDrainAttack)
	assert.False(t, r.SpamLeadCreation)
	assert.InDelta(t, 10.0, r.MeanHourlySpend, 0.001)
	assert.True(t, r.Paused)
	require.NotNil(t, r.PausedUntil)

	paused, err := f.svc.IsAbuserPaused(ctx, tenantID)
	require.NoError(t, err)
	assert.True(t, paused)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, ActionPaused, f.events.events[0].Action)
	assert.Len(t, f.admins.alerts, 1)

	f.mr.FastForward(59 * time.Minute)
	paused, err = f.svc.IsAbuserPaused(ctx, tenantID)
	require.NoError(t, err)
	assert.True(t, paused)

	f.mr.FastForward(2 * time.Minute)
	paused, err = f.svc.IsAbuserPaused(ctx, tenantID)
	require.NoError(t, err)
	assert.False(t, paused)
}

func TestRepeatDetectionIsRecordedButNotRenotified(t *testing.T) {
	f := newFixture(t, windowed{baseline: 240, recent: 150}, windowed{})
	tenantID := uuid.New()

	_, err := f.svc.DetectAbusePatterns(context.Background(), tenantID)
	require.NoError(t, err)
	r, err := f.svc.DetectAbusePatterns(context.Background(), tenantID)
	require.NoError(t, err)

	assert.True(t, r.Paused)
	require.Len(t, f.events.events, 2)
	assert.Equal(t, ActionPaused, f.events.events[0].Action)
	assert.Equal(t, ActionAlreadyPaused, f.events.events[1].Action)
	assert.True(t, f.events.events[1].TokenDrainAttack)
	assert.Len(t, f.admins.alerts, 1)
}

func TestNoBaselineNeverFlags(t *testing.T) {
	f := newFixture(t, windowed{baseline: 0, recent: 5000}, windowed{baseline: 0, recent: 900})
	r, err := f.svc.DetectAbusePatterns(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, r.TokenDrainAttack)
	assert.False(t, r.SpamLeadCreation)
	assert.False(t, r.Paused)
	assert.Empty(t, f.events.events)
}

func TestSpendAtThresholdIsNotAttack(t *testing.T) {
	f := newFixture(t, windowed{baseline: 240, recent: 100}, windowed{})
	r, err := f.svc.DetectAbusePatterns(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, r.TokenDrainAttack)
}

func TestSpamLeadCreationPauses(t *testing.T) {
	// mean 1 lead per hour, 21 in the last hour
	f := newFixture(t, windowed{}, windowed{baseline: 24, recent: 21})
	r, err := f.svc.DetectAbusePatterns(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, r.SpamLeadCreation)
	assert.True(t, r.Paused)
}

func TestAPIFailuresFlagWithoutPause(t *testing.T) {
	f := newFixture(t, windowed{}, windowed{})
	f.admins.err = errors.New("slack down")
	tenantID := uuid.New()
	for i := 0; i < 101; i++ {
		f.svc.RecordAPIFailure(context.Background(), tenantID)
	}

	r, err := f.svc.DetectAbusePatterns(context.Background(), tenantID)
	require.NoError(t, err)
	assert.True(t, r.SuspiciousActivity)
	assert.Equal(t, int64(101), r.APIFailures)
	assert.False(t, r.Paused)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, ActionFlagged, f.events.events[0].Action)
}

func TestStoreFailureIsUnavailable(t *testing.T) {
	f := newFixture(t, windowed{err: errors.New("db down")}, windowed{})
	_, err := f.svc.DetectAbusePatterns(context.Background(), uuid.New())
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))
}

func TestLiftClearsPause(t *testing.T) {
	f := newFixture(t, windowed{baseline: 240, recent: 150}, windowed{})
	tenantID := uuid.New()
	_, err := f.svc.DetectAbusePatterns(context.Background(), tenantID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Lift(context.Background(), tenantID))
	status, err := f.svc.Status(context.Background(), tenantID)
	require.NoError(t, err)
	assert.False(t, status.Paused)
}

func TestTickScansEveryTenant(t *testing.T) {
	f := newFixture(t, windowed{baseline: 240, recent: 150}, windowed{})
	f.events.tenants = []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	processed, failed, err := f.svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, processed)
	assert.Equal(t, 0, failed)
	assert.Len(t, f.events.events, 3)
}
