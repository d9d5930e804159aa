package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	leadrepo "leadflow_backend/internal/leads/repository"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSLAStore struct {
	mu       sync.Mutex
	breaches []leadrepo.SLABreach
	notified map[uuid.UUID]bool
	claimErr error
}

func (f *fakeSLAStore) ListSLABreaches(_ context.Context, now time.Time, limit int) ([]leadrepo.SLABreach, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]leadrepo.SLABreach, 0)
	for _, b := range f.breaches {
		if b.SLADeadline.Before(now) && !f.notified[b.LeadID] && len(out) < limit {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeSLAStore) MarkSLABreachNotified(_ context.Context, id, _ uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return false, f.claimErr
	}
	if f.notified[id] {
		return false, nil
	}
	f.notified[id] = true
	return true, nil
}

func TestSLAWatcherNotifiesOncePerBreach(t *testing.T) {
	agentID := uuid.New()
	store := &fakeSLAStore{notified: map[uuid.UUID]bool{}}
	store.breaches = []leadrepo.SLABreach{
		{LeadID: uuid.New(), TenantID: uuid.New(), AgentID: agentID, Priority: "urgent", SLADeadline: fixedNow.Add(-15 * time.Minute)},
		{LeadID: uuid.New(), TenantID: uuid.New(), AgentID: agentID, Priority: "normal", SLADeadline: fixedNow.Add(time.Hour)},
	}
	notifier := &fakeNotifier{}
	w := NewSLAWatcher(store, notifier, nil, logger.New("test"))
	w.now = func() time.Time { return fixedNow }

	processed, failed, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 0, failed)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, agentID, notifier.sent[0].agentID)
	assert.Equal(t, "urgent", notifier.sent[0].priority)

	processed, _, err = w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
	assert.Len(t, notifier.sent, 1)
}

func TestSLAWatcherCountsClaimFailures(t *testing.T) {
	store := &fakeSLAStore{notified: map[uuid.UUID]bool{}, claimErr: errors.New("conn reset")}
	store.breaches = []leadrepo.SLABreach{
		{LeadID: uuid.New(), TenantID: uuid.New(), AgentID: uuid.New(), Priority: "urgent", SLADeadline: fixedNow.Add(-time.Minute)},
	}
	w := NewSLAWatcher(store, &fakeNotifier{}, nil, logger.New("test"))
	w.now = func() time.Time { return fixedNow }

	processed, failed, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
	assert.Equal(t, 1, failed)
}
