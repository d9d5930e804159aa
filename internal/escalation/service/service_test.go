package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadflow_backend/internal/agents"
	"leadflow_backend/internal/escalation/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAgent struct {
	agents.Candidate
	available bool
}

type memStore struct {
	leads     map[uuid.UUID]repository.LeadRef
	agents    []stubAgent
	escalated map[uuid.UUID]repository.Escalation
	records   []repository.Record
	failWrite error
}

func newMemStore() *memStore {
	return &memStore{leads: map[uuid.UUID]repository.LeadRef{}, escalated: map[uuid.UUID]repository.Escalation{}}
}

func (m *memStore) addAgent(tier string, available bool, open int) uuid.UUID {
	id := uuid.New()
	m.agents = append(m.agents, stubAgent{
		Candidate: agents.Candidate{Agent: agents.Agent{ID: id, Tier: tier}, OpenLeads: open},
		available: available,
	})
	return id
}

func (m *memStore) InTx(_ context.Context, fn func(repository.Tx) error) error {
	tx := &memTx{store: m}
	if err := fn(tx); err != nil {
		return err
	}
	for _, e := range tx.escalations {
		m.escalated[e.LeadID] = e
	}
	m.records = append(m.records, tx.records...)
	return nil
}

type memTx struct {
	store       *memStore
	escalations []repository.Escalation
	records     []repository.Record
}

func (t *memTx) LockLead(_ context.Context, tenantID, leadID uuid.UUID) (repository.LeadRef, error) {
	l, ok := t.store.leads[leadID]
	if !ok || l.TenantID != tenantID {
		return repository.LeadRef{}, repository.ErrLeadNotFound
	}
	return l, nil
}

func (t *memTx) ListCandidates(_ context.Context, _ uuid.UUID, f agents.Filter) ([]agents.Candidate, error) {
	out := make([]agents.Candidate, 0)
	for _, a := range t.store.agents {
		if f.Tier != "" && a.Tier != f.Tier {
			continue
		}
		if f.AvailableOnly && !a.available {
			continue
		}
		out = append(out, a.Candidate)
	}
	return out, nil
}

func (t *memTx) Escalate(_ context.Context, e repository.Escalation) error {
	if t.store.failWrite != nil {
		return t.store.failWrite
	}
	t.escalations = append(t.escalations, e)
	return nil
}

func (t *memTx) AppendRecord(_ context.Context, r repository.Record) error {
	t.records = append(t.records, r)
	return nil
}

type fakeNotifier struct {
	priorities []string
	err        error
}

func (f *fakeNotifier) NotifyAgent(_ context.Context, _, _ uuid.UUID, priority, _, _ string) error {
	f.priorities = append(f.priorities, priority)
	return f.err
}

func ptr[T any](v T) *T { return &v }

func TestEvaluateCollectsEveryTrigger(t *testing.T) {
	settings := config.DefaultGovernance().Escalation
	got := Evaluate(settings, Signals{
		Confidence:     ptr(0.4),
		DealSize:       ptr(75000.0),
		Message:        "This is URGENT, my lawyer says the contract is wrong",
		ObjectionCount: 3,
	})
	assert.Equal(t, []string{
		TriggerLowConfidence,
		TriggerHighValueDeal,
		TriggerUrgencyLanguage,
		TriggerSensitiveTopic,
		TriggerObjectionThreshold,
	}, got)
}

func TestEvaluateQuietConversation(t *testing.T) {
	settings := config.DefaultGovernance().Escalation
	got := Evaluate(settings, Signals{
		Confidence:     ptr(0.9),
		DealSize:       ptr(49999.0),
		Message:        "Thanks, I will think about the offer.",
		ObjectionCount: 2,
	})
	assert.Empty(t, got)
}

func TestEvaluateMatchesWholeWordsOnly(t *testing.T) {
	settings := config.DefaultGovernance().Escalation

	for _, msg := range []string{
		"Is that even illegal here?",
		"Our paralegal will review it",
		"The previous vendor went bankrupt",
	} {
		assert.Empty(t, Evaluate(settings, Signals{Message: msg}), msg)
	}

	assert.Equal(t, []string{TriggerSensitiveTopic}, Evaluate(settings, Signals{Message: "Is this a legal requirement?"}))
	assert.Equal(t, []string{TriggerUrgencyLanguage}, Evaluate(settings, Signals{Message: "I need it RIGHT-NOW."}))
}

func TestEvaluateBoundaries(t *testing.T) {
	settings := config.DefaultGovernance().Escalation
	assert.Empty(t, Evaluate(settings, Signals{Confidence: ptr(0.6)}))
	assert.Equal(t, []string{TriggerHighValueDeal}, Evaluate(settings, Signals{DealSize: ptr(50000.0)}))
	assert.Empty(t, Evaluate(settings, Signals{}))
}

func newTestService(store *memStore, notifier *fakeNotifier) *Service {
	svc := New(store, notifier, nil, config.DefaultGovernance().Escalation, logger.New("test"))
	svc.now = func() time.Time { return time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestEscalatePicksAvailableSenior(t *testing.T) {
	store := newMemStore()
	tenantID := uuid.New()
	leadID := uuid.New()
	store.leads[leadID] = repository.LeadRef{ID: leadID, TenantID: tenantID, Score: 20}
	store.addAgent(agents.TierSenior, false, 0)
	senior := store.addAgent(agents.TierSenior, true, 7)
	store.addAgent(agents.TierMid, true, 0)

	notifier := &fakeNotifier{err: errors.New("queue full")}
	out, err := newTestService(store, notifier).Escalate(context.Background(), tenantID, leadID, []string{TriggerLeakageDetected})
	require.NoError(t, err)

	assert.True(t, out.Escalated)
	require.NotNil(t, out.AgentID)
	assert.Equal(t, senior, *out.AgentID)
	assert.Equal(t, senior, store.escalated[leadID].AgentID)
	assert.Equal(t, "leakage_detected", store.escalated[leadID].Reason)
	require.Len(t, store.records, 1)
	assert.Equal(t, []string{TriggerLeakageDetected}, store.records[0].Triggers)
	assert.Equal(t, []string{"critical"}, notifier.priorities)
}

func TestEscalateFallsBackToLeastLoadedAgent(t *testing.T) {
	store := newMemStore()
	tenantID := uuid.New()
	leadID := uuid.New()
	store.leads[leadID] = repository.LeadRef{ID: leadID, TenantID: tenantID}
	store.addAgent(agents.TierMid, false, 4)
	junior := store.addAgent(agents.TierJunior, false, 1)

	out, err := newTestService(store, &fakeNotifier{}).Escalate(context.Background(), tenantID, leadID, []string{TriggerSensitiveTopic})
	require.NoError(t, err)
	assert.Equal(t, junior, *out.AgentID)
}

func TestEscalateWithoutAgentsIsNoCapacity(t *testing.T) {
	store := newMemStore()
	tenantID := uuid.New()
	leadID := uuid.New()
	store.leads[leadID] = repository.LeadRef{ID: leadID, TenantID: tenantID}

	_, err := newTestService(store, &fakeNotifier{}).Escalate(context.Background(), tenantID, leadID, []string{TriggerSensitiveTopic})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNoCapacity))
	assert.ErrorIs(t, err, ErrNoAgentAvailable)
	assert.Empty(t, store.records)
}

func TestEscalateErrors(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &fakeNotifier{})
	tenantID := uuid.New()

	_, err := svc.Escalate(context.Background(), tenantID, uuid.New(), []string{TriggerSensitiveTopic})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = svc.Escalate(context.Background(), tenantID, uuid.New(), nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	leadID := uuid.New()
	store.leads[leadID] = repository.LeadRef{ID: leadID, TenantID: tenantID}
	store.addAgent(agents.TierSenior, true, 0)
	store.failWrite = errors.New("connection refused")
	_, err = svc.Escalate(context.Background(), tenantID, leadID, []string{TriggerSensitiveTopic})
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))
}

func TestCheckEscalationQuietSkipsStore(t *testing.T) {
	store := newMemStore()
	out, err := newTestService(store, &fakeNotifier{}).CheckEscalation(context.Background(), uuid.New(), uuid.New(), Signals{Message: "sounds good"})
	require.NoError(t, err)
	assert.False(t, out.Escalated)
	assert.Empty(t, store.escalated)
}

func TestCheckEscalationEscalatesOnTrigger(t *testing.T) {
	store := newMemStore()
	tenantID := uuid.New()
	leadID := uuid.New()
	store.leads[leadID] = repository.LeadRef{ID: leadID, TenantID: tenantID}
	store.addAgent(agents.TierSenior, true, 0)

	out, err := newTestService(store, &fakeNotifier{}).CheckEscalation(context.Background(), tenantID, leadID, Signals{ObjectionCount: 5})
	require.NoError(t, err)
	assert.True(t, out.Escalated)
	assert.Equal(t, []string{TriggerObjectionThreshold}, out.Triggers)
}
