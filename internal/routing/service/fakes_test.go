package service

import (
	"context"
	"sync"
	"time"

	"leadflow_backend/internal/agents"
	ledger "leadflow_backend/internal/ledger/service"
	"leadflow_backend/internal/routing/repository"

	"github.com/google/uuid"
)

type fakeAgent struct {
	agents.Agent
	available bool
}

type memStore struct {
	mu       sync.Mutex
	leads    map[uuid.UUID]*repository.LeadRef
	agents   []fakeAgent
	history  []repository.HistoryRecord
	assigned map[uuid.UUID]repository.Assignment
	// preload seeds open-lead counts without materializing leads.
	preload map[uuid.UUID]int
}

func newMemStore() *memStore {
	return &memStore{
		leads:    map[uuid.UUID]*repository.LeadRef{},
		assigned: map[uuid.UUID]repository.Assignment{},
		preload:  map[uuid.UUID]int{},
	}
}

func (s *memStore) addAgent(tier string, available bool) uuid.UUID {
	id := uuid.New()
	s.agents = append(s.agents, fakeAgent{Agent: agents.Agent{ID: id, Name: tier, Tier: tier}, available: available})
	return id
}

func (s *memStore) addLead(tenantID uuid.UUID, score int) uuid.UUID {
	id := uuid.New()
	s.leads[id] = &repository.LeadRef{ID: id, TenantID: tenantID, Score: score, Status: "active"}
	return id
}

func (s *memStore) assignmentsFor(agentID uuid.UUID) int {
	n := 0
	for _, h := range s.history {
		if h.AgentID == agentID {
			n++
		}
	}
	return n
}

// InTx serializes transactions, which is stricter than the row locks Postgres takes.
func (s *memStore) InTx(_ context.Context, fn func(repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{store: s, assigned: map[uuid.UUID]repository.Assignment{}}
	if err := fn(tx); err != nil {
		return err
	}
	for id, a := range tx.assigned {
		s.assigned[id] = a
		agentID := a.AgentID
		s.leads[id].AssignedAgentID = &agentID
	}
	s.history = append(s.history, tx.history...)
	return nil
}

type memTx struct {
	store    *memStore
	assigned map[uuid.UUID]repository.Assignment
	history  []repository.HistoryRecord
}

func (t *memTx) LockLead(_ context.Context, tenantID, leadID uuid.UUID) (repository.LeadRef, error) {
	l, ok := t.store.leads[leadID]
	if !ok || l.TenantID != tenantID {
		return repository.LeadRef{}, repository.ErrLeadNotFound
	}
	return *l, nil
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
		if f.Exclude != nil && *f.Exclude == a.ID {
			continue
		}
		open := t.store.preload[a.ID]
		for _, l := range t.store.leads {
			if l.AssignedAgentID != nil && *l.AssignedAgentID == a.ID {
				open++
			}
		}
		out = append(out, agents.Candidate{Agent: a.Agent, OpenLeads: open, RecentAssignments: t.store.assignmentsFor(a.ID)})
	}
	return out, nil
}

func (t *memTx) Assign(_ context.Context, a repository.Assignment) error {
	t.assigned[a.LeadID] = a
	return nil
}

func (t *memTx) AppendHistory(_ context.Context, h repository.HistoryRecord) error {
	t.history = append(t.history, h)
	return nil
}

type fakeSpender struct {
	mu    sync.Mutex
	calls []ledger.DeductParams
	err   error
}

func (f *fakeSpender) Deduct(_ context.Context, p ledger.DeductParams) (ledger.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p)
	return ledger.Balance{}, f.err
}

type scheduledRecovery struct {
	leadID uuid.UUID
	runAt  time.Time
}

type fakeRecovery struct {
	scheduled []scheduledRecovery
}

func (f *fakeRecovery) ScheduleAIRecovery(_ context.Context, _, leadID uuid.UUID, runAt time.Time) error {
	f.scheduled = append(f.scheduled, scheduledRecovery{leadID: leadID, runAt: runAt})
	return nil
}

type sentNotification struct {
	agentID  uuid.UUID
	priority string
	title    string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (f *fakeNotifier) NotifyAgent(_ context.Context, _, agentID uuid.UUID, priority, title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{agentID: agentID, priority: priority, title: title})
	return f.err
}
