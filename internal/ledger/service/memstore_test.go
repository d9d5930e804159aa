package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"leadflow_backend/internal/ledger/repository"

	"github.com/google/uuid"
)

// memStore mirrors the Postgres contract: LockBalance holds a per-tenant row
// lock until the transaction ends, and writes only become visible on commit.
type memStore struct {
	mu       sync.Mutex
	balances map[uuid.UUID]repository.Balance
	entries  []repository.Entry
	rowLocks map[uuid.UUID]*sync.Mutex

	failAppend error
}

func newMemStore() *memStore {
	return &memStore{
		balances: make(map[uuid.UUID]repository.Balance),
		rowLocks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *memStore) GetBalance(_ context.Context, tenantID uuid.UUID) (repository.Balance, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[tenantID]
	if !ok {
		return repository.Balance{TenantID: tenantID}, false, nil
	}
	return b, true, nil
}

func (s *memStore) InTx(_ context.Context, fn func(repository.Tx) error) error {
	tx := &memTx{store: s, staged: make(map[uuid.UUID]repository.Balance)}
	defer tx.release()
	if err := fn(tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range tx.staged {
		s.balances[id] = b
	}
	s.entries = append(s.entries, tx.entries...)
	return nil
}

func (s *memStore) ListEntries(_ context.Context, tenantID uuid.UUID, limit int) ([]repository.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.Entry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].TenantID == tenantID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

func (s *memStore) SpendBetween(_ context.Context, tenantID uuid.UUID, from, to time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var spent int64
	for _, e := range s.entries {
		if e.TenantID == tenantID && e.Amount < 0 && !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			spent += -e.Amount
		}
	}
	return spent, nil
}

func (s *memStore) sumEntries(tenantID uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, e := range s.entries {
		if e.TenantID == tenantID {
			sum += e.Amount
		}
	}
	return sum
}

func (s *memStore) rowLock(tenantID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rowLocks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		s.rowLocks[tenantID] = l
	}
	return l
}

type memTx struct {
	store   *memStore
	held    []*sync.Mutex
	staged  map[uuid.UUID]repository.Balance
	entries []repository.Entry
}

func (t *memTx) release() {
	for _, l := range t.held {
		l.Unlock()
	}
}

func (t *memTx) current(tenantID uuid.UUID) repository.Balance {
	if b, ok := t.staged[tenantID]; ok {
		return b
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	b, ok := t.store.balances[tenantID]
	if !ok {
		b = repository.Balance{TenantID: tenantID}
	}
	return b
}

func (t *memTx) LockBalance(_ context.Context, tenantID uuid.UUID) (repository.Balance, error) {
	l := t.store.rowLock(tenantID)
	l.Lock()
	t.held = append(t.held, l)
	b := t.current(tenantID)
	t.staged[tenantID] = b
	return b, nil
}

func (t *memTx) AppendEntry(_ context.Context, e repository.NewEntry) (repository.Entry, repository.Balance, error) {
	if t.store.failAppend != nil {
		return repository.Entry{}, repository.Balance{}, t.store.failAppend
	}
	b, ok := t.staged[e.TenantID]
	if !ok {
		return repository.Entry{}, repository.Balance{}, errors.New("balance row not locked")
	}
	entry := repository.Entry{
		ID:            uuid.New(),
		TenantID:      e.TenantID,
		Amount:        e.Amount,
		OperationType: e.OperationType,
		Description:   e.Description,
		ReferenceID:   e.ReferenceID,
		CreatedAt:     time.Now(),
	}
	b.Balance += e.Amount
	if e.Amount < 0 && b.Balance <= 0 {
		b.IsPaused = true
	}
	t.staged[e.TenantID] = b
	t.entries = append(t.entries, entry)
	return entry, b, nil
}

func (t *memTx) SumEntries(_ context.Context, tenantID uuid.UUID) (int64, error) {
	sum := t.store.sumEntries(tenantID)
	for _, e := range t.entries {
		if e.TenantID == tenantID {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (t *memTx) SetBalance(_ context.Context, tenantID uuid.UUID, balance int64, paused bool) error {
	b := t.staged[tenantID]
	b.TenantID = tenantID
	b.Balance = balance
	b.IsPaused = paused
	t.staged[tenantID] = b
	return nil
}

func (t *memTx) SetPaused(_ context.Context, tenantID uuid.UUID, paused bool) error {
	b := t.staged[tenantID]
	b.IsPaused = paused
	t.staged[tenantID] = b
	return nil
}
