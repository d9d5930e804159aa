// Package repository persists routing decisions: lead assignment fields and
// the append-only routing history.
package repository

import (
	"context"
	"errors"
	"time"

	"leadflow_backend/internal/agents"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrLeadNotFound = errors.New("lead not found")

// LeadRef is the locked view of a lead being routed.
type LeadRef struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	Score           int
	Status          string
	AssignedAgentID *uuid.UUID
}

type Assignment struct {
	LeadID      uuid.UUID
	TenantID    uuid.UUID
	AgentID     uuid.UUID
	Priority    string
	SLAMinutes  int
	RoutedAt    time.Time
	SLADeadline time.Time
}

type HistoryRecord struct {
	TenantID        uuid.UUID
	LeadID          uuid.UUID
	AgentID         uuid.UUID
	PreviousAgentID *uuid.UUID
	Score           int
	Priority        string
	SLAMinutes      int
}

// Tx is the set of operations a routing decision performs atomically.
type Tx interface {
	LockLead(ctx context.Context, tenantID, leadID uuid.UUID) (LeadRef, error)
	ListCandidates(ctx context.Context, tenantID uuid.UUID, f agents.Filter) ([]agents.Candidate, error)
	Assign(ctx context.Context, a Assignment) error
	AppendHistory(ctx context.Context, h HistoryRecord) error
}

type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockLead(ctx context.Context, tenantID, leadID uuid.UUID) (LeadRef, error) {
	var ref LeadRef
	err := t.tx.QueryRow(ctx, `
		SELECT id, tenant_id, score, status, assigned_agent_id
		FROM leads
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`, leadID, tenantID).Scan(&ref.ID, &ref.TenantID, &ref.Score, &ref.Status, &ref.AssignedAgentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return LeadRef{}, ErrLeadNotFound
	}
	return ref, err
}

func (t *pgTx) ListCandidates(ctx context.Context, tenantID uuid.UUID, f agents.Filter) ([]agents.Candidate, error) {
	return agents.ListCandidates(ctx, t.tx, tenantID, f)
}

func (t *pgTx) Assign(ctx context.Context, a Assignment) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE leads
		SET assigned_agent_id = $3,
			routing_priority = $4,
			routing_sla_minutes = $5,
			routed_at = $6,
			sla_deadline = $7,
			sla_breach_notified_at = NULL,
			updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, a.LeadID, a.TenantID, a.AgentID, a.Priority, a.SLAMinutes, a.RoutedAt, a.SLADeadline)
	return err
}

func (t *pgTx) AppendHistory(ctx context.Context, h HistoryRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO routing_history (tenant_id, lead_id, agent_id, previous_agent_id, score, priority, sla_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, h.TenantID, h.LeadID, h.AgentID, h.PreviousAgentID, h.Score, h.Priority, h.SLAMinutes)
	return err
}
