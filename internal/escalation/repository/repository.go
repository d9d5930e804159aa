// Package repository persists escalations: the lead reassignment and the
// append-only escalation records.
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

type LeadRef struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	Score           int
	AssignedAgentID *uuid.UUID
}

type Escalation struct {
	LeadID      uuid.UUID
	TenantID    uuid.UUID
	AgentID     uuid.UUID
	Reason      string
	EscalatedAt time.Time
}

type Record struct {
	TenantID uuid.UUID
	LeadID   uuid.UUID
	AgentID  uuid.UUID
	Triggers []string
}

type Tx interface {
	LockLead(ctx context.Context, tenantID, leadID uuid.UUID) (LeadRef, error)
	ListCandidates(ctx context.Context, tenantID uuid.UUID, f agents.Filter) ([]agents.Candidate, error)
	Escalate(ctx context.Context, e Escalation) error
	AppendRecord(ctx context.Context, r Record) error
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
		SELECT id, tenant_id, score, assigned_agent_id
		FROM leads
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`, leadID, tenantID).Scan(&ref.ID, &ref.TenantID, &ref.Score, &ref.AssignedAgentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return LeadRef{}, ErrLeadNotFound
	}
	return ref, err
}

func (t *pgTx) ListCandidates(ctx context.Context, tenantID uuid.UUID, f agents.Filter) ([]agents.Candidate, error) {
	return agents.ListCandidates(ctx, t.tx, tenantID, f)
}

func (t *pgTx) Escalate(ctx context.Context, e Escalation) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE leads
		SET assigned_agent_id = $3,
			routing_priority = 'critical',
			escalated = true,
			escalation_reason = $4,
			escalated_at = $5,
			updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, e.LeadID, e.TenantID, e.AgentID, e.Reason, e.EscalatedAt)
	return err
}

func (t *pgTx) AppendRecord(ctx context.Context, r Record) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO escalation_records (tenant_id, lead_id, agent_id, triggers)
		VALUES ($1, $2, $3, $4)
	`, r.TenantID, r.LeadID, r.AgentID, r.Triggers)
	return err
}
