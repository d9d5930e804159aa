// Package repository stores leakage events, the append-only record of every
// remediation the leakage monitor applied.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Event struct {
	ID              uuid.UUID  `json:"id"`
	TenantID        uuid.UUID  `json:"tenantId"`
	LeadID          uuid.UUID  `json:"leadId"`
	Score           int        `json:"score"`
	Action          string     `json:"action"`
	PreviousAgentID *uuid.UUID `json:"previousAgentId,omitempty"`
	Detail          string     `json:"detail,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Append(ctx context.Context, e Event) error {
	var detail *string
	if e.Detail != "" {
		detail = &e.Detail
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO leakage_events (tenant_id, lead_id, score, action, previous_agent_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.TenantID, e.LeadID, e.Score, e.Action, e.PreviousAgentID, detail)
	return err
}

func (r *Repository) ListForLead(ctx context.Context, tenantID, leadID uuid.UUID, limit int) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, lead_id, score, action, previous_agent_id, COALESCE(detail, ''), created_at
		FROM leakage_events
		WHERE tenant_id = $1 AND lead_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, tenantID, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Event, 0)
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.TenantID, &e.LeadID, &e.Score, &e.Action, &e.PreviousAgentID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
