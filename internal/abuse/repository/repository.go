// Package repository stores abuse events and lists the tenants the abuse
// monitor scans.
package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Event struct {
	ID                 uuid.UUID      `json:"id"`
	TenantID           uuid.UUID      `json:"tenantId"`
	TokenDrainAttack   bool           `json:"tokenDrainAttack"`
	SpamLeadCreation   bool           `json:"spamLeadCreation"`
	SuspiciousActivity bool           `json:"suspiciousActivity"`
	Action             string         `json:"action"`
	Details            map[string]any `json:"details,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListActiveTenants returns every tenant that can still spend tokens.
func (r *Repository) ListActiveTenants(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM tenants WHERE status = 'active' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) AppendEvent(ctx context.Context, e Event) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO abuse_events (tenant_id, token_drain_attack, spam_lead_creation, suspicious_activity, action, details)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.TenantID, e.TokenDrainAttack, e.SpamLeadCreation, e.SuspiciousActivity, e.Action, details)
	return err
}

func (r *Repository) ListEvents(ctx context.Context, tenantID uuid.UUID, limit int) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, token_drain_attack, spam_lead_creation, suspicious_activity, action, details, created_at
		FROM abuse_events
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Event, 0)
	for rows.Next() {
		var (
			e   Event
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.TokenDrainAttack, &e.SpamLeadCreation, &e.SuspiciousActivity, &e.Action, &raw, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &e.Details)
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
