// Package agents reads the human agents leads are assigned to. Routing and
// escalation share the candidate query and run it inside their own transactions.
package agents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Agent tiers.
const (
	TierSenior = "senior"
	TierMid    = "mid"
	TierJunior = "junior"
)

type Agent struct {
	ID     uuid.UUID
	UserID *uuid.UUID
	Name   string
	Tier   string
}

// Candidate is an agent with the load figures routing compares.
type Candidate struct {
	Agent
	OpenLeads         int
	RecentAssignments int
}

// Filter narrows the candidate query. An empty Tier matches every tier.
type Filter struct {
	Tier          string
	AvailableOnly bool
	// RecentSince bounds the RecentAssignments window.
	RecentSince time.Time
	Exclude     *uuid.UUID
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ListCandidates returns the tenant's active agents matching f, oldest first.
func ListCandidates(ctx context.Context, q Querier, tenantID uuid.UUID, f Filter) ([]Candidate, error) {
	rows, err := q.Query(ctx, `
		SELECT a.id, a.user_id, a.name, a.tier,
			(SELECT COUNT(*) FROM leads l WHERE l.assigned_agent_id = a.id AND l.status = 'active') AS open_leads,
			(SELECT COUNT(*) FROM routing_history h WHERE h.agent_id = a.id AND h.created_at >= $3) AS recent_assignments
		FROM agents a
		WHERE a.tenant_id = $1
			AND a.is_active
			AND ($2 = '' OR a.tier = $2)
			AND (NOT $4 OR a.is_available)
			AND ($5::uuid IS NULL OR a.id <> $5::uuid)
		ORDER BY a.created_at ASC, a.id ASC
	`, tenantID, f.Tier, f.RecentSince, f.AvailableOnly, f.Exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Candidate, 0)
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Tier, &c.OpenLeads, &c.RecentAssignments); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// Contact is where an agent's alerts are delivered.
type Contact struct {
	AgentID uuid.UUID
	UserID  *uuid.UUID
	Name    string
	Email   *string
}

// RowQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetContact returns pgx.ErrNoRows when the agent is not in the tenant.
func GetContact(ctx context.Context, q RowQuerier, tenantID, agentID uuid.UUID) (Contact, error) {
	var c Contact
	err := q.QueryRow(ctx, `
		SELECT id, user_id, name, email
		FROM agents
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, agentID).Scan(&c.AgentID, &c.UserID, &c.Name, &c.Email)
	return c, err
}
