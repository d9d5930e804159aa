package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Lead struct {
	ID                     uuid.UUID
	TenantID               uuid.UUID
	ContactName            string
	ContactPhone           *string
	ContactEmail           *string
	Channel                string
	Message                string
	HasWhatsApp            bool
	InteractionCount       int
	ResponseLatencySeconds *int
	TemperatureOverride    *string
	Score                  int
	Temperature            string
	Status                 string
	AssignedAgentID        *uuid.UUID
	RoutingPriority        *string
	RoutingSLAMinutes      *int
	SLADeadline            *time.Time
	Escalated              bool
	EscalationReason       *string
	CreatedAt              time.Time
	UpdatedAt              time.Time
	LastContactedAt        *time.Time
	RoutedAt               *time.Time
	EscalatedAt            *time.Time
	AIRecoveryAttemptedAt  *time.Time
}

const leadColumns = `id, tenant_id, contact_name, contact_phone, contact_email, channel, message, has_whatsapp,
	interaction_count, response_latency_seconds, temperature_override, score, temperature, status,
	assigned_agent_id, routing_priority, routing_sla_minutes, sla_deadline, escalated, escalation_reason,
	created_at, updated_at, last_contacted_at, routed_at, escalated_at, ai_recovery_attempted_at`

func scanLead(row pgx.Row) (Lead, error) {
	var lead Lead
	err := row.Scan(
		&lead.ID, &lead.TenantID, &lead.ContactName, &lead.ContactPhone, &lead.ContactEmail, &lead.Channel, &lead.Message, &lead.HasWhatsApp,
		&lead.InteractionCount, &lead.ResponseLatencySeconds, &lead.TemperatureOverride, &lead.Score, &lead.Temperature, &lead.Status,
		&lead.AssignedAgentID, &lead.RoutingPriority, &lead.RoutingSLAMinutes, &lead.SLADeadline, &lead.Escalated, &lead.EscalationReason,
		&lead.CreatedAt, &lead.UpdatedAt, &lead.LastContactedAt, &lead.RoutedAt, &lead.EscalatedAt, &lead.AIRecoveryAttemptedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return lead, err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (Lead, error) {
	return scanLead(r.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1 AND tenant_id = $2`, id, tenantID))
}

// UpdateScore persists the scoring result. Scoring is the only writer of these columns.
func (r *Repository) UpdateScore(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, score int, temperature string, breakdown []byte) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET score = $3, temperature = $4, score_breakdown = $5, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID, score, temperature, breakdown)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestInboundMessage returns the newest inbound message body, or "" when none exists.
func (r *Repository) LatestInboundMessage(ctx context.Context, leadID uuid.UUID, tenantID uuid.UUID) (string, error) {
	var body string
	err := r.pool.QueryRow(ctx, `
		SELECT body FROM lead_messages
		WHERE lead_id = $1 AND tenant_id = $2 AND direction = 'inbound'
		ORDER BY created_at DESC
		LIMIT 1
	`, leadID, tenantID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return body, err
}

// AppendMessage records a conversation message. Outbound messages also stamp last_contacted_at.
func (r *Repository) AppendMessage(ctx context.Context, leadID uuid.UUID, tenantID uuid.UUID, direction, body string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO lead_messages (tenant_id, lead_id, direction, body) VALUES ($1, $2, $3, $4)
	`, tenantID, leadID, direction, body); err != nil {
		return err
	}
	if direction == "outbound" {
		if _, err := tx.Exec(ctx, `
			UPDATE leads SET last_contacted_at = now(), updated_at = now() WHERE id = $1 AND tenant_id = $2
		`, leadID, tenantID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// StaleLead is an active lead whose latest inbound message is unanswered.
type StaleLead struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	ContactName     string
	Channel         string
	Score           int
	AssignedAgentID *uuid.UUID
	LastInbound     string
	LastInboundAt   time.Time
}

// ListStale returns active leads whose latest inbound message is older than
// cutoff with no later outbound reply, skipping leads remediated since cooldownSince.
func (r *Repository) ListStale(ctx context.Context, cutoff, cooldownSince time.Time, limit int) ([]StaleLead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.id, l.tenant_id, l.contact_name, l.channel, l.score, l.assigned_agent_id, m.body, m.created_at
		FROM leads l
		JOIN LATERAL (
			SELECT body, created_at FROM lead_messages
			WHERE lead_id = l.id AND direction = 'inbound'
			ORDER BY created_at DESC
			LIMIT 1
		) m ON true
		WHERE l.status = 'active'
			AND m.created_at < $1
			AND NOT EXISTS (
				SELECT 1 FROM lead_messages o
				WHERE o.lead_id = l.id AND o.direction = 'outbound' AND o.created_at > m.created_at
			)
			AND NOT EXISTS (
				SELECT 1 FROM leakage_events e
				WHERE e.lead_id = l.id AND e.created_at >= $2
			)
		ORDER BY m.created_at ASC
		LIMIT $3
	`, cutoff, cooldownSince, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]StaleLead, 0)
	for rows.Next() {
		var s StaleLead
		if err := rows.Scan(&s.ID, &s.TenantID, &s.ContactName, &s.Channel, &s.Score, &s.AssignedAgentID, &s.LastInbound, &s.LastInboundAt); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *Repository) MarkAIRecoveryAttempted(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads SET ai_recovery_attempted_at = now(), updated_at = now() WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	return err
}

// CountCreatedBetween counts the tenant's leads created in [from, to).
func (r *Repository) CountCreatedBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM leads WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
	`, tenantID, from, to).Scan(&n)
	return n, err
}

// SLABreach is a routed lead past its deadline without an outbound reply since routing.
type SLABreach struct {
	LeadID      uuid.UUID
	TenantID    uuid.UUID
	AgentID     uuid.UUID
	Priority    string
	SLADeadline time.Time
}

func (r *Repository) ListSLABreaches(ctx context.Context, now time.Time, limit int) ([]SLABreach, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.id, l.tenant_id, l.assigned_agent_id, COALESCE(l.routing_priority, ''), l.sla_deadline
		FROM leads l
		WHERE l.status = 'active'
			AND l.assigned_agent_id IS NOT NULL
			AND l.sla_deadline < $1
			AND l.sla_breach_notified_at IS NULL
			AND NOT EXISTS (
				SELECT 1 FROM lead_messages o
				WHERE o.lead_id = l.id AND o.direction = 'outbound' AND o.created_at > l.routed_at
			)
		ORDER BY l.sla_deadline ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]SLABreach, 0)
	for rows.Next() {
		var b SLABreach
		if err := rows.Scan(&b.LeadID, &b.TenantID, &b.AgentID, &b.Priority, &b.SLADeadline); err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

// MarkSLABreachNotified reports false when another worker already claimed the breach.
func (r *Repository) MarkSLABreachNotified(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET sla_breach_notified_at = now()
		WHERE id = $1 AND tenant_id = $2 AND sla_breach_notified_at IS NULL
	`, id, tenantID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
