package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LeadReader provides read-only access to lead data.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (Lead, error)
	LatestInboundMessage(ctx context.Context, leadID uuid.UUID, tenantID uuid.UUID) (string, error)
}

// ScoreWriter persists scoring results.
type ScoreWriter interface {
	UpdateScore(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, score int, temperature string, breakdown []byte) error
}

// MessageWriter records conversation messages.
type MessageWriter interface {
	AppendMessage(ctx context.Context, leadID uuid.UUID, tenantID uuid.UUID, direction, body string) error
}

// LeakageQueries backs the leakage monitor.
type LeakageQueries interface {
	ListStale(ctx context.Context, cutoff, cooldownSince time.Time, limit int) ([]StaleLead, error)
	MarkAIRecoveryAttempted(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error
}

// SLAQueries backs the SLA breach watcher.
type SLAQueries interface {
	ListSLABreaches(ctx context.Context, now time.Time, limit int) ([]SLABreach, error)
	MarkSLABreachNotified(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (bool, error)
}

// VelocityReader backs the abuse monitor's lead-creation baseline.
type VelocityReader interface {
	CountCreatedBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (int64, error)
}

// LeadsRepository defines the complete interface for leads data operations.
type LeadsRepository interface {
	LeadReader
	ScoreWriter
	MessageWriter
	LeakageQueries
	SLAQueries
	VelocityReader
}

// Ensure Repository implements LeadsRepository
var _ LeadsRepository = (*Repository)(nil)
