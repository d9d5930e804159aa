// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"leadflow_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	Keyed       = events.Keyed
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Lead Lifecycle Events
// =============================================================================

// LeadScored is published after a lead's score and tier are persisted.
type LeadScored struct {
	BaseEvent
	TenantID   uuid.UUID `json:"tenantId"`
	LeadID     uuid.UUID `json:"leadId"`
	Score      int       `json:"score"`
	Category   string    `json:"category"`
	Tier       string    `json:"tier"`
	ModelScore int       `json:"modelScore"`
	Fallback   bool      `json:"fallback"`
}

func (e LeadScored) EventName() string    { return "leads.lead.scored" }
func (e LeadScored) PartitionKey() string { return e.TenantID.String() }

// LeadRouted is published after a routing decision commits.
type LeadRouted struct {
	BaseEvent
	TenantID        uuid.UUID  `json:"tenantId"`
	LeadID          uuid.UUID  `json:"leadId"`
	AgentID         uuid.UUID  `json:"agentId"`
	PreviousAgentID *uuid.UUID `json:"previousAgentId,omitempty"`
	Score           int        `json:"score"`
	Tier            string     `json:"tier"`
	Priority        string     `json:"priority"`
	SLAMinutes      int        `json:"slaMinutes"`
}

func (e LeadRouted) EventName() string    { return "routing.lead.routed" }
func (e LeadRouted) PartitionKey() string { return e.TenantID.String() }

// LeadEscalated is published after a lead is reassigned to a senior agent.
type LeadEscalated struct {
	BaseEvent
	TenantID uuid.UUID `json:"tenantId"`
	LeadID   uuid.UUID `json:"leadId"`
	AgentID  uuid.UUID `json:"agentId"`
	Triggers []string  `json:"triggers"`
}

func (e LeadEscalated) EventName() string    { return "escalation.lead.escalated" }
func (e LeadEscalated) PartitionKey() string { return e.TenantID.String() }

// LeakageRemediated is published for every remediation the leakage monitor applies.
type LeakageRemediated struct {
	BaseEvent
	TenantID uuid.UUID `json:"tenantId"`
	LeadID   uuid.UUID `json:"leadId"`
	Score    int       `json:"score"`
	Action   string    `json:"action"`
}

func (e LeakageRemediated) EventName() string    { return "leakage.lead.remediated" }
func (e LeakageRemediated) PartitionKey() string { return e.TenantID.String() }

// SLABreached is published when a routed lead passes its SLA deadline unanswered.
type SLABreached struct {
	BaseEvent
	TenantID   uuid.UUID `json:"tenantId"`
	LeadID     uuid.UUID `json:"leadId"`
	AgentID    uuid.UUID `json:"agentId"`
	Priority   string    `json:"priority"`
	MinutesOff int       `json:"minutesOverdue"`
}

func (e SLABreached) EventName() string    { return "routing.sla.breached" }
func (e SLABreached) PartitionKey() string { return e.TenantID.String() }

// =============================================================================
// Resource Governance Events
// =============================================================================

// TokensDeducted is published after a debit commits.
type TokensDeducted struct {
	BaseEvent
	TenantID      uuid.UUID `json:"tenantId"`
	Amount        int64     `json:"amount"`
	OperationType string    `json:"operationType"`
	ReferenceID   string    `json:"referenceId,omitempty"`
	Balance       int64     `json:"balance"`
}

func (e TokensDeducted) EventName() string    { return "ledger.tokens.deducted" }
func (e TokensDeducted) PartitionKey() string { return e.TenantID.String() }

// TokensToppedUp is published after a credit commits.
type TokensToppedUp struct {
	BaseEvent
	TenantID           uuid.UUID `json:"tenantId"`
	Amount             int64     `json:"amount"`
	PaymentReferenceID string    `json:"paymentReferenceId"`
	Balance            int64     `json:"balance"`
}

func (e TokensToppedUp) EventName() string    { return "ledger.tokens.topped_up" }
func (e TokensToppedUp) PartitionKey() string { return e.TenantID.String() }

// AbuseDetected is published when a tenant is paused for anomalous consumption.
type AbuseDetected struct {
	BaseEvent
	TenantID           uuid.UUID `json:"tenantId"`
	TokenDrainAttack   bool      `json:"tokenDrainAttack"`
	SpamLeadCreation   bool      `json:"spamLeadCreation"`
	SuspiciousActivity bool      `json:"suspiciousActivity"`
	PausedUntil        string    `json:"pausedUntil,omitempty"`
}

func (e AbuseDetected) EventName() string    { return "abuse.tenant.detected" }
func (e AbuseDetected) PartitionKey() string { return e.TenantID.String() }

// =============================================================================
// Notification Events
// =============================================================================

// NotificationOutboxDue is published by the worker when an outbox record is due.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
	TenantID uuid.UUID `json:"tenantId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }
