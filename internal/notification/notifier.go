package notification

import (
	"context"
	"fmt"
	"strings"

	"leadflow_backend/internal/notification/outbox"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Notification priorities, lowest first.
const (
	PriorityLow      = "low"
	PriorityNormal   = "normal"
	PriorityUrgent   = "urgent"
	PriorityCritical = "critical"
)

// OutboxWriter persists a notification for later delivery.
type OutboxWriter interface {
	Insert(ctx context.Context, p outbox.InsertParams) (uuid.UUID, error)
}

type agentAlertPayload struct {
	AgentID  uuid.UUID `json:"agentId"`
	Priority string    `json:"priority"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
}

type adminAlertPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Notifier writes notifications to the outbox. Delivery happens in the
// scheduler process, so callers only ever see insert failures.
type Notifier struct {
	outbox OutboxWriter
	log    *logger.Logger
}

func NewNotifier(o OutboxWriter, log *logger.Logger) *Notifier {
	return &Notifier{outbox: o, log: log}
}

// NotifyAgent queues an alert for one agent.
func (n *Notifier) NotifyAgent(ctx context.Context, tenantID, agentID uuid.UUID, priority, title, body string) error {
	if agentID == uuid.Nil {
		return fmt.Errorf("notify agent: agent id is required")
	}
	id, err := n.outbox.Insert(ctx, outbox.InsertParams{
		TenantID: tenantID,
		Kind:     outbox.KindAgent,
		Template: outbox.TemplateAgentAlert,
		Payload: agentAlertPayload{
			AgentID:  agentID,
			Priority: NormalizePriority(priority),
			Title:    title,
			Body:     body,
		},
	})
	if err != nil {
		return fmt.Errorf("notify agent: %w", err)
	}
	n.log.Debug("agent notification queued", "outboxId", id, "agentId", agentID, "priority", priority)
	return nil
}

// NotifyAdmins queues an alert for the tenant's administrators.
func (n *Notifier) NotifyAdmins(ctx context.Context, tenantID uuid.UUID, title, body string) error {
	id, err := n.outbox.Insert(ctx, outbox.InsertParams{
		TenantID: tenantID,
		Kind:     outbox.KindAdmin,
		Template: outbox.TemplateAdminAlert,
		Payload:  adminAlertPayload{Title: title, Body: body},
	})
	if err != nil {
		return fmt.Errorf("notify admins: %w", err)
	}
	n.log.Debug("admin notification queued", "outboxId", id, "tenantId", tenantID)
	return nil
}

// NormalizePriority maps unknown priorities to normal.
func NormalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case PriorityLow:
		return PriorityLow
	case PriorityUrgent:
		return PriorityUrgent
	case PriorityCritical:
		return PriorityCritical
	default:
		return PriorityNormal
	}
}

func isHighPriority(p string) bool {
	return p == PriorityUrgent || p == PriorityCritical
}
