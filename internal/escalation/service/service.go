// Package service decides when a lead needs a senior agent and performs the
// reassignment.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"leadflow_backend/internal/agents"
	"leadflow_backend/internal/escalation/repository"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/metrics"
	"leadflow_backend/platform/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const opEscalate = "escalation.Escalate"

// ErrNoAgentAvailable is wrapped by the no-capacity error Escalate returns.
var ErrNoAgentAvailable = errors.New("no agent available")

type AgentNotifier interface {
	NotifyAgent(ctx context.Context, tenantID, agentID uuid.UUID, priority, title, body string) error
}

// Outcome reports a check or an escalation.
type Outcome struct {
	LeadID    uuid.UUID  `json:"leadId"`
	Escalated bool       `json:"escalated"`
	Triggers  []string   `json:"triggers"`
	AgentID   *uuid.UUID `json:"agentId,omitempty"`
}

type Service struct {
	store    repository.Store
	notifier AgentNotifier
	bus      events.Bus
	settings config.EscalationSettings
	log      *logger.Logger
	now      func() time.Time
	randIntn func(int) int
}

func New(store repository.Store, notifier AgentNotifier, bus events.Bus, settings config.EscalationSettings, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		bus:      bus,
		settings: settings,
		log:      log,
		now:      time.Now,
		randIntn: rand.IntN,
	}
}

// CheckEscalation evaluates the signals and escalates when any trigger fires.
// A quiet check never touches the store.
func (s *Service) CheckEscalation(ctx context.Context, tenantID, leadID uuid.UUID, sig Signals) (Outcome, error) {
	triggers := Evaluate(s.settings, sig)
	if len(triggers) == 0 {
		return Outcome{LeadID: leadID, Triggers: triggers}, nil
	}
	return s.Escalate(ctx, tenantID, leadID, triggers)
}

// Escalate hands the lead to a random available senior agent at critical
// priority, falling back to the least loaded active agent.
func (s *Service) Escalate(ctx context.Context, tenantID, leadID uuid.UUID, triggers []string) (Outcome, error) {
	ctx, span := telemetry.Start(ctx, opEscalate,
		attribute.String("tenant_id", tenantID.String()),
		attribute.String("lead_id", leadID.String()),
		attribute.StringSlice("triggers", triggers),
	)
	defer span.End()

	if len(triggers) == 0 {
		return Outcome{}, apperr.Validation("at least one trigger is required").WithOp(opEscalate)
	}

	now := s.now().UTC()
	var agentID uuid.UUID
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		lead, err := tx.LockLead(ctx, tenantID, leadID)
		if err != nil {
			return err
		}
		agent, err := s.pickAgent(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if err := tx.Escalate(ctx, repository.Escalation{
			LeadID:      lead.ID,
			TenantID:    tenantID,
			AgentID:     agent.ID,
			Reason:      strings.Join(triggers, ","),
			EscalatedAt: now,
		}); err != nil {
			return err
		}
		if err := tx.AppendRecord(ctx, repository.Record{
			TenantID: tenantID,
			LeadID:   lead.ID,
			AgentID:  agent.ID,
			Triggers: triggers,
		}); err != nil {
			return err
		}
		agentID = agent.ID
		return nil
	})
	switch {
	case errors.Is(err, repository.ErrLeadNotFound):
		return Outcome{}, apperr.NotFound("lead not found").WithOp(opEscalate)
	case errors.Is(err, ErrNoAgentAvailable):
		s.log.Warn("no agent available for escalation", "tenant_id", tenantID.String(), "lead_id", leadID.String())
		return Outcome{}, apperr.Wrap(apperr.KindNoCapacity, ErrNoAgentAvailable.Error(), ErrNoAgentAvailable).WithOp(opEscalate)
	case err != nil:
		span.RecordError(err)
		s.log.DatabaseError(opEscalate, err)
		return Outcome{}, apperr.Wrap(apperr.KindUnavailable, "escalation unavailable", err).WithOp(opEscalate)
	}

	metrics.Escalations.Inc()
	s.log.Info("lead escalated", "tenant_id", tenantID.String(), "lead_id", leadID.String(),
		"agent_id", agentID.String(), "triggers", triggers)
	s.afterCommit(ctx, tenantID, leadID, agentID, triggers)
	return Outcome{LeadID: leadID, Escalated: true, Triggers: triggers, AgentID: &agentID}, nil
}

func (s *Service) pickAgent(ctx context.Context, tx repository.Tx, tenantID uuid.UUID) (*agents.Candidate, error) {
	seniors, err := tx.ListCandidates(ctx, tenantID, agents.Filter{
		Tier:          agents.TierSenior,
		AvailableOnly: true,
		RecentSince:   s.now().Add(-24 * time.Hour),
	})
	if err != nil {
		return nil, err
	}
	if len(seniors) > 0 {
		return &seniors[s.randIntn(len(seniors))], nil
	}

	active, err := tx.ListCandidates(ctx, tenantID, agents.Filter{RecentSince: s.now().Add(-24 * time.Hour)})
	if err != nil {
		return nil, err
	}
	var best *agents.Candidate
	for i := range active {
		if best == nil || active[i].OpenLeads < best.OpenLeads {
			best = &active[i]
		}
	}
	if best == nil {
		return nil, ErrNoAgentAvailable
	}
	return best, nil
}

func (s *Service) afterCommit(ctx context.Context, tenantID, leadID, agentID uuid.UUID, triggers []string) {
	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadEscalated{
			BaseEvent: events.NewBaseEvent(),
			TenantID:  tenantID,
			LeadID:    leadID,
			AgentID:   agentID,
			Triggers:  triggers,
		})
	}
	if s.notifier == nil {
		return
	}
	body := fmt.Sprintf("A lead was escalated to you: %s.", strings.ReplaceAll(strings.Join(triggers, ", "), "_", " "))
	if err := s.notifier.NotifyAgent(ctx, tenantID, agentID, string(domain.PriorityCritical), "Lead escalated", body); err != nil {
		metrics.BestEffortFailures.WithLabelValues("agent_notification").Inc()
		s.log.BestEffortFailure("agent_notification", err, "tenant_id", tenantID.String(), "lead_id", leadID.String())
	}
}
