// Package service assigns leads to agents by score tier under per-tier SLAs.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"leadflow_backend/internal/agents"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	ledger "leadflow_backend/internal/ledger/service"
	"leadflow_backend/internal/routing/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/metrics"
	"leadflow_backend/platform/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	opRoute = "routing.Route"

	// OperationRouting is the ledger operation charged per routing decision.
	OperationRouting = "routing"
	routingCost      = 1

	recoveryDelay = 24 * time.Hour
	loadWindow    = 24 * time.Hour
)

var errLeadClosed = errors.New("lead is closed")

type TokenSpender interface {
	Deduct(ctx context.Context, p ledger.DeductParams) (ledger.Balance, error)
}

// RecoveryScheduler defers an AI recovery attempt for a cold lead.
type RecoveryScheduler interface {
	ScheduleAIRecovery(ctx context.Context, tenantID, leadID uuid.UUID, runAt time.Time) error
}

// AgentNotifier delivers fire-and-forget notifications to an agent.
type AgentNotifier interface {
	NotifyAgent(ctx context.Context, tenantID, agentID uuid.UUID, priority, title, body string) error
}

type tierPlan struct {
	priority      domain.Priority
	sla           time.Duration
	agentTier     string
	availableOnly bool
}

var plans = map[domain.Tier]tierPlan{
	domain.TierHot:  {priority: domain.PriorityUrgent, sla: 10 * time.Minute, agentTier: agents.TierSenior, availableOnly: true},
	domain.TierWarm: {priority: domain.PriorityNormal, sla: 24 * time.Hour, agentTier: agents.TierMid, availableOnly: true},
	domain.TierCold: {priority: domain.PriorityLow, sla: 48 * time.Hour, agentTier: agents.TierJunior},
}

// RouteRequest asks for an assignment. Score overrides the stored lead score
// when set; ExcludeAgentID keeps the current owner out of the candidates.
type RouteRequest struct {
	TenantID       uuid.UUID
	LeadID         uuid.UUID
	Score          *int
	ExcludeAgentID *uuid.UUID
}

// Decision is the routing outcome. AgentID is nil when no agent was available.
type Decision struct {
	LeadID            uuid.UUID       `json:"leadId"`
	AgentID           *uuid.UUID      `json:"agentId"`
	PreviousAgentID   *uuid.UUID      `json:"previousAgentId,omitempty"`
	Score             int             `json:"score"`
	Tier              domain.Tier     `json:"tier"`
	Priority          domain.Priority `json:"priority"`
	SLA               time.Duration   `json:"-"`
	SLADeadline       *time.Time      `json:"slaDeadline,omitempty"`
	RecoveryScheduled bool            `json:"recoveryScheduled"`
}

type Service struct {
	store    repository.Store
	tokens   TokenSpender
	recovery RecoveryScheduler
	notifier AgentNotifier
	bus      events.Bus
	log      *logger.Logger
	now      func() time.Time
	randIntn func(int) int
}

func New(store repository.Store, tokens TokenSpender, recovery RecoveryScheduler, notifier AgentNotifier, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		tokens:   tokens,
		recovery: recovery,
		notifier: notifier,
		bus:      bus,
		log:      log,
		now:      time.Now,
		randIntn: rand.IntN,
	}
}

// Route assigns the lead inside one transaction and charges the ledger after
// it commits. A failed charge is logged and counted but never undoes the assignment.
func (s *Service) Route(ctx context.Context, req RouteRequest) (Decision, error) {
	ctx, span := telemetry.Start(ctx, opRoute,
		attribute.String("tenant_id", req.TenantID.String()),
		attribute.String("lead_id", req.LeadID.String()),
	)
	defer span.End()

	now := s.now().UTC()
	var d Decision
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		lead, err := tx.LockLead(ctx, req.TenantID, req.LeadID)
		if err != nil {
			return err
		}
		if domain.IsTerminalStatus(lead.Status) {
			return errLeadClosed
		}

		score := lead.Score
		if req.Score != nil {
			score = *req.Score
		}
		tier := domain.TierForScore(score)
		plan := plans[tier]
		d = Decision{
			LeadID:          lead.ID,
			PreviousAgentID: lead.AssignedAgentID,
			Score:           score,
			Tier:            tier,
			Priority:        plan.priority,
			SLA:             plan.sla,
		}

		if tier == domain.TierCold {
			d.RecoveryScheduled = s.scheduleRecovery(ctx, req.TenantID, lead.ID, now.Add(recoveryDelay))
		}

		agent, err := s.selectAgent(ctx, tx, req.TenantID, tier, req.ExcludeAgentID, now)
		if err != nil || agent == nil {
			return err
		}

		deadline := now.Add(plan.sla)
		slaMinutes := int(plan.sla / time.Minute)
		if err := tx.Assign(ctx, repository.Assignment{
			LeadID:      lead.ID,
			TenantID:    req.TenantID,
			AgentID:     agent.ID,
			Priority:    string(plan.priority),
			SLAMinutes:  slaMinutes,
			RoutedAt:    now,
			SLADeadline: deadline,
		}); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, repository.HistoryRecord{
			TenantID:        req.TenantID,
			LeadID:          lead.ID,
			AgentID:         agent.ID,
			PreviousAgentID: lead.AssignedAgentID,
			Score:           score,
			Priority:        string(plan.priority),
			SLAMinutes:      slaMinutes,
		}); err != nil {
			return err
		}
		agentID := agent.ID
		d.AgentID = &agentID
		d.SLADeadline = &deadline
		return nil
	})
	switch {
	case errors.Is(err, repository.ErrLeadNotFound):
		return Decision{}, apperr.NotFound("lead not found").WithOp(opRoute)
	case errors.Is(err, errLeadClosed):
		return Decision{}, apperr.Conflict("lead is closed").WithOp(opRoute)
	case err != nil:
		span.RecordError(err)
		s.log.DatabaseError(opRoute, err)
		metrics.LeadsRouted.WithLabelValues(string(d.Tier), "failed").Inc()
		return Decision{}, apperr.Wrap(apperr.KindUnavailable, "routing unavailable", err).WithOp(opRoute)
	}

	if d.AgentID == nil {
		metrics.LeadsRouted.WithLabelValues(string(d.Tier), "no_agent").Inc()
		s.log.Warn("no agent available for lead", "tenant_id", req.TenantID.String(), "lead_id", req.LeadID.String(), "tier", d.Tier)
		return d, nil
	}
	metrics.LeadsRouted.WithLabelValues(string(d.Tier), "assigned").Inc()
	span.SetAttributes(attribute.String("agent_id", d.AgentID.String()), attribute.String("tier", string(d.Tier)))

	s.charge(ctx, req.TenantID, req.LeadID)
	s.afterCommit(ctx, req.TenantID, d)
	return d, nil
}

func (s *Service) selectAgent(ctx context.Context, tx repository.Tx, tenantID uuid.UUID, tier domain.Tier, exclude *uuid.UUID, now time.Time) (*agents.Candidate, error) {
	plan := plans[tier]
	candidates, err := tx.ListCandidates(ctx, tenantID, agents.Filter{
		Tier:          plan.agentTier,
		AvailableOnly: plan.availableOnly,
		RecentSince:   now.Add(-loadWindow),
		Exclude:       exclude,
	})
	if err != nil {
		return nil, err
	}

	var picked *agents.Candidate
	switch tier {
	case domain.TierHot:
		picked = fewestOpenLeads(candidates)
	case domain.TierWarm:
		picked = s.fewestRecentAssignments(candidates)
	default:
		if len(candidates) > 0 {
			picked = &candidates[s.randIntn(len(candidates))]
		}
	}
	if picked != nil {
		return picked, nil
	}

	anyActive, err := tx.ListCandidates(ctx, tenantID, agents.Filter{
		RecentSince: now.Add(-loadWindow),
		Exclude:     exclude,
	})
	if err != nil {
		return nil, err
	}
	return fewestOpenLeads(anyActive), nil
}

// fewestOpenLeads keeps the first candidate on ties.
func fewestOpenLeads(candidates []agents.Candidate) *agents.Candidate {
	var best *agents.Candidate
	for i := range candidates {
		if best == nil || candidates[i].OpenLeads < best.OpenLeads {
			best = &candidates[i]
		}
	}
	return best
}

// fewestRecentAssignments breaks ties randomly so equal agents share the load.
func (s *Service) fewestRecentAssignments(candidates []agents.Candidate) *agents.Candidate {
	if len(candidates) == 0 {
		return nil
	}
	least := candidates[0].RecentAssignments
	for _, c := range candidates[1:] {
		least = min(least, c.RecentAssignments)
	}
	tied := make([]int, 0, len(candidates))
	for i, c := range candidates {
		if c.RecentAssignments == least {
			tied = append(tied, i)
		}
	}
	return &candidates[tied[s.randIntn(len(tied))]]
}

func (s *Service) scheduleRecovery(ctx context.Context, tenantID, leadID uuid.UUID, runAt time.Time) bool {
	if s.recovery == nil {
		return false
	}
	if err := s.recovery.ScheduleAIRecovery(ctx, tenantID, leadID, runAt); err != nil {
		metrics.BestEffortFailures.WithLabelValues("ai_recovery_schedule").Inc()
		s.log.BestEffortFailure("ai_recovery_schedule", err, "tenant_id", tenantID.String(), "lead_id", leadID.String())
		return false
	}
	return true
}

func (s *Service) charge(ctx context.Context, tenantID, leadID uuid.UUID) {
	if s.tokens == nil {
		return
	}
	_, err := s.tokens.Deduct(ctx, ledger.DeductParams{
		TenantID:      tenantID,
		Amount:        routingCost,
		OperationType: OperationRouting,
		Description:   "lead routing",
		ReferenceID:   leadID.String(),
	})
	if err != nil {
		metrics.OrphanedSpend.WithLabelValues(OperationRouting).Inc()
		s.log.Error("routing committed but token deduction failed",
			"tenant_id", tenantID.String(), "lead_id", leadID.String(), "error", err)
	}
}

func (s *Service) afterCommit(ctx context.Context, tenantID uuid.UUID, d Decision) {
	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadRouted{
			BaseEvent:       events.NewBaseEvent(),
			TenantID:        tenantID,
			LeadID:          d.LeadID,
			AgentID:         *d.AgentID,
			PreviousAgentID: d.PreviousAgentID,
			Score:           d.Score,
			Tier:            string(d.Tier),
			Priority:        string(d.Priority),
			SLAMinutes:      int(d.SLA / time.Minute),
		})
	}
	if d.Tier != domain.TierHot || s.notifier == nil {
		return
	}
	body := fmt.Sprintf("Hot lead assigned to you (score %d). First contact due within %s.", d.Score, d.SLA)
	if err := s.notifier.NotifyAgent(ctx, tenantID, *d.AgentID, string(domain.PriorityUrgent), "New hot lead", body); err != nil {
		metrics.BestEffortFailures.WithLabelValues("agent_notification").Inc()
		s.log.BestEffortFailure("agent_notification", err, "tenant_id", tenantID.String(), "lead_id", d.LeadID.String())
	}
}
