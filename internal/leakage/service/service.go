// Package service runs the leakage monitor: unanswered leads are re-engaged,
// reassigned or escalated depending on their tier.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	escalation "leadflow_backend/internal/escalation/service"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	leadrepo "leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/leakage/repository"
	ledger "leadflow_backend/internal/ledger/service"
	routing "leadflow_backend/internal/routing/service"
	"leadflow_backend/platform/ai/textgen"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/metrics"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Remediation actions recorded on leakage events.
const (
	ActionAIReengage       = "ai_reengage"
	ActionReassign         = "reassign"
	ActionEscalate         = "escalate"
	ActionSkippedPaused    = "skipped_paused"
	ActionSkippedNoBalance = "skipped_insufficient_balance"
)

// OperationLeakageReengage is the ledger operation charged per follow-up.
const OperationLeakageReengage = "leakage_reengage"

const (
	scanConcurrency = 4
	modelTimeout    = 10 * time.Second
)

type LeadStore interface {
	ListStale(ctx context.Context, cutoff, cooldownSince time.Time, limit int) ([]leadrepo.StaleLead, error)
	MarkAIRecoveryAttempted(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error
	AppendMessage(ctx context.Context, leadID uuid.UUID, tenantID uuid.UUID, direction, body string) error
	GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (leadrepo.Lead, error)
	LatestInboundMessage(ctx context.Context, leadID uuid.UUID, tenantID uuid.UUID) (string, error)
}

type EventStore interface {
	Append(ctx context.Context, e repository.Event) error
}

type ChannelSender interface {
	Send(ctx context.Context, tenantID, leadID uuid.UUID, text string) (string, error)
}

type TokenSpender interface {
	Deduct(ctx context.Context, p ledger.DeductParams) (ledger.Balance, error)
}

type PauseChecker interface {
	IsAbuserPaused(ctx context.Context, tenantID uuid.UUID) (bool, error)
}

type Router interface {
	Route(ctx context.Context, req routing.RouteRequest) (routing.Decision, error)
}

type Escalator interface {
	Escalate(ctx context.Context, tenantID, leadID uuid.UUID, triggers []string) (escalation.Outcome, error)
}

type AgentNotifier interface {
	NotifyAgent(ctx context.Context, tenantID, agentID uuid.UUID, priority, title, body string) error
}

// Deps groups the monitor's collaborators. Gen, Sender, Notifier and Bus may be nil.
type Deps struct {
	Leads     LeadStore
	Events    EventStore
	Gen       textgen.Generator
	Sender    ChannelSender
	Tokens    TokenSpender
	Pause     PauseChecker
	Router    Router
	Escalator Escalator
	Notifier  AgentNotifier
	Bus       events.Bus
}

type Monitor struct {
	Deps
	settings config.LeakageSettings
	log      *logger.Logger
	now      func() time.Time
}

func NewMonitor(deps Deps, settings config.LeakageSettings, log *logger.Logger) *Monitor {
	return &Monitor{Deps: deps, settings: settings, log: log, now: time.Now}
}

func (m *Monitor) Name() string {
	return "leakage_monitor"
}

// Tick scans one batch of stale leads. Each lead is handled on its own; a
// failure is counted and the scan moves on.
func (m *Monitor) Tick(ctx context.Context) (processed, failed int, err error) {
	now := m.now().UTC()
	stale, err := m.Leads.ListStale(ctx, now.Add(-m.settings.StaleAfter), now.Add(-m.settings.Cooldown), m.settings.BatchSize)
	if err != nil {
		return 0, 0, err
	}

	var ok, bad atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for _, lead := range stale {
		g.Go(func() error {
			if err := m.handle(gctx, lead, now); err != nil {
				bad.Add(1)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(ok.Load()), int(bad.Load()), nil
}

// handle remediates a single lead and always records what was done.
func (m *Monitor) handle(ctx context.Context, lead leadrepo.StaleLead, now time.Time) error {
	ev := repository.Event{
		TenantID:        lead.TenantID,
		LeadID:          lead.ID,
		Score:           lead.Score,
		PreviousAgentID: lead.AssignedAgentID,
	}

	var remedyErr error
	switch domain.TierForScore(lead.Score) {
	case domain.TierHot:
		ev.Action, ev.Detail, remedyErr = m.reengageStale(ctx, lead, now)
	case domain.TierWarm:
		ev.Action, ev.Detail, remedyErr = m.reassign(ctx, lead)
	default:
		ev.Action, ev.Detail, remedyErr = m.escalate(ctx, lead)
	}
	if remedyErr != nil {
		m.log.Error("leakage remediation failed", "tenant_id", lead.TenantID.String(), "lead_id", lead.ID.String(),
			"action", ev.Action, "error", remedyErr)
		if ev.Detail == "" {
			ev.Detail = remedyErr.Error()
		}
	}

	if err := m.Events.Append(ctx, ev); err != nil {
		m.log.DatabaseError("leakage.AppendEvent", err)
		return errors.Join(remedyErr, err)
	}
	metrics.LeakageRemediations.WithLabelValues(ev.Action).Inc()
	if m.Bus != nil {
		m.Bus.Publish(ctx, events.LeakageRemediated{
			BaseEvent: events.NewBaseEvent(),
			TenantID:  lead.TenantID,
			LeadID:    lead.ID,
			Score:     lead.Score,
			Action:    ev.Action,
		})
	}
	return remedyErr
}

func (m *Monitor) reengageStale(ctx context.Context, lead leadrepo.StaleLead, now time.Time) (string, string, error) {
	action, detail, err := m.reengage(ctx, lead.TenantID, lead.ID, lead.ContactName, lead.LastInbound, strategyFor(now.Sub(lead.LastInboundAt)))
	if lead.AssignedAgentID == nil || m.Notifier == nil {
		return action, detail, err
	}

	outcome := "An automatic follow-up was sent; please take over."
	if action != ActionAIReengage || err != nil || !strings.Contains(detail, "sent via") {
		outcome = "No automatic follow-up went out (" + detail + "); please reply now."
	}
	body := fmt.Sprintf("A hot lead (score %d) has waited %s for a reply. %s",
		lead.Score, now.Sub(lead.LastInboundAt).Round(time.Minute), outcome)
	if nerr := m.Notifier.NotifyAgent(ctx, lead.TenantID, *lead.AssignedAgentID, string(domain.PriorityUrgent), "Hot lead waiting", body); nerr != nil {
		metrics.BestEffortFailures.WithLabelValues("agent_notification").Inc()
		m.log.BestEffortFailure("agent_notification", nerr, "tenant_id", lead.TenantID.String(), "lead_id", lead.ID.String())
	}
	return action, detail, err
}

// reengage charges the tenant, composes a follow-up and sends it. Tokens are
// taken before the message is produced so a tenant without balance never gets
// a free message.
func (m *Monitor) reengage(ctx context.Context, tenantID, leadID uuid.UUID, contactName, lastMessage string, strategy Strategy) (string, string, error) {
	if m.Pause != nil {
		paused, err := m.Pause.IsAbuserPaused(ctx, tenantID)
		if err != nil {
			m.log.Warn("pause check failed, continuing", "tenant_id", tenantID.String(), "error", err)
		} else if paused {
			return ActionSkippedPaused, "tenant paused", nil
		}
	}

	if _, err := m.Tokens.Deduct(ctx, ledger.DeductParams{
		TenantID:      tenantID,
		Amount:        m.settings.ReengageTokens,
		OperationType: OperationLeakageReengage,
		Description:   "ai re-engagement",
		ReferenceID:   leadID.String(),
	}); err != nil {
		if apperr.Is(err, apperr.KindPaymentRequired) {
			return ActionSkippedNoBalance, "insufficient balance", nil
		}
		return ActionAIReengage, "token ledger unavailable", err
	}

	text, generated := composeFollowUp(ctx, m.Gen, modelTimeout, contactName, lastMessage, strategy)
	detail := string(strategy)
	if !generated {
		detail += ", fallback text"
	}

	if m.Sender == nil {
		return ActionAIReengage, detail + ", no sender", nil
	}
	channel, err := m.Sender.Send(ctx, tenantID, leadID, text)
	if err != nil {
		return ActionAIReengage, detail + ", send failed", err
	}
	detail += ", sent via " + channel

	if err := m.Leads.AppendMessage(ctx, leadID, tenantID, domain.DirectionOutbound, text); err != nil {
		m.log.DatabaseError("leakage.AppendMessage", err)
	}
	if err := m.Leads.MarkAIRecoveryAttempted(ctx, leadID, tenantID); err != nil {
		m.log.DatabaseError("leakage.MarkAIRecoveryAttempted", err)
	}
	return ActionAIReengage, detail, nil
}

func (m *Monitor) reassign(ctx context.Context, lead leadrepo.StaleLead) (string, string, error) {
	d, err := m.Router.Route(ctx, routing.RouteRequest{
		TenantID:       lead.TenantID,
		LeadID:         lead.ID,
		ExcludeAgentID: lead.AssignedAgentID,
	})
	if err != nil {
		return ActionReassign, "", err
	}
	if d.AgentID == nil {
		return ActionReassign, "no agent available", nil
	}
	return ActionReassign, "assigned to " + d.AgentID.String(), nil
}

func (m *Monitor) escalate(ctx context.Context, lead leadrepo.StaleLead) (string, string, error) {
	out, err := m.Escalator.Escalate(ctx, lead.TenantID, lead.ID, []string{escalation.TriggerLeakageDetected})
	if apperr.Is(err, apperr.KindNoCapacity) {
		return ActionEscalate, "no agent available", nil
	}
	if err != nil {
		return ActionEscalate, "", err
	}
	return ActionEscalate, "escalated to " + out.AgentID.String(), nil
}

// RecoverCold is the deferred recovery attempt scheduled when a cold lead is
// routed. Leads that were answered or closed in the meantime are left alone.
func (m *Monitor) RecoverCold(ctx context.Context, tenantID, leadID uuid.UUID) error {
	lead, err := m.Leads.GetByID(ctx, leadID, tenantID)
	if errors.Is(err, leadrepo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if lead.Status != domain.StatusActive || lead.AIRecoveryAttemptedAt != nil {
		return nil
	}
	if lead.LastContactedAt != nil && lead.RoutedAt != nil && lead.LastContactedAt.After(*lead.RoutedAt) {
		return nil
	}

	last, err := m.Leads.LatestInboundMessage(ctx, leadID, tenantID)
	if err != nil {
		return err
	}
	action, detail, err := m.reengage(ctx, tenantID, leadID, lead.ContactName, last, StrategyFreshAngle)
	m.log.Info("cold lead recovery", "tenant_id", tenantID.String(), "lead_id", leadID.String(), "action", action, "detail", detail)
	return err
}
