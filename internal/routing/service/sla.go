package service

import (
	"context"
	"fmt"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/metrics"
)

const slaBatchSize = 200

// SLAWatcher reports routed leads that passed their SLA deadline without a
// reply. It never reassigns; the leakage monitor does that.
type SLAWatcher struct {
	store    repository.SLAQueries
	notifier AgentNotifier
	bus      events.Bus
	log      *logger.Logger
	now      func() time.Time
}

func NewSLAWatcher(store repository.SLAQueries, notifier AgentNotifier, bus events.Bus, log *logger.Logger) *SLAWatcher {
	return &SLAWatcher{store: store, notifier: notifier, bus: bus, log: log, now: time.Now}
}

func (w *SLAWatcher) Name() string {
	return "sla_watcher"
}

// Tick handles one batch of breaches. Each breach is claimed before it is
// reported so concurrent workers never notify twice.
func (w *SLAWatcher) Tick(ctx context.Context) (processed, failed int, err error) {
	now := w.now().UTC()
	breaches, err := w.store.ListSLABreaches(ctx, now, slaBatchSize)
	if err != nil {
		return 0, 0, err
	}

	for _, b := range breaches {
		claimed, err := w.store.MarkSLABreachNotified(ctx, b.LeadID, b.TenantID)
		if err != nil {
			failed++
			w.log.Error("sla breach claim failed", "lead_id", b.LeadID.String(), "error", err)
			continue
		}
		if !claimed {
			continue
		}
		processed++
		metrics.SLABreaches.Inc()

		overdue := int(now.Sub(b.SLADeadline) / time.Minute)
		if w.bus != nil {
			w.bus.Publish(ctx, events.SLABreached{
				BaseEvent:  events.NewBaseEvent(),
				TenantID:   b.TenantID,
				LeadID:     b.LeadID,
				AgentID:    b.AgentID,
				Priority:   b.Priority,
				MinutesOff: overdue,
			})
		}
		if w.notifier == nil {
			continue
		}
		body := fmt.Sprintf("A %s lead assigned to you is %d minutes past its first-contact deadline.", b.Priority, overdue)
		if err := w.notifier.NotifyAgent(ctx, b.TenantID, b.AgentID, string(domain.PriorityUrgent), "SLA breached", body); err != nil {
			metrics.BestEffortFailures.WithLabelValues("agent_notification").Inc()
			w.log.BestEffortFailure("agent_notification", err, "tenant_id", b.TenantID.String(), "lead_id", b.LeadID.String())
		}
	}
	return processed, failed, nil
}
