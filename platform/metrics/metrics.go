// Package metrics holds the Prometheus collectors shared by the governance engines.
// This is part of the platform layer and contains no business logic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TokensDeducted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leadflow_tokens_deducted_total",
		Help: "Tokens debited from tenant ledgers by operation type.",
	}, []string{"operation"})

	InsufficientBalance = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leadflow_ledger_insufficient_balance_total",
		Help: "Deductions refused because the balance could not cover them.",
	}, []string{"operation"})

	OrphanedSpend = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leadflow_ledger_orphaned_spend_total",
		Help: "Committed actions whose post-commit token deduction failed.",
	}, []string{"operation"})

	LeadsScored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leadflow_leads_scored_total",
		Help: "Scored leads by resulting tier.",
	}, []string{"tier"})

	ModelScoreFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leadflow_model_score_fallbacks_total",
		Help: "Model sub-scores replaced by the fixed fallback.",
	})

	LeadsRouted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leadflow_leads_routed_total",
		Help: "Routing decisions by tier and outcome.",
	}, []string{"tier", "outcome"})

	Escalations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leadflow_escalations_total",
		Help: "Leads escalated to senior agents.",
	})

	LeakageRemediations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leadflow_leakage_remediations_total",
		Help: "Leakage remediations by action.",
	}, []string{"action"})

	SLABreaches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leadflow_sla_breaches_total",
		Help: "Routed leads that passed their SLA deadline without a reply.",
	})

	AbuseDetections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leadflow_abuse_detections_total",
		Help: "Abuse patterns flagged by pattern.",
	}, []string{"pattern"})

	MonitorTickDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leadflow_monitor_tick_seconds",
		Help:    "Duration of periodic monitor ticks.",
		Buckets: prometheus.DefBuckets,
	}, []string{"monitor"})

	MonitorTicksSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leadflow_monitor_ticks_skipped_total",
		Help: "Monitor ticks skipped because the previous tick was still running.",
	}, []string{"monitor"})

	NotificationsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leadflow_notifications_delivered_total",
		Help: "Outbox notifications processed by kind and outcome.",
	}, []string{"kind", "outcome"})

	BestEffortFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leadflow_best_effort_failures_total",
		Help: "Swallowed failures of notifications, audit writes and similar side effects.",
	}, []string{"effect"})
)

func init() {
	prometheus.MustRegister(
		TokensDeducted,
		InsufficientBalance,
		OrphanedSpend,
		LeadsScored,
		ModelScoreFallbacks,
		LeadsRouted,
		Escalations,
		LeakageRemediations,
		SLABreaches,
		AbuseDetections,
		MonitorTickDuration,
		MonitorTicksSkipped,
		NotificationsDelivered,
		BestEffortFailures,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
