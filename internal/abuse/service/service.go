// Package service detects anomalous consumption per tenant and applies the
// time-boxed abuse pause spending components consult before they charge.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"leadflow_backend/internal/abuse/repository"
	"leadflow_backend/internal/events"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/metrics"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Abuse event actions.
const (
	ActionPaused        = "paused"
	ActionFlagged       = "flagged"
	ActionAlreadyPaused = "already_paused"
)

const (
	opDetect        = "abuse.DetectAbusePatterns"
	baselineHours   = 24
	scanConcurrency = 4
)

type SpendReader interface {
	SpendBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (int64, error)
}

type LeadVelocityReader interface {
	CountCreatedBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (int64, error)
}

type FailureCounter interface {
	Incr(ctx context.Context, subject string) (int64, error)
	Current(ctx context.Context, subject string) (int64, error)
}

type EventStore interface {
	ListActiveTenants(ctx context.Context) ([]uuid.UUID, error)
	AppendEvent(ctx context.Context, e repository.Event) error
}

// AdminNotifier alerts the operators. Failures are logged only.
type AdminNotifier interface {
	NotifyAdmins(ctx context.Context, tenantID uuid.UUID, title, body string) error
}

// Report is the outcome of one detection run for a tenant.
type Report struct {
	TenantID           uuid.UUID  `json:"tenantId"`
	TokenDrainAttack   bool       `json:"tokenDrainAttack"`
	SpamLeadCreation   bool       `json:"spamLeadCreation"`
	SuspiciousActivity bool       `json:"suspiciousActivity"`
	RecentSpend        int64      `json:"recentSpend"`
	MeanHourlySpend    float64    `json:"meanHourlySpend"`
	RecentLeads        int64      `json:"recentLeads"`
	MeanHourlyLeads    float64    `json:"meanHourlyLeads"`
	APIFailures        int64      `json:"apiFailures"`
	Paused             bool       `json:"paused"`
	PausedUntil        *time.Time `json:"pausedUntil,omitempty"`
}

// Deps groups the detector's collaborators. Admins and Bus may be nil.
type Deps struct {
	Spend    SpendReader
	Leads    LeadVelocityReader
	Failures FailureCounter
	Pauses   *PauseStore
	Events   EventStore
	Admins   AdminNotifier
	Bus      events.Bus
}

type Service struct {
	Deps
	settings config.AbuseSettings
	log      *logger.Logger
	now      func() time.Time
}

func New(deps Deps, settings config.AbuseSettings, log *logger.Logger) *Service {
	return &Service{Deps: deps, settings: settings, log: log, now: time.Now}
}

// velocity returns the count for the last hour and the mean hourly count over
// the 24 hours before it.
func velocity(ctx context.Context, count func(ctx context.Context, from, to time.Time) (int64, error), now time.Time) (int64, float64, error) {
	hourAgo := now.Add(-time.Hour)
	baseline, err := count(ctx, hourAgo.Add(-baselineHours*time.Hour), hourAgo)
	if err != nil {
		return 0, 0, err
	}
	recent, err := count(ctx, hourAgo, now)
	if err != nil {
		return 0, 0, err
	}
	return recent, float64(baseline) / baselineHours, nil
}

// exceeds is false whenever there is no baseline to compare against.
func exceeds(recent int64, mean, multiplier float64) bool {
	return mean > 0 && float64(recent) > multiplier*mean
}

// DetectAbusePatterns evaluates the tenant and pauses it when a spend trigger
// fires. A tenant that is already paused is reported but not paused again.
func (s *Service) DetectAbusePatterns(ctx context.Context, tenantID uuid.UUID) (Report, error) {
	now := s.now().UTC()
	r := Report{TenantID: tenantID}

	var err error
	r.RecentSpend, r.MeanHourlySpend, err = velocity(ctx, func(ctx context.Context, from, to time.Time) (int64, error) {
		return s.Spend.SpendBetween(ctx, tenantID, from, to)
	}, now)
	if err != nil {
		return Report{}, s.unavailable(err)
	}
	r.RecentLeads, r.MeanHourlyLeads, err = velocity(ctx, func(ctx context.Context, from, to time.Time) (int64, error) {
		return s.Leads.CountCreatedBetween(ctx, tenantID, from, to)
	}, now)
	if err != nil {
		return Report{}, s.unavailable(err)
	}
	if s.Failures != nil {
		if r.APIFailures, err = s.Failures.Current(ctx, tenantID.String()); err != nil {
			s.log.Warn("api failure counter unavailable", "tenant_id", tenantID.String(), "error", err)
		}
	}

	r.TokenDrainAttack = exceeds(r.RecentSpend, r.MeanHourlySpend, s.settings.SpendMultiplier)
	r.SpamLeadCreation = exceeds(r.RecentLeads, r.MeanHourlyLeads, s.settings.LeadMultiplier)
	r.SuspiciousActivity = r.APIFailures > s.settings.APIFailureThreshold

	if !r.TokenDrainAttack && !r.SpamLeadCreation && !r.SuspiciousActivity {
		return s.withPauseState(ctx, r), nil
	}
	s.countPatterns(r)

	action := ActionFlagged
	if r.TokenDrainAttack || r.SpamLeadCreation {
		created, err := s.Pauses.Pause(ctx, tenantID, strings.Join(patterns(r), ","), s.settings.PauseTTL)
		if err != nil {
			return Report{}, s.unavailable(err)
		}
		if !created {
			// Event only: admins were told when the pause was set.
			r = s.withPauseState(ctx, r)
			s.appendEvent(ctx, r, ActionAlreadyPaused)
			return r, nil
		}
		action = ActionPaused
	}
	r = s.withPauseState(ctx, r)
	s.record(ctx, r, action)
	return r, nil
}

func (s *Service) withPauseState(ctx context.Context, r Report) Report {
	until, err := s.Pauses.Until(ctx, r.TenantID)
	if err != nil {
		s.log.Warn("pause state unavailable", "tenant_id", r.TenantID.String(), "error", err)
		return r
	}
	r.Paused = until != nil
	r.PausedUntil = until
	return r
}

func (s *Service) countPatterns(r Report) {
	for _, p := range patterns(r) {
		metrics.AbuseDetections.WithLabelValues(p).Inc()
	}
}

func patterns(r Report) []string {
	out := make([]string, 0, 3)
	if r.TokenDrainAttack {
		out = append(out, "token_drain_attack")
	}
	if r.SpamLeadCreation {
		out = append(out, "spam_lead_creation")
	}
	if r.SuspiciousActivity {
		out = append(out, "suspicious_activity")
	}
	return out
}

// record stores the event and runs the best-effort side effects.
func (s *Service) record(ctx context.Context, r Report, action string) {
	s.log.Warn("abuse detected", "tenant_id", r.TenantID.String(), "action", action, "patterns", patterns(r),
		"recent_spend", r.RecentSpend, "mean_hourly_spend", r.MeanHourlySpend)
	s.appendEvent(ctx, r, action)

	if s.Bus != nil {
		ev := events.AbuseDetected{
			BaseEvent:          events.NewBaseEvent(),
			TenantID:           r.TenantID,
			TokenDrainAttack:   r.TokenDrainAttack,
			SpamLeadCreation:   r.SpamLeadCreation,
			SuspiciousActivity: r.SuspiciousActivity,
		}
		if r.PausedUntil != nil {
			ev.PausedUntil = r.PausedUntil.Format(time.RFC3339)
		}
		s.Bus.Publish(ctx, ev)
	}

	if s.Admins == nil {
		return
	}
	title := fmt.Sprintf("Tenant %s %s", r.TenantID, action)
	body := fmt.Sprintf("Patterns: %s. Spend last hour %d vs hourly mean %.1f. Leads last hour %d vs hourly mean %.1f. API failures this hour %d.",
		strings.Join(patterns(r), ", "), r.RecentSpend, r.MeanHourlySpend, r.RecentLeads, r.MeanHourlyLeads, r.APIFailures)
	if err := s.Admins.NotifyAdmins(ctx, r.TenantID, title, body); err != nil {
		metrics.BestEffortFailures.WithLabelValues("admin_notification").Inc()
		s.log.BestEffortFailure("admin_notification", err, "tenant_id", r.TenantID.String())
	}
}

func (s *Service) appendEvent(ctx context.Context, r Report, action string) {
	if err := s.Events.AppendEvent(ctx, repository.Event{
		TenantID:           r.TenantID,
		TokenDrainAttack:   r.TokenDrainAttack,
		SpamLeadCreation:   r.SpamLeadCreation,
		SuspiciousActivity: r.SuspiciousActivity,
		Action:             action,
		Details: map[string]any{
			"recentSpend":     r.RecentSpend,
			"meanHourlySpend": r.MeanHourlySpend,
			"recentLeads":     r.RecentLeads,
			"meanHourlyLeads": r.MeanHourlyLeads,
			"apiFailures":     r.APIFailures,
		},
	}); err != nil {
		s.log.DatabaseError("abuse.AppendEvent", err)
	}
}

func (s *Service) unavailable(err error) error {
	s.log.DatabaseError(opDetect, err)
	return apperr.Wrap(apperr.KindUnavailable, "abuse detection unavailable", err).WithOp(opDetect)
}

// IsAbuserPaused reports whether the tenant is inside an abuse pause window.
func (s *Service) IsAbuserPaused(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	return s.Pauses.IsPaused(ctx, tenantID)
}

// Status reports the current pause window for the tenant.
func (s *Service) Status(ctx context.Context, tenantID uuid.UUID) (Report, error) {
	until, err := s.Pauses.Until(ctx, tenantID)
	if err != nil {
		return Report{}, apperr.Wrap(apperr.KindUnavailable, "abuse status unavailable", err)
	}
	return Report{TenantID: tenantID, Paused: until != nil, PausedUntil: until}, nil
}

// Lift clears a pause ahead of its expiry.
func (s *Service) Lift(ctx context.Context, tenantID uuid.UUID) error {
	if err := s.Pauses.Clear(ctx, tenantID); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "abuse pause unavailable", err)
	}
	s.log.Info("abuse pause lifted", "tenant_id", tenantID.String())
	return nil
}

// RecordAPIFailure counts a failed API call into the tenant's hourly bucket.
func (s *Service) RecordAPIFailure(ctx context.Context, tenantID uuid.UUID) {
	if s.Failures == nil {
		return
	}
	if _, err := s.Failures.Incr(ctx, tenantID.String()); err != nil {
		s.log.BestEffortFailure("api_failure_count", err, "tenant_id", tenantID.String())
	}
}

func (s *Service) Name() string {
	return "abuse_monitor"
}

// Tick runs detection for every active tenant.
func (s *Service) Tick(ctx context.Context) (processed, failed int, err error) {
	tenants, err := s.Events.ListActiveTenants(ctx)
	if err != nil {
		return 0, 0, err
	}

	var ok, bad atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for _, tenantID := range tenants {
		g.Go(func() error {
			if _, err := s.DetectAbusePatterns(gctx, tenantID); err != nil {
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
