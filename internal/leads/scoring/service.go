// Package scoring computes lead quality scores from deterministic signals and
// an optional model-generated sub-score, and persists them on the lead.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/repository"
	ledger "leadflow_backend/internal/ledger/service"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/metrics"
	"leadflow_backend/platform/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	opScoreLead = "scoring.ScoreLead"

	// OperationAIScoring is the ledger operation charged per model call.
	OperationAIScoring = "ai_scoring"
	modelCallCost      = 1

	skipPaused       = "tenant_paused"
	skipInsufficient = "insufficient_balance"
	skipLedgerDown   = "ledger_unavailable"
)

// LeadStore is the subset of the leads repository scoring needs.
type LeadStore interface {
	repository.LeadReader
	repository.ScoreWriter
}

// TokenSpender debits the token ledger.
type TokenSpender interface {
	Deduct(ctx context.Context, p ledger.DeductParams) (ledger.Balance, error)
}

// PauseChecker reports the abuse monitor's advisory pause.
type PauseChecker interface {
	IsAbuserPaused(ctx context.Context, tenantID uuid.UUID) (bool, error)
}

type Service struct {
	repo        LeadStore
	engine      *Engine
	tokens      TokenSpender
	pause       PauseChecker
	bus         events.Bus
	log         *logger.Logger
	concurrency int
}

func New(repo LeadStore, engine *Engine, tokens TokenSpender, pause PauseChecker, bus events.Bus, log *logger.Logger, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Service{
		repo:        repo,
		engine:      engine,
		tokens:      tokens,
		pause:       pause,
		bus:         bus,
		log:         log,
		concurrency: concurrency,
	}
}

// ScoreLead scores a stored lead and persists score, tier and breakdown.
func (s *Service) ScoreLead(ctx context.Context, tenantID, leadID uuid.UUID, opts Options) (*Result, error) {
	ctx, span := telemetry.Start(ctx, opScoreLead,
		attribute.String("tenant_id", tenantID.String()),
		attribute.String("lead_id", leadID.String()),
	)
	defer span.End()

	lead, err := s.repo.GetByID(ctx, leadID, tenantID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("lead not found").WithOp(opScoreLead)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "lead store unavailable", err).WithOp(opScoreLead)
	}

	in, err := s.inputFor(ctx, lead)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "lead store unavailable", err).WithOp(opScoreLead)
	}
	opts.Gate = s
	res := s.engine.Score(ctx, in, opts)

	breakdown, err := json.Marshal(res.Breakdown)
	if err != nil {
		s.log.Error("score breakdown marshal failed", "lead_id", leadID.String(), "error", err)
		breakdown = nil
	}
	if err := s.repo.UpdateScore(ctx, leadID, tenantID, res.Score, string(res.Tier), breakdown); err != nil {
		span.RecordError(err)
		s.log.DatabaseError(opScoreLead, err)
		return nil, apperr.Wrap(apperr.KindUnavailable, "lead store unavailable", err).WithOp(opScoreLead)
	}

	metrics.LeadsScored.WithLabelValues(string(res.Tier)).Inc()
	span.SetAttributes(attribute.Int("score", res.Score), attribute.String("tier", string(res.Tier)))
	if s.bus != nil {
		ev := events.LeadScored{
			BaseEvent: events.NewBaseEvent(),
			TenantID:  tenantID,
			LeadID:    leadID,
			Score:     res.Score,
			Category:  string(res.Category),
			Tier:      string(res.Tier),
		}
		if m := res.Breakdown.Model; m != nil {
			ev.ModelScore = m.Score
			ev.Fallback = m.Fallback
		}
		s.bus.Publish(ctx, ev)
	}
	return &res, nil
}

// BatchItem is one entry of a batch result. Exactly one of Result and Err is set.
type BatchItem struct {
	LeadID uuid.UUID
	Result *Result
	Err    error
}

// ScoreBatch scores each lead independently; one failure never aborts the batch.
func (s *Service) ScoreBatch(ctx context.Context, tenantID uuid.UUID, leadIDs []uuid.UUID, opts Options) []BatchItem {
	items := make([]BatchItem, len(leadIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range leadIDs {
		items[i].LeadID = id
		g.Go(func() error {
			res, err := s.ScoreLead(gctx, tenantID, id, opts)
			items[i].Result, items[i].Err = res, err
			return nil
		})
	}
	_ = g.Wait()
	return items
}

// AllowModel checks the abuse pause, then pays for the model call.
func (s *Service) AllowModel(ctx context.Context, tenantID, leadID uuid.UUID) (bool, string) {
	if s.pause != nil {
		paused, err := s.pause.IsAbuserPaused(ctx, tenantID)
		if err != nil {
			s.log.Warn("abuse pause check failed", "tenant_id", tenantID.String(), "error", err)
		} else if paused {
			return false, skipPaused
		}
	}
	if s.tokens == nil {
		return true, ""
	}
	_, err := s.tokens.Deduct(ctx, ledger.DeductParams{
		TenantID:      tenantID,
		Amount:        modelCallCost,
		OperationType: OperationAIScoring,
		Description:   "model lead score",
		ReferenceID:   leadID.String(),
	})
	switch {
	case err == nil:
		return true, ""
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return false, skipInsufficient
	default:
		s.log.Warn("token deduction for model score failed", "tenant_id", tenantID.String(), "lead_id", leadID.String(), "error", err)
		return false, skipLedgerDown
	}
}

func (s *Service) inputFor(ctx context.Context, lead repository.Lead) (Input, error) {
	in := Input{
		TenantID:           lead.TenantID,
		LeadID:             lead.ID,
		Message:            lead.Message,
		InteractionCount:   lead.InteractionCount,
		HasVerifiedChannel: lead.HasWhatsApp,
	}
	if lead.TemperatureOverride != nil {
		in.TemperatureOverride = *lead.TemperatureOverride
	}
	if lead.ResponseLatencySeconds != nil {
		d := time.Duration(*lead.ResponseLatencySeconds) * time.Second
		in.ResponseLatency = &d
	}
	if in.Message == "" {
		msg, err := s.repo.LatestInboundMessage(ctx, lead.ID, lead.TenantID)
		if err != nil {
			return Input{}, err
		}
		in.Message = msg
	}
	return in, nil
}

var _ ModelGate = (*Service)(nil)
