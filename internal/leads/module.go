// Package leads provides the lead bounded context module: scoring and the
// lead queries shared by the routing, leakage and abuse engines.
package leads

import (
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/leads/handler"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/leads/scoring"
	"leadflow_backend/platform/ai/textgen"
	"leadflow_backend/platform/cache"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	scoring *scoring.Service
	repo    *repository.Repository
}

// NewModule wires the scoring engine. gen and scoreCache may be nil.
func NewModule(
	pool *pgxpool.Pool,
	gen textgen.Generator,
	scoreCache cache.Cache,
	tokens scoring.TokenSpender,
	pause scoring.PauseChecker,
	eventBus events.Bus,
	val *validator.Validator,
	cfg config.GovernanceConfig,
	log *logger.Logger,
) *Module {
	repo := repository.New(pool)
	settings := cfg.GetGovernance().Scoring
	engine := scoring.NewEngine(gen, scoreCache, settings, log)
	scoringSvc := scoring.New(repo, engine, tokens, pause, eventBus, log, settings.BatchConcurrency)

	return &Module{
		handler: handler.New(scoringSvc, val),
		scoring: scoringSvc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

func (m *Module) ScoringService() *scoring.Service {
	return m.scoring
}

// Repository returns the repository for the monitors that scan leads.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// RegisterRoutes mounts lead routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.POST("/leads/score-batch", m.handler.ScoreBatch)
	ctx.Protected.POST("/leads/:id/score", m.handler.Score)
}

var _ apphttp.Module = (*Module)(nil)
