// Package escalation hands risky conversations to senior agents.
package escalation

import (
	"leadflow_backend/internal/escalation/handler"
	"leadflow_backend/internal/escalation/repository"
	"leadflow_backend/internal/escalation/service"
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler *handler.Handler
	service *service.Service
}

func NewModule(pool *pgxpool.Pool, notifier service.AgentNotifier, bus events.Bus, val *validator.Validator, cfg config.GovernanceConfig, log *logger.Logger) *Module {
	svc := service.New(repository.New(pool), notifier, bus, cfg.GetGovernance().Escalation, log)
	return &Module{handler: handler.New(svc, val), service: svc}
}

func (m *Module) Name() string {
	return "escalation"
}

func (m *Module) Service() *service.Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.POST("/leads/:id/escalation/check", m.handler.Check)
	ctx.Protected.POST("/leads/:id/escalate", m.handler.Escalate)
}

var _ apphttp.Module = (*Module)(nil)
