// Package routing assigns scored leads to agents and watches the resulting SLAs.
package routing

import (
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	leadrepo "leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/routing/handler"
	"leadflow_backend/internal/routing/repository"
	"leadflow_backend/internal/routing/service"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler *handler.Handler
	service *service.Service
	sla     *service.SLAWatcher
}

// NewModule wires routing. recovery and notifier may be nil.
func NewModule(
	pool *pgxpool.Pool,
	leads leadrepo.SLAQueries,
	tokens service.TokenSpender,
	recovery service.RecoveryScheduler,
	notifier service.AgentNotifier,
	bus events.Bus,
	val *validator.Validator,
	log *logger.Logger,
) *Module {
	svc := service.New(repository.New(pool), tokens, recovery, notifier, bus, log)
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
		sla:     service.NewSLAWatcher(leads, notifier, bus, log),
	}
}

func (m *Module) Name() string {
	return "routing"
}

func (m *Module) Service() *service.Service {
	return m.service
}

// SLAWatcher is run by the scheduler process.
func (m *Module) SLAWatcher() *service.SLAWatcher {
	return m.sla
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.POST("/leads/:id/route", m.handler.Route)
}

var _ apphttp.Module = (*Module)(nil)
