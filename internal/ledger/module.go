// Package ledger is the token ledger bounded context: every automated action
// is paid for through it.
package ledger

import (
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/ledger/handler"
	"leadflow_backend/internal/ledger/repository"
	"leadflow_backend/internal/ledger/service"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

func NewModule(pool *pgxpool.Pool, audit service.AuditLogger, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, audit, bus, log)
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
		repo:    repo,
	}
}

func (m *Module) Name() string {
	return "ledger"
}

func (m *Module) Service() *service.Service {
	return m.service
}

// Repository exposes spend aggregates to the abuse monitor.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/tokens/balance", m.handler.GetBalance)
	ctx.Protected.GET("/tokens/ledger", m.handler.ListEntries)

	ctx.Admin.POST("/tokens/top-up", m.handler.TopUp)
}

var _ apphttp.Module = (*Module)(nil)
