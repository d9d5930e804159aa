// Package leakage watches for leads left without a reply and remediates them.
package leakage

import (
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/leakage/handler"
	"leadflow_backend/internal/leakage/repository"
	"leadflow_backend/internal/leakage/service"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler *handler.Handler
	monitor *service.Monitor
}

// NewModule wires the monitor. deps.Events is filled in from pool.
func NewModule(pool *pgxpool.Pool, deps service.Deps, cfg config.GovernanceConfig, log *logger.Logger) *Module {
	repo := repository.New(pool)
	deps.Events = repo
	monitor := service.NewMonitor(deps, cfg.GetGovernance().Leakage, log)
	return &Module{handler: handler.New(monitor, repo), monitor: monitor}
}

func (m *Module) Name() string {
	return "leakage"
}

// Monitor is run periodically by the scheduler and on demand by leadctl.
func (m *Module) Monitor() *service.Monitor {
	return m.monitor
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/leads/:id/leakage-events", m.handler.ListForLead)
	ctx.Admin.POST("/leakage/scan", m.handler.Scan)
}

var _ apphttp.Module = (*Module)(nil)
