// Package abuse watches tenant consumption for anomalies and owns the abuse pause.
package abuse

import (
	"time"

	"leadflow_backend/internal/abuse/handler"
	"leadflow_backend/internal/abuse/repository"
	"leadflow_backend/internal/abuse/service"
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/cache"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Module struct {
	handler *handler.Handler
	service *service.Service
}

func NewModule(
	pool *pgxpool.Pool,
	rdb redis.UniversalClient,
	spend service.SpendReader,
	leads service.LeadVelocityReader,
	admins service.AdminNotifier,
	bus events.Bus,
	cfg config.GovernanceConfig,
	log *logger.Logger,
) *Module {
	svc := service.New(service.Deps{
		Spend:    spend,
		Leads:    leads,
		Failures: cache.NewWindowCounter(rdb, "abuse:api_failures", time.Hour),
		Pauses:   service.NewPauseStore(rdb),
		Events:   repository.New(pool),
		Admins:   admins,
		Bus:      bus,
	}, cfg.GetGovernance().Abuse, log)
	return &Module{handler: handler.New(svc), service: svc}
}

func (m *Module) Name() string {
	return "abuse"
}

// Service is the pause checker for spending components, the API failure
// recorder and the periodic monitor.
func (m *Module) Service() *service.Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/abuse/status", m.handler.Status)

	ctx.Admin.GET("/abuse/detect", m.handler.Detect)
	ctx.Admin.DELETE("/abuse/pause", m.handler.Lift)
}

var _ apphttp.Module = (*Module)(nil)
