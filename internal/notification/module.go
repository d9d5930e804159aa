// Package notification queues agent and admin alerts in a transactional
// outbox and delivers them from the scheduler: agents get in-app rows (and
// email for urgent work), admins get a Slack message.
package notification

import (
	"context"

	"leadflow_backend/internal/agents"
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	notifhandler "leadflow_backend/internal/notification/handler"
	"leadflow_backend/internal/notification/inapp"
	"leadflow_backend/internal/notification/outbox"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/slack-go/slack"
)

// Module owns the outbox, the in-app inbox and the delivery handler.
type Module struct {
	outbox       *outbox.Repository
	inAppService *inapp.Service
	inAppHandler *notifhandler.HTTPHandler
	notifier     *Notifier
	deliverer    *Deliverer
	log          *logger.Logger
}

type agentDirectory struct {
	pool *pgxpool.Pool
}

func (d agentDirectory) GetContact(ctx context.Context, tenantID, agentID uuid.UUID) (agents.Contact, error) {
	return agents.GetContact(ctx, d.pool, tenantID, agentID)
}

// NewModule wires the notification module. mailer may be nil.
func NewModule(pool *pgxpool.Pool, mailer AlertMailer, cfg config.SlackConfig, log *logger.Logger) *Module {
	outboxRepo := outbox.New(pool)
	inAppService := inapp.NewService(inapp.NewRepository(pool), log)

	deps := DeliveryDeps{
		Outbox: outboxRepo,
		InApp:  inAppService,
		Agents: agentDirectory{pool: pool},
		Mailer: mailer,
	}
	if token := cfg.GetSlackBotToken(); token != "" {
		var opts []slack.Option
		if url := cfg.GetSlackAPIURL(); url != "" {
			opts = append(opts, slack.OptionAPIURL(url))
		}
		deps.Slack = slack.New(token, opts...)
		deps.SlackChannel = cfg.GetSlackAdminChannel()
	}

	return &Module{
		outbox:       outboxRepo,
		inAppService: inAppService,
		inAppHandler: notifhandler.NewHTTPHandler(inAppService),
		notifier:     NewNotifier(outboxRepo, log),
		deliverer:    NewDeliverer(deps, log),
		log:          log,
	}
}

func (m *Module) Name() string { return "notification" }

// RegisterRoutes mounts the in-app inbox under /api/v1/notifications.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.inAppHandler.RegisterRoutes(ctx.Protected.Group("/notifications"))
}

// Notifier is what the engines use to raise alerts.
func (m *Module) Notifier() *Notifier { return m.notifier }

// Outbox is read by the scheduler's dispatcher.
func (m *Module) Outbox() *outbox.Repository { return m.outbox }

// InAppService returns the inbox service.
func (m *Module) InAppService() *inapp.Service { return m.inAppService }

// RegisterHandlers subscribes delivery to due outbox records. Only the
// scheduler process calls this.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), m.deliverer)
}
