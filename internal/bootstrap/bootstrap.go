// Package bootstrap is the composition root shared by the api, scheduler and
// leadctl binaries. It connects the infrastructure and wires every engine the
// same way in each process.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/internal/abuse"
	"leadflow_backend/internal/audit"
	"leadflow_backend/internal/email"
	"leadflow_backend/internal/escalation"
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/leads"
	leadrepo "leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/leakage"
	leakageservice "leadflow_backend/internal/leakage/service"
	"leadflow_backend/internal/ledger"
	"leadflow_backend/internal/notification"
	"leadflow_backend/internal/outreach"
	"leadflow_backend/internal/routing"
	routingservice "leadflow_backend/internal/routing/service"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/internal/whatsapp"
	"leadflow_backend/platform/ai/textgen"
	"leadflow_backend/platform/cache"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/stream"
	"leadflow_backend/platform/telemetry"
	"leadflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const auditBuffer = 512

// App holds the connected infrastructure and the wired modules.
type App struct {
	Config *config.Config
	Log    *logger.Logger
	Pool   *pgxpool.Pool
	Redis  *redis.Client
	Bus    *events.InMemoryBus

	Ledger       *ledger.Module
	Leads        *leads.Module
	Routing      *routing.Module
	Escalation   *escalation.Module
	Leakage      *leakage.Module
	Abuse        *abuse.Module
	Notification *notification.Module

	Recovery *scheduler.Client

	closers []func()
}

// Options tune what a process needs.
type Options struct {
	// Migrate runs the embedded migrations before connecting the pool.
	Migrate bool
	// ForwardEvents mirrors keyed domain events to Kafka when brokers are configured.
	ForwardEvents bool
}

// New connects Postgres and Redis with retries and wires the modules.
// Call Close when done.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Log: log}

	shutdownTracing := telemetry.Init(ctx, cfg, log)
	a.onClose(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	})

	if opts.Migrate {
		if err := WithRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, cfg)
		}); err != nil {
			a.Close()
			return nil, err
		}
		log.Info("database migrations complete")
	}

	if err := WithRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		a.pool(p)
		return nil
	}); err != nil {
		a.Close()
		return nil, err
	}
	log.Info("database connection established")

	rdb, err := cache.NewRedisClient(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.Redis = rdb
	a.onClose(func() { _ = rdb.Close() })
	if err := WithRetry(ctx, log, "redis connection", 5, time.Second, func() error {
		return rdb.Ping(ctx).Err()
	}); err != nil {
		a.Close()
		return nil, err
	}

	a.Bus = events.NewInMemoryBus(log)
	if opts.ForwardEvents {
		if producer := stream.NewProducer(cfg); producer != nil {
			events.NewForwarder(producer, log).Register(a.Bus)
			a.onClose(func() { _ = producer.Close() })
			log.Info("kafka event forwarding enabled", "topic", cfg.GetKafkaGovernanceTopic())
		}
	}

	a.wire(ctx)
	return a, nil
}

func (a *App) pool(p *pgxpool.Pool) {
	a.Pool = p
	a.onClose(p.Close)
}

func (a *App) wire(ctx context.Context) {
	cfg, log := a.Config, a.Log
	val := validator.New()

	auditLog := audit.New(audit.NewRepository(a.Pool), log, auditBuffer)
	a.onClose(auditLog.Close)

	gen, err := textgen.New(ctx, cfg)
	if err != nil {
		log.Warn("text generator unavailable; model scores fall back", "provider", cfg.GetAIProvider(), "error", err)
		gen = nil
	} else if gen == nil {
		log.Warn("no AI provider key configured; model scores fall back", "provider", cfg.GetAIProvider())
	}

	recovery, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Warn("ai recovery scheduling disabled", "error", err)
	} else {
		a.Recovery = recovery
		a.onClose(func() { _ = recovery.Close() })
	}

	var mailer *email.SMTPSender
	if m := email.NewSMTPSender(cfg); m != nil {
		mailer = m
	} else {
		log.Warn("SMTP not configured; email alerts and follow-ups disabled")
	}

	var alertMailer notification.AlertMailer
	if mailer != nil {
		alertMailer = mailer
	}
	a.Notification = notification.NewModule(a.Pool, alertMailer, cfg, log)
	notifier := a.Notification.Notifier()

	a.Ledger = ledger.NewModule(a.Pool, auditLog, a.Bus, val, log)
	tokens := a.Ledger.Service()

	leadStore := leadrepo.New(a.Pool)
	a.Abuse = abuse.NewModule(a.Pool, a.Redis, a.Ledger.Repository(), leadStore, notifier, a.Bus, cfg, log)
	pauses := a.Abuse.Service()

	a.Leads = leads.NewModule(a.Pool, gen, cache.New(a.Redis, "leadflow:score"), tokens, pauses, a.Bus, val, cfg, log)

	var recoverySched routingservice.RecoveryScheduler
	if a.Recovery != nil {
		recoverySched = a.Recovery
	}
	a.Routing = routing.NewModule(a.Pool, leadStore, tokens, recoverySched, notifier, a.Bus, val, log)

	a.Escalation = escalation.NewModule(a.Pool, notifier, a.Bus, val, cfg, log)

	var (
		wa outreach.WhatsAppSender
		em outreach.EmailSender
	)
	if client := whatsapp.NewClient(cfg, log); client != nil {
		wa = client
	}
	if mailer != nil {
		em = mailer
	}
	deps := leakageservice.Deps{
		Leads:     leadStore,
		Gen:       gen,
		Sender:    outreach.NewSender(leadStore, wa, em),
		Tokens:    tokens,
		Pause:     pauses,
		Router:    a.Routing.Service(),
		Escalator: a.Escalation.Service(),
		Notifier:  notifier,
		Bus:       a.Bus,
	}
	a.Leakage = leakage.NewModule(a.Pool, deps, cfg, log)
}

// HTTPModules lists the modules the api process mounts.
func (a *App) HTTPModules() []apphttp.Module {
	return []apphttp.Module{
		a.Ledger,
		a.Leads,
		a.Routing,
		a.Escalation,
		a.Leakage,
		a.Abuse,
		a.Notification,
	}
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse acquisition order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// WithRetry runs fn up to attempts times with quadratic backoff.
func WithRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
