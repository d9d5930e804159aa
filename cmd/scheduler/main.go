package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"leadflow_backend/internal/bootstrap"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/platform/cache"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, log, bootstrap.Options{ForwardEvents: true})
	if err != nil {
		log.Error("failed to initialize scheduler", "error", err)
		panic("failed to initialize scheduler: " + err.Error())
	}
	defer app.Close()

	// Outbox rows are delivered here, never in the api process.
	app.Notification.RegisterHandlers(app.Bus)

	dispatcher, err := scheduler.NewNotificationOutboxDispatcher(cfg, app.Notification.Outbox(), log)
	if err != nil {
		log.Error("failed to initialize outbox dispatcher", "error", err)
		panic("failed to initialize outbox dispatcher: " + err.Error())
	}
	defer func() { _ = dispatcher.Close() }()
	go dispatcher.Run(ctx)

	gov := cfg.GetGovernance()
	monitors := scheduler.NewMonitorRunner(cache.NewLocker(app.Redis), log)
	monitors.Add(app.Routing.SLAWatcher(), gov.SLA.Interval)
	monitors.Add(app.Leakage.Monitor(), gov.Leakage.Interval)
	monitors.Add(app.Abuse.Service(), gov.Abuse.Interval)
	monitorsDone := make(chan struct{})
	go func() {
		defer close(monitorsDone)
		monitors.Run(ctx)
	}()

	worker, err := scheduler.NewWorker(cfg, app.Bus, app.Leakage.Monitor(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	<-monitorsDone
	log.Info("scheduler stopped")
}
