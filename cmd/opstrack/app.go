package main

import (
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/patrickspencer/opstrack/internal/config"
	"github.com/patrickspencer/opstrack/internal/logging"
	"github.com/patrickspencer/opstrack/internal/loop"
	"github.com/patrickspencer/opstrack/internal/loops"
	"github.com/patrickspencer/opstrack/internal/realtime"
	"github.com/patrickspencer/opstrack/internal/service"
	"github.com/patrickspencer/opstrack/internal/store"
	"github.com/patrickspencer/opstrack/pkg/plugin"
)

// app is the wired object graph shared by serve and run.
type app struct {
	cfg       *config.Config
	store     *store.SQLiteStore
	events    *realtime.Broker
	audit     *service.StoreAuditLogger
	reminders *service.ReminderService
	tasks     *service.TaskService
	notifiers *plugin.Notifiers
	registry  *loop.Registry
	loops     *loop.Service
}

func newApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "create data directory", goerr.V("path", cfg.DataDir))
	}

	st, err := store.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, goerr.Wrap(err, "open store", goerr.V("path", cfg.DBPath()))
	}
	logger := logging.Component("main")
	logger.Info().Str("path", cfg.DBPath()).Msg("store opened")

	a := &app{
		cfg:       cfg,
		store:     st,
		events:    realtime.NewBroker(),
		audit:     service.NewAuditLogger(st),
		notifiers: plugin.DefaultNotifiers(logging.Component("notify")),
	}
	if err := a.notifiers.Init(cfg.Notifiers); err != nil {
		_ = st.Close()
		return nil, goerr.Wrap(err, "init notifiers")
	}
	a.reminders = service.NewReminderService(st, a.audit)
	a.tasks = service.NewTaskService(st, a.audit)

	exec := loop.NewExecutor(st, a.audit,
		loop.WithDedupWindow(cfg.DedupWindow()),
		loop.WithEvents(a.events),
	)
	a.registry = loop.NewRegistry(exec)
	loops.Register(a.registry, cfg, loops.Deps{
		Store:     st,
		Reminders: a.reminders,
		Tasks:     a.tasks,
		Notifier:  a.notifiers,
	})
	a.loops = loop.NewService(st, time.Now)
	return a, nil
}

func (a *app) Close() error {
	_ = a.notifiers.Close()
	return a.store.Close()
}
