package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patrickspencer/opstrack/internal/config"
	"github.com/patrickspencer/opstrack/internal/logging"
	"github.com/patrickspencer/opstrack/internal/scheduler"
	"github.com/patrickspencer/opstrack/internal/web"
	"github.com/patrickspencer/opstrack/internal/web/api"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const staleRunReason = "interrupted by process restart"

func newServeCmd() *cobra.Command {
	var listen string
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the loop scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			if noScheduler {
				off := false
				cfg.Scheduler.Enabled = &off
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "override the listen address")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve the API without running loops on a schedule")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	logger := logging.Component("main")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Runs left "running" by a previous process can never finish.
	n, err := a.store.MarkStaleRunsAsFailed(ctx, staleRunReason)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Warn().Int64("runs", n).Msg("marked stale loop runs as failed")
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.IsEnabled() {
		sched = scheduler.New(a.registry)
		if err := sched.Sync(); err != nil {
			return err
		}
	}

	h := api.New()
	h.Registry = a.registry
	h.Loops = a.loops
	h.Store = a.store
	h.Reminders = a.reminders
	h.Tasks = a.tasks
	h.Audit = a.audit
	h.Events = a.events
	h.GetConfig = func() *config.Config { return cfg }
	if sched != nil {
		h.Schedule = sched
	}
	srv := web.NewServer(cfg.Listen, h)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if sched != nil {
		g.Go(func() error { return sched.Run(gctx) })
	} else {
		logger.Info().Msg("scheduler disabled")
	}

	logger.Info().Str("listen", cfg.Listen).Int("loops", len(a.registry.All())).Msg("opstrack started")
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("opstrack stopped")
	return nil
}
