// Package main is the long-running collector for one monitored location.
//
// It drives collection ticks from the configured ScheduleWindow, publishes
// the monthly and yearly reports that fall due, and serves the ops endpoints
// (/health, /status, /latest, /version) until SIGINT/SIGTERM. In calendar
// mode the process exits cleanly once the date range is used up.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // location timezones on minimal images

	"golang.org/x/sync/errgroup"

	"climatewatch/internal/app"
	"climatewatch/internal/config"
	"climatewatch/internal/core"
	"climatewatch/internal/scheduler"
	"climatewatch/internal/types"
)

// shutdownTimeout bounds the graceful stop of the ops server.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(app.SecretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("climatewatch collector starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"location", cfg.MonitoredLocation().String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer rt.Close()

	metrics, err := rt.Metrics(ctx)
	if err != nil {
		return err
	}
	publisher, err := rt.Publisher(ctx)
	if err != nil {
		return err
	}
	collector, err := rt.Collector(publisher, metrics)
	if err != nil {
		return fmt.Errorf("building collector: %w", err)
	}

	window, err := cfg.Schedule.Window(cfg.Location.Timezone)
	if err != nil {
		return err
	}
	ticks := &tickRunner{
		collector: collector,
		reports:   rt.ReportJob(publisher),
		clock:     types.RealClock{},
		logger:    logger,
	}
	sched, err := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Window:         window,
		Collect:        ticks.Tick,
		TickTimeout:    cfg.Schedule.TickTimeout,
		RunImmediately: cfg.Schedule.RunImmediately,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	srv, err := core.NewServer(core.ServerConfig{
		Service:      cfg.Service,
		Location:     rt.Location,
		ScheduleMode: window.Mode(),
		Build:        cfg.Build,
		HealthProbes: rt.Probes,
		Ticks:        collector,
		Latest:       rt.Store,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("creating ops server: %w", err)
	}

	return serve(ctx, sched, srv.HTTPServer(":"+cfg.Server.OpsPort), logger)
}

// serve runs the scheduler and the ops server until ctx is cancelled or the
// calendar window is exhausted, then shuts the server down.
func serve(ctx context.Context, sched *scheduler.Scheduler, httpServer *http.Server, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		err := sched.Run(runCtx)
		if errors.Is(err, types.ErrScheduleExhausted) {
			logger.Info("calendar window exhausted, stopping", "ticks", sched.Ticks())
			return nil
		}
		return err
	})

	g.Go(func() error {
		logger.Info("ops server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-runCtx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("collector stopped cleanly")
	return nil
}
