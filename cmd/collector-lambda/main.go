// Package main is the Lambda entry point of the collector. An EventBridge
// rule invokes it on the collection cadence; every invocation runs exactly one
// tick and then publishes any report that fell due. Scheduling itself is left
// to EventBridge, so the ScheduleWindow settings are ignored here.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"climatewatch/internal/app"
	"climatewatch/internal/config"
	"climatewatch/internal/types"
)

type sampleCollector interface {
	Collect(ctx context.Context) error
}

type reportRunner interface {
	Run(ctx context.Context, now time.Time) (int, error)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("collector Lambda initializing (cold start)")

	cfg, err := config.LoadConfig(app.SecretProvider())
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = app.NewLogger(cfg.LogLevel)

	ctx := context.Background()
	// Connections are reused across warm invocations and never closed.
	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	metrics, err := rt.Metrics(ctx)
	if err != nil {
		logger.Error("failed to initialize metrics", "error", err)
		os.Exit(1)
	}
	publisher, err := rt.Publisher(ctx)
	if err != nil {
		logger.Error("failed to initialize publishers", "error", err)
		os.Exit(1)
	}
	collector, err := rt.Collector(publisher, metrics)
	if err != nil {
		logger.Error("failed to build collector", "error", err)
		os.Exit(1)
	}

	logger.Info("collector Lambda initialized",
		"location", rt.Location.String(),
		"providers", cfg.Providers.Priority,
		"store", cfg.Store.Backend,
	)
	lambda.Start(newHandler(collector, rt.ReportJob(publisher), types.RealClock{}, logger))
}

// newHandler returns the invocation handler. The EventBridge event id becomes
// the tick id. A failed tick is reported in the result rather than as an
// error so that Lambda does not redeliver the event; the next scheduled
// invocation is the retry.
func newHandler(c sampleCollector, reports reportRunner, clock types.Clock, logger *slog.Logger) func(ctx context.Context, event events.CloudWatchEvent) (string, error) {
	return func(ctx context.Context, event events.CloudWatchEvent) (string, error) {
		if event.ID != "" {
			ctx = types.WithTickID(ctx, event.ID)
		}
		now := event.Time
		if now.IsZero() {
			now = clock.Now()
		}
		logger.InfoContext(ctx, "collector handler invoked", "event_id", event.ID, "scheduled_for", now.UTC())

		result := "tick stored"
		if err := c.Collect(ctx); err != nil {
			result = fmt.Sprintf("tick failed: %s", types.CodeOf(err))
		}

		published, err := reports.Run(ctx, now)
		if err != nil {
			logger.WarnContext(ctx, "report publication failed", "error", err.Error())
			return result, nil
		}
		if published > 0 {
			result = fmt.Sprintf("%s, %d reports published", result, published)
		}
		return result, nil
	}
}
