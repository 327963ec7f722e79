package main

import (
	"context"
	"log/slog"
	"time"

	"climatewatch/internal/types"
)

// sampleCollector runs one collection. *collect.Collector satisfies it.
type sampleCollector interface {
	Collect(ctx context.Context) error
}

// reportRunner publishes due reports. *report.ReportJob satisfies it.
type reportRunner interface {
	Run(ctx context.Context, now time.Time) (int, error)
}

// tickRunner is the scheduler's CollectFunc: collect one sample, then
// publish any report that became due. A report failure is logged and does
// not fail the tick; the job retries it on the next tick.
type tickRunner struct {
	collector sampleCollector
	reports   reportRunner
	clock     types.Clock
	logger    *slog.Logger
}

func (t *tickRunner) Tick(ctx context.Context) error {
	err := t.collector.Collect(ctx)

	published, rerr := t.reports.Run(ctx, t.clock.Now())
	if rerr != nil {
		t.logger.WarnContext(ctx, "report publication failed", "error", rerr.Error())
	} else if published > 0 {
		t.logger.InfoContext(ctx, "reports published", "count", published)
	}
	return err
}
