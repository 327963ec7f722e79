package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"climatewatch/internal/store"
	"climatewatch/internal/types"
)

// Summarizer produces a Report for one period.
type Summarizer interface {
	Summarize(ctx context.Context, loc types.Location, p types.Period) (types.Report, error)
}

// Publisher hands a finished report to its audience.
type Publisher interface {
	PublishReport(ctx context.Context, r types.Report) error
}

// ReportJobConfig configures a ReportJob.
type ReportJobConfig struct {
	Location   types.Location
	Summarizer Summarizer
	Publisher  Publisher
	Logger     *slog.Logger
}

// ReportJob publishes each closed month once, and each closed year once
// when the first tick of January arrives. Published periods are remembered
// for the lifetime of the process only.
type ReportJob struct {
	loc        types.Location
	summarizer Summarizer
	publisher  Publisher
	logger     *slog.Logger

	mu        sync.Mutex
	published map[string]bool
}

// NewReportJob creates a ReportJob.
func NewReportJob(cfg ReportJobConfig) *ReportJob {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ReportJob{
		loc:        cfg.Location,
		summarizer: cfg.Summarizer,
		publisher:  cfg.Publisher,
		logger:     cfg.Logger.With("component", "report_job", "location", cfg.Location.Name),
		published:  make(map[string]bool),
	}
}

// Run publishes whatever periods closed before now and have not been
// published yet. It returns the number of reports published. Empty periods
// are marked done without publishing.
func (j *ReportJob) Run(ctx context.Context, now time.Time) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	local := now.In(store.Zone(j.loc))
	due := []types.Period{types.MonthPeriod(local).Previous()}
	if local.Month() == time.January {
		due = append(due, types.YearPeriod(local).Previous())
	}

	published := 0
	for _, p := range due {
		key := string(p.Kind) + ":" + p.Label()
		if j.published[key] {
			continue
		}
		rep, err := j.summarizer.Summarize(ctx, j.loc, p)
		if err != nil {
			return published, fmt.Errorf("summarizing %s: %w", p.Label(), err)
		}
		if rep.Empty() {
			j.logger.InfoContext(ctx, "skipping empty report", "period", p.Label())
			j.published[key] = true
			continue
		}
		if err := j.publisher.PublishReport(ctx, rep); err != nil {
			return published, fmt.Errorf("publishing %s: %w", p.Label(), err)
		}
		j.published[key] = true
		published++
		j.logger.InfoContext(ctx, "report published",
			"period", p.Label(),
			"kind", string(p.Kind),
			"samples", rep.SampleCount,
			"alerts", len(rep.Alerts),
		)
	}
	return published, nil
}
