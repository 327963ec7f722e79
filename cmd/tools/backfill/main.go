// Command backfill loads daily history for the monitored location from the
// first provider with an archive API (Open-Meteo) into the configured store.
//
// Usage:
//
//	go run ./cmd/tools/backfill --from=2024-01-01 --to=2024-12-31
//	go run ./cmd/tools/backfill --list
//
// One sample per day is stored, observed at local noon. --list prints the
// instants of the configured calendar schedule and exits; the window closes
// at 00:00 local on SCHEDULE_END_DATE.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"climatewatch/internal/app"
	"climatewatch/internal/config"
	"climatewatch/internal/scheduler"
	"climatewatch/internal/store"
	"climatewatch/internal/types"
)

type historicalSource interface {
	FetchHistorical(ctx context.Context, loc types.Location, r types.DateRange) ([]types.RawPayload, error)
}

type historicalNormalizer interface {
	NormalizeHistorical(loc types.Location, p types.RawPayload) ([]types.WeatherSample, error)
}

type sampleWriter interface {
	Upsert(ctx context.Context, s types.WeatherSample) error
}

func main() {
	from := flag.String("from", "", "first day to load (YYYY-MM-DD)")
	to := flag.String("to", "", "last day to load, inclusive (YYYY-MM-DD)")
	list := flag.Bool("list", false, "print the calendar schedule instants and exit")
	flag.Parse()

	if err := run(*from, *to, *list); err != nil {
		fmt.Fprintf(os.Stderr, "backfill: %v\n", err)
		os.Exit(1)
	}
}

func run(from, to string, list bool) error {
	cfg, err := config.LoadConfig(app.SecretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if list {
		return printSchedule(os.Stdout, cfg.Schedule, cfg.Location.Timezone)
	}

	loc := cfg.MonitoredLocation()
	r, err := parseRange(from, to, store.Zone(loc))
	if err != nil {
		return err
	}

	logger := app.NewLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	reg, err := rt.Registry()
	if err != nil {
		return err
	}
	source, ok := reg.Historical()
	if !ok {
		return errors.New("no provider in PROVIDER_PRIORITY serves historical data; add openmeteo")
	}

	b := &backfiller{
		source:     source,
		normalizer: rt.Normalizer(),
		store:      rt.Store,
		logger:     logger,
	}
	stored, err := b.Run(ctx, loc, r)
	if err != nil {
		return err
	}
	fmt.Printf("stored %d daily samples for %s (%s..%s)\n",
		stored, loc.Name, r.From.Format(time.DateOnly), r.To.Format(time.DateOnly))
	return nil
}

func parseRange(from, to string, zone *time.Location) (types.DateRange, error) {
	if from == "" || to == "" {
		return types.DateRange{}, errors.New("--from and --to are required")
	}
	f, err := time.ParseInLocation(time.DateOnly, from, zone)
	if err != nil {
		return types.DateRange{}, fmt.Errorf("parsing --from: %w", err)
	}
	t, err := time.ParseInLocation(time.DateOnly, to, zone)
	if err != nil {
		return types.DateRange{}, fmt.Errorf("parsing --to: %w", err)
	}
	r := types.DateRange{From: f, To: t}
	if r.Days() == 0 {
		return types.DateRange{}, fmt.Errorf("--to %s precedes --from %s", to, from)
	}
	return r, nil
}

// printSchedule writes one line per calendar instant.
func printSchedule(w io.Writer, sc config.ScheduleConfig, timezone string) error {
	window, err := sc.Window(timezone)
	if err != nil {
		return err
	}
	if window.Calendar == nil {
		return errors.New("--list needs SCHEDULE_MODE=calendar")
	}
	cursor, err := scheduler.NewCalendarCursor(*window.Calendar)
	if err != nil {
		return err
	}
	for _, at := range cursor.Instants() {
		if _, err := fmt.Fprintln(w, at.Format("Mon 2006-01-02 15:04 MST")); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "%d instants\n", cursor.Remaining())
	return err
}

type backfiller struct {
	source     historicalSource
	normalizer historicalNormalizer
	store      sampleWriter
	logger     *slog.Logger
}

// Run fetches r, normalizes every payload and upserts the samples. The store
// stamps ingested_at. It stops at the first store failure.
func (b *backfiller) Run(ctx context.Context, loc types.Location, r types.DateRange) (int, error) {
	payloads, err := b.source.FetchHistorical(ctx, loc, r)
	if err != nil {
		return 0, fmt.Errorf("fetching history: %w", err)
	}

	stored := 0
	for _, p := range payloads {
		samples, err := b.normalizer.NormalizeHistorical(loc, p)
		if err != nil {
			return stored, fmt.Errorf("normalizing history: %w", err)
		}
		for _, s := range samples {
			if err := b.store.Upsert(ctx, s); err != nil {
				return stored, fmt.Errorf("storing %s: %w", s.ObservedAt.Format(time.DateOnly), err)
			}
			stored++
		}
		b.logger.InfoContext(ctx, "history chunk stored", "location", loc.Name, "samples", len(samples))
	}
	return stored, nil
}
