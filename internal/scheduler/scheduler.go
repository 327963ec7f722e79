// Package scheduler drives the collection cadence of a single location.
//
// Two mutually exclusive plans are supported. Interval mode fires every
// fixed duration measured from the previous fire; a tick that overruns is
// followed immediately by the next one, never by a burst of catch-up ticks.
// Calendar mode fires on selected weekdays inside a bounded date range and
// ends with types.ErrScheduleExhausted when the range is used up. Instants
// missed while the process was down are collapsed into a single tick.
//
// Ticks run one at a time. Each runs under its own timeout and is detached
// from the run context, so a stop request lets the in-flight tick finish.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"climatewatch/internal/types"
)

// DefaultTickTimeout bounds a tick when none is configured.
const DefaultTickTimeout = 2 * time.Minute

// CollectFunc performs one tick.
type CollectFunc func(ctx context.Context) error

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Window      types.ScheduleWindow
	Collect     CollectFunc
	TickTimeout time.Duration
	// RunImmediately fires one interval tick at start-up before the first
	// interval elapses. Calendar mode ignores it.
	RunImmediately bool
	Clock          types.Clock
	Logger         *slog.Logger
	// After returns a channel that delivers once d has elapsed. Defaults to
	// time.After.
	After func(d time.Duration) <-chan time.Time
}

// Scheduler runs CollectFunc according to a ScheduleWindow.
type Scheduler struct {
	window         types.ScheduleWindow
	collect        CollectFunc
	tickTimeout    time.Duration
	runImmediately bool
	clock          types.Clock
	logger         *slog.Logger
	after          func(d time.Duration) <-chan time.Time

	ticks int
}

// NewScheduler validates the window and returns a Scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if err := cfg.Window.Validate(); err != nil {
		return nil, err
	}
	if cfg.Collect == nil {
		return nil, fmt.Errorf("scheduler: Collect is required")
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = DefaultTickTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.After == nil {
		cfg.After = time.After
	}
	return &Scheduler{
		window:         cfg.Window,
		collect:        cfg.Collect,
		tickTimeout:    cfg.TickTimeout,
		runImmediately: cfg.RunImmediately,
		clock:          cfg.Clock,
		logger:         cfg.Logger.With("component", "scheduler", "mode", cfg.Window.Mode()),
		after:          cfg.After,
	}, nil
}

// Run blocks until ctx is cancelled (returning nil) or, in calendar mode,
// until the window is exhausted (returning types.ErrScheduleExhausted).
// Tick failures are logged and never end the run.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.window.Calendar != nil {
		return s.runCalendar(ctx)
	}
	return s.runInterval(ctx)
}

// Ticks returns the number of ticks fired so far. It is not safe to call
// concurrently with Run.
func (s *Scheduler) Ticks() int { return s.ticks }

func (s *Scheduler) runInterval(ctx context.Context) error {
	every := s.window.Interval.Every
	next := s.clock.Now()
	if !s.runImmediately {
		next = next.Add(every)
	}
	s.logger.InfoContext(ctx, "scheduler started", "interval", every.String(), "first_tick", next)

	for {
		if !s.waitUntil(ctx, next) {
			s.logger.InfoContext(ctx, "scheduler stopped", "ticks", s.ticks)
			return nil
		}
		fired := s.clock.Now()
		s.tick(ctx, fired)

		next = fired.Add(every)
		if now := s.clock.Now(); next.Before(now) {
			s.logger.WarnContext(ctx, "tick overran interval",
				"interval", every.String(),
				"elapsed", now.Sub(fired).String(),
			)
			next = now
		}
	}
}

func (s *Scheduler) runCalendar(ctx context.Context) error {
	cursor, err := NewCalendarCursor(*s.window.Calendar)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "scheduler started", "instants", cursor.Remaining())

	for {
		due, missed, ok := cursor.Next(s.clock.Now())
		if !ok {
			s.logger.InfoContext(ctx, "calendar schedule exhausted", "ticks", s.ticks)
			return types.ErrScheduleExhausted
		}
		if missed > 1 {
			s.logger.WarnContext(ctx, "collapsed missed calendar instants",
				"missed", missed,
				"firing_for", due,
			)
		}
		if !s.waitUntil(ctx, due) {
			s.logger.InfoContext(ctx, "scheduler stopped", "ticks", s.ticks, "remaining", cursor.Remaining())
			return nil
		}
		s.tick(ctx, due)
	}
}

// waitUntil blocks until at or until ctx is done. It reports whether the
// tick should fire.
func (s *Scheduler) waitUntil(ctx context.Context, at time.Time) bool {
	if ctx.Err() != nil {
		return false
	}
	d := at.Sub(s.clock.Now())
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.after(d):
		return ctx.Err() == nil
	}
}

// tick runs one collection detached from ctx cancellation and bounded by
// the tick timeout.
func (s *Scheduler) tick(ctx context.Context, scheduledFor time.Time) {
	s.ticks++
	tickCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.tickTimeout)
	defer cancel()

	start := s.clock.Now()
	err := s.safeCollect(tickCtx)
	elapsed := s.clock.Now().Sub(start)
	if err != nil {
		s.logger.ErrorContext(ctx, "tick failed",
			"scheduled_for", scheduledFor,
			"elapsed", elapsed.String(),
			"code", string(types.CodeOf(err)),
			"error", err,
		)
		return
	}
	s.logger.DebugContext(ctx, "tick completed", "scheduled_for", scheduledFor, "elapsed", elapsed.String())
}

func (s *Scheduler) safeCollect(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewAppError(types.ErrCodeInternalUnexpected, fmt.Sprintf("tick panicked: %v", r), nil)
		}
	}()
	return s.collect(ctx)
}
