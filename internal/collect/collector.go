package collect

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"climatewatch/internal/telemetry"
	"climatewatch/internal/types"
)

// Resolver produces one sample for a location.
type Resolver interface {
	Resolve(ctx context.Context, loc types.Location) (types.WeatherSample, error)
}

// SampleWriter is the write side of the store.
type SampleWriter interface {
	Upsert(ctx context.Context, s types.WeatherSample) error
}

// AlertEvaluator flags extreme conditions in a fresh sample.
type AlertEvaluator interface {
	EvaluateSample(s types.WeatherSample) []types.Alert
}

// AlertNotifier delivers raised alerts.
type AlertNotifier interface {
	NotifyAlerts(ctx context.Context, alerts []types.Alert) error
}

// TickStatus summarizes the most recent tick for the ops endpoint.
type TickStatus struct {
	TickID     string           `json:"tick_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Result     string           `json:"result"`
	Source     types.ProviderID `json:"source,omitempty"`
	ObservedAt *time.Time       `json:"observed_at,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// CollectorConfig configures a Collector. Alerts and Notifier are optional.
type CollectorConfig struct {
	Location types.Location
	Resolver Resolver
	Store    SampleWriter
	Alerts   AlertEvaluator
	Notifier AlertNotifier
	Metrics  telemetry.Recorder
	Clock    types.Clock
	Logger   *slog.Logger
}

// Collector runs one collection tick: resolve, persist, alert.
type Collector struct {
	cfg CollectorConfig

	mu   sync.RWMutex
	last *TickStatus
}

// NewCollector creates a Collector.
func NewCollector(cfg CollectorConfig) *Collector {
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NoopMetrics{}
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Collector{cfg: cfg}
}

// Collect performs one tick. Exhaustion and store failures are returned for
// this tick only; alert delivery failures are logged and swallowed.
func (c *Collector) Collect(ctx context.Context) error {
	tickID := types.GetTickID(ctx)
	if tickID == "" {
		tickID = uuid.NewString()
		ctx = types.WithTickID(ctx, tickID)
	}
	loc := c.cfg.Location
	logger := c.cfg.Logger.With("tick_id", tickID, "location", loc.Name)
	started := c.cfg.Clock.Now()
	status := &TickStatus{TickID: tickID, StartedAt: started}
	defer func() {
		status.FinishedAt = c.cfg.Clock.Now()
		c.mu.Lock()
		c.last = status
		c.mu.Unlock()
		c.cfg.Metrics.RecordTick(ctx, loc.Name, status.Result, status.FinishedAt.Sub(started))
	}()

	sample, err := c.cfg.Resolver.Resolve(ctx, loc)
	if err != nil {
		status.Result = telemetry.ResultExhausted
		status.Error = err.Error()
		c.recordRejections(ctx, err)
		logger.ErrorContext(ctx, "collection exhausted", "error", err.Error())
		return err
	}

	sample.IngestedAt = c.cfg.Clock.Now().UTC()
	if err := c.cfg.Store.Upsert(ctx, sample); err != nil {
		status.Result = telemetry.ResultStoreFail
		status.Error = err.Error()
		logger.ErrorContext(ctx, "failed to store sample", "error", err.Error())
		if types.CodeOf(err) != types.ErrCodeStoreUnavailable {
			err = types.NewAppError(types.ErrCodeStoreUnavailable, "failed to store sample", err)
		}
		return err
	}

	observed := sample.ObservedAt
	status.Result = telemetry.ResultSuccess
	status.Source = sample.Source
	status.ObservedAt = &observed
	logger.InfoContext(ctx, "sample collected",
		"source", string(sample.Source),
		"observed_at", sample.ObservedAt.Format(time.RFC3339),
		"temperature_c", sample.TemperatureC,
	)

	c.raiseAlerts(ctx, logger, sample)
	return nil
}

// LastTick returns the status of the most recent tick, or nil before the first.
func (c *Collector) LastTick() *TickStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return nil
	}
	s := *c.last
	return &s
}

func (c *Collector) recordRejections(ctx context.Context, err error) {
	var exhausted *types.ExhaustedError
	if !errors.As(err, &exhausted) {
		return
	}
	for _, f := range exhausted.Failures {
		var vErr *types.ValidationError
		if errors.As(f.Err, &vErr) {
			c.cfg.Metrics.RecordRejected(ctx, f.Provider)
		}
	}
}

func (c *Collector) raiseAlerts(ctx context.Context, logger *slog.Logger, s types.WeatherSample) {
	if c.cfg.Alerts == nil {
		return
	}
	alerts := c.cfg.Alerts.EvaluateSample(s)
	if len(alerts) == 0 {
		return
	}
	for _, a := range alerts {
		c.cfg.Metrics.RecordAlert(ctx, a.Kind)
		logger.WarnContext(ctx, "threshold crossed",
			"alert", string(a.Kind),
			"value", a.Value,
			"threshold", a.Threshold,
		)
	}
	if c.cfg.Notifier == nil {
		return
	}
	if err := c.cfg.Notifier.NotifyAlerts(ctx, alerts); err != nil {
		logger.WarnContext(ctx, "failed to deliver alerts", "error", err.Error())
	}
}
