package collect

import (
	"context"
	"log/slog"

	"climatewatch/internal/external"
	"climatewatch/internal/types"
)

// Normalizer turns one provider payload into a validated sample.
type Normalizer interface {
	Normalize(loc types.Location, p types.RawPayload) (types.WeatherSample, error)
}

// AttemptObserver receives every provider attempt as it completes.
type AttemptObserver interface {
	ObserveAttempt(ctx context.Context, a types.CollectionAttempt)
}

// AttemptObserverFunc adapts a function to AttemptObserver.
type AttemptObserverFunc func(ctx context.Context, a types.CollectionAttempt)

// ObserveAttempt implements AttemptObserver.
func (f AttemptObserverFunc) ObserveAttempt(ctx context.Context, a types.CollectionAttempt) {
	f(ctx, a)
}

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	// Providers in fallback priority order.
	Providers  []external.Provider
	Normalizer Normalizer
	Policy     RetryPolicy
	Sleep      SleepFunc
	Classify   Classifier
	Observer   AttemptObserver
	Clock      types.Clock
	Logger     *slog.Logger
}

// Coordinator is the fallback coordinator. It never calls providers
// concurrently.
type Coordinator struct {
	providers  []external.Provider
	normalizer Normalizer
	policy     RetryPolicy
	sleep      SleepFunc
	classify   Classifier
	observer   AttemptObserver
	clock      types.Clock
	logger     *slog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Policy.MaxRetries == 0 {
		cfg.Policy = DefaultRetryPolicy()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = ContextSleep
	}
	if cfg.Classify == nil {
		cfg.Classify = IsRetryable
	}
	if cfg.Observer == nil {
		cfg.Observer = AttemptObserverFunc(func(context.Context, types.CollectionAttempt) {})
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{
		providers:  cfg.Providers,
		normalizer: cfg.Normalizer,
		policy:     cfg.Policy,
		sleep:      cfg.Sleep,
		classify:   cfg.Classify,
		observer:   cfg.Observer,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
}

// Resolve returns the first sample obtained in priority order. When every
// provider fails it returns a *types.ExhaustedError listing each failure.
// A payload that fails normalization counts as provider_malformed for that
// provider and is not retried.
func (c *Coordinator) Resolve(ctx context.Context, loc types.Location) (types.WeatherSample, error) {
	exhausted := &types.ExhaustedError{Location: loc.Key()}

	for _, p := range c.providers {
		var sample types.WeatherSample
		attempts, err := Retry(ctx, c.policy, c.sleep, c.classify, func(ctx context.Context, attempt int) error {
			s, err := c.attempt(ctx, p, loc, attempt)
			sample = s
			return err
		})
		if err == nil {
			if len(exhausted.Failures) > 0 {
				c.logger.InfoContext(ctx, "resolved after fallback",
					"location", loc.Name,
					"source", string(p.ID()),
					"failed_providers", len(exhausted.Failures),
				)
			}
			return sample, nil
		}

		failure := types.ProviderFailure{
			Provider: p.ID(),
			Code:     types.CodeOf(err),
			Attempts: attempts,
			Err:      err,
		}
		if failure.Code == types.ErrCodeValidationRejected || !failure.Code.IsProvider() {
			failure.Code = types.ErrCodeProviderMalformed
		}
		if ctx.Err() != nil && attempts == 0 {
			failure.Code = types.ErrCodeProviderUnreachable
		}
		exhausted.Failures = append(exhausted.Failures, failure)

		c.logger.WarnContext(ctx, "provider failed, advancing",
			"location", loc.Name,
			"provider", string(p.ID()),
			"code", string(failure.Code),
			"attempts", attempts,
			"error", err.Error(),
		)

		if ctx.Err() != nil {
			break
		}
	}
	return types.WeatherSample{}, exhausted
}

// attempt makes one fetch and, on success, normalizes the payload.
func (c *Coordinator) attempt(ctx context.Context, p external.Provider, loc types.Location, n int) (types.WeatherSample, error) {
	started := c.clock.Now()
	payload, err := p.FetchCurrent(ctx, loc)

	var sample types.WeatherSample
	if err == nil {
		sample, err = c.normalizer.Normalize(loc, payload)
		if err != nil {
			err = types.NewAppErrorWithDetails(types.ErrCodeProviderMalformed,
				"payload rejected by normalizer", err, map[string]any{"provider": string(p.ID())})
		}
	}

	a := types.CollectionAttempt{
		TickID:    types.GetTickID(ctx),
		Provider:  p.ID(),
		Attempt:   n + 1,
		StartedAt: started,
		Outcome:   types.OutcomeOf(err),
		Latency:   c.clock.Now().Sub(started),
		Err:       err,
	}
	c.observer.ObserveAttempt(ctx, a)
	return sample, err
}
