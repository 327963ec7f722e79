package collect

import (
	"context"
	"log/slog"

	"climatewatch/internal/telemetry"
	"climatewatch/internal/types"
)

// NewMetricsObserver logs every attempt and forwards it to metrics.
func NewMetricsObserver(metrics telemetry.Recorder, logger *slog.Logger) AttemptObserver {
	if metrics == nil {
		metrics = telemetry.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return AttemptObserverFunc(func(ctx context.Context, a types.CollectionAttempt) {
		metrics.RecordAttempt(ctx, a)
		attrs := []any{
			"tick_id", a.TickID,
			"provider", string(a.Provider),
			"attempt", a.Attempt,
			"outcome", string(a.Outcome),
			"latency_ms", a.Latency.Milliseconds(),
		}
		if a.Err != nil {
			logger.WarnContext(ctx, "provider attempt failed", append(attrs, "error", a.Err.Error())...)
			return
		}
		logger.DebugContext(ctx, "provider attempt succeeded", attrs...)
	})
}
