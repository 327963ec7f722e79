// Package notify delivers threshold alerts and period reports.
//
// Every Publisher implements both collect.AlertNotifier and
// report.Publisher. Multi fans out to several publishers and reports every
// failure; Log writes structured records and is the fallback when no
// external channel is configured.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"climatewatch/internal/types"
)

// Publisher delivers alerts and reports to one channel.
type Publisher interface {
	NotifyAlerts(ctx context.Context, alerts []types.Alert) error
	PublishReport(ctx context.Context, r types.Report) error
}

// Multi sends to every publisher in order. A failing publisher does not stop
// the others; the failures are joined into a notify_failed error.
type Multi []Publisher

var _ Publisher = Multi(nil)

// NotifyAlerts implements Publisher.
func (m Multi) NotifyAlerts(ctx context.Context, alerts []types.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	var errs []error
	for _, p := range m {
		if err := p.NotifyAlerts(ctx, alerts); err != nil {
			errs = append(errs, err)
		}
	}
	return joinFailures("alert delivery failed", errs)
}

// PublishReport implements Publisher.
func (m Multi) PublishReport(ctx context.Context, r types.Report) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishReport(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return joinFailures("report delivery failed", errs)
}

func joinFailures(msg string, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return types.NewAppError(types.ErrCodeNotifyFailed, msg, errors.Join(errs...))
}

// Log records alerts and reports as structured log lines.
type Log struct {
	Logger *slog.Logger
}

var _ Publisher = Log{}

func (l Log) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// NotifyAlerts implements Publisher.
func (l Log) NotifyAlerts(ctx context.Context, alerts []types.Alert) error {
	for _, a := range alerts {
		l.logger().WarnContext(ctx, "weather alert",
			"alert", string(a.Kind),
			"location", a.Location,
			"value", a.Value,
			"threshold", a.Threshold,
			"observed_at", a.ObservedAt,
		)
	}
	return nil
}

// PublishReport implements Publisher.
func (l Log) PublishReport(ctx context.Context, r types.Report) error {
	attrs := []any{
		"location", r.Location,
		"period", r.Label,
		"samples", r.SampleCount,
		"days_with_data", r.DaysWithData,
		"empty_days", r.EmptyDays,
		"alerts", len(r.Alerts),
	}
	if r.Temperature != nil {
		attrs = append(attrs,
			"temp_mean_c", r.Temperature.Mean,
			"temp_min_c", r.Temperature.Min,
			"temp_max_c", r.Temperature.Max,
		)
	}
	l.logger().InfoContext(ctx, "weather report", attrs...)
	return nil
}
