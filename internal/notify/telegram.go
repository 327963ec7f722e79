package notify

import (
	"context"
	"fmt"
	"strings"

	"climatewatch/internal/types"
)

// MessageSender posts a text message to a chat. *external.TelegramClient
// satisfies it.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// TelegramPublisher renders alerts and reports as chat messages.
type TelegramPublisher struct {
	sender MessageSender
	chatID string
}

var _ Publisher = (*TelegramPublisher)(nil)

// NewTelegramPublisher creates a publisher posting to chatID.
func NewTelegramPublisher(sender MessageSender, chatID string) *TelegramPublisher {
	return &TelegramPublisher{sender: sender, chatID: chatID}
}

// NotifyAlerts sends all alerts of a tick as one message.
func (p *TelegramPublisher) NotifyAlerts(ctx context.Context, alerts []types.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	return p.sender.SendMessage(ctx, p.chatID, FormatAlerts(alerts))
}

// PublishReport implements Publisher.
func (p *TelegramPublisher) PublishReport(ctx context.Context, r types.Report) error {
	return p.sender.SendMessage(ctx, p.chatID, FormatReport(r))
}

var alertTitles = map[types.AlertKind]string{
	types.AlertHeat:     "Extreme heat",
	types.AlertCold:     "Extreme cold",
	types.AlertWind:     "High wind",
	types.AlertHumidity: "High humidity",
}

var alertUnits = map[types.AlertKind]string{
	types.AlertHeat:     "°C",
	types.AlertCold:     "°C",
	types.AlertWind:     " km/h",
	types.AlertHumidity: "%",
}

// FormatAlerts renders one line per alert.
func FormatAlerts(alerts []types.Alert) string {
	var b strings.Builder
	for i, a := range alerts {
		if i > 0 {
			b.WriteByte('\n')
		}
		title, ok := alertTitles[a.Kind]
		if !ok {
			title = string(a.Kind)
		}
		unit := alertUnits[a.Kind]
		fmt.Fprintf(&b, "ALERT %s at %s: %.1f%s (limit %.1f%s) observed %s",
			title, a.Location, a.Value, unit, a.Threshold, unit,
			a.ObservedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	return b.String()
}

// FormatReport renders a plain-text period summary.
func FormatReport(r types.Report) string {
	var b strings.Builder
	kind := "Monthly"
	if r.Period.Kind == types.PeriodYear {
		kind = "Yearly"
	}
	fmt.Fprintf(&b, "%s weather report: %s %s\n", kind, r.Location, r.Label)
	fmt.Fprintf(&b, "Samples: %d over %d days (%d without data)\n", r.SampleCount, r.DaysWithData, r.EmptyDays)

	if r.Temperature != nil {
		fmt.Fprintf(&b, "Temperature: mean %.1f°C, min %.1f°C, max %.1f°C\n",
			r.Temperature.Mean, r.Temperature.Min, r.Temperature.Max)
	}
	writeOpt(&b, "Mean humidity", r.MeanHumidityPct, "%")
	writeOpt(&b, "Mean wind", r.MeanWindKph, " km/h")
	writeOpt(&b, "Max wind", r.MaxWindKph, " km/h")
	writeOpt(&b, "Precipitation", r.TotalPrecipitationMM, " mm")
	if r.TrendCPerDay != nil {
		fmt.Fprintf(&b, "Trend: %+.2f°C/day\n", *r.TrendCPerDay)
	}

	if len(r.Segments) > 0 {
		b.WriteString("Breakdown:\n")
		for _, s := range r.Segments {
			if s.MeanTemperatureC == nil {
				fmt.Fprintf(&b, "  %s: no data\n", s.Label)
				continue
			}
			fmt.Fprintf(&b, "  %s: %.1f°C\n", s.Label, *s.MeanTemperatureC)
		}
	}

	if d := r.Deltas; d != nil && d.MeanTemperatureC != nil {
		fmt.Fprintf(&b, "Versus previous: %+.1f°C", *d.MeanTemperatureC)
		if d.TotalPrecipitationMM != nil {
			fmt.Fprintf(&b, ", %+.1f mm", *d.TotalPrecipitationMM)
		}
		b.WriteByte('\n')
	}

	if len(r.Alerts) > 0 {
		b.WriteString(FormatAlerts(r.Alerts))
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func writeOpt(b *strings.Builder, label string, v *float64, unit string) {
	if v == nil {
		return
	}
	fmt.Fprintf(b, "%s: %.1f%s\n", label, *v, unit)
}
