package report

import "climatewatch/internal/types"

// Thresholds are the extreme-condition limits. A value at the limit counts
// as crossing it.
type Thresholds struct {
	HeatC       float64
	ColdC       float64
	WindKph     float64
	HumidityPct int
}

// DefaultThresholds returns the stock limits.
func DefaultThresholds() Thresholds {
	return Thresholds{HeatC: 30, ColdC: -20, WindKph: 50, HumidityPct: 90}
}

// EvaluateSample returns the alerts raised by a single sample.
func (t Thresholds) EvaluateSample(s types.WeatherSample) []types.Alert {
	var alerts []types.Alert
	raise := func(kind types.AlertKind, value, limit float64) {
		alerts = append(alerts, types.Alert{
			Kind:       kind,
			Location:   s.Location.Key(),
			ObservedAt: s.ObservedAt,
			Value:      value,
			Threshold:  limit,
			Source:     s.Source,
		})
	}

	if s.TemperatureC >= t.HeatC {
		raise(types.AlertHeat, s.TemperatureC, t.HeatC)
	}
	if s.TemperatureC <= t.ColdC {
		raise(types.AlertCold, s.TemperatureC, t.ColdC)
	}
	if s.WindSpeedKph >= t.WindKph {
		raise(types.AlertWind, s.WindSpeedKph, t.WindKph)
	}
	if s.HumidityPct >= t.HumidityPct {
		raise(types.AlertHumidity, float64(s.HumidityPct), float64(t.HumidityPct))
	}
	return alerts
}

// periodAlerts flags, per kind, the most extreme day of the period when it
// crosses the limit.
func (t Thresholds) periodAlerts(location string, days []types.Bucket) []types.Alert {
	type extreme struct {
		value float64
		at    types.Bucket
		found bool
	}
	var heat, cold, wind, humid extreme
	better := func(e *extreme, v float64, b types.Bucket, higher bool) {
		if !e.found || (higher && v > e.value) || (!higher && v < e.value) {
			*e = extreme{value: v, at: b, found: true}
		}
	}

	for _, b := range days {
		if b.Empty {
			continue
		}
		if b.Temperature != nil && b.Temperature.Max >= t.HeatC {
			better(&heat, b.Temperature.Max, b, true)
		}
		if b.Temperature != nil && b.Temperature.Min <= t.ColdC {
			better(&cold, b.Temperature.Min, b, false)
		}
		if b.WindSpeed != nil && b.WindSpeed.Max >= t.WindKph {
			better(&wind, b.WindSpeed.Max, b, true)
		}
		if b.Humidity != nil && b.Humidity.Max >= float64(t.HumidityPct) {
			better(&humid, b.Humidity.Max, b, true)
		}
	}

	var alerts []types.Alert
	for _, e := range []struct {
		kind  types.AlertKind
		limit float64
		ext   extreme
	}{
		{types.AlertHeat, t.HeatC, heat},
		{types.AlertCold, t.ColdC, cold},
		{types.AlertWind, t.WindKph, wind},
		{types.AlertHumidity, float64(t.HumidityPct), humid},
	} {
		if !e.ext.found {
			continue
		}
		alerts = append(alerts, types.Alert{
			Kind:       e.kind,
			Location:   location,
			ObservedAt: e.ext.at.Start,
			Value:      e.ext.value,
			Threshold:  e.limit,
		})
	}
	return alerts
}
