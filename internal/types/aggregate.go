package types

import "time"

// FieldStats is the min/max/mean of one numeric field within a bucket.
type FieldStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
}

// Observe folds v into the running statistics. Mean is kept as a running
// average so buckets can be built incrementally.
func (s *FieldStats) Observe(v float64) {
	if s.Count == 0 {
		s.Min, s.Max, s.Mean, s.Count = v, v, v, 1
		return
	}
	if v < s.Min {
		s.Min = v
	}
	if v > s.Max {
		s.Max = v
	}
	s.Count++
	s.Mean += (v - s.Mean) / float64(s.Count)
}

// Bucket is one time-grouped aggregation unit. Empty buckets carry no stats.
type Bucket struct {
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Count       int         `json:"count"`
	Empty       bool        `json:"empty"`
	Temperature *FieldStats `json:"temperature_c,omitempty"`
	FeelsLike   *FieldStats `json:"feels_like_c,omitempty"`
	Humidity    *FieldStats `json:"humidity_pct,omitempty"`
	Pressure    *FieldStats `json:"pressure_hpa,omitempty"`
	WindSpeed   *FieldStats `json:"wind_speed_kph,omitempty"`
	// PrecipitationMM is the bucket total, nil when no sample reported it.
	PrecipitationMM *float64 `json:"precipitation_mm,omitempty"`
}

// Period is the span summarized by a report.
type Period struct {
	Kind  PeriodKind `json:"kind"`
	Start time.Time  `json:"start"`
}

// MonthPeriod returns the month containing t in t's location.
func MonthPeriod(t time.Time) Period {
	return Period{Kind: PeriodMonth, Start: time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())}
}

// YearPeriod returns the year containing t in t's location.
func YearPeriod(t time.Time) Period {
	return Period{Kind: PeriodYear, Start: time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())}
}

// End returns the exclusive end of the period.
func (p Period) End() time.Time {
	if p.Kind == PeriodYear {
		return p.Start.AddDate(1, 0, 0)
	}
	return p.Start.AddDate(0, 1, 0)
}

// Previous returns the period immediately preceding p.
func (p Period) Previous() Period {
	if p.Kind == PeriodYear {
		return Period{Kind: p.Kind, Start: p.Start.AddDate(-1, 0, 0)}
	}
	return Period{Kind: p.Kind, Start: p.Start.AddDate(0, -1, 0)}
}

// Label renders the period as 2024-03 or 2024.
func (p Period) Label() string {
	if p.Kind == PeriodYear {
		return p.Start.Format("2006")
	}
	return p.Start.Format("2006-01")
}
