package types

import "time"

// Report summarizes one location over one Period. Pointer fields are nil when
// the period holds no data for them.
type Report struct {
	Location    string    `json:"location"`
	Period      Period    `json:"period"`
	Label       string    `json:"label"`
	GeneratedAt time.Time `json:"generated_at"`

	SampleCount  int `json:"sample_count"`
	DaysWithData int `json:"days_with_data"`
	EmptyDays    int `json:"empty_days"`

	Temperature          *FieldStats `json:"temperature_c,omitempty"`
	MeanHumidityPct      *float64    `json:"mean_humidity_pct,omitempty"`
	MeanWindKph          *float64    `json:"mean_wind_kph,omitempty"`
	MaxWindKph           *float64    `json:"max_wind_kph,omitempty"`
	TotalPrecipitationMM *float64    `json:"total_precipitation_mm,omitempty"`

	// Segments are weekly means for a month report and monthly means for a
	// year report.
	Segments []SegmentMean `json:"segments"`
	// TrendCPerDay is the least-squares slope of the daily mean temperature.
	TrendCPerDay *float64 `json:"trend_c_per_day,omitempty"`
	// Deltas compare against the previous period; nil when it had no data.
	Deltas *ReportDeltas `json:"deltas,omitempty"`
	Alerts []Alert       `json:"alerts"`
}

// Empty reports whether no sample fell inside the period.
func (r Report) Empty() bool {
	return r.SampleCount == 0
}

// SegmentMean is the mean temperature of one sub-period.
type SegmentMean struct {
	Label            string    `json:"label"`
	Start            time.Time `json:"start"`
	Days             int       `json:"days"`
	MeanTemperatureC *float64  `json:"mean_temperature_c,omitempty"`
}

// ReportDeltas are current minus previous period values.
type ReportDeltas struct {
	MeanTemperatureC     *float64 `json:"mean_temperature_c,omitempty"`
	MeanHumidityPct      *float64 `json:"mean_humidity_pct,omitempty"`
	MeanWindKph          *float64 `json:"mean_wind_kph,omitempty"`
	TotalPrecipitationMM *float64 `json:"total_precipitation_mm,omitempty"`
}
