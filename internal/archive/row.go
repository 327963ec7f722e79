package archive

import (
	"time"

	"climatewatch/internal/types"
)

// Row is the CSV shape of one archived sample. Optional fields are empty
// cells when the provider did not report them.
type Row struct {
	Location         string   `csv:"location"`
	ObservedAt       string   `csv:"observed_at"`
	TemperatureC     float64  `csv:"temperature_c"`
	FeelsLikeC       float64  `csv:"feels_like_c"`
	HumidityPct      int      `csv:"humidity_pct"`
	PressureHPa      *int     `csv:"pressure_hpa,omitempty"`
	WindSpeedKph     float64  `csv:"wind_speed_kph"`
	WindDirectionDeg *float64 `csv:"wind_direction_deg,omitempty"`
	PrecipitationMM  *float64 `csv:"precipitation_mm,omitempty"`
	ConditionCode    string   `csv:"condition_code"`
	ConditionText    string   `csv:"condition_text"`
	Source           string   `csv:"source"`
	IngestedAt       string   `csv:"ingested_at"`
}

// RowFromSample flattens s. Times are written as RFC 3339 in UTC.
func RowFromSample(s types.WeatherSample) Row {
	return Row{
		Location:         s.Location.Key(),
		ObservedAt:       s.ObservedAt.UTC().Format(time.RFC3339),
		TemperatureC:     s.TemperatureC,
		FeelsLikeC:       s.FeelsLikeC,
		HumidityPct:      s.HumidityPct,
		PressureHPa:      s.PressureHPa,
		WindSpeedKph:     s.WindSpeedKph,
		WindDirectionDeg: s.WindDirectionDeg,
		PrecipitationMM:  s.PrecipitationMM,
		ConditionCode:    s.ConditionCode,
		ConditionText:    s.ConditionText,
		Source:           string(s.Source),
		IngestedAt:       s.IngestedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Sample rebuilds the sample for loc.
func (r Row) Sample(loc types.Location) (types.WeatherSample, error) {
	observed, err := time.Parse(time.RFC3339, r.ObservedAt)
	if err != nil {
		return types.WeatherSample{}, err
	}
	ingested, err := time.Parse(time.RFC3339Nano, r.IngestedAt)
	if err != nil {
		return types.WeatherSample{}, err
	}
	return types.WeatherSample{
		Location:         loc,
		ObservedAt:       observed,
		TemperatureC:     r.TemperatureC,
		FeelsLikeC:       r.FeelsLikeC,
		HumidityPct:      r.HumidityPct,
		PressureHPa:      r.PressureHPa,
		WindSpeedKph:     r.WindSpeedKph,
		WindDirectionDeg: r.WindDirectionDeg,
		PrecipitationMM:  r.PrecipitationMM,
		ConditionCode:    r.ConditionCode,
		ConditionText:    r.ConditionText,
		Source:           types.ProviderID(r.Source),
		IngestedAt:       ingested,
	}, nil
}
