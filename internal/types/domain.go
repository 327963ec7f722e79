package types

import (
	"fmt"
	"time"
)

// Location identifies the fixed point being monitored.
type Location struct {
	Name      string  `json:"name" msgpack:"name" validate:"required"`
	Latitude  float64 `json:"latitude" msgpack:"lat" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" msgpack:"lon" validate:"gte=-180,lte=180"`
	// Timezone is the IANA zone used for local-day bucketing of historical data.
	Timezone string `json:"timezone,omitempty" msgpack:"tz,omitempty"`
}

// Key returns the storage key for the location.
func (l Location) Key() string {
	return l.Name
}

// String renders the location for logs.
func (l Location) String() string {
	return fmt.Sprintf("%s (%.4f,%.4f)", l.Name, l.Latitude, l.Longitude)
}

// WeatherSample is the canonical record of one observation for one location.
// Physical ranges are enforced through the validate tags by the normalizer.
type WeatherSample struct {
	Location   Location  `json:"location" msgpack:"location"`
	ObservedAt time.Time `json:"observed_at" msgpack:"observed_at" validate:"required"`

	TemperatureC float64 `json:"temperature_c" msgpack:"temperature_c" validate:"gte=-90,lte=60"`
	FeelsLikeC   float64 `json:"feels_like_c" msgpack:"feels_like_c" validate:"gte=-90,lte=60"`
	HumidityPct  int     `json:"humidity_pct" msgpack:"humidity_pct" validate:"gte=0,lte=100"`
	PressureHPa  *int    `json:"pressure_hpa,omitempty" msgpack:"pressure_hpa,omitempty" validate:"omitnil,gte=850,lte=1085"`

	WindSpeedKph     float64  `json:"wind_speed_kph" msgpack:"wind_speed_kph" validate:"gte=0"`
	WindDirectionDeg *float64 `json:"wind_direction_deg,omitempty" msgpack:"wind_direction_deg,omitempty" validate:"omitnil,gte=0,lt=360"`
	PrecipitationMM  *float64 `json:"precipitation_mm,omitempty" msgpack:"precipitation_mm,omitempty" validate:"omitnil,gte=0"`

	ConditionCode string `json:"condition_code" msgpack:"condition_code"`
	ConditionText string `json:"condition_text" msgpack:"condition_text"`
	ConditionIcon string `json:"condition_icon,omitempty" msgpack:"condition_icon,omitempty"`

	Source     ProviderID `json:"source" msgpack:"source" validate:"required"`
	IngestedAt time.Time  `json:"ingested_at" msgpack:"ingested_at"`
}

// SampleKey is the identity of a stored sample.
type SampleKey struct {
	Location   string
	ObservedAt time.Time
}

// Key returns the idempotency key of the sample.
func (s WeatherSample) Key() SampleKey {
	return SampleKey{Location: s.Location.Key(), ObservedAt: s.ObservedAt.UTC()}
}

// RawPayload is an undecoded provider response.
type RawPayload struct {
	Provider    ProviderID
	Kind        PayloadKind
	RequestedAt time.Time
	Body        []byte
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Days returns the number of calendar days covered by the range.
func (r DateRange) Days() int {
	from := civilDay(r.From)
	to := civilDay(r.To)
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours()/24) + 1
}

// civilDay drops the clock and zone so day arithmetic ignores DST shifts.
func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CollectionAttempt records one try against one provider. It is never persisted.
type CollectionAttempt struct {
	TickID    string
	Provider  ProviderID
	Attempt   int
	StartedAt time.Time
	Outcome   AttemptOutcome
	Latency   time.Duration
	Err       error
}
