package types

import (
	"context"
	"errors"
)

// ProviderID names an external weather source.
type ProviderID string

const (
	ProviderOpenWeatherMap ProviderID = "openweathermap"
	ProviderOpenMeteo      ProviderID = "openmeteo"
	ProviderAeris          ProviderID = "aeris"
	ProviderWeatherAPI     ProviderID = "weatherapi"
)

// KnownProviders lists every provider the collector can build.
var KnownProviders = []ProviderID{
	ProviderOpenWeatherMap,
	ProviderOpenMeteo,
	ProviderAeris,
	ProviderWeatherAPI,
}

// PayloadKind distinguishes current-conditions bodies from archive bodies.
type PayloadKind string

const (
	PayloadCurrent    PayloadKind = "current"
	PayloadHistorical PayloadKind = "historical"
)

// AttemptOutcome classifies a single CollectionAttempt.
type AttemptOutcome string

const (
	OutcomeSuccess        AttemptOutcome = "success"
	OutcomeTimeout        AttemptOutcome = "timeout"
	OutcomeUnreachable    AttemptOutcome = "unreachable"
	OutcomeRateLimited    AttemptOutcome = "rate_limited"
	OutcomeRejected       AttemptOutcome = "rejected"
	OutcomeInvalidPayload AttemptOutcome = "invalid_payload"
)

// OutcomeForCode maps an error code to the attempt outcome it represents.
func OutcomeForCode(code ErrorCode) AttemptOutcome {
	switch code {
	case "":
		return OutcomeSuccess
	case ErrCodeProviderUnreachable:
		return OutcomeUnreachable
	case ErrCodeProviderRateLimited:
		return OutcomeRateLimited
	case ErrCodeProviderAuthFailed:
		return OutcomeRejected
	default:
		return OutcomeInvalidPayload
	}
}

// OutcomeOf classifies the error returned by one provider attempt.
func OutcomeOf(err error) AttemptOutcome {
	if err == nil {
		return OutcomeSuccess
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		if timedOut, _ := appErr.Details["timeout"].(bool); timedOut {
			return OutcomeTimeout
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	return OutcomeForCode(CodeOf(err))
}

// Granularity is the bucket width of an aggregate query.
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
	GranularityYear  Granularity = "year"
)

// Valid reports whether g is a supported granularity.
func (g Granularity) Valid() bool {
	switch g {
	case GranularityHour, GranularityDay, GranularityMonth, GranularityYear:
		return true
	}
	return false
}

// PeriodKind is the span of a report.
type PeriodKind string

const (
	PeriodMonth PeriodKind = "month"
	PeriodYear  PeriodKind = "year"
)

// AlertKind names an extreme-condition alert.
type AlertKind string

const (
	AlertHeat     AlertKind = "extreme_heat"
	AlertCold     AlertKind = "extreme_cold"
	AlertWind     AlertKind = "high_wind"
	AlertHumidity AlertKind = "high_humidity"
)
