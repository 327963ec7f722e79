// Package normalize turns raw provider bodies into canonical WeatherSamples.
// Units are converted to Celsius, km/h, hPa and mm. A sample with any field
// outside its physical range is rejected whole; values are never clamped.
package normalize

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"climatewatch/internal/types"
)

// DefaultSkewTolerance is how far observed_at may run ahead of ingestion.
const DefaultSkewTolerance = 2 * time.Minute

// Config configures a Normalizer.
type Config struct {
	Clock         types.Clock
	SkewTolerance time.Duration
	Logger        *slog.Logger
}

// Normalizer decodes and validates provider payloads. It is safe for
// concurrent use.
type Normalizer struct {
	validate *validator.Validate
	clock    types.Clock
	skew     time.Duration
	logger   *slog.Logger
}

// New creates a Normalizer.
func New(cfg Config) *Normalizer {
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.SkewTolerance <= 0 {
		cfg.SkewTolerance = DefaultSkewTolerance
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Normalizer{
		validate: v,
		clock:    cfg.Clock,
		skew:     cfg.SkewTolerance,
		logger:   cfg.Logger,
	}
}

// Normalize decodes one current-conditions payload for loc. Undecodable
// bodies fail with provider_malformed; out-of-range values fail with a
// *types.ValidationError.
func (n *Normalizer) Normalize(loc types.Location, p types.RawPayload) (types.WeatherSample, error) {
	decode, ok := decoders[p.Provider]
	if !ok {
		return types.WeatherSample{}, types.NewAppError(types.ErrCodeProviderUnsupported,
			fmt.Sprintf("no decoder for provider %q", p.Provider), nil)
	}
	r, err := decode(p.Body)
	if err != nil {
		return types.WeatherSample{}, types.NewAppErrorWithDetails(types.ErrCodeProviderMalformed,
			"failed to decode provider payload", err, map[string]any{"provider": string(p.Provider)})
	}

	observedAt := r.ObservedAt
	if observedAt.IsZero() {
		observedAt = p.RequestedAt
	}

	sample := types.WeatherSample{
		Location:         loc,
		ObservedAt:       observedAt.UTC().Truncate(time.Second),
		TemperatureC:     r.TemperatureC,
		FeelsLikeC:       r.FeelsLikeC,
		HumidityPct:      r.HumidityPct,
		PressureHPa:      r.PressureHPa,
		WindSpeedKph:     r.WindSpeedKph,
		WindDirectionDeg: r.WindDirectionDeg,
		PrecipitationMM:  r.PrecipitationMM,
		ConditionCode:    r.ConditionCode,
		ConditionText:    r.ConditionText,
		ConditionIcon:    r.ConditionIcon,
		Source:           p.Provider,
		IngestedAt:       n.clock.Now().UTC(),
	}
	if err := n.Validate(sample); err != nil {
		return types.WeatherSample{}, err
	}
	return sample, nil
}

// Validate checks physical ranges and the clock-skew bound.
func (n *Normalizer) Validate(s types.WeatherSample) error {
	if err := n.validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return toValidationError(fieldErrs[0])
		}
		return types.NewAppError(types.ErrCodeInternalUnexpected, "sample validation failed", err)
	}

	ingested := s.IngestedAt
	if ingested.IsZero() {
		ingested = n.clock.Now()
	}
	if s.ObservedAt.After(ingested.Add(n.skew)) {
		return &types.ValidationError{
			Field:  "observed_at",
			Value:  s.ObservedAt.Format(time.RFC3339),
			Reason: fmt.Sprintf("is more than %s ahead of ingestion", n.skew),
		}
	}
	return nil
}

func toValidationError(fe validator.FieldError) *types.ValidationError {
	field := strings.TrimPrefix(fe.Namespace(), "WeatherSample.")
	value := fe.Value()
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Pointer && !rv.IsNil() {
		value = rv.Elem().Interface()
	}
	return &types.ValidationError{Field: field, Value: value, Reason: reason(fe)}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "gt":
		return "must be > " + fe.Param()
	case "lt":
		return "must be < " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
