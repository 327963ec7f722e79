package normalize

import (
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"climatewatch/internal/types"
)

var (
	testNow = time.Date(2024, 1, 5, 9, 0, 30, 0, time.UTC)
	testLoc = types.Location{Name: "montreal", Latitude: 45.5019, Longitude: -73.5673, Timezone: "UTC"}
)

func newTestNormalizer() *Normalizer {
	return New(Config{
		Clock:  types.FixedClock{T: testNow},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func payload(provider types.ProviderID, body string) types.RawPayload {
	return types.RawPayload{
		Provider:    provider,
		Kind:        types.PayloadCurrent,
		RequestedAt: testNow.Add(-500 * time.Millisecond),
		Body:        []byte(body),
	}
}

func TestNormalize_OpenWeatherMap(t *testing.T) {
	body := `{
		"dt": 1704445200,
		"main": {"temp": 268.15, "feels_like": 263.15, "humidity": 80, "pressure": 1012},
		"wind": {"speed": 5, "deg": 360},
		"weather": [{"id": 600, "main": "Snow", "description": "light snow", "icon": "13d"}],
		"snow": {"1h": 0.4}
	}`
	s, err := newTestNormalizer().Normalize(testLoc, payload(types.ProviderOpenWeatherMap, body))
	require.NoError(t, err)

	assert.Equal(t, time.Unix(1704445200, 0).UTC(), s.ObservedAt)
	assert.Equal(t, -5.0, s.TemperatureC)
	assert.Equal(t, -10.0, s.FeelsLikeC)
	assert.Equal(t, 80, s.HumidityPct)
	require.NotNil(t, s.PressureHPa)
	assert.Equal(t, 1012, *s.PressureHPa)
	assert.Equal(t, 18.0, s.WindSpeedKph)
	require.NotNil(t, s.WindDirectionDeg)
	assert.Equal(t, 0.0, *s.WindDirectionDeg)
	require.NotNil(t, s.PrecipitationMM)
	assert.InDelta(t, 0.4, *s.PrecipitationMM, 1e-9)
	assert.Equal(t, "600", s.ConditionCode)
	assert.Equal(t, "light snow", s.ConditionText)
	assert.Equal(t, types.ProviderOpenWeatherMap, s.Source)
	assert.Equal(t, testNow, s.IngestedAt)
	assert.Equal(t, testLoc, s.Location)
}

func TestNormalize_OpenMeteoMapsWMOCode(t *testing.T) {
	body := `{"current": {
		"time": 1704445200, "temperature_2m": -3.46, "apparent_temperature": -8.1,
		"relative_humidity_2m": 71, "surface_pressure": 1003.6, "wind_speed_10m": 12.2,
		"wind_direction_10m": 250, "precipitation": 0, "weather_code": 73
	}}`
	s, err := newTestNormalizer().Normalize(testLoc, payload(types.ProviderOpenMeteo, body))
	require.NoError(t, err)

	assert.Equal(t, -3.46, s.TemperatureC)
	assert.Equal(t, 1004, *s.PressureHPa)
	assert.Equal(t, "73", s.ConditionCode)
	assert.Equal(t, "Moderate snow fall", s.ConditionText)
	assert.Equal(t, "snow", s.ConditionIcon)
	require.NotNil(t, s.PrecipitationMM)
	assert.Equal(t, 0.0, *s.PrecipitationMM)
}

func TestNormalize_Aeris(t *testing.T) {
	body := `{"success": true, "error": null, "response": [{"periods": [{
		"timestamp": 1704445200, "tempC": 2, "feelslikeC": -1, "humidity": 65,
		"pressureMB": 1018, "windSpeedKPH": 20, "windDirDEG": 180, "precipMM": 0.2,
		"weather": "Cloudy", "weatherCoded": "::OV", "icon": "cloudy.png"
	}]}]}`
	s, err := newTestNormalizer().Normalize(testLoc, payload(types.ProviderAeris, body))
	require.NoError(t, err)

	assert.Equal(t, 2.0, s.TemperatureC)
	assert.Equal(t, -1.0, s.FeelsLikeC)
	assert.Equal(t, "::OV", s.ConditionCode)
	assert.Equal(t, "Cloudy", s.ConditionText)
}

func TestNormalize_WeatherAPIFahrenheitFallback(t *testing.T) {
	body := `{"current": {
		"last_updated_epoch": 1704445200, "temp_f": 50, "humidity": 40,
		"wind_mph": 10, "wind_degree": 90, "condition": {"text": "Sunny", "icon": "//cdn/113.png", "code": 1000}
	}}`
	s, err := newTestNormalizer().Normalize(testLoc, payload(types.ProviderWeatherAPI, body))
	require.NoError(t, err)

	assert.Equal(t, 10.0, s.TemperatureC)
	assert.Equal(t, 10.0, s.FeelsLikeC)
	assert.Equal(t, 16.09, s.WindSpeedKph)
	assert.Equal(t, "1000", s.ConditionCode)
	assert.Nil(t, s.PressureHPa)
}

func TestNormalize_FallsBackToRequestedAt(t *testing.T) {
	body := `{"current": {"temperature_2m": 1, "relative_humidity_2m": 50, "wind_speed_10m": 3}}`
	p := payload(types.ProviderOpenMeteo, body)
	s, err := newTestNormalizer().Normalize(testLoc, p)
	require.NoError(t, err)

	assert.Equal(t, p.RequestedAt.Truncate(time.Second), s.ObservedAt)
	assert.Zero(t, s.ObservedAt.Nanosecond())
}

func TestNormalize_HumidityBoundary(t *testing.T) {
	n := newTestNormalizer()

	ok := `{"current": {"time": 1704445200, "temperature_2m": 1, "relative_humidity_2m": 100, "wind_speed_10m": 3}}`
	s, err := n.Normalize(testLoc, payload(types.ProviderOpenMeteo, ok))
	require.NoError(t, err)
	assert.Equal(t, 100, s.HumidityPct)

	bad := `{"current": {"time": 1704445200, "temperature_2m": 1, "relative_humidity_2m": 101, "wind_speed_10m": 3}}`
	_, err = n.Normalize(testLoc, payload(types.ProviderOpenMeteo, bad))
	require.Error(t, err)

	var vErr *types.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "humidity_pct", vErr.Field)
	assert.Equal(t, 101, vErr.Value)
	assert.Equal(t, types.ErrCodeValidationRejected, types.CodeOf(err))
}

func TestNormalize_RejectsNotClamps(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"too hot", `{"current": {"temperature_2m": 75, "relative_humidity_2m": 10, "wind_speed_10m": 3}}`, "temperature_c"},
		{"negative wind", `{"current": {"temperature_2m": 5, "relative_humidity_2m": 10, "wind_speed_10m": -1}}`, "wind_speed_kph"},
		{"pressure", `{"current": {"temperature_2m": 5, "relative_humidity_2m": 10, "wind_speed_10m": 1, "surface_pressure": 500}}`, "pressure_hpa"},
		{"direction", `{"current": {"temperature_2m": 5, "relative_humidity_2m": 10, "wind_speed_10m": 1, "wind_direction_10m": 400}}`, "wind_direction_deg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestNormalizer().Normalize(testLoc, payload(types.ProviderOpenMeteo, tt.body))
			var vErr *types.ValidationError
			require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestNormalize_ClockSkew(t *testing.T) {
	n := newTestNormalizer()
	ahead := testNow.Add(10 * time.Minute).Unix()
	body := `{"dt": ` + strconv.FormatInt(ahead, 10) + `, "main": {"temp": 280, "humidity": 50}, "wind": {"speed": 1}}`

	_, err := n.Normalize(testLoc, payload(types.ProviderOpenWeatherMap, body))
	var vErr *types.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "observed_at", vErr.Field)

	within := testNow.Add(time.Minute).Unix()
	body = `{"dt": ` + strconv.FormatInt(within, 10) + `, "main": {"temp": 280, "humidity": 50}, "wind": {"speed": 1}}`
	_, err = n.Normalize(testLoc, payload(types.ProviderOpenWeatherMap, body))
	assert.NoError(t, err)
}

func TestNormalize_MalformedBodies(t *testing.T) {
	tests := []struct {
		name     string
		provider types.ProviderID
		body     string
	}{
		{"not json", types.ProviderOpenMeteo, `nope`},
		{"missing current", types.ProviderOpenMeteo, `{}`},
		{"owm missing temp", types.ProviderOpenWeatherMap, `{"main": {"humidity": 3}, "wind": {"speed": 1}}`},
		{"aeris empty periods", types.ProviderAeris, `{"success": true, "response": [{"periods": []}]}`},
		{"weatherapi no temperature", types.ProviderWeatherAPI, `{"current": {"humidity": 3, "wind_kph": 1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestNormalizer().Normalize(testLoc, payload(tt.provider, tt.body))
			assert.Equal(t, types.ErrCodeProviderMalformed, types.CodeOf(err))
		})
	}
}

func TestNormalize_UnknownProvider(t *testing.T) {
	_, err := newTestNormalizer().Normalize(testLoc, payload("darksky", `{}`))
	assert.Equal(t, types.ErrCodeProviderUnsupported, types.CodeOf(err))
}

func TestUnitConversions(t *testing.T) {
	assert.Equal(t, 0.0, KelvinToCelsius(273.15))
	assert.Equal(t, 0.0, FahrenheitToCelsius(32))
	assert.Equal(t, 100.0, FahrenheitToCelsius(212))
	assert.Equal(t, 36.0, MetersPerSecondToKph(10))
	assert.Equal(t, 16.09, MphToKph(10))
}

func TestWMOCondition(t *testing.T) {
	code, text, icon := WMOCondition(0)
	assert.Equal(t, "0", code)
	assert.Equal(t, "Clear sky", text)
	assert.Equal(t, "clear", icon)

	code, text, _ = WMOCondition(95)
	assert.Equal(t, "95", code)
	assert.Equal(t, "Thunderstorm", text)

	_, text, icon = WMOCondition(42)
	assert.Equal(t, "Unknown", text)
	assert.Equal(t, "unknown", icon)
}
