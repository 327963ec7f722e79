package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"climatewatch/internal/types"
)

func archivePayload(body string) types.RawPayload {
	return types.RawPayload{
		Provider:    types.ProviderOpenMeteo,
		Kind:        types.PayloadHistorical,
		RequestedAt: testNow,
		Body:        []byte(body),
	}
}

func TestNormalizeHistorical_OneSamplePerDay(t *testing.T) {
	body := `{"timezone": "UTC", "daily": {
		"time": ["2023-12-30", "2023-12-31", "2024-01-01"],
		"temperature_2m_mean": [-4.2, null, 1.5],
		"temperature_2m_max": [-1.0, 2.0, 3.0],
		"temperature_2m_min": [-7.0, -4.0, 0.0],
		"apparent_temperature_mean": [-9.0, -5.0, -2.0],
		"relative_humidity_2m_mean": [80, 75, 90],
		"surface_pressure_mean": [1010.4, 1008.0, null],
		"precipitation_sum": [0.0, 3.5, 1.2],
		"wind_speed_10m_mean": [11.4, null, 7.25],
		"wind_speed_10m_max": [22.0, 30.1, 15.0],
		"wind_direction_10m_dominant": [270, 180, 90],
		"weather_code": [3, 71, 61]
	}}`

	samples, err := newTestNormalizer().NormalizeHistorical(testLoc, archivePayload(body))
	require.NoError(t, err)
	require.Len(t, samples, 3)

	first := samples[0]
	assert.Equal(t, time.Date(2023, 12, 30, 12, 0, 0, 0, time.UTC), first.ObservedAt)
	assert.Equal(t, -4.2, first.TemperatureC)
	assert.Equal(t, -9.0, first.FeelsLikeC)
	assert.Equal(t, 1010, *first.PressureHPa)
	assert.Equal(t, "Overcast", first.ConditionText)
	assert.Equal(t, 11.4, first.WindSpeedKph)
	assert.Equal(t, 7.25, samples[2].WindSpeedKph)
	// Mean wind missing: the daily maximum stands in.
	assert.Equal(t, 30.1, samples[1].WindSpeedKph)

	// Mean missing: midpoint of max and min.
	assert.Equal(t, -1.0, samples[1].TemperatureC)
	assert.Nil(t, samples[2].PressureHPa)
	for _, s := range samples {
		assert.Equal(t, types.ProviderOpenMeteo, s.Source)
	}
}

func TestNormalizeHistorical_SkipsEmptyAndInvalidDays(t *testing.T) {
	body := `{"timezone": "UTC", "daily": {
		"time": ["2024-01-01", "2024-01-02", "2024-01-03"],
		"temperature_2m_mean": [null, 2.0, 3.0],
		"relative_humidity_2m_mean": [null, 150, 60],
		"wind_speed_10m_max": [null, 10, 10]
	}}`

	samples, err := newTestNormalizer().NormalizeHistorical(testLoc, archivePayload(body))
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC), samples[0].ObservedAt)
}

func TestNormalizeHistorical_RejectsWrongPayload(t *testing.T) {
	n := newTestNormalizer()

	_, err := n.NormalizeHistorical(testLoc, payload(types.ProviderOpenMeteo, `{}`))
	assert.Equal(t, types.ErrCodeProviderUnsupported, types.CodeOf(err))

	_, err = n.NormalizeHistorical(testLoc, archivePayload(`{"timezone": "UTC"}`))
	assert.Equal(t, types.ErrCodeProviderMalformed, types.CodeOf(err))
}
