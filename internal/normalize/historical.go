package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"climatewatch/internal/types"
)

// archiveBody is the daily block of the Open-Meteo archive API. Any value
// may be null for days without data.
type archiveBody struct {
	Timezone string `json:"timezone"`
	Daily    *struct {
		Time                  []string   `json:"time"`
		TemperatureMean       []*float64 `json:"temperature_2m_mean"`
		TemperatureMax        []*float64 `json:"temperature_2m_max"`
		TemperatureMin        []*float64 `json:"temperature_2m_min"`
		ApparentMean          []*float64 `json:"apparent_temperature_mean"`
		HumidityMean          []*float64 `json:"relative_humidity_2m_mean"`
		PressureMean          []*float64 `json:"surface_pressure_mean"`
		PrecipitationSum      []*float64 `json:"precipitation_sum"`
		WindSpeedMean         []*float64 `json:"wind_speed_10m_mean"`
		WindSpeedMax          []*float64 `json:"wind_speed_10m_max"`
		WindDirectionDominant []*float64 `json:"wind_direction_10m_dominant"`
		WeatherCode           []*float64 `json:"weather_code"`
	} `json:"daily"`
}

func at(vals []*float64, i int) *float64 {
	if i < len(vals) {
		return vals[i]
	}
	return nil
}

// NormalizeHistorical decodes one archive payload into one sample per day,
// observed at local noon of that day. Values are daily means; wind falls
// back to the daily maximum when the mean is missing. Days missing
// temperature, humidity or wind, and days failing validation, are skipped
// and logged.
func (n *Normalizer) NormalizeHistorical(loc types.Location, p types.RawPayload) ([]types.WeatherSample, error) {
	if p.Provider != types.ProviderOpenMeteo || p.Kind != types.PayloadHistorical {
		return nil, types.NewAppError(types.ErrCodeProviderUnsupported,
			fmt.Sprintf("no historical decoder for %s/%s", p.Provider, p.Kind), nil)
	}
	var b archiveBody
	if err := json.Unmarshal(p.Body, &b); err != nil {
		return nil, types.NewAppError(types.ErrCodeProviderMalformed, "failed to decode archive payload", err)
	}
	if b.Daily == nil {
		return nil, types.NewAppError(types.ErrCodeProviderMalformed, "archive payload has no daily block", nil)
	}

	zone := loc.Timezone
	if zone == "" {
		zone = b.Timezone
	}
	tz, err := time.LoadLocation(zone)
	if err != nil {
		tz = time.UTC
	}

	d := b.Daily
	now := n.clock.Now().UTC()
	samples := make([]types.WeatherSample, 0, len(d.Time))
	for i, day := range d.Time {
		date, err := time.ParseInLocation(time.DateOnly, day, tz)
		if err != nil {
			n.logger.Warn("skipping archive day with bad date", "day", day, "error", err)
			continue
		}

		temp := at(d.TemperatureMean, i)
		if temp == nil {
			if hi, lo := at(d.TemperatureMax, i), at(d.TemperatureMin, i); hi != nil && lo != nil {
				mid := (*hi + *lo) / 2
				temp = &mid
			}
		}
		humidity := at(d.HumidityMean, i)
		wind := at(d.WindSpeedMean, i)
		if wind == nil {
			wind = at(d.WindSpeedMax, i)
		}
		if temp == nil || humidity == nil || wind == nil {
			n.logger.Debug("skipping archive day without data", "day", day)
			continue
		}

		s := types.WeatherSample{
			Location:         loc,
			ObservedAt:       time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, tz).UTC(),
			TemperatureC:     round2(*temp),
			FeelsLikeC:       round2(*temp),
			HumidityPct:      roundInt(*humidity),
			PressureHPa:      intPtr(at(d.PressureMean, i)),
			WindSpeedKph:     round2(*wind),
			WindDirectionDeg: degPtr(at(d.WindDirectionDominant, i)),
			PrecipitationMM:  at(d.PrecipitationSum, i),
			Source:           types.ProviderOpenMeteo,
			IngestedAt:       now,
		}
		if apparent := at(d.ApparentMean, i); apparent != nil {
			s.FeelsLikeC = round2(*apparent)
		}
		if code := at(d.WeatherCode, i); code != nil {
			s.ConditionCode, s.ConditionText, s.ConditionIcon = WMOCondition(roundInt(*code))
		}

		if err := n.Validate(s); err != nil {
			n.logger.Warn("skipping invalid archive day", "day", day, "error", err)
			continue
		}
		samples = append(samples, s)
	}
	return samples, nil
}
