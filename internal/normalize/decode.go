package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"climatewatch/internal/types"
)

// reading is the provider-neutral result of decoding one current-conditions
// body. ObservedAt is zero when the provider omitted a timestamp.
type reading struct {
	ObservedAt       time.Time
	TemperatureC     float64
	FeelsLikeC       float64
	HumidityPct      int
	PressureHPa      *int
	WindSpeedKph     float64
	WindDirectionDeg *float64
	PrecipitationMM  *float64
	ConditionCode    string
	ConditionText    string
	ConditionIcon    string
}

type decodeFunc func(body []byte) (reading, error)

var decoders = map[types.ProviderID]decodeFunc{
	types.ProviderOpenWeatherMap: decodeOpenWeatherMap,
	types.ProviderOpenMeteo:      decodeOpenMeteo,
	types.ProviderAeris:          decodeAeris,
	types.ProviderWeatherAPI:     decodeWeatherAPI,
}

func missing(field string) error {
	return fmt.Errorf("required field %s is missing", field)
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func intPtr(v *float64) *int {
	if v == nil {
		return nil
	}
	i := roundInt(*v)
	return &i
}

func degPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	d := normalizeDegrees(*v)
	return &d
}

// OpenWeatherMap /data/2.5/weather in standard units.
type owmBody struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp      *float64 `json:"temp"`
		FeelsLike *float64 `json:"feels_like"`
		Humidity  *float64 `json:"humidity"`
		Pressure  *float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed *float64 `json:"speed"`
		Deg   *float64 `json:"deg"`
	} `json:"wind"`
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Rain *struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
	Snow *struct {
		OneHour float64 `json:"1h"`
	} `json:"snow"`
}

func decodeOpenWeatherMap(body []byte) (reading, error) {
	var b owmBody
	if err := json.Unmarshal(body, &b); err != nil {
		return reading{}, err
	}
	switch {
	case b.Main.Temp == nil:
		return reading{}, missing("main.temp")
	case b.Main.Humidity == nil:
		return reading{}, missing("main.humidity")
	case b.Wind.Speed == nil:
		return reading{}, missing("wind.speed")
	}

	r := reading{
		ObservedAt:       unixTime(b.Dt),
		TemperatureC:     KelvinToCelsius(*b.Main.Temp),
		HumidityPct:      roundInt(*b.Main.Humidity),
		PressureHPa:      intPtr(b.Main.Pressure),
		WindSpeedKph:     MetersPerSecondToKph(*b.Wind.Speed),
		WindDirectionDeg: degPtr(b.Wind.Deg),
	}
	r.FeelsLikeC = r.TemperatureC
	if b.Main.FeelsLike != nil {
		r.FeelsLikeC = KelvinToCelsius(*b.Main.FeelsLike)
	}
	if b.Rain != nil || b.Snow != nil {
		var total float64
		if b.Rain != nil {
			total += b.Rain.OneHour
		}
		if b.Snow != nil {
			total += b.Snow.OneHour
		}
		r.PrecipitationMM = &total
	}
	if len(b.Weather) > 0 {
		w := b.Weather[0]
		r.ConditionCode = strconv.Itoa(w.ID)
		r.ConditionText = w.Description
		if r.ConditionText == "" {
			r.ConditionText = w.Main
		}
		r.ConditionIcon = w.Icon
	}
	return r, nil
}

// Open-Meteo /v1/forecast current block requested with timeformat=unixtime.
type openMeteoBody struct {
	Current *struct {
		Time                int64    `json:"time"`
		Temperature         *float64 `json:"temperature_2m"`
		ApparentTemperature *float64 `json:"apparent_temperature"`
		Humidity            *float64 `json:"relative_humidity_2m"`
		SurfacePressure     *float64 `json:"surface_pressure"`
		WindSpeed           *float64 `json:"wind_speed_10m"`
		WindDirection       *float64 `json:"wind_direction_10m"`
		Precipitation       *float64 `json:"precipitation"`
		WeatherCode         *int     `json:"weather_code"`
	} `json:"current"`
}

func decodeOpenMeteo(body []byte) (reading, error) {
	var b openMeteoBody
	if err := json.Unmarshal(body, &b); err != nil {
		return reading{}, err
	}
	c := b.Current
	switch {
	case c == nil:
		return reading{}, missing("current")
	case c.Temperature == nil:
		return reading{}, missing("current.temperature_2m")
	case c.Humidity == nil:
		return reading{}, missing("current.relative_humidity_2m")
	case c.WindSpeed == nil:
		return reading{}, missing("current.wind_speed_10m")
	}

	r := reading{
		ObservedAt:       unixTime(c.Time),
		TemperatureC:     round2(*c.Temperature),
		FeelsLikeC:       round2(*c.Temperature),
		HumidityPct:      roundInt(*c.Humidity),
		PressureHPa:      intPtr(c.SurfacePressure),
		WindSpeedKph:     round2(*c.WindSpeed),
		WindDirectionDeg: degPtr(c.WindDirection),
		PrecipitationMM:  c.Precipitation,
	}
	if c.ApparentTemperature != nil {
		r.FeelsLikeC = round2(*c.ApparentTemperature)
	}
	if c.WeatherCode != nil {
		r.ConditionCode, r.ConditionText, r.ConditionIcon = WMOCondition(*c.WeatherCode)
	}
	return r, nil
}

// Aeris /conditions with plimit=1.
type aerisBody struct {
	Response []struct {
		Periods []struct {
			Timestamp    int64    `json:"timestamp"`
			TempC        *float64 `json:"tempC"`
			FeelslikeC   *float64 `json:"feelslikeC"`
			Humidity     *float64 `json:"humidity"`
			PressureMB   *float64 `json:"pressureMB"`
			WindSpeedKPH *float64 `json:"windSpeedKPH"`
			WindDirDEG   *float64 `json:"windDirDEG"`
			PrecipMM     *float64 `json:"precipMM"`
			Weather      string   `json:"weather"`
			WeatherCoded string   `json:"weatherCoded"`
			Icon         string   `json:"icon"`
		} `json:"periods"`
	} `json:"response"`
}

func decodeAeris(body []byte) (reading, error) {
	var b aerisBody
	if err := json.Unmarshal(body, &b); err != nil {
		return reading{}, err
	}
	if len(b.Response) == 0 || len(b.Response[0].Periods) == 0 {
		return reading{}, missing("response[0].periods[0]")
	}
	p := b.Response[0].Periods[0]
	switch {
	case p.TempC == nil:
		return reading{}, missing("tempC")
	case p.Humidity == nil:
		return reading{}, missing("humidity")
	case p.WindSpeedKPH == nil:
		return reading{}, missing("windSpeedKPH")
	}

	r := reading{
		ObservedAt:       unixTime(p.Timestamp),
		TemperatureC:     round2(*p.TempC),
		FeelsLikeC:       round2(*p.TempC),
		HumidityPct:      roundInt(*p.Humidity),
		PressureHPa:      intPtr(p.PressureMB),
		WindSpeedKph:     round2(*p.WindSpeedKPH),
		WindDirectionDeg: degPtr(p.WindDirDEG),
		PrecipitationMM:  p.PrecipMM,
		ConditionCode:    p.WeatherCoded,
		ConditionText:    p.Weather,
		ConditionIcon:    p.Icon,
	}
	if p.FeelslikeC != nil {
		r.FeelsLikeC = round2(*p.FeelslikeC)
	}
	return r, nil
}

// weatherapi.com /v1/current.json.
type weatherAPIBody struct {
	Current *struct {
		LastUpdatedEpoch int64    `json:"last_updated_epoch"`
		TempC            *float64 `json:"temp_c"`
		TempF            *float64 `json:"temp_f"`
		FeelslikeC       *float64 `json:"feelslike_c"`
		FeelslikeF       *float64 `json:"feelslike_f"`
		Humidity         *float64 `json:"humidity"`
		PressureMB       *float64 `json:"pressure_mb"`
		WindKph          *float64 `json:"wind_kph"`
		WindMph          *float64 `json:"wind_mph"`
		WindDegree       *float64 `json:"wind_degree"`
		PrecipMM         *float64 `json:"precip_mm"`
		Condition        struct {
			Text string `json:"text"`
			Icon string `json:"icon"`
			Code int    `json:"code"`
		} `json:"condition"`
	} `json:"current"`
}

func decodeWeatherAPI(body []byte) (reading, error) {
	var b weatherAPIBody
	if err := json.Unmarshal(body, &b); err != nil {
		return reading{}, err
	}
	c := b.Current
	if c == nil {
		return reading{}, missing("current")
	}
	if c.Humidity == nil {
		return reading{}, missing("current.humidity")
	}

	r := reading{
		ObservedAt:       unixTime(c.LastUpdatedEpoch),
		HumidityPct:      roundInt(*c.Humidity),
		PressureHPa:      intPtr(c.PressureMB),
		WindDirectionDeg: degPtr(c.WindDegree),
		PrecipitationMM:  c.PrecipMM,
		ConditionText:    c.Condition.Text,
		ConditionIcon:    c.Condition.Icon,
	}
	if c.Condition.Code != 0 {
		r.ConditionCode = strconv.Itoa(c.Condition.Code)
	}

	switch {
	case c.TempC != nil:
		r.TemperatureC = round2(*c.TempC)
	case c.TempF != nil:
		r.TemperatureC = FahrenheitToCelsius(*c.TempF)
	default:
		return reading{}, missing("current.temp_c")
	}
	switch {
	case c.FeelslikeC != nil:
		r.FeelsLikeC = round2(*c.FeelslikeC)
	case c.FeelslikeF != nil:
		r.FeelsLikeC = FahrenheitToCelsius(*c.FeelslikeF)
	default:
		r.FeelsLikeC = r.TemperatureC
	}
	switch {
	case c.WindKph != nil:
		r.WindSpeedKph = round2(*c.WindKph)
	case c.WindMph != nil:
		r.WindSpeedKph = MphToKph(*c.WindMph)
	default:
		return reading{}, missing("current.wind_kph")
	}
	return r, nil
}
