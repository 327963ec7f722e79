package normalize

import "strconv"

type wmoCondition struct {
	text string
	icon string
}

// wmoCodes maps WMO 4677 present-weather codes as used by Open-Meteo.
var wmoCodes = map[int]wmoCondition{
	0:  {"Clear sky", "clear"},
	1:  {"Mainly clear", "clear"},
	2:  {"Partly cloudy", "partly-cloudy"},
	3:  {"Overcast", "cloudy"},
	45: {"Fog", "fog"},
	48: {"Depositing rime fog", "fog"},
	51: {"Light drizzle", "drizzle"},
	53: {"Moderate drizzle", "drizzle"},
	55: {"Dense drizzle", "drizzle"},
	56: {"Light freezing drizzle", "sleet"},
	57: {"Dense freezing drizzle", "sleet"},
	61: {"Slight rain", "rain"},
	63: {"Moderate rain", "rain"},
	65: {"Heavy rain", "rain"},
	66: {"Light freezing rain", "sleet"},
	67: {"Heavy freezing rain", "sleet"},
	71: {"Slight snow fall", "snow"},
	73: {"Moderate snow fall", "snow"},
	75: {"Heavy snow fall", "snow"},
	77: {"Snow grains", "snow"},
	80: {"Slight rain showers", "rain"},
	81: {"Moderate rain showers", "rain"},
	82: {"Violent rain showers", "rain"},
	85: {"Slight snow showers", "snow"},
	86: {"Heavy snow showers", "snow"},
	95: {"Thunderstorm", "thunderstorm"},
	96: {"Thunderstorm with slight hail", "thunderstorm"},
	99: {"Thunderstorm with heavy hail", "thunderstorm"},
}

// WMOCondition returns the code, text and icon for a WMO weather code.
// Unknown codes keep their numeric code with an "Unknown" text.
func WMOCondition(code int) (string, string, string) {
	c, ok := wmoCodes[code]
	if !ok {
		return strconv.Itoa(code), "Unknown", "unknown"
	}
	return strconv.Itoa(code), c.text, c.icon
}
