package normalize

import "math"

// KelvinToCelsius converts an absolute temperature.
func KelvinToCelsius(k float64) float64 {
	return round2(k - 273.15)
}

// FahrenheitToCelsius converts a Fahrenheit temperature.
func FahrenheitToCelsius(f float64) float64 {
	return round2((f - 32) * 5 / 9)
}

// MetersPerSecondToKph converts a wind speed.
func MetersPerSecondToKph(ms float64) float64 {
	return round2(ms * 3.6)
}

// MphToKph converts a wind speed.
func MphToKph(mph float64) float64 {
	return round2(mph * 1.609344)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func roundInt(v float64) int {
	return int(math.Round(v))
}

// normalizeDegrees folds a reported 360° onto 0°. Anything else passes
// through untouched and is left to validation.
func normalizeDegrees(d float64) float64 {
	if d == 360 {
		return 0
	}
	return d
}
