package types

import "time"

// Alert flags one observation, or one period extreme, crossing a threshold.
type Alert struct {
	Kind       AlertKind  `json:"kind"`
	Location   string     `json:"location"`
	ObservedAt time.Time  `json:"observed_at"`
	Value      float64    `json:"value"`
	Threshold  float64    `json:"threshold"`
	Source     ProviderID `json:"source,omitempty"`
}
