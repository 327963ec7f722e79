package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	MetricCollectionTick  = "CollectionTick"
	MetricTickDuration    = "CollectionTickDuration"
	MetricProviderAttempt = "ProviderAttempt"
	MetricProviderLatency = "ProviderLatency"
	MetricSampleRejected  = "SampleRejected"
	MetricAlertRaised     = "AlertRaised"

	DimLocation = "Location"
	DimProvider = "Provider"
	DimOutcome  = "Outcome"
	DimResult   = "Result"
	DimAlert    = "Alert"

	MetricNamespace = "ClimateWatch"
)
