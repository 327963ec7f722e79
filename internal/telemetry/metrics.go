// Package telemetry emits pipeline metrics to CloudWatch.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"climatewatch/internal/types"
)

// Tick results reported on CollectionTick.
const (
	ResultSuccess   = "success"
	ResultExhausted = "exhausted"
	ResultStoreFail = "store_failed"
)

// Recorder is the metrics surface used by the collector.
type Recorder interface {
	RecordTick(ctx context.Context, location, result string, d time.Duration)
	RecordAttempt(ctx context.Context, a types.CollectionAttempt)
	RecordRejected(ctx context.Context, provider types.ProviderID)
	RecordAlert(ctx context.Context, kind types.AlertKind)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ Recorder = (*CloudWatchMetrics)(nil)

// CloudWatchMetrics publishes to the ClimateWatch namespace. Publishing
// failures are logged and never surface to the caller.
//
// Metrics emitted:
//   - CollectionTick: Dims {Location, Result}
//   - CollectionTickDuration: Dims {Location}
//   - ProviderAttempt: Dims {Provider, Outcome}
//   - ProviderLatency: Dims {Provider}
//   - SampleRejected: Dims {Provider}
//   - AlertRaised: Dims {Alert}
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics creates a CloudWatch-backed Recorder.
func NewCloudWatchMetrics(client CloudWatchClient, logger *slog.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: types.MetricNamespace,
		logger:    logger,
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

func (m *CloudWatchMetrics) put(ctx context.Context, data ...cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.WarnContext(ctx, "failed to publish metrics",
			"error", err.Error(),
			"metric", aws.ToString(data[0].MetricName),
		)
	}
}

// RecordTick emits the tick result count and its duration in milliseconds.
func (m *CloudWatchMetrics) RecordTick(ctx context.Context, location, result string, d time.Duration) {
	m.put(ctx,
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricCollectionTick),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{dim(types.DimLocation, location), dim(types.DimResult, result)},
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricTickDuration),
			Value:      aws.Float64(float64(d.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: []cwtypes.Dimension{dim(types.DimLocation, location)},
		},
	)
}

// RecordAttempt emits one ProviderAttempt and its latency.
func (m *CloudWatchMetrics) RecordAttempt(ctx context.Context, a types.CollectionAttempt) {
	m.put(ctx,
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricProviderAttempt),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				dim(types.DimProvider, string(a.Provider)),
				dim(types.DimOutcome, string(a.Outcome)),
			},
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricProviderLatency),
			Value:      aws.Float64(float64(a.Latency.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: []cwtypes.Dimension{dim(types.DimProvider, string(a.Provider))},
		},
	)
}

// RecordRejected counts a sample that failed validation.
func (m *CloudWatchMetrics) RecordRejected(ctx context.Context, provider types.ProviderID) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricSampleRejected),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{dim(types.DimProvider, string(provider))},
	})
}

// RecordAlert counts a raised alert.
func (m *CloudWatchMetrics) RecordAlert(ctx context.Context, kind types.AlertKind) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAlertRaised),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{dim(types.DimAlert, string(kind))},
	})
}

// NoopMetrics discards everything. It is used when METRICS_ENABLED is false.
type NoopMetrics struct{}

var _ Recorder = NoopMetrics{}

func (NoopMetrics) RecordTick(context.Context, string, string, time.Duration) {}

func (NoopMetrics) RecordAttempt(context.Context, types.CollectionAttempt) {}

func (NoopMetrics) RecordRejected(context.Context, types.ProviderID) {}

func (NoopMetrics) RecordAlert(context.Context, types.AlertKind) {}
