package store

import (
	"fmt"
	"time"

	"climatewatch/internal/types"
)

// maxBuckets bounds a single Aggregate call.
const maxBuckets = 100_000

// Zone returns the location's zone, UTC when unset or unknown.
func Zone(loc types.Location) *time.Location {
	if loc.Timezone == "" {
		return time.UTC
	}
	tz, err := time.LoadLocation(loc.Timezone)
	if err != nil {
		return time.UTC
	}
	return tz
}

// Truncate returns the start of the bucket containing t, in tz. Hour
// buckets keep t's UTC offset, so the repeated hour of a DST fall-back is a
// bucket of its own.
func Truncate(t time.Time, g types.Granularity, tz *time.Location) time.Time {
	t = t.In(tz)
	switch g {
	case types.GranularityHour:
		within := time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second + time.Duration(t.Nanosecond())
		return t.Add(-within)
	case types.GranularityDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, tz)
	case types.GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, tz)
	default:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, tz)
	}
}

// nextStart returns the start of the bucket after the one starting at start.
func nextStart(start time.Time, g types.Granularity) time.Time {
	switch g {
	case types.GranularityHour:
		return start.Add(time.Hour)
	case types.GranularityDay:
		return start.AddDate(0, 0, 1)
	case types.GranularityMonth:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(1, 0, 0)
	}
}

// EmptyBuckets lays out every bucket overlapping [from, to], all marked
// empty.
func EmptyBuckets(from, to time.Time, g types.Granularity, tz *time.Location) ([]types.Bucket, error) {
	if !g.Valid() {
		return nil, types.NewAppError(types.ErrCodeStoreInvalidArg, fmt.Sprintf("unsupported granularity %q", g), nil)
	}
	if err := ValidateRange(from, to); err != nil {
		return nil, err
	}

	var buckets []types.Bucket
	for start := Truncate(from, g, tz); !start.After(to); {
		end := nextStart(start, g)
		buckets = append(buckets, types.Bucket{Start: start, End: end, Empty: true})
		if len(buckets) > maxBuckets {
			return nil, types.NewAppError(types.ErrCodeStoreInvalidArg,
				fmt.Sprintf("aggregate would produce more than %d buckets", maxBuckets), nil)
		}
		start = end
	}
	return buckets, nil
}

// Aggregator folds samples into a fixed bucket layout.
type Aggregator struct {
	g       types.Granularity
	tz      *time.Location
	buckets []types.Bucket
	index   map[int64]int
}

// NewAggregator prepares the buckets for [from, to].
func NewAggregator(from, to time.Time, g types.Granularity, tz *time.Location) (*Aggregator, error) {
	buckets, err := EmptyBuckets(from, to, g, tz)
	if err != nil {
		return nil, err
	}
	index := make(map[int64]int, len(buckets))
	for i, b := range buckets {
		index[b.Start.Unix()] = i
	}
	return &Aggregator{g: g, tz: tz, buckets: buckets, index: index}, nil
}

// Add folds s into its bucket. Samples outside the layout are ignored.
func (a *Aggregator) Add(s types.WeatherSample) {
	i, ok := a.index[Truncate(s.ObservedAt, a.g, a.tz).Unix()]
	if !ok {
		return
	}
	b := &a.buckets[i]
	if b.Empty {
		b.Empty = false
		b.Temperature = &types.FieldStats{}
		b.FeelsLike = &types.FieldStats{}
		b.Humidity = &types.FieldStats{}
		b.WindSpeed = &types.FieldStats{}
	}
	b.Count++
	b.Temperature.Observe(s.TemperatureC)
	b.FeelsLike.Observe(s.FeelsLikeC)
	b.Humidity.Observe(float64(s.HumidityPct))
	b.WindSpeed.Observe(s.WindSpeedKph)
	if s.PressureHPa != nil {
		if b.Pressure == nil {
			b.Pressure = &types.FieldStats{}
		}
		b.Pressure.Observe(float64(*s.PressureHPa))
	}
	if s.PrecipitationMM != nil {
		total := *s.PrecipitationMM
		if b.PrecipitationMM != nil {
			total += *b.PrecipitationMM
		}
		b.PrecipitationMM = &total
	}
}

// Set replaces the bucket starting at start with precomputed stats. It is
// used by backends that aggregate in SQL.
func (a *Aggregator) Set(start time.Time, b types.Bucket) {
	i, ok := a.index[Truncate(start, a.g, a.tz).Unix()]
	if !ok {
		return
	}
	b.Start, b.End = a.buckets[i].Start, a.buckets[i].End
	b.Empty = b.Count == 0
	a.buckets[i] = b
}

// Buckets returns the folded buckets in ascending order.
func (a *Aggregator) Buckets() []types.Bucket {
	return a.buckets
}

// AggregateIterator folds every sample of it into the buckets for [from, to].
func AggregateIterator(it SampleIterator, from, to time.Time, g types.Granularity, tz *time.Location) ([]types.Bucket, error) {
	defer it.Close()
	agg, err := NewAggregator(from, to, g, tz)
	if err != nil {
		return nil, err
	}
	for it.Next() {
		agg.Add(it.Sample())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return agg.Buckets(), nil
}
