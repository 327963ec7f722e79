// Package store defines the durable sample store and its in-process
// implementations. SQL backends live in internal/db.
//
// Samples are keyed by (location, observed_at). Upsert stamps IngestedAt with
// the backend's clock and replaces any sample with the same key, so the last
// write wins and repeated writes never duplicate rows.
package store

import (
	"context"
	"fmt"
	"time"

	"climatewatch/internal/types"
)

// DefaultPageSize is the Range page size used when none is configured.
const DefaultPageSize = 500

// Store is implemented by every sample backend.
type Store interface {
	// Upsert writes s, replacing any sample with the same key. The caller's
	// IngestedAt is ignored; the backend stamps the write time.
	Upsert(ctx context.Context, s types.WeatherSample) error
	// Latest returns the most recent sample, or store_not_found.
	Latest(ctx context.Context, loc types.Location) (types.WeatherSample, error)
	// Range iterates samples with from <= observed_at <= to in ascending order.
	Range(ctx context.Context, loc types.Location, from, to time.Time) (SampleIterator, error)
	// RangeAfter resumes a Range strictly after the given observed_at.
	RangeAfter(ctx context.Context, loc types.Location, after, to time.Time) (SampleIterator, error)
	// Aggregate groups [from, to] into buckets of the given width. Buckets
	// without samples are reported with Empty set.
	Aggregate(ctx context.Context, loc types.Location, from, to time.Time, g types.Granularity) ([]types.Bucket, error)
}

// SampleIterator walks a Range result page by page.
//
//	it, err := st.Range(ctx, loc, from, to)
//	if err != nil { ... }
//	defer it.Close()
//	for it.Next() {
//		s := it.Sample()
//	}
//	if err := it.Err(); err != nil { ... }
type SampleIterator interface {
	Next() bool
	Sample() types.WeatherSample
	Err() error
	Close() error
}

// NotFound returns the store_not_found error for loc.
func NotFound(loc types.Location) error {
	return types.NewAppError(types.ErrCodeStoreNotFound, fmt.Sprintf("no samples stored for %s", loc.Key()), nil)
}

// Unavailable wraps a backend failure as store_unavailable.
func Unavailable(op string, err error) error {
	return types.NewAppError(types.ErrCodeStoreUnavailable, op+" failed", err)
}

// ValidateSample rejects samples that cannot be keyed.
func ValidateSample(s types.WeatherSample) error {
	if s.Location.Key() == "" {
		return types.NewAppError(types.ErrCodeStoreInvalidArg, "sample has no location", nil)
	}
	if s.ObservedAt.IsZero() {
		return types.NewAppError(types.ErrCodeStoreInvalidArg, "sample has no observed_at", nil)
	}
	return nil
}

// ValidateRange rejects reversed ranges.
func ValidateRange(from, to time.Time) error {
	if to.Before(from) {
		return types.NewAppError(types.ErrCodeStoreInvalidArg,
			fmt.Sprintf("range end %s is before start %s", to.Format(time.RFC3339), from.Format(time.RFC3339)), nil)
	}
	return nil
}

// Collect drains it into a slice and closes it.
func Collect(it SampleIterator) ([]types.WeatherSample, error) {
	defer it.Close()
	var out []types.WeatherSample
	for it.Next() {
		out = append(out, it.Sample())
	}
	return out, it.Err()
}
