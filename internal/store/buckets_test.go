package store

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"climatewatch/internal/types"
)

func TestEmptyBuckets_Layouts(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		to   time.Time
		g    types.Granularity
		want int
	}{
		{"hours", t0, t0.Add(5 * time.Hour), types.GranularityHour, 6},
		{"days in january", t0, time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC), types.GranularityDay, 31},
		{"months of leap year", t0, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), types.GranularityMonth, 12},
		{"years", t0, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), types.GranularityYear, 3},
		{"single instant", t0, t0, types.GranularityDay, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buckets, err := EmptyBuckets(tt.from, tt.to, tt.g, time.UTC)
			require.NoError(t, err)
			assert.Len(t, buckets, tt.want)
			for i, b := range buckets {
				assert.True(t, b.Empty)
				if i > 0 {
					assert.Equal(t, buckets[i-1].End, b.Start)
				}
			}
		})
	}
}

func TestEmptyBuckets_RejectsBadInput(t *testing.T) {
	_, err := EmptyBuckets(t0, t0.Add(time.Hour), "week", time.UTC)
	assert.Equal(t, types.ErrCodeStoreInvalidArg, types.CodeOf(err))

	_, err = EmptyBuckets(t0, t0.Add(-time.Hour), types.GranularityDay, time.UTC)
	assert.Equal(t, types.ErrCodeStoreInvalidArg, types.CodeOf(err))

	_, err = EmptyBuckets(t0, t0.AddDate(20, 0, 0), types.GranularityHour, time.UTC)
	assert.Equal(t, types.ErrCodeStoreInvalidArg, types.CodeOf(err))
}

func TestTruncate_UsesZone(t *testing.T) {
	tz := time.FixedZone("EST", -5*3600)
	// 03:00 UTC on Jan 2 is still Jan 1 in EST.
	got := Truncate(time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC), types.GranularityDay, tz)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, tz), got)
}

func TestAggregator_HourBucketsAcrossDSTFallBack(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2024-11-03: 01:00-02:00 local happens twice, first EDT (05:00Z) then EST (06:00Z).
	from := time.Date(2024, 11, 3, 4, 0, 0, 0, time.UTC)
	to := time.Date(2024, 11, 3, 6, 59, 0, 0, time.UTC)
	agg, err := NewAggregator(from, to, types.GranularityHour, ny)
	require.NoError(t, err)

	agg.Add(sample(time.Date(2024, 11, 3, 5, 30, 0, 0, time.UTC), 4))
	agg.Add(sample(time.Date(2024, 11, 3, 6, 30, 0, 0, time.UTC), 8))

	buckets := agg.Buckets()
	require.Len(t, buckets, 3)
	assert.True(t, buckets[0].Empty)
	for i, want := range []struct {
		start time.Time
		temp  float64
	}{
		{time.Date(2024, 11, 3, 5, 0, 0, 0, time.UTC), 4},
		{time.Date(2024, 11, 3, 6, 0, 0, 0, time.UTC), 8},
	} {
		b := buckets[i+1]
		assert.True(t, b.Start.Equal(want.start), "bucket %d starts at %s", i+1, b.Start.UTC())
		require.False(t, b.Empty, "bucket %d", i+1)
		assert.Equal(t, 1, b.Count)
		assert.Equal(t, want.temp, b.Temperature.Mean)
	}
	assert.Equal(t, 1, buckets[1].Start.In(ny).Hour())
	assert.Equal(t, 1, buckets[2].Start.In(ny).Hour())
}

func TestTruncate_HalfHourZone(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+1800)
	got := Truncate(time.Date(2024, 1, 1, 4, 10, 0, 0, time.UTC), types.GranularityHour, kolkata)
	assert.True(t, got.Equal(time.Date(2024, 1, 1, 9, 0, 0, 0, kolkata)), "got %s", got)
}

func TestAggregator_SetMarksEmptiness(t *testing.T) {
	agg, err := NewAggregator(t0, t0.Add(47*time.Hour), types.GranularityDay, time.UTC)
	require.NoError(t, err)

	agg.Set(t0.Add(36*time.Hour), types.Bucket{Count: 4, Temperature: &types.FieldStats{Mean: 1, Count: 4}})
	agg.Set(t0.AddDate(0, 0, 10), types.Bucket{Count: 1})

	buckets := agg.Buckets()
	require.Len(t, buckets, 2)
	assert.True(t, buckets[0].Empty)
	assert.False(t, buckets[1].Empty)
	assert.Equal(t, t0.Add(24*time.Hour), buckets[1].Start)
	assert.Equal(t, 4, buckets[1].Count)
}
