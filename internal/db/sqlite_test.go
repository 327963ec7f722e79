package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"climatewatch/internal/store"
	"climatewatch/internal/types"
)

func openTestSQLite(t *testing.T, pageSize int) *SQLiteStore {
	t.Helper()
	return openTestSQLiteWithClock(t, pageSize, &types.FixedClock{T: repoNow})
}

func openTestSQLiteWithClock(t *testing.T, pageSize int, clock types.Clock) *SQLiteStore {
	t.Helper()
	st, err := OpenSQLite(context.Background(), SQLiteConfig{Path: ":memory:", PageSize: pageSize, Clock: clock, Logger: discardLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteStore_UpsertAndLatest(t *testing.T) {
	st := openTestSQLite(t, 0)
	ctx := context.Background()

	_, err := st.Latest(ctx, testLoc)
	assert.Equal(t, types.ErrCodeStoreNotFound, types.CodeOf(err))

	pressure := 1009
	dir := 270.0
	s := testSample(t0.Add(time.Hour), 3.5)
	s.PressureHPa = &pressure
	s.WindDirectionDeg = &dir

	require.NoError(t, st.Upsert(ctx, testSample(t0, 1)))
	require.NoError(t, st.Upsert(ctx, s))

	got, err := st.Latest(ctx, testLoc)
	require.NoError(t, err)
	assert.True(t, got.ObservedAt.Equal(s.ObservedAt))
	assert.True(t, got.IngestedAt.Equal(repoNow), "ingested_at is the store clock, got %s", got.IngestedAt)
	assert.Equal(t, 3.5, got.TemperatureC)
	require.NotNil(t, got.PressureHPa)
	assert.Equal(t, 1009, *got.PressureHPa)
	require.NotNil(t, got.WindDirectionDeg)
	assert.Equal(t, 270.0, *got.WindDirectionDeg)
	assert.Nil(t, got.PrecipitationMM)
	assert.Equal(t, types.ProviderOpenWeatherMap, got.Source)
	assert.Equal(t, testLoc, got.Location)
}

func TestSQLiteStore_UpsertIsIdempotent(t *testing.T) {
	st := openTestSQLite(t, 0)
	ctx := context.Background()

	s := testSample(t0, 1)
	require.NoError(t, st.Upsert(ctx, s))
	require.NoError(t, st.Upsert(ctx, s))

	it, err := st.Range(ctx, testLoc, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	got, err := store.Collect(it)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLiteStore_LaterWriteReplacesRegardlessOfIngestedAt(t *testing.T) {
	clock := &types.FixedClock{T: t0.Add(10 * time.Second)}
	st := openTestSQLiteWithClock(t, 0, clock)
	ctx := context.Background()

	first := testSample(t0, 5)
	first.IngestedAt = t0.Add(time.Hour)
	require.NoError(t, st.Upsert(ctx, first))

	clock.T = t0.Add(20*time.Second + 250*time.Millisecond)
	second := testSample(t0, 9)
	second.Source = types.ProviderAeris
	second.IngestedAt = time.Time{}
	require.NoError(t, st.Upsert(ctx, second))

	it, err := st.Range(ctx, testLoc, t0, t0)
	require.NoError(t, err)
	got, err := store.Collect(it)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 9.0, got[0].TemperatureC)
	assert.Equal(t, types.ProviderAeris, got[0].Source)
	assert.True(t, got[0].IngestedAt.Equal(clock.T), "got ingested_at %s", got[0].IngestedAt)
}

func TestSQLiteStore_RangeAcrossPagesAndResume(t *testing.T) {
	st := openTestSQLite(t, 2)
	ctx := context.Background()

	// Inserted out of order; Range must return ascending observed_at.
	for _, h := range []int{3, 0, 4, 1, 2} {
		require.NoError(t, st.Upsert(ctx, testSample(t0.Add(time.Duration(h)*time.Hour), float64(h))))
	}

	to := t0.Add(4 * time.Hour)
	it, err := st.Range(ctx, testLoc, t0, to)
	require.NoError(t, err)

	var temps []float64
	var cursor time.Time
	for it.Next() {
		temps = append(temps, it.Sample().TemperatureC)
		cursor = it.Sample().ObservedAt
		if len(temps) == 3 {
			break
		}
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	assert.Equal(t, []float64{0, 1, 2}, temps)

	resumed, err := st.RangeAfter(ctx, testLoc, cursor, to)
	require.NoError(t, err)
	rest, err := store.Collect(resumed)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, 3.0, rest[0].TemperatureC)
	assert.Equal(t, 4.0, rest[1].TemperatureC)
}

func TestSQLiteStore_RangeIsScopedToLocation(t *testing.T) {
	st := openTestSQLite(t, 0)
	ctx := context.Background()

	other := testSample(t0, 99)
	other.Location = types.Location{Name: "cabin", Latitude: 60, Longitude: 10}
	require.NoError(t, st.Upsert(ctx, other))
	require.NoError(t, st.Upsert(ctx, testSample(t0, 1)))

	it, err := st.Range(ctx, testLoc, t0, t0)
	require.NoError(t, err)
	got, err := store.Collect(it)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].TemperatureC)
}

func TestSQLiteStore_AggregateReportsEmptyBuckets(t *testing.T) {
	st := openTestSQLite(t, 0)
	ctx := context.Background()

	precip := 1.5
	a := testSample(t0.Add(30*time.Minute), 2)
	a.PrecipitationMM = &precip
	b := testSample(t0.Add(2*time.Hour+10*time.Minute), 6)
	b.PrecipitationMM = &precip
	require.NoError(t, st.Upsert(ctx, a))
	require.NoError(t, st.Upsert(ctx, b))

	buckets, err := st.Aggregate(ctx, testLoc, t0, t0.Add(3*time.Hour-time.Second), types.GranularityHour)
	require.NoError(t, err)
	require.Len(t, buckets, 3)

	assert.False(t, buckets[0].Empty)
	assert.Equal(t, 1, buckets[0].Count)
	assert.True(t, buckets[1].Empty)
	assert.Nil(t, buckets[1].Temperature)
	assert.False(t, buckets[2].Empty)
	require.NotNil(t, buckets[2].PrecipitationMM)
	assert.Equal(t, 1.5, *buckets[2].PrecipitationMM)
}

func TestSQLiteStore_MigrationsAreIdempotent(t *testing.T) {
	st := openTestSQLite(t, 0)

	m, err := NewSQLiteMigrator(st.db, discardLogger())
	require.NoError(t, err)
	applied, err := m.Up(context.Background())
	require.NoError(t, err)
	assert.Zero(t, applied)
}
