package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"climatewatch/internal/types"
)

var (
	testLoc = types.Location{Name: "montreal", Latitude: 45.5, Longitude: -73.6, Timezone: "UTC"}
	t0      = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

func sample(observed time.Time, temp float64) types.WeatherSample {
	return types.WeatherSample{
		Location:     testLoc,
		ObservedAt:   observed,
		TemperatureC: temp,
		FeelsLikeC:   temp,
		HumidityPct:  50,
		WindSpeedKph: 10,
		Source:       types.ProviderOpenMeteo,
		IngestedAt:   observed.Add(time.Second),
	}
}

func TestMemoryStore_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clock := &types.FixedClock{T: t0.Add(2 * time.Hour)}
	st := NewMemoryStore(0, WithClock(clock))

	s1 := sample(t0.Add(time.Hour), 1)
	s2 := s1
	s2.TemperatureC = 2
	s2.Source = types.ProviderAeris

	require.NoError(t, st.Upsert(ctx, s1))
	clock.T = clock.T.Add(time.Minute)
	require.NoError(t, st.Upsert(ctx, s2))

	assert.Equal(t, 1, st.Len(testLoc))
	got, err := st.Latest(ctx, testLoc)
	require.NoError(t, err)
	want := s2
	want.IngestedAt = clock.T
	assert.Equal(t, want, got)
}

func TestMemoryStore_LaterWriteWinsRegardlessOfCallerIngestedAt(t *testing.T) {
	tests := []struct {
		name     string
		ingested time.Time
	}{
		{"zero", time.Time{}},
		{"older than the stored row", t0.Add(-time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			clock := &types.FixedClock{T: t0.Add(time.Minute)}
			st := NewMemoryStore(0, WithClock(clock))

			s1 := sample(t0, 1)
			s1.Source = "a"
			require.NoError(t, st.Upsert(ctx, s1))

			clock.T = t0.Add(2 * time.Minute)
			s2 := sample(t0, 2)
			s2.Source = "b"
			s2.IngestedAt = tt.ingested
			require.NoError(t, st.Upsert(ctx, s2))

			got, err := st.Latest(ctx, testLoc)
			require.NoError(t, err)
			assert.Equal(t, 2.0, got.TemperatureC)
			assert.Equal(t, types.ProviderID("b"), got.Source)
			assert.Equal(t, clock.T, got.IngestedAt)
		})
	}
}

func TestMemoryStore_RangeOrdering(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(0)
	t1, t2, t3 := t0.Add(time.Hour), t0.Add(2*time.Hour), t0.Add(3*time.Hour)

	for _, ts := range []time.Time{t1, t3, t2} {
		require.NoError(t, st.Upsert(ctx, sample(ts, 1)))
	}

	it, err := st.Range(ctx, testLoc, t0, t3)
	require.NoError(t, err)
	got, err := Collect(it)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, t1, got[0].ObservedAt)
	assert.Equal(t, t2, got[1].ObservedAt)
	assert.Equal(t, t3, got[2].ObservedAt)
}

func TestMemoryStore_RangePagesAndResumes(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(2)
	for i := 0; i < 5; i++ {
		require.NoError(t, st.Upsert(ctx, sample(t0.Add(time.Duration(i)*time.Hour), float64(i))))
	}

	it, err := st.Range(ctx, testLoc, t0, t0.Add(24*time.Hour))
	require.NoError(t, err)
	require.True(t, it.Next())
	require.True(t, it.Next())
	cursor := it.Sample().ObservedAt
	require.NoError(t, it.Close())
	assert.False(t, it.Next())

	resumed, err := st.RangeAfter(ctx, testLoc, cursor, t0.Add(24*time.Hour))
	require.NoError(t, err)
	rest, err := Collect(resumed)
	require.NoError(t, err)
	require.Len(t, rest, 3)
	assert.Equal(t, t0.Add(2*time.Hour), rest[0].ObservedAt)
	assert.Equal(t, t0.Add(4*time.Hour), rest[2].ObservedAt)
}

func TestMemoryStore_RangeBoundsAreInclusive(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(0)
	for i := 0; i < 4; i++ {
		require.NoError(t, st.Upsert(ctx, sample(t0.Add(time.Duration(i)*time.Hour), 0)))
	}

	it, err := st.Range(ctx, testLoc, t0.Add(time.Hour), t0.Add(2*time.Hour))
	require.NoError(t, err)
	got, err := Collect(it)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemoryStore_RangeRejectsReversed(t *testing.T) {
	_, err := NewMemoryStore(0).Range(context.Background(), testLoc, t0, t0.Add(-time.Second))
	assert.Equal(t, types.ErrCodeStoreInvalidArg, types.CodeOf(err))
}

func TestMemoryStore_LatestNotFound(t *testing.T) {
	_, err := NewMemoryStore(0).Latest(context.Background(), testLoc)
	assert.Equal(t, types.ErrCodeStoreNotFound, types.CodeOf(err))
}

func TestMemoryStore_UpsertRejectsUnkeyedSample(t *testing.T) {
	err := NewMemoryStore(0).Upsert(context.Background(), types.WeatherSample{Location: testLoc})
	assert.Equal(t, types.ErrCodeStoreInvalidArg, types.CodeOf(err))
}

func TestMemoryStore_AggregateReportsEmptyBuckets(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(0)
	require.NoError(t, st.Upsert(ctx, sample(t0.Add(2*time.Hour), 10)))
	require.NoError(t, st.Upsert(ctx, sample(t0.Add(5*time.Hour), 20)))
	p := 3.5
	s := sample(t0.Add(48*time.Hour+time.Hour), -4)
	s.PrecipitationMM = &p
	require.NoError(t, st.Upsert(ctx, s))

	buckets, err := st.Aggregate(ctx, testLoc, t0, t0.Add(72*time.Hour-time.Second), types.GranularityDay)
	require.NoError(t, err)
	require.Len(t, buckets, 3)

	assert.False(t, buckets[0].Empty)
	assert.Equal(t, 2, buckets[0].Count)
	assert.Equal(t, 15.0, buckets[0].Temperature.Mean)
	assert.Equal(t, 10.0, buckets[0].Temperature.Min)
	assert.Equal(t, 20.0, buckets[0].Temperature.Max)
	assert.Nil(t, buckets[0].PrecipitationMM)

	assert.True(t, buckets[1].Empty)
	assert.Zero(t, buckets[1].Count)
	assert.Nil(t, buckets[1].Temperature)

	require.NotNil(t, buckets[2].PrecipitationMM)
	assert.Equal(t, 3.5, *buckets[2].PrecipitationMM)
}

func TestMemoryStore_ConcurrentReadersAndWriters(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(3)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_ = st.Upsert(ctx, sample(t0.Add(time.Duration(w*25+i)*time.Minute), 1))
				if it, err := st.Range(ctx, testLoc, t0, t0.Add(24*time.Hour)); err == nil {
					_, _ = Collect(it)
				}
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 100, st.Len(testLoc))
}
