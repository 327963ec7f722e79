package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"climatewatch/internal/types"
)

// MemoryStore is a concurrency-safe in-memory Store, used in tests and for
// STORE_BACKEND=memory.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string][]types.WeatherSample // sorted by ObservedAt
	pageSize int
	clock    types.Clock
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the clock that stamps IngestedAt.
func WithClock(c types.Clock) MemoryOption {
	return func(m *MemoryStore) { m.clock = c }
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. pageSize <= 0 uses DefaultPageSize.
func NewMemoryStore(pageSize int, opts ...MemoryOption) *MemoryStore {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	m := &MemoryStore{data: make(map[string][]types.WeatherSample), pageSize: pageSize, clock: types.RealClock{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Upsert implements Store.
func (m *MemoryStore) Upsert(ctx context.Context, s types.WeatherSample) error {
	if err := ValidateSample(s); err != nil {
		return err
	}
	s.ObservedAt = s.ObservedAt.UTC()
	key := s.Location.Key()

	m.mu.Lock()
	defer m.mu.Unlock()

	s.IngestedAt = m.clock.Now().UTC()
	rows := m.data[key]
	i := sort.Search(len(rows), func(i int) bool { return !rows[i].ObservedAt.Before(s.ObservedAt) })
	if i < len(rows) && rows[i].ObservedAt.Equal(s.ObservedAt) {
		rows[i] = s
		return nil
	}
	rows = append(rows, types.WeatherSample{})
	copy(rows[i+1:], rows[i:])
	rows[i] = s
	m.data[key] = rows
	return nil
}

// Latest implements Store.
func (m *MemoryStore) Latest(ctx context.Context, loc types.Location) (types.WeatherSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.data[loc.Key()]
	if len(rows) == 0 {
		return types.WeatherSample{}, NotFound(loc)
	}
	return rows[len(rows)-1], nil
}

// Range implements Store.
func (m *MemoryStore) Range(ctx context.Context, loc types.Location, from, to time.Time) (SampleIterator, error) {
	if err := ValidateRange(from, to); err != nil {
		return nil, err
	}
	return NewPagedIterator(ctx, m.page(loc, to), m.pageSize, from, true), nil
}

// RangeAfter implements Store.
func (m *MemoryStore) RangeAfter(ctx context.Context, loc types.Location, after, to time.Time) (SampleIterator, error) {
	if err := ValidateRange(after, to); err != nil {
		return nil, err
	}
	return NewPagedIterator(ctx, m.page(loc, to), m.pageSize, after, false), nil
}

func (m *MemoryStore) page(loc types.Location, to time.Time) PageFunc {
	key := loc.Key()
	return func(ctx context.Context, after time.Time, inclusive bool, limit int) ([]types.WeatherSample, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		rows := m.data[key]
		i := sort.Search(len(rows), func(i int) bool {
			if inclusive {
				return !rows[i].ObservedAt.Before(after)
			}
			return rows[i].ObservedAt.After(after)
		})
		out := make([]types.WeatherSample, 0, min(limit, len(rows)-i))
		for ; i < len(rows) && len(out) < limit; i++ {
			if rows[i].ObservedAt.After(to) {
				break
			}
			out = append(out, rows[i])
		}
		return out, nil
	}
}

// Aggregate implements Store.
func (m *MemoryStore) Aggregate(ctx context.Context, loc types.Location, from, to time.Time, g types.Granularity) ([]types.Bucket, error) {
	it, err := m.Range(ctx, loc, from, to)
	if err != nil {
		return nil, err
	}
	return AggregateIterator(it, from, to, g, Zone(loc))
}

// Len returns the number of stored samples for loc.
func (m *MemoryStore) Len(loc types.Location) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[loc.Key()])
}
