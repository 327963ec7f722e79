package store

import (
	"context"
	"time"

	"climatewatch/internal/types"
)

// PageFunc fetches up to limit samples with after < observed_at <= to in
// ascending order. When inclusive is set the lower bound is after itself.
type PageFunc func(ctx context.Context, after time.Time, inclusive bool, limit int) ([]types.WeatherSample, error)

// PagedIterator implements SampleIterator over keyset pages.
type PagedIterator struct {
	ctx       context.Context
	fetch     PageFunc
	pageSize  int
	cursor    time.Time
	inclusive bool

	page   []types.WeatherSample
	idx    int
	done   bool
	err    error
	closed bool
}

// NewPagedIterator starts iterating at start. inclusive selects whether a
// sample observed exactly at start is returned.
func NewPagedIterator(ctx context.Context, fetch PageFunc, pageSize int, start time.Time, inclusive bool) *PagedIterator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &PagedIterator{
		ctx:       ctx,
		fetch:     fetch,
		pageSize:  pageSize,
		cursor:    start,
		inclusive: inclusive,
		idx:       -1,
	}
}

// Next advances to the next sample, fetching a new page when needed.
func (it *PagedIterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}
	it.idx++
	if it.idx < len(it.page) {
		return true
	}
	if it.done {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		return false
	}

	page, err := it.fetch(it.ctx, it.cursor, it.inclusive, it.pageSize)
	if err != nil {
		it.err = err
		return false
	}
	it.page, it.idx = page, 0
	if len(page) < it.pageSize {
		it.done = true
	}
	if len(page) == 0 {
		return false
	}
	it.cursor = page[len(page)-1].ObservedAt
	it.inclusive = false
	return true
}

// Sample returns the current sample.
func (it *PagedIterator) Sample() types.WeatherSample {
	if it.idx < 0 || it.idx >= len(it.page) {
		return types.WeatherSample{}
	}
	return it.page[it.idx]
}

// Cursor returns the observed_at of the last sample fetched, usable with
// RangeAfter to resume.
func (it *PagedIterator) Cursor() time.Time {
	return it.Sample().ObservedAt
}

// Err returns the first error encountered.
func (it *PagedIterator) Err() error { return it.err }

// Close releases the iterator.
func (it *PagedIterator) Close() error {
	it.closed = true
	it.page = nil
	return nil
}
