// Package archive exports a month of raw samples as zstd-compressed CSV to
// object storage.
//
// Objects are keyed <prefix>/<location>/<YYYY-MM>.csv.zst, where the month
// is taken in the location's zone. Re-running an export overwrites the
// object with the current contents of the store.
package archive

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/klauspost/compress/zstd"

	"climatewatch/internal/store"
	"climatewatch/internal/types"
)

// ContentType is set on every uploaded object.
const ContentType = "application/zstd"

// ObjectStore uploads one object.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// RangeReader is the read side of store.Store used by the Exporter.
type RangeReader interface {
	Range(ctx context.Context, loc types.Location, from, to time.Time) (store.SampleIterator, error)
}

// ExporterConfig configures an Exporter.
type ExporterConfig struct {
	Store   RangeReader
	Objects ObjectStore
	Prefix  string
	Logger  *slog.Logger
}

// Exporter writes monthly archives.
type Exporter struct {
	store   RangeReader
	objects ObjectStore
	prefix  string
	logger  *slog.Logger
}

// ExportResult describes one finished export.
type ExportResult struct {
	Key   string
	Rows  int
	Bytes int
}

// NewExporter creates an Exporter.
func NewExporter(cfg ExporterConfig) *Exporter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Exporter{
		store:   cfg.Store,
		objects: cfg.Objects,
		prefix:  cfg.Prefix,
		logger:  cfg.Logger,
	}
}

// Key returns the object key for loc and month.
func (e *Exporter) Key(loc types.Location, month types.Period) string {
	return path.Join(e.prefix, loc.Key(), month.Label()+".csv.zst")
}

// ExportMonth archives every sample of the month containing month, taken in
// the location's zone. A month without samples uploads nothing.
func (e *Exporter) ExportMonth(ctx context.Context, loc types.Location, month time.Time) (ExportResult, error) {
	tz := store.Zone(loc)
	p := types.MonthPeriod(month.In(tz))
	key := e.Key(loc, p)

	it, err := e.store.Range(ctx, loc, p.Start, p.End().Add(-time.Nanosecond))
	if err != nil {
		return ExportResult{}, err
	}
	body, rows, err := Encode(it)
	if err != nil {
		return ExportResult{}, err
	}
	if rows == 0 {
		e.logger.InfoContext(ctx, "nothing to archive", "key", key)
		return ExportResult{Key: key}, nil
	}

	if err := e.objects.Put(ctx, key, body, ContentType); err != nil {
		return ExportResult{}, types.NewAppError(types.ErrCodeArchiveFailed, "failed to upload "+key, err)
	}
	e.logger.InfoContext(ctx, "archive uploaded", "key", key, "rows", rows, "bytes", len(body))
	return ExportResult{Key: key, Rows: rows, Bytes: len(body)}, nil
}

// Encode drains it into a compressed CSV document with a header row. It
// closes it.
func Encode(it store.SampleIterator) ([]byte, int, error) {
	defer it.Close()

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeArchiveFailed, "failed to create zstd encoder", err)
	}
	cw := csv.NewWriter(zw)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(Row{}); err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeArchiveFailed, "failed to write csv header", err)
	}

	rows := 0
	for it.Next() {
		if err := enc.Encode(RowFromSample(it.Sample())); err != nil {
			return nil, 0, types.NewAppError(types.ErrCodeArchiveFailed, "failed to encode row", err)
		}
		rows++
	}
	if err := it.Err(); err != nil {
		return nil, 0, err
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeArchiveFailed, "failed to flush csv", err)
	}
	if err := zw.Close(); err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeArchiveFailed, "failed to finish zstd stream", err)
	}
	return buf.Bytes(), rows, nil
}

// Decode reads an archive produced by Encode.
func Decode(r io.Reader) ([]Row, error) {
	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("opening zstd stream: %w", err)
	}
	defer zr.Close()

	dec, err := csvutil.NewDecoder(csv.NewReader(zr))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	var rows []Row
	if err := dec.Decode(&rows); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding rows: %w", err)
	}
	return rows, nil
}
