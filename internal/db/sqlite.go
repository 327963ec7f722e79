package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"climatewatch/internal/store"
	"climatewatch/internal/types"
)

// SQLiteStore stores samples in an embedded SQLite database. observed_at is
// kept as unix seconds and ingested_at as unix nanoseconds so ingestion
// order survives sub-second writes.
type SQLiteStore struct {
	db       *sql.DB
	pageSize int
	clock    types.Clock
	logger   *slog.Logger
}

// SQLiteConfig configures OpenSQLite.
type SQLiteConfig struct {
	// Path is a file path or ":memory:".
	Path     string
	PageSize int
	Logger   *slog.Logger

	// Clock stamps ingested_at. Defaults to the wall clock.
	Clock types.Clock
}

var _ store.Store = (*SQLiteStore)(nil)

// OpenSQLite opens the database at cfg.Path and applies pending migrations.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = store.DefaultPageSize
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, store.Unavailable("open sqlite", err)
	}
	// One connection serializes writers and keeps a :memory: database shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, store.Unavailable("ping sqlite", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, store.Unavailable("configure sqlite", err)
	}

	migrator, err := NewSQLiteMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, pageSize: cfg.PageSize, clock: cfg.Clock, logger: cfg.Logger}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Upsert inserts sample or replaces the row with the same key, stamping
// ingested_at with the store clock.
func (s *SQLiteStore) Upsert(ctx context.Context, sample types.WeatherSample) error {
	if err := store.ValidateSample(sample); err != nil {
		return err
	}
	sample.IngestedAt = s.clock.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO samples (`+sampleColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (location, observed_at) DO UPDATE SET
		   latitude = excluded.latitude,
		   longitude = excluded.longitude,
		   timezone = excluded.timezone,
		   temperature_c = excluded.temperature_c,
		   feels_like_c = excluded.feels_like_c,
		   humidity_pct = excluded.humidity_pct,
		   pressure_hpa = excluded.pressure_hpa,
		   wind_speed_kph = excluded.wind_speed_kph,
		   wind_direction_deg = excluded.wind_direction_deg,
		   precipitation_mm = excluded.precipitation_mm,
		   condition_code = excluded.condition_code,
		   condition_text = excluded.condition_text,
		   condition_icon = excluded.condition_icon,
		   source = excluded.source,
		   ingested_at = excluded.ingested_at`,
		sample.Location.Key(),
		sample.Location.Latitude,
		sample.Location.Longitude,
		sample.Location.Timezone,
		sample.ObservedAt.Unix(),
		sample.TemperatureC,
		sample.FeelsLikeC,
		sample.HumidityPct,
		nullInt(sample.PressureHPa),
		sample.WindSpeedKph,
		nullFloat(sample.WindDirectionDeg),
		nullFloat(sample.PrecipitationMM),
		sample.ConditionCode,
		sample.ConditionText,
		sample.ConditionIcon,
		string(sample.Source),
		sample.IngestedAt.UnixNano(),
	)
	if err != nil {
		return store.Unavailable("upsert sample", err)
	}
	return nil
}

// Latest returns the newest sample for loc.
func (s *SQLiteStore) Latest(ctx context.Context, loc types.Location) (types.WeatherSample, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sampleColumns+`
		 FROM samples
		 WHERE location = ?
		 ORDER BY observed_at DESC
		 LIMIT 1`,
		loc.Key(),
	)
	sample, err := scanSQLiteSample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.WeatherSample{}, store.NotFound(loc)
	}
	if err != nil {
		return types.WeatherSample{}, store.Unavailable("query latest sample", err)
	}
	return sample, nil
}

// Range pages through [from, to].
func (s *SQLiteStore) Range(ctx context.Context, loc types.Location, from, to time.Time) (store.SampleIterator, error) {
	if err := store.ValidateRange(from, to); err != nil {
		return nil, err
	}
	return store.NewPagedIterator(ctx, s.pageFunc(loc, to), s.pageSize, from, true), nil
}

// RangeAfter pages through (after, to].
func (s *SQLiteStore) RangeAfter(ctx context.Context, loc types.Location, after, to time.Time) (store.SampleIterator, error) {
	if err := store.ValidateRange(after, to); err != nil {
		return nil, err
	}
	return store.NewPagedIterator(ctx, s.pageFunc(loc, to), s.pageSize, after, false), nil
}

func (s *SQLiteStore) pageFunc(loc types.Location, to time.Time) store.PageFunc {
	return func(ctx context.Context, after time.Time, inclusive bool, limit int) ([]types.WeatherSample, error) {
		op := ">"
		if inclusive {
			op = ">="
		}
		query := fmt.Sprintf(`
			SELECT %s
			FROM samples
			WHERE location = ?
			  AND observed_at %s ?
			  AND observed_at <= ?
			ORDER BY observed_at ASC
			LIMIT ?`, sampleColumns, op)

		rows, err := s.db.QueryContext(ctx, query, loc.Key(), after.Unix(), to.Unix(), limit)
		if err != nil {
			return nil, store.Unavailable("query sample page", err)
		}
		defer rows.Close()

		page := make([]types.WeatherSample, 0, limit)
		for rows.Next() {
			sample, err := scanSQLiteSample(rows)
			if err != nil {
				return nil, store.Unavailable("scan sample row", err)
			}
			page = append(page, sample)
		}
		if err := rows.Err(); err != nil {
			return nil, store.Unavailable("iterate sample rows", err)
		}
		return page, nil
	}
}

// Aggregate folds the Range result in Go; SQLite has no zone-aware
// truncation.
func (s *SQLiteStore) Aggregate(ctx context.Context, loc types.Location, from, to time.Time, g types.Granularity) ([]types.Bucket, error) {
	it, err := s.Range(ctx, loc, from, to)
	if err != nil {
		return nil, err
	}
	return store.AggregateIterator(it, from, to, g, store.Zone(loc))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSample(row rowScanner) (types.WeatherSample, error) {
	var (
		sample                     types.WeatherSample
		observed, ingested         int64
		source                     string
		pressure                   sql.NullInt64
		windDirection, precipitate sql.NullFloat64
	)
	err := row.Scan(
		&sample.Location.Name,
		&sample.Location.Latitude,
		&sample.Location.Longitude,
		&sample.Location.Timezone,
		&observed,
		&sample.TemperatureC,
		&sample.FeelsLikeC,
		&sample.HumidityPct,
		&pressure,
		&sample.WindSpeedKph,
		&windDirection,
		&precipitate,
		&sample.ConditionCode,
		&sample.ConditionText,
		&sample.ConditionIcon,
		&source,
		&ingested,
	)
	if err != nil {
		return types.WeatherSample{}, err
	}
	sample.ObservedAt = time.Unix(observed, 0).UTC()
	sample.IngestedAt = time.Unix(0, ingested).UTC()
	sample.Source = types.ProviderID(source)
	if pressure.Valid {
		p := int(pressure.Int64)
		sample.PressureHPa = &p
	}
	if windDirection.Valid {
		sample.WindDirectionDeg = &windDirection.Float64
	}
	if precipitate.Valid {
		sample.PrecipitationMM = &precipitate.Float64
	}
	return sample, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
