package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"climatewatch/internal/store"
	"climatewatch/internal/types"
)

const sampleColumns = `location, latitude, longitude, timezone, observed_at,
	temperature_c, feels_like_c, humidity_pct, pressure_hpa,
	wind_speed_kph, wind_direction_deg, precipitation_mm,
	condition_code, condition_text, condition_icon, source, ingested_at`

// SampleRepository stores samples in the PostgreSQL samples table.
type SampleRepository struct {
	db       DBTX
	pageSize int
	clock    types.Clock
}

// NewSampleRepository creates a SampleRepository backed by the given
// database connection (pool or transaction). pageSize <= 0 selects
// store.DefaultPageSize; clock stamps ingested_at.
func NewSampleRepository(db DBTX, pageSize int, clock types.Clock) *SampleRepository {
	if pageSize <= 0 {
		pageSize = store.DefaultPageSize
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &SampleRepository{db: db, pageSize: pageSize, clock: clock}
}

var _ store.Store = (*SampleRepository)(nil)

// Upsert inserts s or replaces the row with the same (location, observed_at).
// ingested_at is the repository clock at the time of the write.
func (r *SampleRepository) Upsert(ctx context.Context, s types.WeatherSample) error {
	if err := store.ValidateSample(s); err != nil {
		return err
	}
	s.IngestedAt = r.clock.Now().UTC()
	_, err := r.db.Exec(ctx,
		`INSERT INTO samples (`+sampleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT (location, observed_at) DO UPDATE SET
		   latitude = EXCLUDED.latitude,
		   longitude = EXCLUDED.longitude,
		   timezone = EXCLUDED.timezone,
		   temperature_c = EXCLUDED.temperature_c,
		   feels_like_c = EXCLUDED.feels_like_c,
		   humidity_pct = EXCLUDED.humidity_pct,
		   pressure_hpa = EXCLUDED.pressure_hpa,
		   wind_speed_kph = EXCLUDED.wind_speed_kph,
		   wind_direction_deg = EXCLUDED.wind_direction_deg,
		   precipitation_mm = EXCLUDED.precipitation_mm,
		   condition_code = EXCLUDED.condition_code,
		   condition_text = EXCLUDED.condition_text,
		   condition_icon = EXCLUDED.condition_icon,
		   source = EXCLUDED.source,
		   ingested_at = EXCLUDED.ingested_at`,
		s.Location.Key(),
		s.Location.Latitude,
		s.Location.Longitude,
		s.Location.Timezone,
		s.ObservedAt.UTC(),
		s.TemperatureC,
		s.FeelsLikeC,
		s.HumidityPct,
		s.PressureHPa,
		s.WindSpeedKph,
		s.WindDirectionDeg,
		s.PrecipitationMM,
		s.ConditionCode,
		s.ConditionText,
		s.ConditionIcon,
		string(s.Source),
		s.IngestedAt.UTC(),
	)
	if err != nil {
		return store.Unavailable("upsert sample", err)
	}
	return nil
}

// Latest returns the sample with the greatest observed_at for loc.
func (r *SampleRepository) Latest(ctx context.Context, loc types.Location) (types.WeatherSample, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+sampleColumns+`
		 FROM samples
		 WHERE location = $1
		 ORDER BY observed_at DESC
		 LIMIT 1`,
		loc.Key(),
	)
	s, err := scanSample(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.WeatherSample{}, store.NotFound(loc)
	}
	if err != nil {
		return types.WeatherSample{}, store.Unavailable("query latest sample", err)
	}
	return s, nil
}

// Range pages through [from, to] by observed_at keyset.
func (r *SampleRepository) Range(ctx context.Context, loc types.Location, from, to time.Time) (store.SampleIterator, error) {
	if err := store.ValidateRange(from, to); err != nil {
		return nil, err
	}
	return store.NewPagedIterator(ctx, r.pageFunc(loc, to), r.pageSize, from, true), nil
}

// RangeAfter pages through (after, to].
func (r *SampleRepository) RangeAfter(ctx context.Context, loc types.Location, after, to time.Time) (store.SampleIterator, error) {
	if err := store.ValidateRange(after, to); err != nil {
		return nil, err
	}
	return store.NewPagedIterator(ctx, r.pageFunc(loc, to), r.pageSize, after, false), nil
}

func (r *SampleRepository) pageFunc(loc types.Location, to time.Time) store.PageFunc {
	return func(ctx context.Context, after time.Time, inclusive bool, limit int) ([]types.WeatherSample, error) {
		op := ">"
		if inclusive {
			op = ">="
		}
		query := fmt.Sprintf(`
			SELECT %s
			FROM samples
			WHERE location = $1
			  AND observed_at %s $2
			  AND observed_at <= $3
			ORDER BY observed_at ASC
			LIMIT $4`, sampleColumns, op)

		rows, err := r.db.Query(ctx, query, loc.Key(), after.UTC(), to.UTC(), limit)
		if err != nil {
			return nil, store.Unavailable("query sample page", err)
		}
		defer rows.Close()

		page := make([]types.WeatherSample, 0, limit)
		for rows.Next() {
			s, err := scanSample(rows)
			if err != nil {
				return nil, store.Unavailable("scan sample row", err)
			}
			page = append(page, s)
		}
		if err := rows.Err(); err != nil {
			return nil, store.Unavailable("iterate sample rows", err)
		}
		return page, nil
	}
}

// Aggregate groups samples with date_trunc in the location's zone. Buckets
// with no rows are filled in by store.Aggregator. Hour buckets are folded in
// Go: date_trunc on local wall-clock time merges the repeated hour of a DST
// fall-back.
func (r *SampleRepository) Aggregate(ctx context.Context, loc types.Location, from, to time.Time, g types.Granularity) ([]types.Bucket, error) {
	tz := store.Zone(loc)
	if g == types.GranularityHour {
		it, err := r.Range(ctx, loc, from, to)
		if err != nil {
			return nil, err
		}
		return store.AggregateIterator(it, from, to, g, tz)
	}
	agg, err := store.NewAggregator(from, to, g, tz)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT date_trunc('%s', observed_at AT TIME ZONE $2) AS bucket,
		       COUNT(*),
		       MIN(temperature_c)::float8, MAX(temperature_c)::float8, AVG(temperature_c)::float8,
		       MIN(feels_like_c)::float8, MAX(feels_like_c)::float8, AVG(feels_like_c)::float8,
		       MIN(humidity_pct)::float8, MAX(humidity_pct)::float8, AVG(humidity_pct)::float8,
		       COUNT(pressure_hpa),
		       MIN(pressure_hpa)::float8, MAX(pressure_hpa)::float8, AVG(pressure_hpa)::float8,
		       MIN(wind_speed_kph)::float8, MAX(wind_speed_kph)::float8, AVG(wind_speed_kph)::float8,
		       SUM(precipitation_mm)::float8
		FROM samples
		WHERE location = $1
		  AND observed_at >= $3
		  AND observed_at <= $4
		GROUP BY bucket
		ORDER BY bucket ASC`, granularityToTruncUnit(g))

	rows, err := r.db.Query(ctx, query, loc.Key(), tz.String(), from.UTC(), to.UTC())
	if err != nil {
		return nil, store.Unavailable("aggregate samples", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			start                     time.Time
			b                         types.Bucket
			temp, feels, hum, wind    types.FieldStats
			pressureCount             int
			pMin, pMax, pMean, precip *float64
		)
		if err := rows.Scan(
			&start,
			&b.Count,
			&temp.Min, &temp.Max, &temp.Mean,
			&feels.Min, &feels.Max, &feels.Mean,
			&hum.Min, &hum.Max, &hum.Mean,
			&pressureCount,
			&pMin, &pMax, &pMean,
			&wind.Min, &wind.Max, &wind.Mean,
			&precip,
		); err != nil {
			return nil, store.Unavailable("scan aggregate row", err)
		}
		temp.Count, feels.Count, hum.Count, wind.Count = b.Count, b.Count, b.Count, b.Count
		b.Temperature, b.FeelsLike, b.Humidity, b.WindSpeed = &temp, &feels, &hum, &wind
		if pressureCount > 0 && pMin != nil && pMax != nil && pMean != nil {
			b.Pressure = &types.FieldStats{Min: *pMin, Max: *pMax, Mean: *pMean, Count: pressureCount}
		}
		b.PrecipitationMM = precip

		// date_trunc of a zone-shifted timestamp yields local wall-clock time.
		agg.Set(time.Date(start.Year(), start.Month(), start.Day(), start.Hour(), 0, 0, 0, tz), b)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("iterate aggregate rows", err)
	}
	return agg.Buckets(), nil
}

// granularityToTruncUnit maps a Granularity to a PostgreSQL date_trunc unit.
func granularityToTruncUnit(g types.Granularity) string {
	switch g {
	case types.GranularityHour:
		return "hour"
	case types.GranularityMonth:
		return "month"
	case types.GranularityYear:
		return "year"
	default:
		return "day"
	}
}

func scanSample(row pgx.Row) (types.WeatherSample, error) {
	var (
		s      types.WeatherSample
		source string
	)
	err := row.Scan(
		&s.Location.Name,
		&s.Location.Latitude,
		&s.Location.Longitude,
		&s.Location.Timezone,
		&s.ObservedAt,
		&s.TemperatureC,
		&s.FeelsLikeC,
		&s.HumidityPct,
		&s.PressureHPa,
		&s.WindSpeedKph,
		&s.WindDirectionDeg,
		&s.PrecipitationMM,
		&s.ConditionCode,
		&s.ConditionText,
		&s.ConditionIcon,
		&source,
		&s.IngestedAt,
	)
	if err != nil {
		return types.WeatherSample{}, err
	}
	s.Source = types.ProviderID(source)
	s.ObservedAt = s.ObservedAt.UTC()
	s.IngestedAt = s.IngestedAt.UTC()
	return s, nil
}
