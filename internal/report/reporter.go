// Package report builds monthly and yearly summaries from daily aggregates
// and evaluates the extreme-condition thresholds.
//
// Reporter is a pure read path over store.Store. ReportJob decides when a
// period has closed and hands the finished report to a Publisher.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/stat"

	"climatewatch/internal/store"
	"climatewatch/internal/types"
)

// Aggregator is the read side of store.Store used by the Reporter.
type Aggregator interface {
	Aggregate(ctx context.Context, loc types.Location, from, to time.Time, g types.Granularity) ([]types.Bucket, error)
}

// ReporterConfig configures a Reporter.
type ReporterConfig struct {
	Store      Aggregator
	Thresholds Thresholds
	Clock      types.Clock
	Logger     *slog.Logger
}

// Reporter summarizes stored samples.
type Reporter struct {
	store      Aggregator
	thresholds Thresholds
	clock      types.Clock
	logger     *slog.Logger
}

// NewReporter creates a Reporter. A zero Thresholds selects the defaults.
func NewReporter(cfg ReporterConfig) *Reporter {
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Reporter{
		store:      cfg.Store,
		thresholds: cfg.Thresholds,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
}

// Summarize reports on p for loc, comparing against the previous period.
// The period start is interpreted in the location's zone.
func (r *Reporter) Summarize(ctx context.Context, loc types.Location, p types.Period) (types.Report, error) {
	if p.Kind != types.PeriodMonth && p.Kind != types.PeriodYear {
		return types.Report{}, types.NewAppError(types.ErrCodeStoreInvalidArg, fmt.Sprintf("unsupported period kind %q", p.Kind), nil)
	}
	p = inZone(p, store.Zone(loc))

	days, err := r.days(ctx, loc, p)
	if err != nil {
		return types.Report{}, err
	}
	rep := r.build(loc, p, days)

	prevDays, err := r.days(ctx, loc, p.Previous())
	if err != nil {
		return types.Report{}, err
	}
	prev := summarizeDays(prevDays)
	if prev.samples > 0 && rep.SampleCount > 0 {
		cur := summarizeDays(days)
		rep.Deltas = &types.ReportDeltas{
			MeanTemperatureC:     delta(cur.meanTemp, prev.meanTemp),
			MeanHumidityPct:      delta(cur.meanHumidity, prev.meanHumidity),
			MeanWindKph:          delta(cur.meanWind, prev.meanWind),
			TotalPrecipitationMM: delta(cur.precip, prev.precip),
		}
	}

	r.logger.DebugContext(ctx, "report summarized",
		"location", loc.Key(),
		"period", rep.Label,
		"samples", rep.SampleCount,
		"empty_days", rep.EmptyDays,
	)
	return rep, nil
}

func (r *Reporter) days(ctx context.Context, loc types.Location, p types.Period) ([]types.Bucket, error) {
	return r.store.Aggregate(ctx, loc, p.Start, p.End().Add(-time.Nanosecond), types.GranularityDay)
}

func (r *Reporter) build(loc types.Location, p types.Period, days []types.Bucket) types.Report {
	sum := summarizeDays(days)
	rep := types.Report{
		Location:     loc.Key(),
		Period:       p,
		Label:        p.Label(),
		GeneratedAt:  r.clock.Now(),
		SampleCount:  sum.samples,
		DaysWithData: sum.daysWithData,
		EmptyDays:    len(days) - sum.daysWithData,
		Segments:     segments(p, days),
		Alerts:       r.thresholds.periodAlerts(loc.Key(), days),
	}
	if sum.samples == 0 {
		return rep
	}

	rep.Temperature = &types.FieldStats{Min: sum.minTemp, Max: sum.maxTemp, Mean: *sum.meanTemp, Count: sum.samples}
	rep.MeanHumidityPct = sum.meanHumidity
	rep.MeanWindKph = sum.meanWind
	rep.MaxWindKph = sum.maxWind
	rep.TotalPrecipitationMM = sum.precip
	rep.TrendCPerDay = trend(p.Start, days)
	return rep
}

// daySummary folds daily buckets into period-wide figures. Means are
// weighted by the sample count of each day.
type daySummary struct {
	samples      int
	daysWithData int
	minTemp      float64
	maxTemp      float64
	meanTemp     *float64
	meanHumidity *float64
	meanWind     *float64
	maxWind      *float64
	precip       *float64
}

func summarizeDays(days []types.Bucket) daySummary {
	var (
		s                    daySummary
		temps, hums, winds   []float64
		weights              []float64
		precipTotal, maxWind float64
		precipSeen           bool
	)
	for _, b := range days {
		if b.Empty || b.Temperature == nil {
			continue
		}
		if s.daysWithData == 0 || b.Temperature.Min < s.minTemp {
			s.minTemp = b.Temperature.Min
		}
		if s.daysWithData == 0 || b.Temperature.Max > s.maxTemp {
			s.maxTemp = b.Temperature.Max
		}
		if b.WindSpeed != nil && b.WindSpeed.Max > maxWind {
			maxWind = b.WindSpeed.Max
		}
		if b.PrecipitationMM != nil {
			precipTotal += *b.PrecipitationMM
			precipSeen = true
		}
		s.daysWithData++
		s.samples += b.Count
		weights = append(weights, float64(b.Count))
		temps = append(temps, b.Temperature.Mean)
		hums = append(hums, fieldMean(b.Humidity))
		winds = append(winds, fieldMean(b.WindSpeed))
	}
	if s.samples == 0 {
		return s
	}
	s.meanTemp = ptr(stat.Mean(temps, weights))
	s.meanHumidity = ptr(stat.Mean(hums, weights))
	s.meanWind = ptr(stat.Mean(winds, weights))
	s.maxWind = ptr(maxWind)
	if precipSeen {
		s.precip = ptr(precipTotal)
	}
	return s
}

// segments splits a month into 7-day weeks from the 1st and a year into
// calendar months, each with its weighted mean temperature.
func segments(p types.Period, days []types.Bucket) []types.SegmentMean {
	type acc struct {
		seg     types.SegmentMean
		temps   []float64
		weights []float64
	}
	var out []*acc
	index := make(map[string]*acc)

	for _, b := range days {
		var label string
		var start time.Time
		if p.Kind == types.PeriodYear {
			start = time.Date(b.Start.Year(), b.Start.Month(), 1, 0, 0, 0, 0, b.Start.Location())
			label = start.Format("2006-01")
		} else {
			week := (b.Start.Day() - 1) / 7
			start = p.Start.AddDate(0, 0, week*7)
			label = fmt.Sprintf("W%d", week+1)
		}
		a, ok := index[label]
		if !ok {
			a = &acc{seg: types.SegmentMean{Label: label, Start: start}}
			index[label] = a
			out = append(out, a)
		}
		a.seg.Days++
		if !b.Empty && b.Temperature != nil {
			a.temps = append(a.temps, b.Temperature.Mean)
			a.weights = append(a.weights, float64(b.Count))
		}
	}

	segs := make([]types.SegmentMean, 0, len(out))
	for _, a := range out {
		if len(a.temps) > 0 {
			a.seg.MeanTemperatureC = ptr(stat.Mean(a.temps, a.weights))
		}
		segs = append(segs, a.seg)
	}
	return segs
}

// trend fits the daily mean temperature against days since start. It needs
// at least two days with data.
func trend(start time.Time, days []types.Bucket) *float64 {
	var xs, ys []float64
	for _, b := range days {
		if b.Empty || b.Temperature == nil {
			continue
		}
		xs = append(xs, b.Start.Sub(start).Hours()/24)
		ys = append(ys, b.Temperature.Mean)
	}
	if len(xs) < 2 {
		return nil
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	return ptr(beta)
}

func inZone(p types.Period, tz *time.Location) types.Period {
	s := p.Start
	if p.Kind == types.PeriodYear {
		return types.Period{Kind: p.Kind, Start: time.Date(s.Year(), 1, 1, 0, 0, 0, 0, tz)}
	}
	return types.Period{Kind: p.Kind, Start: time.Date(s.Year(), s.Month(), 1, 0, 0, 0, 0, tz)}
}

func fieldMean(f *types.FieldStats) float64 {
	if f == nil {
		return 0
	}
	return f.Mean
}

func delta(cur, prev *float64) *float64 {
	if cur == nil || prev == nil {
		return nil
	}
	return ptr(*cur - *prev)
}

func ptr(v float64) *float64 { return &v }
