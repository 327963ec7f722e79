package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"climatewatch/internal/types"
)

const (
	openMeteoAPIBase     = "https://api.open-meteo.com"
	openMeteoArchiveBase = "https://archive-api.open-meteo.com"

	// openMeteoMaxArchiveDays is the widest range requested from the archive
	// in one call.
	openMeteoMaxArchiveDays = 365

	openMeteoCurrentFields = "temperature_2m,apparent_temperature,relative_humidity_2m,surface_pressure," +
		"wind_speed_10m,wind_direction_10m,precipitation,weather_code"
	openMeteoDailyFields = "temperature_2m_max,temperature_2m_min,temperature_2m_mean,apparent_temperature_mean," +
		"relative_humidity_2m_mean,surface_pressure_mean,precipitation_sum,wind_speed_10m_mean,wind_speed_10m_max," +
		"wind_direction_10m_dominant,weather_code"
)

// OpenMeteoClientConfig extends the shared settings with the archive host.
type OpenMeteoClientConfig struct {
	ProviderClientConfig
	ArchiveURL string
}

// OpenMeteoClient needs no credentials. It serves current conditions and the
// daily historical archive.
type OpenMeteoClient struct {
	base       *BaseClient
	baseURL    string
	archiveURL string
	clock      types.Clock
	logger     *slog.Logger
}

// NewOpenMeteoClient creates an Open-Meteo client.
func NewOpenMeteoClient(httpClient *http.Client, cfg OpenMeteoClientConfig) *OpenMeteoClient {
	archive := cfg.ArchiveURL
	if archive == "" {
		archive = openMeteoArchiveBase
	}
	return &OpenMeteoClient{
		base:       NewBaseClient(httpClient, types.ProviderOpenMeteo, cfg.Breaker, cfg.Options...),
		baseURL:    cfg.baseURL(openMeteoAPIBase),
		archiveURL: ProviderClientConfig{BaseURL: archive}.baseURL(openMeteoArchiveBase),
		clock:      cfg.clock(),
		logger:     cfg.logger(),
	}
}

// ID implements Provider.
func (c *OpenMeteoClient) ID() types.ProviderID { return types.ProviderOpenMeteo }

// FetchCurrent requests the current block of /v1/forecast in metric units
// with unix timestamps.
func (c *OpenMeteoClient) FetchCurrent(ctx context.Context, loc types.Location) (types.RawPayload, error) {
	q := coordinates(loc)
	q.Set("current", openMeteoCurrentFields)
	q.Set("wind_speed_unit", "kmh")
	q.Set("timeformat", "unixtime")
	q.Set("timezone", "UTC")

	requestedAt := c.clock.Now()
	body, err := c.base.GetJSON(ctx, c.baseURL+"/v1/forecast?"+q.Encode())
	if err != nil {
		c.logger.WarnContext(ctx, "open-meteo current request failed",
			"location", loc.Name,
			"code", string(types.CodeOf(err)),
		)
		return types.RawPayload{}, err
	}
	return types.RawPayload{
		Provider:    types.ProviderOpenMeteo,
		Kind:        types.PayloadCurrent,
		RequestedAt: requestedAt,
		Body:        body,
	}, nil
}

// FetchHistorical requests daily aggregates from the archive API, splitting
// the range into chunks of at most 365 days. A failed chunk aborts the call.
func (c *OpenMeteoClient) FetchHistorical(ctx context.Context, loc types.Location, r types.DateRange) ([]types.RawPayload, error) {
	if r.Days() == 0 {
		return nil, types.NewAppError(types.ErrCodeProviderMalformed,
			fmt.Sprintf("empty date range %s..%s", r.From.Format(time.DateOnly), r.To.Format(time.DateOnly)), nil)
	}
	tz := loc.Timezone
	if tz == "" {
		tz = "UTC"
	}

	var payloads []types.RawPayload
	for _, chunk := range splitRange(r, openMeteoMaxArchiveDays) {
		if err := ctx.Err(); err != nil {
			return payloads, err
		}
		q := coordinates(loc)
		q.Set("start_date", chunk.From.Format(time.DateOnly))
		q.Set("end_date", chunk.To.Format(time.DateOnly))
		q.Set("daily", openMeteoDailyFields)
		q.Set("wind_speed_unit", "kmh")
		q.Set("timezone", tz)

		requestedAt := c.clock.Now()
		body, err := c.base.GetJSON(ctx, c.archiveURL+"/v1/archive?"+q.Encode())
		if err != nil {
			c.logger.WarnContext(ctx, "open-meteo archive request failed",
				"location", loc.Name,
				"start_date", chunk.From.Format(time.DateOnly),
				"end_date", chunk.To.Format(time.DateOnly),
				"code", string(types.CodeOf(err)),
			)
			return payloads, err
		}
		payloads = append(payloads, types.RawPayload{
			Provider:    types.ProviderOpenMeteo,
			Kind:        types.PayloadHistorical,
			RequestedAt: requestedAt,
			Body:        body,
		})
	}
	return payloads, nil
}

func coordinates(loc types.Location) url.Values {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", loc.Latitude))
	q.Set("longitude", fmt.Sprintf("%.4f", loc.Longitude))
	return q
}

// splitRange cuts r into consecutive inclusive ranges of at most maxDays.
func splitRange(r types.DateRange, maxDays int) []types.DateRange {
	var out []types.DateRange
	for from := r.From; !from.After(r.To); {
		to := from.AddDate(0, 0, maxDays-1)
		if to.After(r.To) {
			to = r.To
		}
		out = append(out, types.DateRange{From: from, To: to})
		from = to.AddDate(0, 0, 1)
	}
	return out
}
