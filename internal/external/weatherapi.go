package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"climatewatch/internal/types"
)

const weatherAPIBase = "https://api.weatherapi.com"

// WeatherAPIClient queries weatherapi.com with an API key.
type WeatherAPIClient struct {
	base    *BaseClient
	apiKey  types.SecretString
	baseURL string
	clock   types.Clock
	logger  *slog.Logger
}

// NewWeatherAPIClient creates a weatherapi.com client.
func NewWeatherAPIClient(httpClient *http.Client, cfg ProviderClientConfig) *WeatherAPIClient {
	return &WeatherAPIClient{
		base:    NewBaseClient(httpClient, types.ProviderWeatherAPI, cfg.Breaker, cfg.Options...),
		apiKey:  cfg.APIKey,
		baseURL: cfg.baseURL(weatherAPIBase),
		clock:   cfg.clock(),
		logger:  cfg.logger(),
	}
}

// ID implements Provider.
func (c *WeatherAPIClient) ID() types.ProviderID { return types.ProviderWeatherAPI }

// FetchCurrent requests /v1/current.json by coordinates.
func (c *WeatherAPIClient) FetchCurrent(ctx context.Context, loc types.Location) (types.RawPayload, error) {
	q := url.Values{}
	q.Set("key", c.apiKey.Unmask())
	q.Set("q", fmt.Sprintf("%.4f,%.4f", loc.Latitude, loc.Longitude))
	q.Set("aqi", "no")

	requestedAt := c.clock.Now()
	body, err := c.base.GetJSON(ctx, c.baseURL+"/v1/current.json?"+q.Encode())
	if err != nil {
		c.logger.WarnContext(ctx, "weatherapi request failed",
			"location", loc.Name,
			"code", string(types.CodeOf(err)),
		)
		return types.RawPayload{}, err
	}
	return types.RawPayload{
		Provider:    types.ProviderWeatherAPI,
		Kind:        types.PayloadCurrent,
		RequestedAt: requestedAt,
		Body:        body,
	}, nil
}
