package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"climatewatch/internal/types"
)

const openWeatherMapAPIBase = "https://api.openweathermap.org"

// ProviderClientConfig holds the settings shared by every provider client.
type ProviderClientConfig struct {
	BaseURL string // Override for testing
	APIKey  types.SecretString
	// APISecret is only used by providers with a client id/secret pair.
	APISecret types.SecretString
	Breaker   BreakerSettings
	Options   []BaseClientOption
	Clock     types.Clock
	Logger    *slog.Logger
}

func (c ProviderClientConfig) baseURL(fallback string) string {
	if c.BaseURL == "" {
		return fallback
	}
	return strings.TrimSuffix(c.BaseURL, "/")
}

func (c ProviderClientConfig) clock() types.Clock {
	if c.Clock == nil {
		return types.RealClock{}
	}
	return c.Clock
}

func (c ProviderClientConfig) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// OpenWeatherMapClient is the primary keyed provider. It requests standard
// units (Kelvin, m/s); conversion happens in the normalizer.
type OpenWeatherMapClient struct {
	base    *BaseClient
	apiKey  types.SecretString
	baseURL string
	clock   types.Clock
	logger  *slog.Logger
}

// NewOpenWeatherMapClient creates an OpenWeatherMap client.
func NewOpenWeatherMapClient(httpClient *http.Client, cfg ProviderClientConfig) *OpenWeatherMapClient {
	return &OpenWeatherMapClient{
		base:    NewBaseClient(httpClient, types.ProviderOpenWeatherMap, cfg.Breaker, cfg.Options...),
		apiKey:  cfg.APIKey,
		baseURL: cfg.baseURL(openWeatherMapAPIBase),
		clock:   cfg.clock(),
		logger:  cfg.logger(),
	}
}

// ID implements Provider.
func (c *OpenWeatherMapClient) ID() types.ProviderID { return types.ProviderOpenWeatherMap }

// FetchCurrent requests /data/2.5/weather for the location coordinates.
func (c *OpenWeatherMapClient) FetchCurrent(ctx context.Context, loc types.Location) (types.RawPayload, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.4f", loc.Latitude))
	q.Set("lon", fmt.Sprintf("%.4f", loc.Longitude))
	q.Set("appid", c.apiKey.Unmask())
	q.Set("units", "standard")

	requestedAt := c.clock.Now()
	body, err := c.base.GetJSON(ctx, c.baseURL+"/data/2.5/weather?"+q.Encode())
	if err != nil {
		c.logger.WarnContext(ctx, "openweathermap request failed",
			"location", loc.Name,
			"code", string(types.CodeOf(err)),
		)
		return types.RawPayload{}, err
	}

	return types.RawPayload{
		Provider:    types.ProviderOpenWeatherMap,
		Kind:        types.PayloadCurrent,
		RequestedAt: requestedAt,
		Body:        body,
	}, nil
}
