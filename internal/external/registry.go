package external

import (
	"fmt"
	"log/slog"
	"net/http"

	"climatewatch/internal/config"
	"climatewatch/internal/types"
)

// Registry holds the configured providers in fallback priority order.
type Registry struct {
	providers []Provider
}

// NewRegistry instantiates one client per entry of cfg.Priority. All clients
// share httpClient; each gets its own circuit breaker.
func NewRegistry(cfg config.ProvidersConfig, httpClient *http.Client, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	breaker := BreakerSettings{
		ConsecutiveFailures: cfg.BreakerThreshold,
		Cooldown:            cfg.BreakerCooldown,
	}
	if breaker.ConsecutiveFailures == 0 {
		breaker = DefaultBreakerSettings()
	}
	opts := []BaseClientOption{WithTimeout(cfg.Timeout)}

	seen := make(map[types.ProviderID]bool, len(cfg.Priority))
	reg := &Registry{}
	for _, name := range cfg.Priority {
		id := types.ProviderID(name)
		if seen[id] {
			return nil, fmt.Errorf("provider %q listed twice in priority", name)
		}
		seen[id] = true

		shared := ProviderClientConfig{
			Breaker: breaker,
			Options: opts,
			Logger:  logger.With("provider", name),
		}

		switch id {
		case types.ProviderOpenWeatherMap:
			shared.BaseURL = cfg.OpenWeatherMapURL
			shared.APIKey = cfg.OpenWeatherMapAPIKey
			reg.providers = append(reg.providers, NewOpenWeatherMapClient(httpClient, shared))
		case types.ProviderOpenMeteo:
			shared.BaseURL = cfg.OpenMeteoURL
			reg.providers = append(reg.providers, NewOpenMeteoClient(httpClient, OpenMeteoClientConfig{
				ProviderClientConfig: shared,
				ArchiveURL:           cfg.OpenMeteoArchiveURL,
			}))
		case types.ProviderAeris:
			shared.BaseURL = cfg.AerisURL
			shared.APIKey = cfg.AerisClientID
			shared.APISecret = cfg.AerisClientSecret
			reg.providers = append(reg.providers, NewAerisClient(httpClient, shared))
		case types.ProviderWeatherAPI:
			shared.BaseURL = cfg.WeatherAPIURL
			shared.APIKey = cfg.WeatherAPIAPIKey
			reg.providers = append(reg.providers, NewWeatherAPIClient(httpClient, shared))
		default:
			return nil, types.NewAppError(types.ErrCodeProviderUnsupported,
				fmt.Sprintf("unknown provider %q", name), nil)
		}
	}

	logger.Info("providers initialized", "priority", cfg.Priority)
	return reg, nil
}

// Providers returns the providers in priority order.
func (r *Registry) Providers() []Provider {
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Historical returns the first provider in priority order that serves
// historical data.
func (r *Registry) Historical() (HistoricalProvider, bool) {
	for _, p := range r.providers {
		if hp, ok := p.(HistoricalProvider); ok {
			return hp, true
		}
	}
	return nil, false
}

// Lookup returns the provider with the given id.
func (r *Registry) Lookup(id types.ProviderID) (Provider, bool) {
	for _, p := range r.providers {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}
