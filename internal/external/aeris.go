package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"climatewatch/internal/types"
)

const aerisAPIBase = "https://api.aerisapi.com"

// aerisEnvelope is the part of every Aeris response that signals failure.
// Aeris reports most errors with HTTP 200 and success=false.
type aerisEnvelope struct {
	Success bool `json:"success"`
	Error   *struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// AerisClient is the backup provider, authenticated with a client id/secret pair.
type AerisClient struct {
	base         *BaseClient
	clientID     types.SecretString
	clientSecret types.SecretString
	baseURL      string
	clock        types.Clock
	logger       *slog.Logger
}

// NewAerisClient creates an AerisWeather client. cfg.APIKey carries the
// client id and cfg.APISecret the client secret.
func NewAerisClient(httpClient *http.Client, cfg ProviderClientConfig) *AerisClient {
	return &AerisClient{
		base:         NewBaseClient(httpClient, types.ProviderAeris, cfg.Breaker, cfg.Options...),
		clientID:     cfg.APIKey,
		clientSecret: cfg.APISecret,
		baseURL:      cfg.baseURL(aerisAPIBase),
		clock:        cfg.clock(),
		logger:       cfg.logger(),
	}
}

// ID implements Provider.
func (c *AerisClient) ID() types.ProviderID { return types.ProviderAeris }

// FetchCurrent requests the latest one-minute conditions period.
func (c *AerisClient) FetchCurrent(ctx context.Context, loc types.Location) (types.RawPayload, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("plimit", "1")
	q.Set("filter", "1min")
	q.Set("client_id", c.clientID.Unmask())
	q.Set("client_secret", c.clientSecret.Unmask())
	target := fmt.Sprintf("%s/conditions/%.4f,%.4f?%s", c.baseURL, loc.Latitude, loc.Longitude, q.Encode())

	requestedAt := c.clock.Now()
	body, err := c.base.GetJSON(ctx, target)
	if err == nil {
		err = aerisError(body)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "aeris request failed",
			"location", loc.Name,
			"code", string(types.CodeOf(err)),
		)
		return types.RawPayload{}, err
	}

	return types.RawPayload{
		Provider:    types.ProviderAeris,
		Kind:        types.PayloadCurrent,
		RequestedAt: requestedAt,
		Body:        body,
	}, nil
}

// aerisError maps an in-band Aeris failure to the provider taxonomy.
func aerisError(body []byte) error {
	var env aerisEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return types.NewAppError(types.ErrCodeProviderMalformed, "failed to decode aeris envelope", err)
	}
	if env.Success {
		return nil
	}
	code, desc := "unknown", ""
	if env.Error != nil {
		code, desc = env.Error.Code, env.Error.Description
	}
	details := map[string]any{"provider": string(types.ProviderAeris), "aeris_code": code}

	switch {
	case code == "invalid_client" || code == "unauthorized_namespace" || code == "unauthorized":
		return types.NewAppErrorWithDetails(types.ErrCodeProviderAuthFailed, desc, nil, details)
	case strings.HasPrefix(code, "maxhits"):
		return types.NewAppErrorWithDetails(types.ErrCodeProviderRateLimited, desc, nil, details)
	default:
		return types.NewAppErrorWithDetails(types.ErrCodeProviderMalformed, "aeris reported failure: "+desc, nil, details)
	}
}
