// Package external is the boundary between the collection pipeline and the
// third-party weather APIs. Every outbound call goes through BaseClient, which
// applies the per-call timeout, circuit breaking, trace propagation and the
// mapping of HTTP failures onto the provider error taxonomy. BaseClient makes
// exactly one attempt per call; retries belong to the fallback coordinator.
package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"climatewatch/internal/types"
)

// maxBodyBytes caps how much of a provider response is read into memory.
const maxBodyBytes = 4 << 20

// BreakerSettings configures the per-provider circuit breaker.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker once exceeded.
	ConsecutiveFailures uint32
	// Cooldown is how long the breaker stays open before probing again.
	Cooldown time.Duration
}

// DefaultBreakerSettings returns the breaker defaults used by all providers.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailures: 5,
		Cooldown:            60 * time.Second,
	}
}

// BaseClient wraps an *http.Client and a circuit breaker. Provider clients
// embed it to inherit consistent failure handling.
type BaseClient struct {
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	provider  types.ProviderID
	timeout   time.Duration
	userAgent string
}

// BaseClientOption is a functional option for configuring a BaseClient.
type BaseClientOption func(*BaseClient)

// WithTimeout sets the per-call deadline applied on top of the caller's context.
func WithTimeout(d time.Duration) BaseClientOption {
	return func(c *BaseClient) {
		c.timeout = d
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) BaseClientOption {
	return func(c *BaseClient) {
		c.userAgent = ua
	}
}

// NewBaseClient creates a BaseClient for provider with its own breaker.
func NewBaseClient(httpClient *http.Client, provider types.ProviderID, breaker BreakerSettings, opts ...BaseClientOption) *BaseClient {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        string(provider),
		MaxRequests: 1,
		Interval:    breaker.Cooldown,
		Timeout:     breaker.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > breaker.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
	return NewBaseClientWithBreaker(httpClient, provider, cb, opts...)
}

// NewBaseClientWithBreaker creates a BaseClient with a caller-provided breaker.
func NewBaseClientWithBreaker(
	httpClient *http.Client,
	provider types.ProviderID,
	breaker *gobreaker.CircuitBreaker[*http.Response],
	opts ...BaseClientOption,
) *BaseClient {
	bc := &BaseClient{
		client:    httpClient,
		breaker:   breaker,
		provider:  provider,
		timeout:   10 * time.Second,
		userAgent: "climatewatch/1.0",
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// BreakerState reports the breaker state for health reporting.
func (c *BaseClient) BreakerState() string {
	return c.breaker.State().String()
}

// GetJSON issues one GET and returns the raw body of a 2xx response that
// parses as JSON. Every failure is returned as a *types.AppError with a
// provider_* code.
func (c *BaseClient) GetJSON(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeProviderMalformed, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.transportError(err)
	}
	if !json.Valid(body) {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeProviderMalformed,
			"response body is not valid JSON", nil, map[string]any{"provider": string(c.provider)})
	}
	return body, nil
}

// Do executes one request through the breaker. It injects the tick trace ID
// and User-Agent. A 2xx response is returned as-is for the caller to close;
// anything else is mapped to an AppError and the body is closed.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if traceID := types.GetTickID(req.Context()); traceID != "" {
		req.Header.Set("X-B3-TraceId", traceID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, doErr := c.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		// Only upstream-health failures count against the breaker.
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			return r, fmt.Errorf("upstream returned %d", r.StatusCode)
		}
		return r, nil
	})

	if err != nil {
		if resp != nil {
			mapped := c.statusError(resp)
			resp.Body.Close()
			return nil, mapped
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeProviderUnreachable,
				"circuit breaker is open", err, map[string]any{"provider": string(c.provider)})
		}
		return nil, c.transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		mapped := c.statusError(resp)
		resp.Body.Close()
		return nil, mapped
	}
	return resp, nil
}

// statusError maps a non-2xx response onto the provider taxonomy.
func (c *BaseClient) statusError(resp *http.Response) *types.AppError {
	details := map[string]any{
		"provider": string(c.provider),
		"status":   resp.StatusCode,
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if wait, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			details["retry_after"] = wait
		}
		return types.NewAppErrorWithDetails(types.ErrCodeProviderRateLimited, "upstream rate limit exceeded", nil, details)
	case resp.StatusCode >= 500:
		return types.NewAppErrorWithDetails(types.ErrCodeProviderUnreachable,
			fmt.Sprintf("upstream returned %d", resp.StatusCode), nil, details)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return types.NewAppErrorWithDetails(types.ErrCodeProviderAuthFailed, "upstream rejected credentials", nil, details)
	default:
		return types.NewAppErrorWithDetails(types.ErrCodeProviderMalformed,
			fmt.Sprintf("upstream returned unexpected status %d", resp.StatusCode), nil, details)
	}
}

// transportError maps network-level failures. Timeouts are unreachable with
// a timeout detail so attempts can be reported as such.
func (c *BaseClient) transportError(err error) *types.AppError {
	details := map[string]any{"provider": string(c.provider)}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		details["timeout"] = true
		return types.NewAppErrorWithDetails(types.ErrCodeProviderUnreachable, "request timed out", err, details)
	}
	return types.NewAppErrorWithDetails(types.ErrCodeProviderUnreachable, "upstream request failed", err, details)
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if wait := time.Until(t); wait > 0 {
			return wait, true
		}
		return 0, true
	}
	return 0, false
}
