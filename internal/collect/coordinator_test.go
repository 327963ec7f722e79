package collect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"climatewatch/internal/external"
	"climatewatch/internal/types"
)

var testLoc = types.Location{Name: "montreal", Latitude: 45.5, Longitude: -73.6, Timezone: "UTC"}

var testNow = time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)

// scriptedProvider returns the scripted errors in order, then succeeds with body.
type scriptedProvider struct {
	id     types.ProviderID
	script []error
	body   string

	mu    sync.Mutex
	calls int
}

func (p *scriptedProvider) ID() types.ProviderID { return p.id }

func (p *scriptedProvider) FetchCurrent(ctx context.Context, loc types.Location) (types.RawPayload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.calls
	p.calls++
	if n < len(p.script) && p.script[n] != nil {
		return types.RawPayload{}, p.script[n]
	}
	body := p.body
	if body == "" {
		body = "ok"
	}
	return types.RawPayload{Provider: p.id, Kind: types.PayloadCurrent, RequestedAt: testNow, Body: []byte(body)}, nil
}

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// failing returns a provider that fails n times with code before succeeding.
func failing(id types.ProviderID, code types.ErrorCode, n int) *scriptedProvider {
	script := make([]error, n)
	for i := range script {
		script[i] = types.NewAppError(code, "scripted failure", nil)
	}
	return &scriptedProvider{id: id, script: script}
}

// fakeNormalizer accepts any body except "invalid".
type fakeNormalizer struct{}

func (fakeNormalizer) Normalize(loc types.Location, p types.RawPayload) (types.WeatherSample, error) {
	if string(p.Body) == "invalid" {
		return types.WeatherSample{}, &types.ValidationError{Field: "humidity_pct", Value: 101, Reason: "must be <= 100"}
	}
	return types.WeatherSample{
		Location:     loc,
		ObservedAt:   p.RequestedAt,
		TemperatureC: 1.5,
		HumidityPct:  50,
		Source:       p.Provider,
	}, nil
}

type attemptLog struct {
	mu       sync.Mutex
	attempts []types.CollectionAttempt
}

func (l *attemptLog) ObserveAttempt(_ context.Context, a types.CollectionAttempt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, a)
}

func newTestCoordinator(log *attemptLog, providers ...*scriptedProvider) *Coordinator {
	ps := make([]external.Provider, 0, len(providers))
	for _, p := range providers {
		ps = append(ps, p)
	}
	return NewCoordinator(CoordinatorConfig{
		Providers:  ps,
		Normalizer: fakeNormalizer{},
		Policy:     RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Sleep:      func(context.Context, time.Duration) error { return nil },
		Observer:   log,
		Clock:      types.FixedClock{T: testNow},
		Logger:     discardLogger(),
	})
}

func TestResolve_RetriesUnreachableThenSucceeds(t *testing.T) {
	log := &attemptLog{}
	a := failing("a", types.ErrCodeProviderUnreachable, 2)
	b := failing("b", "", 0)

	s, err := newTestCoordinator(log, a, b).Resolve(context.Background(), testLoc)
	require.NoError(t, err)

	assert.Equal(t, types.ProviderID("a"), s.Source)
	assert.Equal(t, 3, a.Calls())
	assert.Equal(t, 0, b.Calls())

	require.Len(t, log.attempts, 3)
	assert.Equal(t, types.OutcomeUnreachable, log.attempts[0].Outcome)
	assert.Equal(t, types.OutcomeUnreachable, log.attempts[1].Outcome)
	assert.Equal(t, types.OutcomeSuccess, log.attempts[2].Outcome)
	assert.Equal(t, 3, log.attempts[2].Attempt)
}

func TestResolve_AuthFailedFallsBackWithoutRetry(t *testing.T) {
	log := &attemptLog{}
	a := failing("a", types.ErrCodeProviderAuthFailed, 10)
	b := failing("b", "", 0)

	s, err := newTestCoordinator(log, a, b).Resolve(context.Background(), testLoc)
	require.NoError(t, err)

	assert.Equal(t, types.ProviderID("b"), s.Source)
	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, 1, b.Calls())
	assert.Equal(t, types.OutcomeRejected, log.attempts[0].Outcome)
}

func TestResolve_AlwaysUnreachableAttemptsExactlyMaxRetries(t *testing.T) {
	a := failing("a", types.ErrCodeProviderUnreachable, 100)
	b := failing("b", "", 0)

	_, err := newTestCoordinator(&attemptLog{}, a, b).Resolve(context.Background(), testLoc)
	require.NoError(t, err)
	assert.Equal(t, 3, a.Calls())
}

func TestResolve_InvalidPayloadAdvancesAsMalformed(t *testing.T) {
	log := &attemptLog{}
	a := &scriptedProvider{id: "a", body: "invalid"}
	b := failing("b", "", 0)

	s, err := newTestCoordinator(log, a, b).Resolve(context.Background(), testLoc)
	require.NoError(t, err)
	assert.Equal(t, types.ProviderID("b"), s.Source)
	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, types.OutcomeInvalidPayload, log.attempts[0].Outcome)
}

func TestResolve_ExhaustedListsEveryFailure(t *testing.T) {
	a := failing("a", types.ErrCodeProviderRateLimited, 100)
	b := &scriptedProvider{id: "b", body: "invalid"}
	c := failing("c", types.ErrCodeProviderAuthFailed, 1)

	_, err := newTestCoordinator(&attemptLog{}, a, b, c).Resolve(context.Background(), testLoc)
	require.Error(t, err)

	var exhausted *types.ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, types.ErrCodeCollectionExhausted, types.CodeOf(err))
	require.Len(t, exhausted.Failures, 3)

	assert.Equal(t, types.ProviderID("a"), exhausted.Failures[0].Provider)
	assert.Equal(t, types.ErrCodeProviderRateLimited, exhausted.Failures[0].Code)
	assert.Equal(t, 3, exhausted.Failures[0].Attempts)
	assert.Equal(t, types.ErrCodeProviderMalformed, exhausted.Failures[1].Code)
	assert.Equal(t, 1, exhausted.Failures[1].Attempts)
	assert.Equal(t, types.ErrCodeProviderAuthFailed, exhausted.Failures[2].Code)

	var vErr *types.ValidationError
	assert.True(t, errors.As(exhausted.Failures[1].Err, &vErr))
}

func TestResolve_NoProviders(t *testing.T) {
	_, err := newTestCoordinator(&attemptLog{}).Resolve(context.Background(), testLoc)
	assert.Equal(t, types.ErrCodeCollectionExhausted, types.CodeOf(err))
	assert.Contains(t, err.Error(), "no providers configured")
}

func TestResolve_CancelledContextStopsFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := failing("a", "", 0)
	b := failing("b", "", 0)

	_, err := newTestCoordinator(&attemptLog{}, a, b).Resolve(ctx, testLoc)
	require.Error(t, err)
	assert.Equal(t, 0, a.Calls())
	assert.Equal(t, 0, b.Calls())
}

func TestResolve_PropagatesTickID(t *testing.T) {
	log := &attemptLog{}
	ctx := types.WithTickID(context.Background(), "tick-1")

	_, err := newTestCoordinator(log, failing("a", "", 0)).Resolve(ctx, testLoc)
	require.NoError(t, err)
	assert.Equal(t, "tick-1", log.attempts[0].TickID)
}
