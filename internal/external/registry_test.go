package external

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"climatewatch/internal/config"
	"climatewatch/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testProvidersConfig(priority ...string) config.ProvidersConfig {
	return config.ProvidersConfig{
		Priority:             priority,
		Timeout:              time.Second,
		OpenWeatherMapAPIKey: types.SecretString("owm-key"),
		AerisClientID:        types.SecretString("id"),
		AerisClientSecret:    types.SecretString("secret"),
		WeatherAPIAPIKey:     types.SecretString("wa-key"),
		BreakerThreshold:     5,
		BreakerCooldown:      time.Minute,
	}
}

func TestNewRegistry_PreservesPriorityOrder(t *testing.T) {
	reg, err := NewRegistry(testProvidersConfig("aeris", "openweathermap", "weatherapi", "openmeteo"), &http.Client{}, testLogger())
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}

	want := []types.ProviderID{types.ProviderAeris, types.ProviderOpenWeatherMap, types.ProviderWeatherAPI, types.ProviderOpenMeteo}
	got := reg.Providers()
	if len(got) != len(want) {
		t.Fatalf("expected %d providers, got %d", len(want), len(got))
	}
	for i, p := range got {
		if p.ID() != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], p.ID())
		}
	}
}

func TestNewRegistry_RejectsUnknownProvider(t *testing.T) {
	_, err := NewRegistry(testProvidersConfig("openmeteo", "darksky"), nil, testLogger())
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if types.CodeOf(err) != types.ErrCodeProviderUnsupported {
		t.Errorf("expected unsupported code, got %s", types.CodeOf(err))
	}
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	if _, err := NewRegistry(testProvidersConfig("openmeteo", "openmeteo"), nil, testLogger()); err == nil {
		t.Fatal("expected error for duplicate provider")
	}
}

func TestRegistry_HistoricalAndLookup(t *testing.T) {
	reg, err := NewRegistry(testProvidersConfig("openweathermap", "openmeteo"), nil, testLogger())
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}

	hp, ok := reg.Historical()
	if !ok {
		t.Fatal("expected a historical provider")
	}
	if hp.ID() != types.ProviderOpenMeteo {
		t.Errorf("expected openmeteo, got %s", hp.ID())
	}

	if _, ok := reg.Lookup(types.ProviderOpenWeatherMap); !ok {
		t.Error("expected openweathermap to be registered")
	}
	if _, ok := reg.Lookup(types.ProviderAeris); ok {
		t.Error("expected aeris to be absent")
	}
}

func TestRegistry_NoHistoricalProvider(t *testing.T) {
	reg, err := NewRegistry(testProvidersConfig("weatherapi"), nil, testLogger())
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}
	if _, ok := reg.Historical(); ok {
		t.Error("expected no historical provider")
	}
}
