// Package config defines the configuration of the climatewatch collector.
// Configuration is loaded once at process start and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format aborts start-up.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"climatewatch/internal/types"
)

// SecretString is an alias for types.SecretString so credentials stay
// redacted when the config is logged.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subsets they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"climatewatch"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Location  LocationConfig
	Schedule  ScheduleConfig
	Providers ProvidersConfig
	Retry     RetryConfig
	Store     StoreConfig
	Cache     CacheConfig
	Alerts    AlertConfig
	Notify    NotifyConfig
	Archive   ArchiveConfig
	AWS       AWSConfig
	Server    ServerConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// LocationConfig identifies the monitored location.
type LocationConfig struct {
	Name      string  `envconfig:"LOCATION_NAME" default:"montreal" validate:"required"`
	Latitude  float64 `envconfig:"LOCATION_LAT" default:"45.5019" validate:"gte=-90,lte=90"`
	Longitude float64 `envconfig:"LOCATION_LON" default:"-73.5673" validate:"gte=-180,lte=180"`
	Timezone  string  `envconfig:"LOCATION_TIMEZONE" default:"America/Toronto" validate:"required"`
}

// ScheduleConfig selects and parameterizes the ScheduleWindow. Interval and
// calendar settings are mutually exclusive.
type ScheduleConfig struct {
	Mode      string        `envconfig:"SCHEDULE_MODE" default:"interval" validate:"oneof=interval calendar"`
	Interval  time.Duration `envconfig:"SCHEDULE_INTERVAL"`
	StartDate string        `envconfig:"SCHEDULE_START_DATE"` // YYYY-MM-DD
	EndDate   string        `envconfig:"SCHEDULE_END_DATE"`   // YYYY-MM-DD, closes at 00:00 local
	Weekdays  []string      `envconfig:"SCHEDULE_WEEKDAYS"`   // e.g. mon,wed,fri
	TimeOfDay string        `envconfig:"SCHEDULE_TIME" default:"09:00"`

	// RunImmediately fires one interval tick at start-up.
	RunImmediately bool          `envconfig:"SCHEDULE_RUN_IMMEDIATELY" default:"true"`
	TickTimeout    time.Duration `envconfig:"TICK_TIMEOUT" default:"4m"`
}

// ProvidersConfig lists providers in fallback priority order with their
// endpoints and credentials.
type ProvidersConfig struct {
	Priority []string      `envconfig:"PROVIDER_PRIORITY" default:"openmeteo" validate:"required,min=1,dive,oneof=openweathermap openmeteo aeris weatherapi"`
	Timeout  time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"10s" validate:"gt=0"`

	OpenWeatherMapURL    string       `envconfig:"OPENWEATHERMAP_BASE_URL" default:"https://api.openweathermap.org" validate:"url"`
	OpenWeatherMapAPIKey SecretString `envconfig:"OPENWEATHERMAP_API_KEY"`

	OpenMeteoURL        string `envconfig:"OPENMETEO_BASE_URL" default:"https://api.open-meteo.com" validate:"url"`
	OpenMeteoArchiveURL string `envconfig:"OPENMETEO_ARCHIVE_URL" default:"https://archive-api.open-meteo.com" validate:"url"`

	AerisURL          string       `envconfig:"AERIS_BASE_URL" default:"https://api.aerisapi.com" validate:"url"`
	AerisClientID     SecretString `envconfig:"AERIS_CLIENT_ID"`
	AerisClientSecret SecretString `envconfig:"AERIS_CLIENT_SECRET"`

	WeatherAPIURL    string       `envconfig:"WEATHERAPI_BASE_URL" default:"https://api.weatherapi.com" validate:"url"`
	WeatherAPIAPIKey SecretString `envconfig:"WEATHERAPI_API_KEY"`

	// Circuit breaker trips after this many consecutive failures.
	BreakerThreshold uint32        `envconfig:"PROVIDER_BREAKER_THRESHOLD" default:"5" validate:"gt=0"`
	BreakerCooldown  time.Duration `envconfig:"PROVIDER_BREAKER_COOLDOWN" default:"60s"`
}

// RetryConfig parameterizes the shared retry policy. MaxRetries is the total
// number of attempts made against one provider.
type RetryConfig struct {
	MaxRetries int           `envconfig:"PROVIDER_MAX_RETRIES" default:"3" validate:"gte=1,lte=10"`
	BaseDelay  time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s" validate:"gt=0"`
	MaxDelay   time.Duration `envconfig:"RETRY_MAX_DELAY" default:"10s" validate:"gtefield=BaseDelay"`
}

// StoreConfig selects the durable backend.
type StoreConfig struct {
	Backend     string       `envconfig:"STORE_BACKEND" default:"sqlite" validate:"oneof=memory sqlite postgres"`
	DatabaseURL SecretString `envconfig:"DATABASE_URL" validate:"required_if=Backend postgres"`
	SQLitePath  string       `envconfig:"SQLITE_PATH" default:"climatewatch.db" validate:"required_if=Backend sqlite"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"4"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`

	ClockSkewTolerance time.Duration `envconfig:"CLOCK_SKEW_TOLERANCE" default:"2m"`
	RangePageSize      int           `envconfig:"RANGE_PAGE_SIZE" default:"500" validate:"gt=0"`
}

// CacheConfig enables the valkey cache in front of Latest. An empty address
// disables it.
type CacheConfig struct {
	ValkeyAddr string        `envconfig:"VALKEY_ADDR"`
	TTL        time.Duration `envconfig:"CACHE_TTL" default:"10m"`
	Prefix     string        `envconfig:"CACHE_PREFIX" default:"climatewatch"`
}

// AlertConfig holds the extreme-condition thresholds.
type AlertConfig struct {
	HeatC       float64 `envconfig:"ALERT_HEAT_C" default:"30"`
	ColdC       float64 `envconfig:"ALERT_COLD_C" default:"-20" validate:"ltfield=HeatC"`
	WindKph     float64 `envconfig:"ALERT_WIND_KPH" default:"50" validate:"gt=0"`
	HumidityPct int     `envconfig:"ALERT_HUMIDITY_PCT" default:"90" validate:"gte=0,lte=100"`
}

// NotifyConfig configures the hand-off of reports and alerts.
type NotifyConfig struct {
	ReportQueueURL   string       `envconfig:"REPORT_QUEUE_URL" validate:"omitempty,url"`
	TelegramBotToken SecretString `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string       `envconfig:"TELEGRAM_CHAT_ID"`
	TelegramURL      string       `envconfig:"TELEGRAM_BASE_URL" default:"https://api.telegram.org" validate:"url"`
}

// ArchiveConfig configures the monthly raw-sample export.
type ArchiveConfig struct {
	Backend        string       `envconfig:"ARCHIVE_BACKEND" default:"none" validate:"oneof=none s3 minio"`
	Bucket         string       `envconfig:"ARCHIVE_BUCKET" validate:"required_unless=Backend none"`
	Prefix         string       `envconfig:"ARCHIVE_PREFIX" default:"samples"`
	MinIOEndpoint  string       `envconfig:"MINIO_ENDPOINT" validate:"required_if=Backend minio"`
	MinIOAccessKey SecretString `envconfig:"MINIO_ACCESS_KEY"`
	MinIOSecretKey SecretString `envconfig:"MINIO_SECRET_KEY"`
	MinIORegion    string       `envconfig:"MINIO_REGION" default:"us-east-1"`
}

// AWSConfig holds regional settings shared by the AWS SDK clients.
type AWSConfig struct {
	Region         string `envconfig:"AWS_REGION" default:"us-east-1"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"false"`
}

// ServerConfig holds the ops HTTP listener settings.
type ServerConfig struct {
	OpsPort string `envconfig:"OPS_PORT" default:"8081"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment values.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)

// MonitoredLocation returns the monitored location as a domain value.
func (c *Config) MonitoredLocation() types.Location {
	return types.Location{
		Name:      c.Location.Name,
		Latitude:  c.Location.Latitude,
		Longitude: c.Location.Longitude,
		Timezone:  c.Location.Timezone,
	}
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// Window builds the ScheduleWindow described by the schedule settings.
func (s ScheduleConfig) Window(timezone string) (types.ScheduleWindow, error) {
	calendarSet := s.StartDate != "" || s.EndDate != "" || len(s.Weekdays) > 0

	switch s.Mode {
	case "interval":
		if calendarSet {
			return types.ScheduleWindow{}, errors.New("SCHEDULE_MODE=interval conflicts with calendar settings (START_DATE/END_DATE/WEEKDAYS)")
		}
		every := s.Interval
		if every == 0 {
			every = 5 * time.Minute
		}
		w := types.ScheduleWindow{Interval: &types.IntervalSchedule{Every: every}}
		return w, w.Validate()

	case "calendar":
		if s.Interval != 0 {
			return types.ScheduleWindow{}, errors.New("SCHEDULE_MODE=calendar conflicts with SCHEDULE_INTERVAL")
		}
		zone, err := time.LoadLocation(timezone)
		if err != nil {
			return types.ScheduleWindow{}, fmt.Errorf("loading timezone %q: %w", timezone, err)
		}
		start, err := time.ParseInLocation(time.DateOnly, s.StartDate, zone)
		if err != nil {
			return types.ScheduleWindow{}, fmt.Errorf("parsing SCHEDULE_START_DATE: %w", err)
		}
		end, err := time.ParseInLocation(time.DateOnly, s.EndDate, zone)
		if err != nil {
			return types.ScheduleWindow{}, fmt.Errorf("parsing SCHEDULE_END_DATE: %w", err)
		}
		weekdays := make([]time.Weekday, 0, len(s.Weekdays))
		for _, raw := range s.Weekdays {
			name := strings.ToLower(strings.TrimSpace(raw))
			if len(name) > 3 {
				name = name[:3]
			}
			wd, ok := weekdayNames[name]
			if !ok {
				return types.ScheduleWindow{}, fmt.Errorf("unknown weekday %q", raw)
			}
			weekdays = append(weekdays, wd)
		}
		tod, err := parseTimeOfDay(s.TimeOfDay)
		if err != nil {
			return types.ScheduleWindow{}, err
		}
		w := types.ScheduleWindow{Calendar: &types.CalendarSchedule{
			StartDate: start,
			EndDate:   end,
			Weekdays:  weekdays,
			TimeOfDay: tod,
			Zone:      zone,
		}}
		return w, w.Validate()
	}
	return types.ScheduleWindow{}, fmt.Errorf("unknown SCHEDULE_MODE %q", s.Mode)
}

func parseTimeOfDay(raw string) (time.Duration, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("parsing SCHEDULE_TIME %q: %w", raw, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// WorstCaseTick is the longest a single resolution can take when every
// provider times out on every attempt. A Retry-After hint can stretch any
// wait up to MaxDelay, so each wait counts as MaxDelay.
func (c *Config) WorstCaseTick() time.Duration {
	waits := time.Duration(max(c.Retry.MaxRetries-1, 0))
	perProvider := time.Duration(c.Retry.MaxRetries)*c.Providers.Timeout + waits*c.Retry.MaxDelay
	return time.Duration(len(c.Providers.Priority)) * perProvider
}

// crossValidate enforces rules that span several sections.
func (c *Config) crossValidate() error {
	if _, err := c.Schedule.Window(c.Location.Timezone); err != nil {
		return err
	}
	if worst := c.WorstCaseTick(); c.Schedule.TickTimeout <= worst {
		return fmt.Errorf("TICK_TIMEOUT %s must exceed the worst-case provider budget %s", c.Schedule.TickTimeout, worst)
	}
	for _, name := range c.Providers.Priority {
		switch types.ProviderID(name) {
		case types.ProviderOpenWeatherMap:
			if !c.Providers.OpenWeatherMapAPIKey.IsSet() {
				return errors.New("OPENWEATHERMAP_API_KEY is required when openweathermap is in PROVIDER_PRIORITY")
			}
		case types.ProviderAeris:
			if !c.Providers.AerisClientID.IsSet() || !c.Providers.AerisClientSecret.IsSet() {
				return errors.New("AERIS_CLIENT_ID and AERIS_CLIENT_SECRET are required when aeris is in PROVIDER_PRIORITY")
			}
		case types.ProviderWeatherAPI:
			if !c.Providers.WeatherAPIAPIKey.IsSet() {
				return errors.New("WEATHERAPI_API_KEY is required when weatherapi is in PROVIDER_PRIORITY")
			}
		}
	}
	if (c.Notify.TelegramBotToken.IsSet()) != (c.Notify.TelegramChatID != "") {
		return errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	return nil
}
