// Package app assembles the collector components from a loaded Config. Each
// entry point under cmd/ opens one Runtime at start-up and builds only the
// pieces it runs; expensive clients (AWS, valkey, database pools) are created
// on first use and released by Close.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"climatewatch/internal/archive"
	"climatewatch/internal/collect"
	"climatewatch/internal/config"
	"climatewatch/internal/core"
	"climatewatch/internal/db"
	"climatewatch/internal/external"
	"climatewatch/internal/normalize"
	"climatewatch/internal/notify"
	"climatewatch/internal/report"
	"climatewatch/internal/store"
	"climatewatch/internal/telemetry"
	"climatewatch/internal/types"
)

// NewLogger creates a JSON slog.Logger on stdout for the given level name.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// SecretProvider returns the SSM provider used to resolve *_SSM_PARAM
// variables, or nil under APP_ENV=local.
func SecretProvider() config.SecretProvider {
	if os.Getenv("APP_ENV") == "local" {
		return nil
	}
	return config.NewSSMProvider(os.Getenv("AWS_REGION"))
}

// Runtime holds the process-wide dependencies built from Config.
type Runtime struct {
	Config   *config.Config
	Logger   *slog.Logger
	Location types.Location
	Store    store.Store
	// Probes checks the store and cache for /health.
	Probes []core.HealthProbe
	// Pool is set only for the postgres backend.
	Pool *pgxpool.Pool

	clock      types.Clock
	httpClient *http.Client

	awsOnce sync.Once
	awsCfg  aws.Config
	awsErr  error

	closers []func()
}

// Open connects the configured sample store, and the valkey cache when one
// is configured. A cache that cannot be reached is logged and skipped.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{
		Config:     cfg,
		Logger:     logger,
		Location:   cfg.MonitoredLocation(),
		clock:      types.RealClock{},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	st, err := rt.openStore(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Store = st

	if addr := cfg.Cache.ValkeyAddr; addr != "" {
		client, err := store.NewValkeyClient(ctx, addr)
		if err != nil {
			logger.WarnContext(ctx, "valkey unavailable, serving latest from the store", "addr", addr, "error", err)
		} else {
			cache := store.NewValkeyCache(client)
			rt.closers = append(rt.closers, client.Close)
			rt.Probes = append(rt.Probes, core.NewProbe("cache", cache.Ping))
			rt.Store = store.NewCachedStore(st, cache, store.CachedStoreConfig{
				Prefix: cfg.Cache.Prefix,
				TTL:    cfg.Cache.TTL,
				Logger: logger,
			})
		}
	}

	logger.InfoContext(ctx, "store ready", "backend", cfg.Store.Backend, "cache", cfg.Cache.ValkeyAddr != "")
	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context) (store.Store, error) {
	sc := rt.Config.Store
	switch sc.Backend {
	case "memory":
		return store.NewMemoryStore(sc.RangePageSize, store.WithClock(rt.clock)), nil

	case "sqlite":
		s, err := db.OpenSQLite(ctx, db.SQLiteConfig{Path: sc.SQLitePath, PageSize: sc.RangePageSize, Clock: rt.clock, Logger: rt.Logger})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = s.Close() })
		rt.Probes = append(rt.Probes, core.NewProbe("store", s.Ping))
		return s, nil

	case "postgres":
		poolCfg, err := pgxpool.ParseConfig(sc.DatabaseURL.Unmask())
		if err != nil {
			return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
		}
		poolCfg.MaxConns = sc.MaxConns
		poolCfg.MinConns = sc.MinConns
		poolCfg.MaxConnLifetime = sc.MaxConnLifetime
		poolCfg.HealthCheckPeriod = sc.HealthCheckPeriod

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, store.Unavailable("create pool", err)
		}
		rt.closers = append(rt.closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			return nil, store.Unavailable("ping postgres", err)
		}
		migrator, err := db.NewPostgresMigrator(pool, rt.Logger)
		if err != nil {
			return nil, err
		}
		if _, err := migrator.Up(ctx); err != nil {
			return nil, err
		}
		rt.Pool = pool
		rt.Probes = append(rt.Probes, core.NewProbe("store", pool.Ping))
		return db.NewSampleRepository(pool, sc.RangePageSize, rt.clock), nil
	}
	return nil, fmt.Errorf("unknown STORE_BACKEND %q", sc.Backend)
}

// Close releases every client opened by the Runtime, newest first.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// AWSConfig loads the shared AWS SDK configuration once.
func (rt *Runtime) AWSConfig(ctx context.Context) (aws.Config, error) {
	rt.awsOnce.Do(func() {
		rt.awsCfg, rt.awsErr = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(rt.Config.AWS.Region))
	})
	return rt.awsCfg, rt.awsErr
}

// Metrics returns CloudWatch metrics when METRICS_ENABLED is set and the
// no-op recorder otherwise.
func (rt *Runtime) Metrics(ctx context.Context) (telemetry.Recorder, error) {
	if !rt.Config.AWS.MetricsEnabled {
		return telemetry.NoopMetrics{}, nil
	}
	awsCfg, err := rt.AWSConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return telemetry.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), rt.Logger), nil
}

// Thresholds returns the configured alert limits.
func (rt *Runtime) Thresholds() report.Thresholds {
	a := rt.Config.Alerts
	return report.Thresholds{HeatC: a.HeatC, ColdC: a.ColdC, WindKph: a.WindKph, HumidityPct: a.HumidityPct}
}

// Publisher fans alerts and reports out to the log and to every configured
// channel: the SQS report queue and Telegram.
func (rt *Runtime) Publisher(ctx context.Context) (notify.Publisher, error) {
	nc := rt.Config.Notify
	pubs := notify.Multi{notify.Log{Logger: rt.Logger}}

	if nc.ReportQueueURL != "" {
		awsCfg, err := rt.AWSConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		pubs = append(pubs, notify.NewSQSPublisher(sqs.NewFromConfig(awsCfg), nc.ReportQueueURL, rt.clock, rt.Logger))
	}
	if nc.TelegramBotToken.IsSet() {
		tg := external.NewTelegramClient(rt.httpClient, external.TelegramClientConfig{
			BaseURL:  nc.TelegramURL,
			BotToken: nc.TelegramBotToken,
			Breaker:  external.DefaultBreakerSettings(),
			Options:  []external.BaseClientOption{external.WithTimeout(rt.Config.Providers.Timeout)},
			Logger:   rt.Logger.With("channel", "telegram"),
		})
		pubs = append(pubs, notify.NewTelegramPublisher(tg, nc.TelegramChatID))
	}
	return pubs, nil
}

// Registry builds the provider clients in priority order.
func (rt *Runtime) Registry() (*external.Registry, error) {
	return external.NewRegistry(rt.Config.Providers, rt.httpClient, rt.Logger)
}

// Normalizer builds the payload normalizer.
func (rt *Runtime) Normalizer() *normalize.Normalizer {
	return normalize.New(normalize.Config{
		Clock:         rt.clock,
		SkewTolerance: rt.Config.Store.ClockSkewTolerance,
		Logger:        rt.Logger,
	})
}

// Collector wires the fallback coordinator, the store and alerting into a
// Collector for the monitored location.
func (rt *Runtime) Collector(notifier collect.AlertNotifier, metrics telemetry.Recorder) (*collect.Collector, error) {
	reg, err := rt.Registry()
	if err != nil {
		return nil, err
	}
	rc := rt.Config.Retry
	coordinator := collect.NewCoordinator(collect.CoordinatorConfig{
		Providers:  reg.Providers(),
		Normalizer: rt.Normalizer(),
		Policy:     collect.RetryPolicy{MaxRetries: rc.MaxRetries, BaseDelay: rc.BaseDelay, MaxDelay: rc.MaxDelay},
		Observer:   collect.NewMetricsObserver(metrics, rt.Logger),
		Clock:      rt.clock,
		Logger:     rt.Logger,
	})
	return collect.NewCollector(collect.CollectorConfig{
		Location: rt.Location,
		Resolver: coordinator,
		Store:    rt.Store,
		Alerts:   rt.Thresholds(),
		Notifier: notifier,
		Metrics:  metrics,
		Clock:    rt.clock,
		Logger:   rt.Logger,
	}), nil
}

// ReportJob builds the monthly and yearly report publisher.
func (rt *Runtime) ReportJob(pub report.Publisher) *report.ReportJob {
	reporter := report.NewReporter(report.ReporterConfig{
		Store:      rt.Store,
		Thresholds: rt.Thresholds(),
		Clock:      rt.clock,
		Logger:     rt.Logger,
	})
	return report.NewReportJob(report.ReportJobConfig{
		Location:   rt.Location,
		Summarizer: reporter,
		Publisher:  pub,
		Logger:     rt.Logger,
	})
}

// Exporter builds the monthly archive exporter. It returns nil when
// ARCHIVE_BACKEND is none.
func (rt *Runtime) Exporter(ctx context.Context) (*archive.Exporter, error) {
	ac := rt.Config.Archive
	var objects archive.ObjectStore
	switch ac.Backend {
	case "none":
		return nil, nil
	case "s3":
		awsCfg, err := rt.AWSConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		objects = archive.NewS3ObjectStore(s3.NewFromConfig(awsCfg), ac.Bucket)
	case "minio":
		m, err := archive.NewMinIOObjectStore(archive.MinIOConfig{
			Endpoint:  ac.MinIOEndpoint,
			AccessKey: ac.MinIOAccessKey,
			SecretKey: ac.MinIOSecretKey,
			Region:    ac.MinIORegion,
			Bucket:    ac.Bucket,
			Logger:    rt.Logger,
		})
		if err != nil {
			return nil, err
		}
		objects = m
	default:
		return nil, fmt.Errorf("unknown ARCHIVE_BACKEND %q", ac.Backend)
	}
	return archive.NewExporter(archive.ExporterConfig{
		Store:   rt.Store,
		Objects: objects,
		Prefix:  ac.Prefix,
		Logger:  rt.Logger,
	}), nil
}
