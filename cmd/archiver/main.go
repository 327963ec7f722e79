// Package main is the entry point of the maintenance Lambda.
//
// EventBridge rules send a scheduler.MaintenancePayload naming the task; the
// handler takes a job lock for the task and hour, then routes to the service:
//
//   - archive_samples: export the previous local month of raw samples to
//     object storage as zstd-compressed CSV.
//   - publish_reports: publish the monthly and yearly reports that are due.
//
// A lock held by another worker turns the invocation into a no-op.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"climatewatch/internal/app"
	"climatewatch/internal/archive"
	"climatewatch/internal/config"
	"climatewatch/internal/db"
	"climatewatch/internal/scheduler"
	"climatewatch/internal/store"
	"climatewatch/internal/types"
)

// lockTTL covers the longest expected invocation with margin.
const lockTTL = 15 * time.Minute

// ServiceRegistry holds the services the handler routes to. A nil service
// means the task is not configured in this deployment.
type ServiceRegistry struct {
	Archive ArchiveService
	Reports ReportService
}

// ArchiveService exports one month of samples.
type ArchiveService interface {
	ExportMonth(ctx context.Context, loc types.Location, month time.Time) (archive.ExportResult, error)
}

// ReportService publishes due reports.
type ReportService interface {
	Run(ctx context.Context, now time.Time) (int, error)
}

// JobLocker abstracts the distributed lock acquisition.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
}

// Handler holds the dependencies of the maintenance handler.
type Handler struct {
	Services ServiceRegistry
	JobLock  JobLocker
	Location types.Location
	WorkerID string
	Clock    types.Clock
	Logger   *slog.Logger
}

// Handle acquires the "task:YYYY-MM-DDTHH" lock and runs the task.
func (h *Handler) Handle(ctx context.Context, payload scheduler.MaintenancePayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := h.Clock
	if clock == nil {
		clock = types.RealClock{}
	}

	now := payload.Now(clock.Now())
	task := string(payload.Task)
	logger.InfoContext(ctx, "maintenance handler invoked",
		"task", task,
		"reference_time", now.Format(time.RFC3339),
		"worker_id", h.WorkerID,
	)
	if payload.Task == "" {
		return "", fmt.Errorf("empty task type in maintenance payload")
	}

	lockID := fmt.Sprintf("%s:%s", payload.Task, now.Truncate(time.Hour).Format("2006-01-02T15"))
	acquired, err := h.JobLock.Acquire(ctx, lockID, h.WorkerID, lockTTL)
	if err != nil {
		logger.ErrorContext(ctx, "failed to acquire job lock", "lock_id", lockID, "error", err)
		return "", fmt.Errorf("acquiring job lock %s: %w", lockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock not acquired, another worker is processing", "lock_id", lockID)
		return fmt.Sprintf("skipped: lock %s held by another worker", lockID), nil
	}

	items, err := h.dispatch(ctx, payload.Task, now)
	if err != nil {
		logger.ErrorContext(ctx, "task execution failed", "task", task, "error", err)
		return "", fmt.Errorf("task %s failed: %w", task, err)
	}

	result := fmt.Sprintf("task %s complete: %d items processed", task, items)
	logger.InfoContext(ctx, result, "task", task, "items", items)
	return result, nil
}

func (h *Handler) dispatch(ctx context.Context, task scheduler.TaskType, now time.Time) (int, error) {
	switch task {
	case scheduler.TaskArchiveSamples:
		if h.Services.Archive == nil {
			return 0, fmt.Errorf("ARCHIVE_BACKEND is none")
		}
		month := types.MonthPeriod(now.In(store.Zone(h.Location))).Previous()
		res, err := h.Services.Archive.ExportMonth(ctx, h.Location, month.Start)
		return res.Rows, err

	case scheduler.TaskPublishReports:
		if h.Services.Reports == nil {
			return 0, fmt.Errorf("report publishing is not configured")
		}
		return h.Services.Reports.Run(ctx, now)

	default:
		return 0, fmt.Errorf("unknown task type: %q", task)
	}
}

// processLocker is the JobLocker for stores without a job_locks table. It
// only excludes invocations sharing one warm Lambda instance.
type processLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock types.Clock
}

func newProcessLocker(clock types.Clock) *processLocker {
	return &processLocker{held: make(map[string]time.Time), clock: clock}
}

func (l *processLocker) Acquire(_ context.Context, lockID string, _ string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	if exp, ok := l.held[lockID]; ok && now.Before(exp) {
		return false, nil
	}
	l.held[lockID] = now.Add(ttl)
	return true, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("archiver Lambda initializing (cold start)")

	cfg, err := config.LoadConfig(app.SecretProvider())
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = app.NewLogger(cfg.LogLevel)

	ctx := context.Background()
	rt, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	exporter, err := rt.Exporter(ctx)
	if err != nil {
		logger.Error("failed to initialize archive exporter", "error", err)
		os.Exit(1)
	}
	publisher, err := rt.Publisher(ctx)
	if err != nil {
		logger.Error("failed to initialize publishers", "error", err)
		os.Exit(1)
	}

	clock := types.RealClock{}
	var locker JobLocker = newProcessLocker(clock)
	if rt.Pool != nil {
		locker = db.NewJobLockRepository(rt.Pool, clock)
	}

	services := ServiceRegistry{Reports: rt.ReportJob(publisher)}
	// Archive stays a nil interface when the backend is none.
	if exporter != nil {
		services.Archive = exporter
	}

	workerID := uuid.New().String()
	handler := &Handler{
		Services: services,
		JobLock:  locker,
		Location: rt.Location,
		WorkerID: workerID,
		Clock:    clock,
		Logger:   logger,
	}

	logger.Info("archiver Lambda initialized",
		"worker_id", workerID,
		"archive_backend", cfg.Archive.Backend,
	)
	lambda.Start(handler.Handle)
}
