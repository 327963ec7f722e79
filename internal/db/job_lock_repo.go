package db

import (
	"context"
	"time"

	"climatewatch/internal/store"
	"climatewatch/internal/types"
)

// JobLockRepository provides distributed locking via the job_locks table so
// that only one archiver invocation handles a task per window.
type JobLockRepository struct {
	db    DBTX
	clock types.Clock
}

// NewJobLockRepository creates a new JobLockRepository backed by the given
// database connection (pool or transaction).
func NewJobLockRepository(db DBTX, clock types.Clock) *JobLockRepository {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &JobLockRepository{db: db, clock: clock}
}

// Acquire inserts the lock row, or takes over an expired one. It returns
// false when another worker holds an unexpired lock. lockID is typically
// "task:window", e.g. "archive_samples:2024-02-01T03".
//
// locked_at and expires_at are computed in Go rather than with interval
// arithmetic; Go duration strings such as "15m0s" are not valid PostgreSQL
// intervals.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error) {
	now := r.clock.Now().UTC()
	expiresAt := now.Add(ttl)

	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		   SET worker_id = EXCLUDED.worker_id,
		       locked_at = EXCLUDED.locked_at,
		       expires_at = EXCLUDED.expires_at
		   WHERE job_locks.expires_at < $3`,
		lockID,
		workerID,
		now,
		expiresAt,
	)
	if err != nil {
		return false, store.Unavailable("acquire job lock", err)
	}

	// One row means a fresh insert or a reclaimed expired lock.
	return tag.RowsAffected() > 0, nil
}
