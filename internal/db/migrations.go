package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"climatewatch/internal/types"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

// Dialect selects the migration set and placeholder style.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrationFile matches 001_create_samples.up.sql.
var migrationFile = regexp.MustCompile(`^(\d+)_(.+)\.up\.sql$`)

// LoadMigrations returns the embedded migrations for d in version order.
func LoadMigrations(d Dialect) ([]Migration, error) {
	return loadMigrations(migrationFS, path.Join("migrations", string(d)))
}

func loadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations %s: %w", dir, err)
	}

	seen := make(map[int]string)
	var out []Migration
	for _, e := range entries {
		m := migrationFile.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("invalid migration version in %s: %w", e.Name(), err)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d declared by %s and %s", version, prev, e.Name())
		}
		seen[version] = e.Name()

		body, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, Migration{
			Version: version,
			Name:    strings.ReplaceAll(m[2], "_", " "),
			SQL:     string(body),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// migrationConn abstracts the two driver APIs the migrator runs against.
type migrationConn interface {
	exec(ctx context.Context, query string, args ...any) error
	versions(ctx context.Context) ([]int, error)
}

const (
	createMigrationsTable = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`
	selectVersions = `SELECT version FROM schema_migrations ORDER BY version`
)

// Migrator applies pending migrations and records them in schema_migrations.
type Migrator struct {
	conn       migrationConn
	dialect    Dialect
	migrations []Migration
	logger     *slog.Logger
}

// NewPostgresMigrator creates a migrator for a pgx connection or pool.
func NewPostgresMigrator(db DBTX, logger *slog.Logger) (*Migrator, error) {
	return newMigrator(pgMigrationConn{db: db}, DialectPostgres, logger)
}

// NewSQLiteMigrator creates a migrator for a database/sql SQLite handle.
func NewSQLiteMigrator(db *sql.DB, logger *slog.Logger) (*Migrator, error) {
	return newMigrator(sqlMigrationConn{db: db}, DialectSQLite, logger)
}

func newMigrator(conn migrationConn, d Dialect, logger *slog.Logger) (*Migrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	migrations, err := LoadMigrations(d)
	if err != nil {
		return nil, err
	}
	return &Migrator{conn: conn, dialect: d, migrations: migrations, logger: logger}, nil
}

// Up applies every migration newer than the recorded ones and returns the
// number applied.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.conn.exec(ctx, createMigrationsTable); err != nil {
		return 0, types.NewAppError(types.ErrCodeStoreUnavailable, "failed to create schema_migrations", err)
	}
	versions, err := m.conn.versions(ctx)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeStoreUnavailable, "failed to read schema_migrations", err)
	}
	done := make(map[int]bool, len(versions))
	for _, v := range versions {
		done[v] = true
	}

	record := `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`
	if m.dialect == DialectSQLite {
		record = `INSERT INTO schema_migrations (version, name) VALUES (?, ?)`
	}

	applied := 0
	for _, mig := range m.migrations {
		if done[mig.Version] {
			continue
		}
		if err := m.conn.exec(ctx, mig.SQL); err != nil {
			return applied, types.NewAppError(types.ErrCodeStoreUnavailable,
				fmt.Sprintf("migration %03d (%s) failed", mig.Version, mig.Name), err)
		}
		if err := m.conn.exec(ctx, record, mig.Version, mig.Name); err != nil {
			return applied, types.NewAppError(types.ErrCodeStoreUnavailable,
				fmt.Sprintf("failed to record migration %03d", mig.Version), err)
		}
		applied++
		m.logger.InfoContext(ctx, "applied migration",
			"dialect", string(m.dialect),
			"version", mig.Version,
			"name", mig.Name,
		)
	}
	return applied, nil
}

type pgMigrationConn struct{ db DBTX }

func (c pgMigrationConn) exec(ctx context.Context, query string, args ...any) error {
	_, err := c.db.Exec(ctx, query, args...)
	return err
}

func (c pgMigrationConn) versions(ctx context.Context) ([]int, error) {
	rows, err := c.db.Query(ctx, selectVersions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type sqlMigrationConn struct{ db *sql.DB }

func (c sqlMigrationConn) exec(ctx context.Context, query string, args ...any) error {
	_, err := c.db.ExecContext(ctx, query, args...)
	return err
}

func (c sqlMigrationConn) versions(ctx context.Context) ([]int, error) {
	rows, err := c.db.QueryContext(ctx, selectVersions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
