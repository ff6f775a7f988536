package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/saviobatista/sbs-approach/pkg/logger"
)

// ErrNothingToRollback is returned by Rollback when no migration is applied
var ErrNothingToRollback = errors.New("no migrations to rollback")

// Migration represents a database migration
type Migration struct {
	Name    string
	UpSQL   string
	DownSQL string
}

// All lists every migration in the order they apply
var All = []*Migration{
	SystemStats,
	SystemStatsDaily,
}

// Status reports whether a migration has been applied
type Status struct {
	Name    string
	Applied bool
}

// Migrator manages database migrations
type Migrator struct {
	db     *sql.DB
	logger *logger.Logger
}

// New creates a new Migrator
func New(db *sql.DB) *Migrator {
	return &Migrator{db: db, logger: logger.Nop()}
}

// WithLogger sets the logger used to report applied migrations
func (m *Migrator) WithLogger(l *logger.Logger) *Migrator {
	m.logger = l.Named("migrate")
	return m
}

// Initialize creates the migrations table if it doesn't exist
func (m *Migrator) Initialize(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := m.db.ExecContext(ctx, query)
	return err
}

// GetAppliedMigrations returns the set of applied migration names
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT name FROM migrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// run executes body and the bookkeeping statement in one transaction
func (m *Migrator) run(ctx context.Context, migration *Migration, body, recordQuery string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			m.logger.Warn("Failed to rollback transaction", logger.Error(err))
		}
	}()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", migration.Name, err)
	}
	if _, err := tx.ExecContext(ctx, recordQuery, migration.Name); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", migration.Name, err)
	}
	return tx.Commit()
}

// ApplyMigration applies a single migration
func (m *Migrator) ApplyMigration(ctx context.Context, migration *Migration) error {
	return m.run(ctx, migration, migration.UpSQL, "INSERT INTO migrations (name) VALUES ($1)")
}

// RollbackMigration rolls back a single migration
func (m *Migrator) RollbackMigration(ctx context.Context, migration *Migration) error {
	return m.run(ctx, migration, migration.DownSQL, "DELETE FROM migrations WHERE name = $1")
}

// Migrate applies all pending migrations
func (m *Migrator) Migrate(ctx context.Context, migrations []*Migration) error {
	if err := m.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Name] {
			continue
		}
		if err := m.ApplyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Name, err)
		}
		m.logger.Info("Applied migration", logger.String("name", migration.Name))
	}
	return nil
}

// Rollback rolls back the most recent applied migration
func (m *Migrator) Rollback(ctx context.Context, migrations []*Migration) error {
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var last *Migration
	for i := len(migrations) - 1; i >= 0; i-- {
		if applied[migrations[i].Name] {
			last = migrations[i]
			break
		}
	}
	if last == nil {
		return ErrNothingToRollback
	}

	if err := m.RollbackMigration(ctx, last); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", last.Name, err)
	}
	m.logger.Info("Rolled back migration", logger.String("name", last.Name))
	return nil
}

// Status reports which of migrations have been applied
func (m *Migrator) Status(ctx context.Context, migrations []*Migration) ([]Status, error) {
	if err := m.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	status := make([]Status, len(migrations))
	for i, migration := range migrations {
		status[i] = Status{Name: migration.Name, Applied: applied[migration.Name]}
	}
	return status, nil
}
