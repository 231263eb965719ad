package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"ms-booking/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/uptrace/bun"
)

//go:embed sql/*.sql
var files embed.FS

// Runner applies the embedded schema migrations to a Postgres database.
type Runner struct {
	bunDB    *bun.DB
	logger   *logger.Logger
	migrator *migrate.Migrate
}

func NewRunner(bunDB *bun.DB, log *logger.Logger) *Runner {
	return &Runner{bunDB: bunDB, logger: log}
}

// Initialize prepares the migration system
// It borrows a single connection so Close leaves the shared pool open.
func (r *Runner) Initialize(ctx context.Context) error {
	conn, err := r.bunDB.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get migration connection: %w", err)
	}
	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	src, err := iofs.New(files, "sql")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	r.migrator = migrator
	return nil
}

func (r *Runner) ensure() error {
	if r.migrator == nil {
		return r.Initialize(context.Background())
	}
	return nil
}

// RunMigrations brings the schema up to date, repairing a dirty version first.
func (r *Runner) RunMigrations() error {
	if err := r.ensure(); err != nil {
		return err
	}

	version, dirty, err := r.migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		r.logger.Warn("MIGRATE", fmt.Sprintf("Detected dirty migration at version %d, forcing", version))
		if err := r.migrator.Force(int(version)); err != nil {
			return fmt.Errorf("failed to fix dirty migration: %w", err)
		}
	}

	if err := r.migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if version, _, err := r.migrator.Version(); err == nil {
		r.logger.Info("MIGRATE", fmt.Sprintf("Current schema version: %d", version))
	}
	return nil
}

// MigrateDown rolls back all migrations
func (r *Runner) MigrateDown() error {
	if err := r.ensure(); err != nil {
		return err
	}
	if err := r.migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// MigrateTo migrates up or down to a specific version
func (r *Runner) MigrateTo(version uint) error {
	if err := r.ensure(); err != nil {
		return err
	}
	if err := r.migrator.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration to version %d failed: %w", version, err)
	}
	return nil
}

func (r *Runner) Version() (uint, bool, error) {
	if err := r.ensure(); err != nil {
		return 0, false, err
	}
	version, dirty, err := r.migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Close frees resources associated with the migrator
func (r *Runner) Close() error {
	if r.migrator != nil {
		sourceErr, databaseErr := r.migrator.Close()
		if sourceErr != nil {
			return fmt.Errorf("error closing migrator source: %w", sourceErr)
		}
		if databaseErr != nil {
			return fmt.Errorf("error closing migrator database: %w", databaseErr)
		}
	}
	return nil
}
