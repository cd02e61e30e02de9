package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"rain-platform/pkg/logging"
)

const migrationsTable = "schema_migrations"

// Migrator applies embedded SQL migrations to an open connection
type Migrator struct {
	db     *DB
	source fs.FS
	path   string
	logger *logging.StructuredLogger
}

// NewMigrator creates a migrator reading *.sql files from path inside source
func NewMigrator(db *DB, source fs.FS, path string, logger *logging.StructuredLogger) *Migrator {
	return &Migrator{db: db, source: source, path: path, logger: logger}
}

func (m *Migrator) databaseDriver() (migratedb.Driver, error) {
	sqlDB := m.db.DB().DB
	switch m.db.Driver() {
	case DriverPostgres:
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: migrationsTable})
	case DriverSQLite:
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: migrationsTable})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.db.Driver())
	}
}

func (m *Migrator) instance() (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(m.source, m.path)
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source driver for path %s: %w", m.path, err)
	}

	dbDriver, err := m.databaseDriver()
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	inst, err := migrate.NewWithInstance("iofs", sourceDriver, m.db.Driver(), dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return inst, nil
}

// Up applies all pending migrations. An already current schema is not an error.
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(ctx, "up")
}

// Down rolls back every applied migration
func (m *Migrator) Down(ctx context.Context) error {
	return m.run(ctx, "down")
}

// Version reports the current schema version and dirty flag
func (m *Migrator) Version() (uint, bool, error) {
	inst, err := m.instance()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := inst.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (m *Migrator) run(ctx context.Context, command string) error {
	m.logger.Info(ctx, "[MIGRATE_START] Executing migration", logging.Fields{
		"command": command,
		"driver":  m.db.Driver(),
		"path":    m.path,
	})

	inst, err := m.instance()
	if err != nil {
		return err
	}

	switch command {
	case "up":
		err = inst.Up()
	case "down":
		err = inst.Down()
	default:
		return fmt.Errorf("unsupported migration command: %s", command)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration %s failed (driver %s): %w", command, m.db.Driver(), err)
	}

	m.logger.Info(ctx, "[MIGRATE_COMPLETE] Migration finished", logging.Fields{
		"command":   command,
		"no_change": errors.Is(err, migrate.ErrNoChange),
	})
	return nil
}
