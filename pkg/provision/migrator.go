package provision

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kernelci/kcidb-deploy/pkg/envstore"
	"github.com/kernelci/kcidb-deploy/pkg/runtime"
)

// DefaultMigrateCommand is the external schema-migration entry point.
const DefaultMigrateCommand = "kcidb-db-init"

// Migrator creates or updates the database's table structure given the
// connection URI. Implementations must be idempotent.
type Migrator interface {
	Migrate(ctx context.Context, uri string) error
}

// ExecMigrator invokes the external schema-migration entry point,
// instructing it to skip when the schema is already initialized.
type ExecMigrator struct {
	Runner runtime.Runner

	// Command overrides DefaultMigrateCommand when non-empty.
	Command string
}

// NewExecMigrator creates a migrator driving the external entry point.
func NewExecMigrator(runner runtime.Runner) *ExecMigrator {
	return &ExecMigrator{Runner: runner}
}

// Migrate runs the entry point, surfacing its exit status.
func (m *ExecMigrator) Migrate(ctx context.Context, uri string) error {
	command := m.Command
	if command == "" {
		command = DefaultMigrateCommand
	}
	if err := m.Runner.Run(ctx, command, "-d", uri, "--ignore-initialized"); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SchemaMigrator applies the embedded schema migrations directly.
// Used when the external entry point is not installed, and by tests.
// golang-migrate's version table doubles as the already-initialized
// check, so repeated runs are no-ops.
type SchemaMigrator struct{}

// Migrate applies any un-applied migrations.
func (m *SchemaMigrator) Migrate(ctx context.Context, uri string) error {
	dsn, err := envstore.DSN(uri)
	if err != nil {
		return err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer mg.Close()

	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
