package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/kernelci/kcidb-deploy/pkg/types"
)

// MaintenanceDB is the database the admin connection targets for
// cluster-level statements (role and database creation).
const MaintenanceDB = "postgres"

// markerTable records provisioning completion inside the application
// database. Database existence alone is not a safe idempotence signal:
// a run that dies between database creation and the final grant would
// otherwise be reported as fully provisioned forever.
const markerTable = "provisioning_state"

// Error reports a failed provisioning step. Fatal to the current run;
// re-running is safe because completion is checked before any mutating
// statement.
type Error struct {
	Step string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provisioning failed at %s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Conn is the subset of *pgx.Conn the provisioner issues statements
// through.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// Connector opens connections to a named database as the
// administrative user.
type Connector interface {
	Connect(ctx context.Context, dbname string) (Conn, error)
}

// AdminConnector connects as the database superuser.
type AdminConnector struct {
	Host     string
	Port     int
	User     string
	Password string
}

// Connect opens a superuser connection to dbname.
func (c *AdminConnector) Connect(ctx context.Context, dbname string) (Conn, error) {
	dsn := fmt.Sprintf("dbname=%s user=%s password=%s host=%s port=%d",
		dbname, c.User, c.Password, c.Host, c.Port)
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", dbname, err)
	}
	return conn, nil
}

// Spec describes one provisioning target: the application database,
// its three role tiers, and the schema migration to run once the
// accounts and grants are in place.
type Spec struct {
	Database string
	Owner    types.Role
	Editor   types.Role
	Viewer   types.Role

	// URI is the connection URI handed verbatim to the migrator.
	URI      string
	Migrator Migrator
}

// Provisioner idempotently creates the application database, its role
// tiers and grants, and invokes the schema migration.
type Provisioner struct {
	connector Connector
	log       zerolog.Logger
}

// New creates a provisioner issuing statements through connector.
func New(connector Connector, logger zerolog.Logger) *Provisioner {
	return &Provisioner{connector: connector, log: logger}
}

// Provision drives the full sequence. Role and database creation
// precede all grants; schema ownership transfer precedes editor grants
// (grants on objects owned by the wrong role are rejected). The
// completion marker is written last, so any earlier failure leaves a
// state the next run detects and repairs.
func (p *Provisioner) Provision(ctx context.Context, spec Spec) (types.ProvisionResult, error) {
	admin, err := p.connector.Connect(ctx, MaintenanceDB)
	if err != nil {
		return "", &Error{Step: "admin connection", Err: err}
	}
	defer admin.Close(ctx)

	exists, err := p.databaseExists(ctx, admin, spec.Database)
	if err != nil {
		return "", &Error{Step: "catalog query", Err: err}
	}

	if exists {
		return p.resume(ctx, admin, spec)
	}

	p.log.Info().Str("database", spec.Database).Msg("provisioning database")

	if err := p.createRole(ctx, admin, spec.Owner); err != nil {
		return "", err
	}
	if err := p.createDatabase(ctx, admin, spec.Database, spec.Owner.Name); err != nil {
		return "", err
	}
	if err := p.createRole(ctx, admin, spec.Editor); err != nil {
		return "", err
	}

	app, err := p.connector.Connect(ctx, spec.Database)
	if err != nil {
		return "", &Error{Step: "application connection", Err: err}
	}
	defer app.Close(ctx)

	if err := p.transferOwnership(ctx, app, spec.Owner.Name, spec.Editor.Name); err != nil {
		return "", err
	}
	if err := p.grantEditor(ctx, app, spec.Editor.Name); err != nil {
		return "", err
	}
	if err := p.createRole(ctx, admin, spec.Viewer); err != nil {
		return "", err
	}
	if err := p.grantViewer(ctx, app, spec.Database, spec.Viewer.Name); err != nil {
		return "", err
	}
	if err := p.migrate(ctx, spec); err != nil {
		return "", err
	}
	if err := p.writeMarker(ctx, app); err != nil {
		return "", err
	}

	p.log.Info().Str("database", spec.Database).Msg("provisioning complete")
	return types.Provisioned, nil
}

// resume handles an existing database: fully provisioned runs return
// without issuing a single mutating statement; a database left behind
// by an interrupted run gets its roles, grants and migration
// re-applied.
func (p *Provisioner) resume(ctx context.Context, admin Conn, spec Spec) (types.ProvisionResult, error) {
	app, err := p.connector.Connect(ctx, spec.Database)
	if err != nil {
		return "", &Error{Step: "application connection", Err: err}
	}
	defer app.Close(ctx)

	marked, err := p.markerPresent(ctx, app)
	if err != nil {
		return "", &Error{Step: "marker query", Err: err}
	}
	if marked {
		p.log.Debug().Str("database", spec.Database).Msg("database already provisioned")
		return types.AlreadyProvisioned, nil
	}

	p.log.Warn().Str("database", spec.Database).
		Msg("database exists without completion marker, repairing")

	for _, role := range []types.Role{spec.Owner, spec.Editor, spec.Viewer} {
		if err := p.createRole(ctx, admin, role); err != nil {
			return "", err
		}
	}
	if err := p.transferOwnership(ctx, app, spec.Owner.Name, spec.Editor.Name); err != nil {
		return "", err
	}
	if err := p.grantEditor(ctx, app, spec.Editor.Name); err != nil {
		return "", err
	}
	if err := p.grantViewer(ctx, app, spec.Database, spec.Viewer.Name); err != nil {
		return "", err
	}
	if err := p.migrate(ctx, spec); err != nil {
		return "", err
	}
	if err := p.writeMarker(ctx, app); err != nil {
		return "", err
	}
	return types.Repaired, nil
}

func (p *Provisioner) databaseExists(ctx context.Context, admin Conn, dbname string) (bool, error) {
	var exists bool
	row := admin.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbname)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (p *Provisioner) markerPresent(ctx context.Context, app Conn) (bool, error) {
	var present bool
	row := app.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname = 'public' AND tablename = $1)",
		markerTable)
	if err := row.Scan(&present); err != nil {
		return false, err
	}
	return present, nil
}

// createRole creates a login role, or resets its password when it
// already exists so a partially-provisioned cluster converges on the
// configured credentials.
func (p *Provisioner) createRole(ctx context.Context, admin Conn, role types.Role) error {
	create := fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD %s",
		ident(role.Name), literal(role.Password))
	_, err := admin.Exec(ctx, create)
	if err == nil {
		p.log.Debug().Str("role", role.Name).Str("tier", string(role.Tier)).Msg("role created")
		return nil
	}
	if !isSQLState(err, pgerrcode.DuplicateObject) {
		return &Error{Step: fmt.Sprintf("create role %s", role.Name), Err: err}
	}

	alter := fmt.Sprintf("ALTER ROLE %s WITH LOGIN PASSWORD %s",
		ident(role.Name), literal(role.Password))
	if _, err := admin.Exec(ctx, alter); err != nil {
		return &Error{Step: fmt.Sprintf("alter role %s", role.Name), Err: err}
	}
	p.log.Debug().Str("role", role.Name).Msg("role already exists, password reset")
	return nil
}

func (p *Provisioner) createDatabase(ctx context.Context, admin Conn, dbname, owner string) error {
	stmt := fmt.Sprintf("CREATE DATABASE %s OWNER %s", ident(dbname), ident(owner))
	if _, err := admin.Exec(ctx, stmt); err != nil {
		if isSQLState(err, pgerrcode.DuplicateDatabase) {
			return nil
		}
		return &Error{Step: fmt.Sprintf("create database %s", dbname), Err: err}
	}
	return nil
}

func (p *Provisioner) transferOwnership(ctx context.Context, app Conn, owner, editor string) error {
	stmts := []string{
		fmt.Sprintf("ALTER SCHEMA public OWNER TO %s", ident(owner)),
		fmt.Sprintf("GRANT USAGE, CREATE ON SCHEMA public TO %s, %s", ident(owner), ident(editor)),
	}
	for _, stmt := range stmts {
		if _, err := app.Exec(ctx, stmt); err != nil {
			return &Error{Step: "schema ownership transfer", Err: err}
		}
	}
	return nil
}

func (p *Provisioner) grantEditor(ctx context.Context, app Conn, editor string) error {
	stmts := []string{
		fmt.Sprintf("GRANT ALL PRIVILEGES ON ALL TABLES IN SCHEMA public TO %s", ident(editor)),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON ALL SEQUENCES IN SCHEMA public TO %s", ident(editor)),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON ALL FUNCTIONS IN SCHEMA public TO %s", ident(editor)),
	}
	for _, stmt := range stmts {
		if _, err := app.Exec(ctx, stmt); err != nil {
			return &Error{Step: fmt.Sprintf("editor grants for %s", editor), Err: err}
		}
	}
	return nil
}

func (p *Provisioner) grantViewer(ctx context.Context, app Conn, dbname, viewer string) error {
	stmts := []string{
		fmt.Sprintf("GRANT CONNECT ON DATABASE %s TO %s", ident(dbname), ident(viewer)),
		fmt.Sprintf("GRANT USAGE ON SCHEMA public TO %s", ident(viewer)),
		fmt.Sprintf("GRANT SELECT ON ALL TABLES IN SCHEMA public TO %s", ident(viewer)),
		fmt.Sprintf("GRANT EXECUTE ON ALL FUNCTIONS IN SCHEMA public TO %s", ident(viewer)),
	}
	for _, stmt := range stmts {
		if _, err := app.Exec(ctx, stmt); err != nil {
			return &Error{Step: fmt.Sprintf("viewer grants for %s", viewer), Err: err}
		}
	}
	return nil
}

func (p *Provisioner) migrate(ctx context.Context, spec Spec) error {
	if spec.Migrator == nil {
		return &Error{Step: "schema migration", Err: errors.New("no migrator configured")}
	}
	if err := spec.Migrator.Migrate(ctx, spec.URI); err != nil {
		return &Error{Step: "schema migration", Err: err}
	}
	return nil
}

func (p *Provisioner) writeMarker(ctx context.Context, app Conn) error {
	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (completed_at timestamptz NOT NULL DEFAULT now())",
			ident(markerTable)),
		fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", ident(markerTable)),
	}
	for _, stmt := range stmts {
		if _, err := app.Exec(ctx, stmt); err != nil {
			return &Error{Step: "completion marker", Err: err}
		}
	}
	return nil
}

func isSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
