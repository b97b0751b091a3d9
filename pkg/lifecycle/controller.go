package lifecycle

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/kernelci/kcidb-deploy/pkg/envstore"
	"github.com/kernelci/kcidb-deploy/pkg/filterconf"
	"github.com/kernelci/kcidb-deploy/pkg/types"
)

// ComposeDriver is the slice of the orchestration layer the controller
// drives.
type ComposeDriver interface {
	Up(ctx context.Context, profile types.Profile) error
	Down(ctx context.Context, profile types.Profile) error
	Destroy(ctx context.Context, profile types.Profile) error
	Status(ctx context.Context, profile types.Profile) error
}

// Config wires a Controller.
type Config struct {
	Profile types.Profile
	Compose ComposeDriver
	Store   *envstore.Store
	// Confirmer gates the destructive clean path.
	Confirmer Confirmer
	// FilterPath is where the worker filter configuration lives.
	FilterPath string
	// Domain, when non-empty, enables certificate provisioning for
	// that domain. When empty the corresponding key is pruned from the
	// environment so a stale value cannot re-enable it.
	Domain string
	Logger zerolog.Logger
}

// Controller is the top-level orchestrator for the run, down and clean
// operations. It is the only layer that prints user-facing diagnostics;
// lower components return typed failures.
type Controller struct {
	profile    types.Profile
	compose    ComposeDriver
	store      *envstore.Store
	confirm    Confirmer
	filterPath string
	domain     string
	log        zerolog.Logger
}

// New creates a controller for the given profile.
func New(cfg *Config) *Controller {
	return &Controller{
		profile:    cfg.Profile,
		compose:    cfg.Compose,
		store:      cfg.Store,
		confirm:    cfg.Confirmer,
		filterPath: cfg.FilterPath,
		domain:     cfg.Domain,
		log:        cfg.Logger,
	}
}

// Run converges the deployment to the running state: environment
// configuration ensured and repaired, worker filter config seeded on
// first run, then every service tagged with the active profile built
// and started detached. Repeated calls converge without touching
// existing data volumes.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.ensureEnvironment(); err != nil {
		return err
	}

	seeded, err := filterconf.Seed(c.filterPath)
	if err != nil {
		return err
	}
	if seeded {
		c.log.Info().Str("path", c.filterPath).Msg("seeded worker filter configuration")
	}

	c.log.Info().Str("profile", c.profile.String()).Msg("starting services")
	return c.compose.Up(ctx, c.profile)
}

// Down stops and removes the profile's containers. Named volumes
// (database data, spool, cache, state) are preserved.
func (c *Controller) Down(ctx context.Context) error {
	c.log.Info().Str("profile", c.profile.String()).Msg("stopping services")
	return c.compose.Down(ctx, c.profile)
}

// Status reports the profile's container state.
func (c *Controller) Status(ctx context.Context) error {
	return c.compose.Status(ctx, c.profile)
}

// Clean tears the deployment down destructively: containers, volumes,
// networks, the environment configuration and the worker filter
// configuration. The operator must approve first; a declined
// confirmation aborts with no side effects and is reported as
// performed == false, not as an error.
func (c *Controller) Clean(ctx context.Context) (performed bool, err error) {
	prompt := fmt.Sprintf(
		"This removes all containers, volumes, networks and configuration for profile %s.\nType %q to confirm: ",
		c.profile, ConfirmToken)
	ok, err := c.confirm.Confirm(prompt)
	if err != nil {
		return false, err
	}
	if !ok {
		c.log.Info().Msg("clean cancelled")
		return false, nil
	}

	if err := c.compose.Destroy(ctx, c.profile); err != nil {
		return false, err
	}
	if err := c.store.Remove(); err != nil {
		return false, err
	}
	if err := os.Remove(c.filterPath); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to remove %s: %w", c.filterPath, err)
	}
	c.log.Info().Str("profile", c.profile.String()).Msg("deployment removed")
	return true, nil
}

// ensureEnvironment materializes and repairs the persisted environment
// configuration for the active profile.
func (c *Controller) ensureEnvironment() error {
	defaults, err := defaultEntries()
	if err != nil {
		return err
	}
	cfg, err := c.store.EnsureExists(defaults)
	if err != nil {
		return err
	}

	rotated, err := c.store.RotatePlaceholderSecret(envstore.KeyJWTSecret, envstore.JWTSecretPlaceholder)
	if err != nil {
		return err
	}
	if rotated {
		c.log.Warn().Msg("JWT secret was missing or a placeholder, rotated")
	}

	if c.domain != "" {
		if err := c.store.Upsert(envstore.KeyACMEDomain, c.domain); err != nil {
			return err
		}
	} else {
		pruned, err := c.store.PruneKey(envstore.KeyACMEDomain)
		if err != nil {
			return err
		}
		if pruned {
			c.log.Info().Msg("certificate domain no longer selected, pruned")
		}
	}

	// The connection URI embeds the database host, which depends on
	// the active profile. Reconcile it so a profile switch cannot
	// leave services pointed at the wrong database.
	expected := envstore.PGURI(
		types.DatabaseName,
		types.OwnerRoleName,
		cfg[envstore.KeyPostgresPassword],
		c.profile.DatabaseHost(),
		types.DatabasePort,
	)
	if cfg[envstore.KeyPGURI] != expected {
		if err := c.store.Upsert(envstore.KeyPGURI, expected); err != nil {
			return err
		}
	}
	return nil
}

// defaultEntries builds the first-creation contents of the environment
// store: fresh random secrets and a JWT placeholder that the rotation
// step immediately replaces.
func defaultEntries() ([]envstore.Entry, error) {
	pgPassword, err := envstore.NewSecret()
	if err != nil {
		return nil, err
	}
	psPass, err := envstore.NewSecret()
	if err != nil {
		return nil, err
	}
	return []envstore.Entry{
		{Key: envstore.KeyPostgresPassword, Value: pgPassword},
		{Key: envstore.KeyPSPass, Value: psPass},
		{Key: envstore.KeyJWTSecret, Value: envstore.JWTSecretPlaceholder},
	}, nil
}
