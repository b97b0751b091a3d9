package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kernelci/kcidb-deploy/pkg/envstore"
	"github.com/kernelci/kcidb-deploy/pkg/lifecycle"
	"github.com/kernelci/kcidb-deploy/pkg/log"
	"github.com/kernelci/kcidb-deploy/pkg/provision"
	"github.com/kernelci/kcidb-deploy/pkg/readiness"
	"github.com/kernelci/kcidb-deploy/pkg/runtime"
	"github.com/kernelci/kcidb-deploy/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var timeout *readiness.TimeoutError
		if errors.As(err, &timeout) {
			// Recoverable: the supervisor may restart db-init.
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var (
	flagProjectDir string
	flagEnvFile    string
	flagFilterFile string
	flagLogLevel   string
	flagLogJSON    bool
)

var rootCmd = &cobra.Command{
	Use:   "kcidb-deploy",
	Short: "Bootstrap and manage the KCIDB service deployment",
	Long: `kcidb-deploy bootstraps a small KCIDB deployment (REST ingress,
ingestion worker, log-analysis worker, PostgreSQL) under Docker Compose.

It materializes the environment configuration, drives profile-scoped
lifecycle transitions, and provisions the application database with its
three role tiers.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Init(log.Config{
			Level:      log.Level(flagLogLevel),
			JSONOutput: flagLogJSON,
		})
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"kcidb-deploy version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&flagProjectDir, "project-dir", ".", "Directory holding the compose project")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "Environment configuration file (default <project-dir>/.env)")
	rootCmd.PersistentFlags().StringVar(&flagFilterFile, "filter-config", "", "Worker filter configuration file (default <project-dir>/logspec_filters.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "Emit JSON logs instead of console output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(dbInitCmd)
}

func envFilePath() string {
	if flagEnvFile != "" {
		return flagEnvFile
	}
	return filepath.Join(flagProjectDir, ".env")
}

func filterFilePath() string {
	if flagFilterFile != "" {
		return flagFilterFile
	}
	return filepath.Join(flagProjectDir, "logspec_filters.yaml")
}

func parseProfile(cmd *cobra.Command) (types.Profile, error) {
	name, _ := cmd.Flags().GetString("profile")
	return types.ParseProfile(name)
}

// newController wires a lifecycle controller for the active profile.
func newController(cmd *cobra.Command, profile types.Profile, confirmer lifecycle.Confirmer) *lifecycle.Controller {
	runner := runtime.NewExecRunner()
	resolver := runtime.NewResolver(runner)
	compose := runtime.NewCompose(runner, resolver, flagProjectDir, envFilePath())
	domain, _ := cmd.Flags().GetString("domain")

	return lifecycle.New(&lifecycle.Config{
		Profile:    profile,
		Compose:    compose,
		Store:      envstore.New(envFilePath()),
		Confirmer:  confirmer,
		FilterPath: filterFilePath(),
		Domain:     domain,
		Logger:     log.WithComponent("lifecycle"),
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the deployment for the selected profile",
	Long: `Ensure the environment configuration exists and is sound, seed the
worker filter configuration on first run, then build and start every
service tagged with the active profile, detached.

Safe to repeat: existing secrets and data volumes are preserved.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := parseProfile(cmd)
		if err != nil {
			return err
		}
		return newController(cmd, profile, lifecycle.NewTerminalConfirmer()).Run(cmd.Context())
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop the deployment, preserving volumes",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := parseProfile(cmd)
		if err != nil {
			return err
		}
		return newController(cmd, profile, lifecycle.NewTerminalConfirmer()).Down(cmd.Context())
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Destroy the deployment: containers, volumes and configuration",
	Long: `Stop containers, remove the associated volumes and networks, and
delete the environment and worker filter configuration.

Destructive and irreversible; asks for confirmation unless --yes is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := parseProfile(cmd)
		if err != nil {
			return err
		}
		var confirmer lifecycle.Confirmer = lifecycle.NewTerminalConfirmer()
		if yes, _ := cmd.Flags().GetBool("yes"); yes {
			confirmer = &lifecycle.StaticConfirmer{Answer: true}
		}
		performed, err := newController(cmd, profile, confirmer).Clean(cmd.Context())
		if err != nil {
			return err
		}
		if !performed {
			fmt.Println("Clean cancelled.")
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show container state for the selected profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := parseProfile(cmd)
		if err != nil {
			return err
		}
		return newController(cmd, profile, lifecycle.NewTerminalConfirmer()).Status(cmd.Context())
	},
}

var dbInitCmd = &cobra.Command{
	Use:   "db-init",
	Short: "Wait for the database and provision it",
	Long: `Poll the database until it accepts connections, then idempotently
create the kcidb database, its owner, editor and viewer roles, apply
grants, and run the schema migration.

Runs inside the database initializer container; exits with status 2 on
a readiness timeout so the supervisor can retry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		adminUser, _ := cmd.Flags().GetString("admin-user")
		interval, _ := cmd.Flags().GetDuration("interval")
		maxAttempts, _ := cmd.Flags().GetInt("max-attempts")
		builtin, _ := cmd.Flags().GetBool("builtin-schema")
		migrateCmd, _ := cmd.Flags().GetString("migrate-cmd")

		logger := log.WithComponent("db-init")
		ctx := cmd.Context()

		store := envstore.New(envFilePath())
		cfg, err := store.Load()
		if err != nil {
			return err
		}
		adminPassword, ok := cfg[envstore.KeyPostgresPassword]
		if !ok {
			return fmt.Errorf("%s missing from %s", envstore.KeyPostgresPassword, store.Path())
		}
		editorPassword, ok := cfg[envstore.KeyPSPass]
		if !ok {
			return fmt.Errorf("%s missing from %s", envstore.KeyPSPass, store.Path())
		}

		uri, ok := cfg[envstore.KeyPGURI]
		if !ok {
			uri = envstore.PGURI(types.DatabaseName, types.OwnerRoleName, adminPassword, host, port)
		}

		adminDSN := fmt.Sprintf("dbname=%s user=%s password=%s host=%s port=%d",
			provision.MaintenanceDB, adminUser, adminPassword, host, port)
		logger.Info().Str("host", host).Int("port", port).Msg("waiting for database")
		if err := readiness.WaitUntilReady(ctx, readiness.NewPostgresChecker(adminDSN), interval, maxAttempts); err != nil {
			return err
		}

		var migrator provision.Migrator
		if builtin {
			migrator = &provision.SchemaMigrator{}
		} else {
			migrator = &provision.ExecMigrator{
				Runner:  runtime.NewExecRunner(),
				Command: migrateCmd,
			}
		}

		provisioner := provision.New(&provision.AdminConnector{
			Host:     host,
			Port:     port,
			User:     adminUser,
			Password: adminPassword,
		}, logger)

		result, err := provisioner.Provision(ctx, provision.Spec{
			Database: types.DatabaseName,
			Owner:    types.Role{Name: types.OwnerRoleName, Password: adminPassword, Tier: types.TierOwner},
			Editor:   types.Role{Name: types.EditorRoleName, Password: editorPassword, Tier: types.TierEditor},
			Viewer:   types.Role{Name: types.ViewerRoleName, Password: types.ViewerPassword, Tier: types.TierViewer},
			URI:      uri,
			Migrator: migrator,
		})
		if err != nil {
			return err
		}
		logger.Info().Str("result", string(result)).Msg("database initialization finished")
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, downCmd, cleanCmd, statusCmd} {
		cmd.Flags().String("profile", types.DefaultProfile.String(),
			fmt.Sprintf("Deployment profile (%s or %s)", types.ProfileSelfHosted, types.ProfileCloudSQL))
	}
	runCmd.Flags().String("domain", "", "Enable certificate provisioning for this domain")
	cleanCmd.Flags().Bool("yes", false, "Skip the confirmation prompt")

	dbInitCmd.Flags().String("host", types.ServiceDatabase, "Database host")
	dbInitCmd.Flags().Int("port", types.DatabasePort, "Database port")
	dbInitCmd.Flags().String("admin-user", "postgres", "Administrative database user")
	dbInitCmd.Flags().Duration("interval", 2*time.Second, "Delay between readiness probes")
	dbInitCmd.Flags().Int("max-attempts", 30, "Readiness probe attempts before giving up")
	dbInitCmd.Flags().Bool("builtin-schema", false, "Apply the embedded schema migrations instead of invoking the external entry point")
	dbInitCmd.Flags().String("migrate-cmd", "", "Override the external schema-migration command")
}
