package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/asakaida/junban/internal/infrastructure/config"
	"github.com/asakaida/junban/internal/infrastructure/database"
	"github.com/asakaida/junban/internal/infrastructure/logging"
)

const migrationsPathSuffix = "internal/infrastructure/database/migrations/postgres"

var (
	envFlag string
	pg      *database.Postgres
	log     *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool for junban",
	Long: `Database migration tool for junban.
Manages the relation_orders PostgreSQL schema using golang-migrate.`,
	PersistentPreRunE: setupDatabase,
	SilenceUsage:      true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: withMigrator(func(m *migrate.Migrate, args []string) error {
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				log.Info("No migrations to apply")
				return nil
			}
			return fmt.Errorf("migration up failed: %w", err)
		}
		log.Info("Migration up completed successfully")
		return nil
	}),
}

var downCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Rollback migrations (default: 1)",
	Args:  cobra.MaximumNArgs(1),
	RunE: withMigrator(func(m *migrate.Migrate, args []string) error {
		steps := 1
		if len(args) > 0 {
			n, err := positiveInt(args[0])
			if err != nil {
				return fmt.Errorf("invalid steps: %w", err)
			}
			steps = n
		}
		if err := m.Steps(-steps); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				log.Info("No migrations to rollback")
				return nil
			}
			return fmt.Errorf("migration down failed: %w", err)
		}
		log.Infof("Rolled back %d migration(s)", steps)
		return nil
	}),
}

var gotoCmd = &cobra.Command{
	Use:   "goto <version>",
	Short: "Migrate to a specific version",
	Args:  cobra.ExactArgs(1),
	RunE: withMigrator(func(m *migrate.Migrate, args []string) error {
		version, err := positiveInt(args[0])
		if err != nil {
			return fmt.Errorf("invalid version: %w", err)
		}
		if err := m.Migrate(uint(version)); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				log.Infof("Already at version %d", version)
				return nil
			}
			return fmt.Errorf("migration goto failed: %w", err)
		}
		log.Infof("Migrated to version %d", version)
		return nil
	}),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show current migration version",
	RunE: withMigrator(func(m *migrate.Migrate, args []string) error {
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info("Current version: no migrations applied yet")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		log.Infow("Current version", "version", version, "dirty", dirty)
		return nil
	}),
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Force set migration version (use with caution)",
	Args:  cobra.ExactArgs(1),
	RunE: withMigrator(func(m *migrate.Migrate, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil || version < -1 {
			return fmt.Errorf("invalid version %q", args[0])
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("migration force failed: %w", err)
		}
		log.Infof("Migration forced to version %d", version)
		return nil
	}),
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")

	rootCmd.AddCommand(upCmd, downCmd, gotoCmd, versionCmd, forceCmd)
}

func main() {
	err := rootCmd.Execute()
	if log != nil {
		_ = log.Sync()
	}
	if err != nil {
		os.Exit(1)
	}
}

func setupDatabase(cmd *cobra.Command, args []string) error {
	if err := config.InitConfig(envFlag); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.NewLogger(config.LogConfig{Level: cfg.Log.Level, Format: "console"})
	if err != nil {
		return err
	}
	log = logger.Sugar()
	log.Infof("Using environment: %s", envFlag)

	pg, err = database.NewPostgres(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Infof("Connected to database: %s@%s:%d/%s",
		cfg.Database.User,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database)
	return nil
}

// withMigrator opens a migrator for the duration of one subcommand
func withMigrator(fn func(m *migrate.Migrate, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		root, err := config.ProjectRoot()
		if err != nil {
			return err
		}
		migrationsPath := filepath.Join(root, migrationsPathSuffix)
		log.Debugf("Using migrations path: %s", migrationsPath)

		m, err := pg.NewMigrator(migrationsPath)
		if err != nil {
			return err
		}
		defer m.Close()

		return fn(m, args)
	}
}

func positiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("%d must be positive", n)
	}
	return n, nil
}
