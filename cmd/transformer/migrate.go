package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/persona-transformer/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(cmd.Context(), func(database *db.DB, logger *zap.Logger) error {
			if err := database.Migrate(); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			logger.Info("migrations applied")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Revert migrations (default 1 step)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("steps must be a positive integer, got %q", args[0])
			}
			steps = n
		}
		return withDatabase(cmd.Context(), func(database *db.DB, logger *zap.Logger) error {
			if err := database.Rollback(steps); err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			logger.Info("migrations reverted", zap.Int("steps", steps))
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(cmd.Context(), func(database *db.DB, _ *zap.Logger) error {
			status, err := database.MigrationStatus()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "current: %d\nlatest:  %d\ndirty:   %t\npending: %t\n",
				status.Current, status.Latest, status.Dirty, status.Pending())
			return nil
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func withDatabase(ctx context.Context, fn func(*db.DB, *zap.Logger) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("TRANSFORMER_DATABASE_URL environment variable or database_url config value is required")
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close() //nolint:errcheck
	return fn(database, logger)
}
