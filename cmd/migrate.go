/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tasknest/apiserver/internal/db"
	"github.com/tasknest/apiserver/internal/logger"
)

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn := cfg.Database.DSN()
		if dsn == "" {
			return db.ErrMissingDSN
		}
		if err := db.MigrateUp(dsn); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
		logger.Info("migrations applied")
		return nil
	},
}

var migrateDownSteps int

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert migrations",
	Long:  "Revert the last --steps migrations, or every migration when --steps is 0.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn := cfg.Database.DSN()
		if dsn == "" {
			return db.ErrMissingDSN
		}
		if err := db.MigrateDown(dsn, migrateDownSteps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
		logger.Info("migrations reverted", "steps", migrateDownSteps)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)

	migrateDownCmd.Flags().IntVar(&migrateDownSteps, "steps", 1, "number of migrations to revert (0 reverts all)")
}
