/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tasknest/apiserver/config"
	"github.com/tasknest/apiserver/internal/logger"
)

var cfg config.Config

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tasknest",
	Short: "TaskNest task management API",
	Long: `TaskNest serves the task management REST API and its
operational commands.

	tasknest server
	tasknest migrate up
	tasknest events watch
`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.LoadConfig()
		logger.Init(cfg.Log.Level, cfg.Log.JSON)
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
