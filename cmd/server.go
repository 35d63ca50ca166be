/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tasknest/apiserver/internal/logger"
	"github.com/tasknest/apiserver/internal/server"
)

const shutdownTimeout = 10 * time.Second

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the TaskNest API server",
	Long: `Starts the TaskNest API server. Usage:

	tasknest server

The server stops gracefully on SIGINT or SIGTERM.
`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := cfg.Validate(); err != nil {
			logger.Error("invalid configuration", "error", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv, err := server.New(ctx, cfg)
		if err != nil {
			logger.Error("failed to start server", "error", err)
			os.Exit(1)
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("server started", "addr", srv.Addr(), "env", cfg.Env)
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if err != nil {
				logger.Error("server error", "error", err)
				os.Exit(1)
			}
			return
		case <-ctx.Done():
		}

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server forced to shutdown", "error", err)
			os.Exit(1)
		}
		logger.Info("server exited")
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
