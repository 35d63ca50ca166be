/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tasknest/apiserver/internal/logger"
	"github.com/tasknest/apiserver/internal/mq"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the task event feed",
}

var eventsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Log every task event published on the configured channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		backend, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if backend == nil {
			return errors.New("MQ_BACKEND is not configured")
		}

		events := mq.NewTaskEvents(backend, cfg.MQ.Channel)
		defer events.Close()

		logger.Info("watching task events", "backend", cfg.MQ.Backend, "channel", cfg.MQ.Channel)
		err = events.Watch(ctx, func(_ context.Context, event mq.TaskEvent) error {
			args := []any{
				"type", event.Type,
				"task_id", event.TaskID,
				"owner_id", event.OwnerID,
				"occurred_at", event.OccurredAt,
			}
			if event.Completed != nil {
				args = append(args, "completed", *event.Completed)
			}
			logger.Info("task event", args...)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsWatchCmd)
}
