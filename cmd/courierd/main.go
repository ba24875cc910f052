// Command courierd runs the background job daemon and its control API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"courier/internal/config"
	"courier/internal/daemon"
	"courier/internal/jobs"
	"courier/internal/journal"
	"courier/internal/logging"
	"courier/internal/notifications"
	"courier/internal/runpod"
)

func main() {
	cmd := newDaemonCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newDaemonCommand() *cobra.Command {
	var configFlag string

	cmd := &cobra.Command{
		Use:           "courierd",
		Short:         "Courier job daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), configFlag)
		},
	}
	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	return cmd
}

func runDaemon(parent context.Context, configPath string) error {
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	transport, err := runpod.New(cfg.RunPod.BaseURL)
	if err != nil {
		return fmt.Errorf("build transport: %w", err)
	}
	registry := jobs.NewRegistry(transport, logger)

	store, err := journal.Open(cfg)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	notifyService := notifications.NewService(cfg)
	client := jobs.NewClient(transport, registry,
		jobs.WithLogger(logger),
		jobs.WithRecorder(store),
		jobs.WithNotifier(notifications.NewAdapter(notifyService, logger)),
		jobs.WithRetryPolicy(jobs.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Delay:       time.Duration(cfg.Retry.DelaySeconds) * time.Second,
		}),
	)

	d, err := daemon.New(cfg, client, transport, store, logger)
	if err != nil {
		_ = store.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		_ = d.Close()
		return err
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	return d.Close()
}
