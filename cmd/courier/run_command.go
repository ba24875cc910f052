package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"courier/internal/jobs"
	"courier/internal/journal"
	"courier/internal/logging"
	"courier/internal/notifications"
	"courier/internal/runpod"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var instance string
	var inputFlag string
	var inputFile string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit a job and block until it finishes",
		Long: "Submit a job to a configured serverless instance and poll it to a " +
			"terminal outcome. The worker's output document is printed to stdout " +
			"on success. Interrupting with Ctrl-C requests cancellation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			payload, err := readPayload(inputFlag, inputFile)
			if err != nil {
				return err
			}

			inst, err := cfg.ResolveInstance(instance)
			if err != nil {
				return err
			}

			logger := logging.NewNop()
			if !quiet {
				logger, err = logging.New(logging.Options{
					Level:       cfg.Logging.Level,
					Format:      "console",
					OutputPaths: []string{"stderr"},
				})
				if err != nil {
					return err
				}
			}

			transport, err := runpod.New(cfg.RunPod.BaseURL)
			if err != nil {
				return err
			}
			registry := jobs.NewRegistry(transport, logger)

			opts := []jobs.ClientOption{
				jobs.WithLogger(logger),
				jobs.WithRetryPolicy(retryPolicy(cfg.Retry.MaxAttempts, cfg.Retry.DelaySeconds)),
			}
			if store, storeErr := journal.Open(cfg); storeErr == nil {
				defer store.Close()
				opts = append(opts, jobs.WithRecorder(store))
			} else {
				logger.Warn("run journal unavailable", logging.Error(storeErr))
			}
			opts = append(opts, jobs.WithNotifier(
				notifications.NewAdapter(notifications.NewService(cfg), logger),
			))

			client := jobs.NewClient(transport, registry, opts...)

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// An interrupt flips the cancel flag so the poll loop stops and
			// the remote side gets a best-effort cancel.
			jobIDCh := make(chan string, 1)
			go func() {
				<-runCtx.Done()
				select {
				case id := <-jobIDCh:
					registry.MarkCancelled(context.Background(), id)
				default:
				}
			}()

			output, err := client.Run(runCtx, inst, payload, func(id string) {
				jobIDCh <- id
				fmt.Fprintf(cmd.ErrOrStderr(), "Job %s submitted to %s\n", id, inst.Name)
			})
			if err != nil {
				if errors.Is(err, jobs.ErrCancelled) {
					return fmt.Errorf("cancelled: %w", err)
				}
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(output))
			return nil
		},
	}

	cmd.Flags().StringVarP(&instance, "instance", "i", "", "Instance name (defaults to runpod.default_instance)")
	cmd.Flags().StringVar(&inputFlag, "input", "", "Job input as a JSON document")
	cmd.Flags().StringVar(&inputFile, "input-file", "", "Read job input from a JSON file (- for stdin)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress logging")
	return cmd
}

func readPayload(inputFlag, inputFile string) (json.RawMessage, error) {
	inputFlag = strings.TrimSpace(inputFlag)
	inputFile = strings.TrimSpace(inputFile)
	if inputFlag != "" && inputFile != "" {
		return nil, errors.New("--input and --input-file are mutually exclusive")
	}

	var raw []byte
	switch {
	case inputFlag != "":
		raw = []byte(inputFlag)
	case inputFile == "-":
		data, err := readAllStdin()
		if err != nil {
			return nil, err
		}
		raw = data
	case inputFile != "":
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
		raw = data
	default:
		return nil, errors.New("job input required; pass --input or --input-file")
	}

	if !json.Valid(raw) {
		return nil, errors.New("job input is not valid JSON")
	}
	return json.RawMessage(raw), nil
}
