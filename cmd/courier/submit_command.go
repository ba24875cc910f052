package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"courier/internal/control"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var instance string
	var inputFlag string
	var inputFile string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a job through the daemon without waiting for it",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(inputFlag, inputFile)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *control.Client) error {
				resp, err := client.Submit(cmd.Context(), instance, payload)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s submitted to %s\n", resp.JobID, resp.Instance)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&instance, "instance", "i", "", "Instance name (defaults to runpod.default_instance)")
	cmd.Flags().StringVar(&inputFlag, "input", "", "Job input as a JSON document")
	cmd.Flags().StringVar(&inputFile, "input-file", "", "Read job input from a JSON file (- for stdin)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}
