package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"courier/internal/control"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *control.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, status)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Daemon running (pid %d)\n", status.PID)
				fmt.Fprintf(out, "Active jobs: %d\n", status.ActiveJobs)
				if len(status.Instances) > 0 {
					fmt.Fprintf(out, "Instances: %s\n", strings.Join(status.Instances, ", "))
				}
				if status.JournalDBPath != "" {
					fmt.Fprintf(out, "Journal: %s\n", status.JournalDBPath)
				}
				fmt.Fprintf(out, "Lock: %s\n", status.LockFilePath)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}
