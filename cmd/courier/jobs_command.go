package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"courier/internal/api"
	"courier/internal/control"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List in-flight jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *control.Client) error {
				active, err := client.Jobs(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.JobListResponse{Jobs: active})
				}
				if len(active) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs in flight")
					return nil
				}

				rows := make([][]string, 0, len(active))
				for _, job := range active {
					state := "running"
					if job.Cancelled {
						state = "cancelling"
					}
					rows = append(rows, []string{
						job.JobID,
						job.Instance,
						job.EndpointID,
						state,
						formatTimestamp(job.RegisteredAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Job", "Instance", "Endpoint", "State", "Submitted"},
					rows,
					nil,
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}
