package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"courier/internal/control"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent finished runs from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *control.Client) error {
				resp, err := client.Runs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Runs) == 0 {
					fmt.Fprintln(out, "No finished runs recorded")
					return nil
				}

				rows := make([][]string, 0, len(resp.Runs))
				for _, run := range resp.Runs {
					rows = append(rows, []string{
						run.JobID,
						run.Instance,
						run.Outcome,
						formatTimestamp(run.FinishedAt),
						formatDuration(run.FinishedAt.Sub(run.SubmittedAt)),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Job", "Instance", "Outcome", "Finished", "Duration"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				fmt.Fprintf(out, "%d total: %d completed, %d failed, %d cancelled, %d timed out\n",
					resp.Stats.Total, resp.Stats.Completed, resp.Stats.Failed,
					resp.Stats.Cancelled, resp.Stats.TimedOut)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}
