package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"courier/internal/api"
	"courier/internal/runpod"
)

// newEndpointsCommand probes configured endpoints directly, so it works
// whether or not the daemon is running.
func newEndpointsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "Probe the health of configured endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			instances := cfg.EnabledInstances()
			if len(instances) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No enabled instances configured")
				return nil
			}

			transport, err := runpod.New(cfg.RunPod.BaseURL)
			if err != nil {
				return err
			}
			timeout := time.Duration(cfg.RunPod.HealthTimeoutSeconds) * time.Second
			if timeout <= 0 {
				timeout = 10 * time.Second
			}

			probes := make([]api.InstanceHealth, 0, len(instances))
			for _, inst := range instances {
				resolved, resolveErr := cfg.ResolveInstance(inst.Name)
				probe := api.InstanceHealth{Instance: inst.Name, EndpointID: inst.EndpointID}
				if resolveErr != nil {
					probe.Error = resolveErr.Error()
					probes = append(probes, probe)
					continue
				}
				probeCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
				health, probeErr := transport.Health(probeCtx, resolved.EndpointID, resolved.APIKey)
				cancel()
				if probeErr != nil {
					probe.Error = probeErr.Error()
				} else {
					probe.WorkersIdle = health.Workers.Idle
					probe.WorkersRunning = health.Workers.Running
					probe.JobsInQueue = health.Jobs.InQueue
					probe.JobsInProgress = health.Jobs.InProgress
					probe.JobsCompleted = health.Jobs.Completed
					probe.JobsFailed = health.Jobs.Failed
				}
				probes = append(probes, probe)
			}

			if jsonOut {
				return writeJSON(cmd, api.HealthResponse{Instances: probes})
			}

			rows := make([][]string, 0, len(probes))
			for _, probe := range probes {
				if probe.Error != "" {
					rows = append(rows, []string{probe.Instance, probe.EndpointID, "unreachable", "-", "-", probe.Error})
					continue
				}
				workers := fmt.Sprintf("%d idle / %d running", probe.WorkersIdle, probe.WorkersRunning)
				queued := strconv.Itoa(probe.JobsInQueue)
				rows = append(rows, []string{probe.Instance, probe.EndpointID, "ok", workers, queued, ""})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Instance", "Endpoint", "State", "Workers", "Queued", "Detail"},
				rows,
				nil,
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}
