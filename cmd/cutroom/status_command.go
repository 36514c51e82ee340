package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cutroom/internal/client"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and environment checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			err := ctx.withClient(func(c *client.Client) error {
				status, err := c.Status(cmd.Context())
				if err != nil {
					return err
				}
				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Running", statusOK, fmt.Sprintf("pid %d", status.PID), colorize))
				fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DBPath, colorize))
				fmt.Fprintln(out, renderStatusLine("Lock", statusInfo, status.LockPath, colorize))
				fmt.Fprintln(out, renderStatusLine("Active jobs", statusInfo, fmt.Sprintf("%d", status.ActiveJobs), colorize))
				fmt.Fprintln(out, renderStatusLine("Queued jobs", statusInfo, fmt.Sprintf("%d", status.QueuedJobs), colorize))

				if len(status.Checks) > 0 {
					fmt.Fprintln(out)
					for _, line := range renderSectionHeader("Environment", colorize) {
						fmt.Fprintln(out, line)
					}
					for _, check := range status.Checks {
						kind := statusOK
						if !check.Available {
							kind = statusError
						}
						fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
					}
				}
				return nil
			})
			if err != nil {
				if client.IsUnavailable(err) {
					for _, line := range renderSectionHeader("Daemon", colorize) {
						fmt.Fprintln(out, line)
					}
					fmt.Fprintln(out, renderStatusLine("Running", statusError, "not reachable (is cutroomd running?)", colorize))
					return nil
				}
				return err
			}
			return nil
		},
	}
}
