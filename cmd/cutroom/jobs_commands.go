package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cutroom/internal/api"
	"cutroom/internal/client"
	"cutroom/internal/queue"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage export jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsList(cmd, ctx, nil, "")
		},
	}

	var statusFilters []string
	var userFilter string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List export jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJobsList(cmd, ctx, statusFilters, userFilter)
		},
	}
	listCmd.Flags().StringArrayVarP(&statusFilters, "status", "s", nil, "Filter by status (repeatable)")
	listCmd.Flags().StringVarP(&userFilter, "user", "u", "", "Filter by user")

	jobsCmd.AddCommand(listCmd)
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))

	return jobsCmd
}

func runJobsList(cmd *cobra.Command, ctx *commandContext, statusFilters []string, userFilter string) error {
	statuses := make([]queue.Status, 0, len(statusFilters))
	for _, raw := range statusFilters {
		status := queue.Status(strings.TrimSpace(raw))
		if !status.Valid() {
			return fmt.Errorf("unknown status %q", raw)
		}
		statuses = append(statuses, status)
	}

	return ctx.withClient(func(c *client.Client) error {
		resp, err := c.ListJobs(cmd.Context(), userFilter, statuses...)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(resp.Jobs) == 0 {
			fmt.Fprintln(out, "No export jobs")
			return nil
		}
		rows := make([][]string, 0, len(resp.Jobs))
		for _, job := range resp.Jobs {
			rows = append(rows, []string{
				job.ID,
				job.UserID,
				job.Status,
				job.Phase,
				fmt.Sprintf("%.0f%%", job.Progress),
				job.Preset,
				job.OutputFilename,
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Job", "User", "Status", "Phase", "Progress", "Preset", "Output"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
		))
		return nil
	})
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one export job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.GetJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printJob(cmd, resp.Job)
				return nil
			})
		},
	}
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending or running export job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.CancelJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s is now %s\n", resp.Job.ID, resp.Job.Status)
				return nil
			})
		},
	}
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [job-id...]",
		Short: "Return failed jobs to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.RetryJobs(cmd.Context(), args...)
				if err != nil {
					return err
				}
				pending := 0
				for _, job := range resp.Jobs {
					if job.Status == string(queue.StatusPending) {
						pending++
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d job(s) pending\n", pending)
				return nil
			})
		},
	}
}

func printJob(cmd *cobra.Command, job api.JobView) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job %s\n", job.ID)
	fmt.Fprintf(out, "  project:  %s\n", job.ProjectID)
	fmt.Fprintf(out, "  user:     %s\n", job.UserID)
	fmt.Fprintf(out, "  status:   %s\n", job.Status)
	if job.Phase != "" {
		fmt.Fprintf(out, "  phase:    %s\n", job.Phase)
	}
	fmt.Fprintf(out, "  progress: %.0f%%\n", job.Progress)
	fmt.Fprintf(out, "  preset:   %s\n", job.Preset)
	fmt.Fprintf(out, "  audio:    %s\n", yesNo(job.IncludeAudio))
	if job.OutputPath != "" {
		fmt.Fprintf(out, "  output:   %s\n", job.OutputPath)
	}
	if job.Error != "" {
		fmt.Fprintf(out, "  error:    %s\n", job.Error)
	}
}
