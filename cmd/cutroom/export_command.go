package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"cutroom/internal/api"
	"cutroom/internal/client"
	"cutroom/internal/queue"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var presetName string
	var userID string
	var noAudio bool
	var wait bool

	cmd := &cobra.Command{
		Use:   "export <project-id>",
		Short: "Start an export job for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				includeAudio := !noAudio
				resp, err := c.StartExport(cmd.Context(), args[0], api.ExportRequest{
					UserID:       userID,
					Preset:       presetName,
					IncludeAudio: &includeAudio,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Export queued: job %s (%s)\n", resp.Job.ID, resp.Job.Preset)
				if !wait {
					return nil
				}
				return waitForJob(cmd.Context(), c, out, resp.Job.ID)
			})
		},
	}

	cmd.Flags().StringVarP(&presetName, "preset", "p", "", "Quality preset: 720p, 1080p, or 4k (default 1080p)")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User requesting the export (default project owner)")
	cmd.Flags().BoolVar(&noAudio, "no-audio", false, "Export video only")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Block until the job finishes")
	return cmd
}

// waitForJob polls the job until a terminal status, echoing phase changes.
func waitForJob(ctx context.Context, c *client.Client, out io.Writer, jobID string) error {
	lastPhase := ""
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		resp, err := c.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		job := resp.Job
		if job.Phase != lastPhase && job.Phase != "" {
			fmt.Fprintf(out, "  %s (%.0f%%)\n", job.Phase, job.Progress)
			lastPhase = job.Phase
		}

		switch queue.Status(job.Status) {
		case queue.StatusCompleted:
			fmt.Fprintf(out, "Done: %s\n", job.OutputPath)
			return nil
		case queue.StatusFailed:
			return fmt.Errorf("export failed: %s", job.Error)
		case queue.StatusCancelled:
			return fmt.Errorf("export cancelled")
		}
	}
}
