package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"cutroom/internal/api"
	"cutroom/internal/client"
	"cutroom/internal/timeline"
)

func newProjectCommand(ctx *commandContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	projectCmd.AddCommand(newProjectCreateCommand(ctx))
	projectCmd.AddCommand(newProjectShowCommand(ctx))

	return projectCmd
}

func newProjectCreateCommand(ctx *commandContext) *cobra.Command {
	var userID string
	var width, height, fps int

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.CreateProject(cmd.Context(), api.CreateProjectRequest{
					UserID: userID,
					Name:   args[0],
					Settings: timeline.Settings{
						Width:  width,
						Height: height,
						FPS:    fps,
					},
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (%s)\n", resp.Project.Name, resp.Project.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Owning user id")
	cmd.Flags().IntVar(&width, "width", 0, "Render width (default 1920)")
	cmd.Flags().IntVar(&height, "height", 0, "Render height (default 1080)")
	cmd.Flags().IntVar(&fps, "fps", 0, "Frame rate (default 30)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newProjectShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project and its timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.GetProject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				project := resp.Project
				fmt.Fprintf(out, "%s (%s)\n", project.Name, project.ID)
				fmt.Fprintf(out, "  owner:    %s\n", project.UserID)
				fmt.Fprintf(out, "  render:   %dx%d @ %dfps\n",
					project.Settings.Width, project.Settings.Height, project.Settings.FPS)
				fmt.Fprintf(out, "  revision: %s\n", project.UpdatedAt)

				if len(resp.Effects) == 0 {
					fmt.Fprintln(out, "  timeline is empty")
					return nil
				}
				rows := make([][]string, 0, len(resp.Effects))
				for _, effect := range resp.Effects {
					rows = append(rows, []string{
						effect.ID,
						string(effect.Kind),
						strconv.Itoa(effect.Track),
						formatMs(effect.StartAt),
						formatMs(effect.Duration),
						effect.MediaRef,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Effect", "Kind", "Track", "Start", "Duration", "Media"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}

// formatMs renders a millisecond count as seconds with one decimal.
func formatMs(ms int64) string {
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}
