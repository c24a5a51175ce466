package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List render jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := ctx.client().List(cmd.Context(), statuses)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "Queue is empty")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Status", "Progress", "Scenes", "Created"},
				buildJobRows(jobs),
				3, 4,
			))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (queued, processing, completed, failed, cancelled)")
	return cmd
}

func buildJobRows(jobs []jobView) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			shortID(job.ID),
			job.Name,
			job.Status,
			fmt.Sprintf("%.0f%%", job.ProgressPercent),
			fmt.Sprintf("%d/%d", job.ScenesCompleted, job.ScenesTotal),
			formatCreated(job.CreatedAt),
		})
	}
	return rows
}

func shortID(id string) string {
	if idx := strings.IndexByte(id, '-'); idx > 0 {
		return id[:idx]
	}
	return id
}

func formatCreated(value string) string {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return parsed.Local().Format("2006-01-02 15:04")
}
