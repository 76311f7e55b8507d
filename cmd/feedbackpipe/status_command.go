package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"feedbackpipe/internal/api"
	"feedbackpipe/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	var statuses []string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List stored submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			var filter []store.Status
			for _, value := range statuses {
				if trimmed := strings.TrimSpace(value); trimmed != "" {
					filter = append(filter, store.Status(trimmed))
				}
			}
			subs, err := st.List(cmd.Context(), limit, filter...)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, api.SubmissionListResponse{Items: api.FromSubmissions(subs)})
			}

			out := cmd.OutOrStdout()
			if len(subs) == 0 {
				fmt.Fprintln(out, "No submissions")
				return nil
			}
			rows := make([][]string, 0, len(subs))
			for _, sub := range subs {
				detail := sub.RemoteID
				if sub.Status == store.StatusFailed {
					detail = sub.ErrorMessage
				}
				rows = append(rows, []string{
					sub.SessionID,
					sub.Mode,
					string(sub.Status),
					formatBytes(sub.SizeBytes),
					formatSeconds(sub.DurationSeconds),
					fmt.Sprint(len(sub.Answers)),
					sub.CreatedAt.Local().Format("2006-01-02 15:04"),
					detail,
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				left("Session"), left("Mode"), left("Status"),
				right("Size"), right("Duration"), right("Answers"),
				left("Created"), left("Remote / Error"),
			}, rows))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum submissions to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print submissions as JSON")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only list these statuses (completed, failed)")
	return cmd
}
