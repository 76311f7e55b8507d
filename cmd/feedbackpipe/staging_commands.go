package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"feedbackpipe/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Inspect and clean session staging workspaces",
	}
	stagingCmd.AddCommand(newStagingListCommand(ctx))
	stagingCmd.AddCommand(newStagingCleanCommand(ctx))
	return stagingCmd
}

func newStagingListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List session workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dirs, err := staging.ListDirectories(cfg.Paths.StagingDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(dirs) == 0 {
				fmt.Fprintln(out, "No staging workspaces")
				return nil
			}
			rows := make([][]string, 0, len(dirs))
			for _, dir := range dirs {
				rows = append(rows, []string{
					dir.Name,
					formatBytes(dir.Size),
					dir.ModTime.Local().Format("2006-01-02 15:04"),
					yesNo(dir.Locked),
				})
			}
			fmt.Fprintln(out, renderTable([]column{left("Workspace"), right("Size"), left("Modified"), left("In use")}, rows))
			return nil
		},
	}
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove workspaces left behind by failed sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			res := staging.CleanStale(cfg.Paths.StagingDir, maxAge, time.Now(), logger)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Removed %d workspace(s)\n", len(res.Removed))
			if len(res.Skipped) > 0 {
				fmt.Fprintf(out, "Skipped %d workspace(s) still in use\n", len(res.Skipped))
			}
			for _, failure := range res.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to remove %s: %v\n", failure.Path, failure.Error)
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("%d workspace(s) could not be removed", len(res.Errors))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 24*time.Hour, "Only remove workspaces older than this")
	return cmd
}
