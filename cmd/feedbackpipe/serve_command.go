package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"feedbackpipe/internal/api"
	"feedbackpipe/internal/deps"
	"feedbackpipe/internal/logging"
	"feedbackpipe/internal/staging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	var staleAfter time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API over stored submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if staleAfter > 0 {
				res := staging.CleanStale(cfg.Paths.StagingDir, staleAfter, time.Now(), logger)
				if len(res.Removed) > 0 {
					logger.Info("stale staging workspaces removed",
						logging.String(logging.FieldEventType, "staging_cleanup"),
						logging.Int("removed", len(res.Removed)),
					)
				}
			}

			if bind == "" {
				bind = cfg.Paths.APIBind
			}
			requirements := deps.Requirements(cfg)
			srv := api.New(api.Options{
				Bind:         bind,
				Token:        cfg.Paths.APIToken,
				Submissions:  st,
				Dependencies: func() []deps.Status { return deps.CheckBinaries(requirements) },
				Logger:       logger,
			})
			if err := srv.Start(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving API on http://%s\n", srv.Addr())
			<-cmd.Context().Done()
			srv.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (defaults to paths.api_bind)")
	cmd.Flags().DurationVar(&staleAfter, "clean-stale", 24*time.Hour, "Remove unlocked staging workspaces older than this at startup (0 disables)")
	return cmd
}
