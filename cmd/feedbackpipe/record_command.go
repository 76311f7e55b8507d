package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"feedbackpipe/internal/api"
	"feedbackpipe/internal/capture"
	"feedbackpipe/internal/config"
	"feedbackpipe/internal/media"
	"feedbackpipe/internal/pipeline"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	var modeFlag string
	var answersPath string
	var listen string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record feedback from the configured devices and submit it",
		Long: "Records from the configured capture devices until Enter is pressed, then\n" +
			"stitches the prompt clips ahead of the recording, uploads the result, and\n" +
			"stores the submission. Text feedback skips recording entirely.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			mode, err := media.ParseMode(modeFlag)
			if err != nil {
				return err
			}
			answers, err := loadAnswers(answersPath)
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

			runCtx := cmd.Context()
			hub := api.NewHub(logger)
			if listen = strings.TrimSpace(listen); listen != "" {
				srv := api.New(api.Options{Bind: listen, Token: cfg.Paths.APIToken, Submissions: st, Hub: hub, Logger: logger})
				if err := srv.Start(runCtx); err != nil {
					return err
				}
				defer srv.Stop()
				fmt.Fprintf(cmd.ErrOrStderr(), "Live events at http://%s/api/sessions/{id}/events\n", srv.Addr())
			}

			progress := newProgressPrinter(cmd.ErrOrStderr())
			defer progress.Finish()
			publisher := pipeline.PublisherFunc(func(e pipeline.Event) {
				hub.Publish(e)
				if e.State == pipeline.StateUploading {
					progress.Update("uploading", e.Progress)
				}
			})

			var device capture.Device
			if mode.Records() {
				device = capture.NewFFmpegDevice(cfg.Capture, logger)
			}
			orch, err := pipeline.NewFromConfig(runCtx, cfg, device, st, publisher, logger)
			if err != nil {
				return err
			}
			return runRecording(runCtx, cmd, orch, mode, answers)
		},
	}

	cmd.Flags().StringVarP(&modeFlag, "mode", "m", string(media.ModeVideo), "Feedback mode: video, audio, or text")
	cmd.Flags().StringVar(&answersPath, "answers", "", "JSON or YAML list of question answers to store with the submission")
	cmd.Flags().StringVar(&listen, "listen", "", "Serve live session events on this address while recording")
	return cmd
}

func runRecording(ctx context.Context, cmd *cobra.Command, orch *pipeline.Orchestrator, mode media.Mode, answers []pipeline.Answer) error {
	out := cmd.OutOrStdout()
	if err := orch.GiveConsent(ctx); err != nil {
		return err
	}
	if err := orch.SelectMode(ctx, mode); err != nil {
		return err
	}
	for _, a := range answers {
		if err := orch.RecordAnswer(a); err != nil {
			return err
		}
	}

	if mode.Records() {
		fmt.Fprintf(out, "Recording %s feedback (session %s). Press Enter when finished.\n", mode, orch.SessionID())
		if err := waitForEnter(ctx, cmd.InOrStdin()); err != nil {
			orch.Restart("recording interrupted")
			return err
		}
	}

	res, err := orch.Complete(ctx)
	if err != nil {
		if snap := orch.Snapshot(); snap.Cause != "" {
			return fmt.Errorf("%s: %w", snap.Cause, err)
		}
		return err
	}
	fmt.Fprintf(out, "Submission %s stored\n", res.SessionID)
	if res.RemoteID != "" {
		fmt.Fprintf(out, "Uploaded %s as %s (%s, %s)\n", res.RemoteName, res.RemoteID, formatBytes(res.SizeBytes), res.Duration)
		fmt.Fprintf(out, "Clip order: %s\n", strings.Join(res.Clips, ", "))
	}
	return nil
}

// waitForEnter blocks until a line is read from in or ctx is done.
func waitForEnter(ctx context.Context, in io.Reader) error {
	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(in).ReadString('\n')
		if err == io.EOF {
			err = nil
		}
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func loadAnswers(path string) ([]pipeline.Answer, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("read answers: %w", err)
	}
	var answers []pipeline.Answer
	switch strings.ToLower(filepath.Ext(expanded)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &answers)
	default:
		err = json.Unmarshal(data, &answers)
	}
	if err != nil {
		return nil, fmt.Errorf("parse answers %s: %w", expanded, err)
	}
	return answers, nil
}
