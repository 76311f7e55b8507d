package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"feedbackpipe/internal/config"
	"feedbackpipe/internal/media"
	"feedbackpipe/internal/stitch"
)

func newStitchCommand(ctx *commandContext) *cobra.Command {
	var modeFlag string
	var input string
	var output string
	var durationSeconds int

	cmd := &cobra.Command{
		Use:   "stitch",
		Short: "Stitch the configured prompt clips ahead of a local recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			mode, err := media.ParseMode(modeFlag)
			if err != nil {
				return err
			}
			if !mode.Records() {
				return errors.New("stitch needs --mode video or audio")
			}
			if strings.TrimSpace(input) == "" || strings.TrimSpace(output) == "" {
				return errors.New("--input and --output are required")
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			inPath, err := config.ExpandPath(input)
			if err != nil {
				return err
			}
			outPath, err := config.ExpandPath(output)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(inPath)
			if err != nil {
				return fmt.Errorf("read %s: %w", inPath, err)
			}

			mimeType := media.MimeTypeForExtension(filepath.Ext(inPath))
			if mode == media.ModeAudio && mimeType == media.MimeVideoWebM {
				mimeType = media.MimeAudioWebM
			}
			duration := time.Duration(durationSeconds) * time.Second
			engine, err := stitch.NewFromConfig(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			res, err := engine.Build(cmd.Context(), stitch.Request{
				Prompts:      cfg.Stitching.PromptClips,
				User:         media.Artifact{Data: data, MimeType: mimeType, Duration: duration},
				Mode:         mode,
				DurationHint: duration,
			})
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, res.Artifact.Data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}

			out := cmd.OutOrStdout()
			method := "re-encoded"
			if res.Lossless {
				method = "stream copy"
			}
			fmt.Fprintf(out, "Wrote %s (%s, %s)\n", outPath, formatBytes(res.Artifact.Size()), method)
			fmt.Fprintf(out, "Clip order: %s\n", strings.Join(res.Order, ", "))
			return nil
		},
	}

	cmd.Flags().StringVarP(&modeFlag, "mode", "m", string(media.ModeVideo), "Recording mode: video or audio")
	cmd.Flags().StringVarP(&input, "input", "i", "", "Recorded clip to place after the prompts")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination for the stitched file")
	cmd.Flags().IntVar(&durationSeconds, "duration", 0, "Recording length in seconds (bounds the audio-mode still-image video)")
	return cmd
}
