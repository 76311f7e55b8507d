package pipeline

import (
	"context"
	"log/slog"

	"feedbackpipe/internal/capture"
	"feedbackpipe/internal/config"
	"feedbackpipe/internal/credential"
	"feedbackpipe/internal/drive"
	"feedbackpipe/internal/logging"
	"feedbackpipe/internal/notifications"
	"feedbackpipe/internal/stitch"
	"feedbackpipe/internal/upload"
)

// NewFromConfig wires the stitching engine, upload engine, credential,
// optional Drive verifier, and notifier from cfg. device may be nil for text
// feedback. A missing credential is logged and surfaces when a recording
// mode is started.
func NewFromConfig(ctx context.Context, cfg *config.Config, device capture.Device, st Persister, publisher Publisher, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	stitcher, err := stitch.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := Dependencies{
		Device:    device,
		Stitcher:  stitcher,
		Uploader:  upload.NewFromConfig(cfg, logger),
		Store:     st,
		Notifier:  notifications.NewService(cfg),
		Publisher: publisher,
	}

	tokens, err := credential.FromConfig(ctx, cfg.Credentials)
	if err != nil {
		logging.WarnWithContext(logging.NewComponentLogger(logger, "pipeline"), "upload credential unavailable", "credential_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "video and audio feedback cannot be uploaded"),
		)
	} else {
		deps.Credential = tokens
		if cfg.Upload.VerifyAfterUpload {
			var verifyOpts []drive.Option
			if cfg.Upload.DriveAPIEndpoint != "" {
				verifyOpts = append(verifyOpts, drive.WithEndpoint(cfg.Upload.DriveAPIEndpoint))
			}
			verifier, err := drive.NewVerifier(ctx, tokens, logger, verifyOpts...)
			if err != nil {
				return nil, err
			}
			deps.Verifier = verifier
		}
	}

	settings := Settings{
		Prompts:     append([]string(nil), cfg.Stitching.PromptClips...),
		FolderID:    cfg.Upload.FolderID,
		StagingDir:  cfg.Paths.StagingDir,
		Timeslice:   cfg.Timeslice(),
		StopTimeout: cfg.StopTimeout(),
	}
	return New(deps, settings, append([]Option{WithLogger(logger)}, opts...)...), nil
}
