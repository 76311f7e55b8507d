package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"feedbackpipe/internal/config"
	"feedbackpipe/internal/credential"
	"feedbackpipe/internal/media"
	"feedbackpipe/internal/upload"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var name string
	var folder string
	var mimeType string

	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a file with the resumable chunked protocol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateUploadCredentials(); err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			tokens, err := credential.FromConfig(cmd.Context(), cfg.Credentials)
			if err != nil {
				return err
			}

			if strings.TrimSpace(name) == "" {
				name = filepath.Base(path)
			}
			if strings.TrimSpace(folder) == "" {
				folder = cfg.Upload.FolderID
			}
			if strings.TrimSpace(mimeType) == "" {
				mimeType = media.MimeTypeForExtension(filepath.Ext(path))
			}

			progress := newProgressPrinter(cmd.ErrOrStderr())
			defer progress.Finish()
			res, err := upload.NewFromConfig(cfg, logger).Transfer(cmd.Context(), upload.Request{
				Data:        data,
				MimeType:    mimeType,
				Destination: upload.Destination{FolderID: folder, Name: name},
				Credential:  tokens,
				Progress:    func(pct int) { progress.Update("uploading", pct) },
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s as %s (%s, %d chunk requests, %d retries)\n",
				name, res.RemoteID, formatBytes(res.TotalBytes), res.Attempts, res.Retries)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Remote file name (defaults to the local base name)")
	cmd.Flags().StringVar(&folder, "folder", "", "Destination folder id (defaults to upload.folder_id)")
	cmd.Flags().StringVar(&mimeType, "mime", "", "Media type (defaults from the file extension)")
	return cmd
}
