package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"feedbackpipe/internal/credential"
	"feedbackpipe/internal/drive"
)

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var size int64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "verify FILE_ID",
		Short: "Check an uploaded file's remote metadata",
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
			tokens, err := credential.FromConfig(cmd.Context(), cfg.Credentials)
			if err != nil {
				return err
			}
			var opts []drive.Option
			if cfg.Upload.DriveAPIEndpoint != "" {
				opts = append(opts, drive.WithEndpoint(cfg.Upload.DriveAPIEndpoint))
			}
			verifier, err := drive.NewVerifier(cmd.Context(), tokens, logger, opts...)
			if err != nil {
				return err
			}

			id := strings.TrimSpace(args[0])
			var file drive.File
			if size > 0 {
				file, err = verifier.Verify(cmd.Context(), id, size)
			} else {
				file, err = verifier.Stat(cmd.Context(), id)
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, file)
			}
			rows := [][]string{
				{"ID", file.ID},
				{"Name", file.Name},
				{"Type", file.MimeType},
				{"Size", fmt.Sprintf("%s (%d bytes)", formatBytes(file.Size), file.Size)},
				{"Parents", strings.Join(file.Parents, ", ")},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{left("Field"), left("Value")}, rows))
			return nil
		},
	}

	cmd.Flags().Int64Var(&size, "size", 0, "Expected size in bytes; a mismatch is an error")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the metadata as JSON")
	return cmd
}
