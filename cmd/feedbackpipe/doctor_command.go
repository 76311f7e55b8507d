package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"feedbackpipe/internal/capture"
	"feedbackpipe/internal/config"
	"feedbackpipe/internal/credential"
	"feedbackpipe/internal/deps"
	"feedbackpipe/internal/staging"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools, capture devices, and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := isTerminal(out)
			problems := 0

			fmt.Fprintln(out, renderSectionHeader("Dependencies", colorize))
			for _, dep := range deps.CheckBinaries(deps.Requirements(cfg)) {
				kind, message := statusOK, dep.Command
				if !dep.Available {
					kind, message = statusError, dep.Detail
					if dep.Optional {
						kind = statusWarn
					} else {
						problems++
					}
				}
				fmt.Fprintln(out, renderStatusLine(dep.Name, kind, message, colorize))
			}

			fmt.Fprintln(out, renderSectionHeader("Capture devices", colorize))
			for _, check := range deviceChecks(cfg.Capture) {
				kind, message := checkDevice(check.format, check.device)
				if kind == statusError {
					problems++
				}
				fmt.Fprintln(out, renderStatusLine(check.label, kind, message, colorize))
			}

			fmt.Fprintln(out, renderSectionHeader("Upload", colorize))
			if err := cfg.ValidateUploadCredentials(); err != nil {
				fmt.Fprintln(out, renderStatusLine("Credential", statusError, "not configured", colorize))
				problems++
			} else {
				fmt.Fprintln(out, renderStatusLine("Credential", statusOK, credential.Describe(cfg.Credentials), colorize))
			}
			folder := cfg.Upload.FolderID
			folderKind := statusOK
			if folder == "" {
				folder, folderKind = "drive root (upload.folder_id unset)", statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Destination", folderKind, folder, colorize))
			fmt.Fprintln(out, renderStatusLine("Verify after upload", statusInfo, yesNo(cfg.Upload.VerifyAfterUpload), colorize))

			fmt.Fprintln(out, renderSectionHeader("Staging", colorize))
			dirs, err := staging.ListDirectories(cfg.Paths.StagingDir)
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("Workspaces", statusWarn, err.Error(), colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Workspaces", statusInfo, fmt.Sprintf("%d in %s", len(dirs), cfg.Paths.StagingDir), colorize))
			}

			if problems > 0 {
				return fmt.Errorf("doctor found %d problem(s)", problems)
			}
			return nil
		},
	}
}

type deviceCheck struct {
	label  string
	format string
	device string
}

func deviceChecks(cfg config.Capture) []deviceCheck {
	return []deviceCheck{
		{label: "Camera", format: cfg.VideoFormat, device: cfg.VideoDevice},
		{label: "Microphone", format: cfg.AudioFormat, device: cfg.AudioDevice},
	}
}

func checkDevice(format, device string) (statusKind, string) {
	device = strings.TrimSpace(device)
	if device == "" {
		return statusError, "not configured"
	}
	node := capture.DeviceNode(format, device)
	if node == "" {
		return statusInfo, fmt.Sprintf("%s %s (no device node to check)", format, device)
	}
	if err := capture.CheckAccess(node); err != nil {
		var devErr *capture.DeviceError
		if errors.As(err, &devErr) {
			return statusError, devErr.Error()
		}
		return statusError, err.Error()
	}
	return statusOK, fmt.Sprintf("%s %s", format, node)
}
