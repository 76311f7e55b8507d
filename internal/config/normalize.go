package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCapture()
	if err := c.normalizeStitching(); err != nil {
		return err
	}
	c.normalizeUpload()
	if err := c.normalizeCredentials(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("FEEDBACKPIPE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeCapture() {
	c.Capture.FFmpegBinary = strings.TrimSpace(c.Capture.FFmpegBinary)
	if c.Capture.FFmpegBinary == "" {
		c.Capture.FFmpegBinary = defaultFFmpegBinary
	}
	c.Capture.VideoDevice = strings.TrimSpace(c.Capture.VideoDevice)
	c.Capture.AudioDevice = strings.TrimSpace(c.Capture.AudioDevice)
	c.Capture.VideoFormat = strings.ToLower(strings.TrimSpace(c.Capture.VideoFormat))
	c.Capture.AudioFormat = strings.ToLower(strings.TrimSpace(c.Capture.AudioFormat))
}

func (c *Config) normalizeStitching() error {
	c.Stitching.FFprobeBinary = strings.TrimSpace(c.Stitching.FFprobeBinary)
	if c.Stitching.FFprobeBinary == "" {
		c.Stitching.FFprobeBinary = defaultFFprobeBinary
	}
	clips := c.Stitching.PromptClips[:0]
	for _, ref := range c.Stitching.PromptClips {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if isLocalRef(ref) {
			expanded, err := expandPath(strings.TrimPrefix(ref, "file://"))
			if err != nil {
				return fmt.Errorf("stitching.prompt_clips: %w", err)
			}
			ref = expanded
		}
		clips = append(clips, ref)
	}
	c.Stitching.PromptClips = clips

	image := strings.TrimSpace(c.Stitching.PlaceholderImage)
	if image != "" && isLocalRef(image) {
		expanded, err := expandPath(strings.TrimPrefix(image, "file://"))
		if err != nil {
			return fmt.Errorf("stitching.placeholder_image: %w", err)
		}
		image = expanded
	}
	c.Stitching.PlaceholderImage = image
	return nil
}

func (c *Config) normalizeUpload() {
	c.Upload.Endpoint = strings.TrimSpace(c.Upload.Endpoint)
	if c.Upload.Endpoint == "" {
		c.Upload.Endpoint = defaultUploadEndpoint
	}
	c.Upload.DriveAPIEndpoint = strings.TrimSpace(c.Upload.DriveAPIEndpoint)
	if c.Upload.DriveAPIEndpoint == "" {
		c.Upload.DriveAPIEndpoint = defaultDriveAPIEndpoint
	}
	c.Upload.FolderID = strings.TrimSpace(c.Upload.FolderID)
	if c.Upload.FolderID == "" {
		if value, ok := os.LookupEnv("FEEDBACKPIPE_DRIVE_FOLDER"); ok {
			c.Upload.FolderID = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeCredentials() error {
	c.Credentials.AccessToken = strings.TrimSpace(c.Credentials.AccessToken)
	if c.Credentials.AccessToken == "" {
		if value, ok := os.LookupEnv("FEEDBACKPIPE_ACCESS_TOKEN"); ok {
			c.Credentials.AccessToken = strings.TrimSpace(value)
		}
	}
	path := strings.TrimSpace(c.Credentials.ServiceAccountFile)
	if path == "" {
		if value, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS"); ok {
			path = strings.TrimSpace(value)
		}
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return fmt.Errorf("credentials.service_account_file: %w", err)
		}
		path = expanded
	}
	c.Credentials.ServiceAccountFile = path
	if len(c.Credentials.Scopes) == 0 {
		c.Credentials.Scopes = []string{defaultDriveScope}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func isLocalRef(ref string) bool {
	if strings.HasPrefix(ref, "file://") {
		return true
	}
	return !strings.Contains(ref, "://")
}
