package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateStitching(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCapture() error {
	if err := ensurePositiveMap(map[string]int{
		"capture.timeslice_ms":         c.Capture.TimesliceMillis,
		"capture.stop_timeout_seconds": c.Capture.StopTimeoutSeconds,
	}); err != nil {
		return err
	}
	switch c.Capture.VideoFormat {
	case "v4l2", "avfoundation", "dshow", "lavfi":
	default:
		return fmt.Errorf("capture.video_format: unsupported value %q", c.Capture.VideoFormat)
	}
	switch c.Capture.AudioFormat {
	case "alsa", "pulse", "avfoundation", "dshow", "lavfi":
	default:
		return fmt.Errorf("capture.audio_format: unsupported value %q", c.Capture.AudioFormat)
	}
	return nil
}

func (c *Config) validateStitching() error {
	if err := ensurePositiveMap(map[string]int{
		"stitching.output_width":          c.Stitching.OutputWidth,
		"stitching.output_height":         c.Stitching.OutputHeight,
		"stitching.frame_rate":            c.Stitching.FrameRate,
		"stitching.fetch_concurrency":     c.Stitching.FetchConcurrency,
		"stitching.fetch_timeout_seconds": c.Stitching.FetchTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Stitching.OutputWidth%2 != 0 || c.Stitching.OutputHeight%2 != 0 {
		return errors.New("stitching.output_width and stitching.output_height must be even")
	}
	if c.Stitching.FetchRetries < 0 {
		return errors.New("stitching.fetch_retries must be zero or positive")
	}
	for _, ref := range c.Stitching.PromptClips {
		if err := validateRef(ref); err != nil {
			return fmt.Errorf("stitching.prompt_clips: %w", err)
		}
	}
	if c.Stitching.PlaceholderImage != "" {
		if err := validateRef(c.Stitching.PlaceholderImage); err != nil {
			return fmt.Errorf("stitching.placeholder_image: %w", err)
		}
	}
	return nil
}

func (c *Config) validateUpload() error {
	if err := ensurePositiveMap(map[string]int{
		"upload.chunk_size_mib":           c.Upload.ChunkSizeMiB,
		"upload.max_retries":              c.Upload.MaxRetries,
		"upload.base_delay_ms":            c.Upload.BaseDelayMillis,
		"upload.initiate_timeout_seconds": c.Upload.InitiateTimeoutSeconds,
		"upload.chunk_timeout_seconds":    c.Upload.ChunkTimeoutSeconds,
	}); err != nil {
		return err
	}
	parsed, err := url.Parse(c.Upload.Endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("upload.endpoint must be an absolute URL, got %q", c.Upload.Endpoint)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	return nil
}

// ValidateUploadCredentials reports whether an upload can be authorised.
// Commands that never upload skip this check.
func (c *Config) ValidateUploadCredentials() error {
	if c.Credentials.AccessToken == "" && c.Credentials.ServiceAccountFile == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("credentials.access_token or credentials.service_account_file is required. Set FEEDBACKPIPE_ACCESS_TOKEN or GOOGLE_APPLICATION_CREDENTIALS, or edit %s (create with 'feedbackpipe config init')", defaultPath)
	}
	return nil
}

func validateRef(ref string) error {
	if !strings.Contains(ref, "://") {
		return nil
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return fmt.Errorf("invalid reference %q: %w", ref, err)
	}
	switch parsed.Scheme {
	case "http", "https", "s3", "file":
	default:
		return fmt.Errorf("unsupported scheme %q in %q", parsed.Scheme, ref)
	}
	if parsed.Scheme == "s3" && (parsed.Host == "" || strings.Trim(parsed.Path, "/") == "") {
		return fmt.Errorf("s3 reference %q must name a bucket and key", ref)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
