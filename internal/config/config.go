package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	StateDir   string `toml:"state_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Capture configures the ffmpeg-backed Linux capture devices.
type Capture struct {
	FFmpegBinary       string `toml:"ffmpeg_binary"`
	VideoDevice        string `toml:"video_device"`
	AudioDevice        string `toml:"audio_device"`
	VideoFormat        string `toml:"video_format"`
	AudioFormat        string `toml:"audio_format"`
	TimesliceMillis    int    `toml:"timeslice_ms"`
	StopTimeoutSeconds int    `toml:"stop_timeout_seconds"`
	WatchHotplug       bool   `toml:"watch_hotplug"`
}

// Stitching configures prompt clips and the output container geometry.
type Stitching struct {
	FFprobeBinary       string   `toml:"ffprobe_binary"`
	PromptClips         []string `toml:"prompt_clips"`
	PlaceholderImage    string   `toml:"placeholder_image"`
	OutputWidth         int      `toml:"output_width"`
	OutputHeight        int      `toml:"output_height"`
	FrameRate           int      `toml:"frame_rate"`
	FetchConcurrency    int      `toml:"fetch_concurrency"`
	FetchRetries        int      `toml:"fetch_retries"`
	FetchTimeoutSeconds int      `toml:"fetch_timeout_seconds"`
}

// S3 configures the object-store prompt clip fetcher (s3:// references).
type S3 struct {
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	UsePathStyle    bool   `toml:"use_path_style"`
}

// Upload configures the resumable upload engine.
type Upload struct {
	Endpoint               string `toml:"endpoint"`
	FolderID               string `toml:"folder_id"`
	ChunkSizeMiB           int    `toml:"chunk_size_mib"`
	MaxRetries             int    `toml:"max_retries"`
	BaseDelayMillis        int    `toml:"base_delay_ms"`
	InitiateTimeoutSeconds int    `toml:"initiate_timeout_seconds"`
	ChunkTimeoutSeconds    int    `toml:"chunk_timeout_seconds"`
	VerifyAfterUpload      bool   `toml:"verify_after_upload"`
	DriveAPIEndpoint       string `toml:"drive_api_endpoint"`
}

// Credentials configures the bearer credential handed to the upload engine.
type Credentials struct {
	AccessToken        string   `toml:"access_token"`
	ServiceAccountFile string   `toml:"service_account_file"`
	Scopes             []string `toml:"scopes"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Failed         bool   `toml:"failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for feedbackpipe.
//
// Configuration sections by subsystem:
//   - Paths: staging, log, and state directories plus the API bind address
//   - Capture: camera and microphone devices and stop behaviour
//   - Stitching: prompt clips, placeholder image, output geometry
//   - S3: object storage used by s3:// prompt references
//   - Upload: resumable upload endpoint, chunking, and retry policy
//   - Credentials: bearer token or service account for uploads
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Capture       Capture       `toml:"capture"`
	Stitching     Stitching     `toml:"stitching"`
	S3            S3            `toml:"s3"`
	Upload        Upload        `toml:"upload"`
	Credentials   Credentials   `toml:"credentials"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("feedbackpipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the staging, log, and state directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite file holding submission records.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "submissions.db")
}

// ChunkSize returns the upload chunk size in bytes.
func (c *Config) ChunkSize() int {
	return c.Upload.ChunkSizeMiB * 1024 * 1024
}

// BaseDelay returns the first backoff interval of the upload retry loop.
func (c *Config) BaseDelay() time.Duration {
	return time.Duration(c.Upload.BaseDelayMillis) * time.Millisecond
}

// StopTimeout bounds how long a recording waits for the device flush.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Capture.StopTimeoutSeconds) * time.Second
}

// Timeslice is the interval at which the capture device emits chunks.
func (c *Config) Timeslice() time.Duration {
	return time.Duration(c.Capture.TimesliceMillis) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() (string, error) {
	redacted := *c
	if redacted.Credentials.AccessToken != "" {
		redacted.Credentials.AccessToken = "<redacted>"
	}
	if redacted.S3.SecretAccessKey != "" {
		redacted.S3.SecretAccessKey = "<redacted>"
	}
	if redacted.Paths.APIToken != "" {
		redacted.Paths.APIToken = "<redacted>"
	}
	var sb strings.Builder
	encoder := toml.NewEncoder(&sb)
	if err := encoder.Encode(redacted); err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return sb.String(), nil
}
