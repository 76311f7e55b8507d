package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"feedbackpipe/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("FEEDBACKPIPE_ACCESS_TOKEN", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "feedbackpipe", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.DatabasePath() != filepath.Join(tempHome, ".local", "share", "feedbackpipe", "submissions.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.ChunkSize() != 5*1024*1024 {
		t.Fatalf("expected 5 MiB chunks, got %d", cfg.ChunkSize())
	}
	if cfg.Upload.MaxRetries != 5 {
		t.Fatalf("expected 5 retries, got %d", cfg.Upload.MaxRetries)
	}
	if cfg.BaseDelay() != time.Second {
		t.Fatalf("expected 1s base delay, got %s", cfg.BaseDelay())
	}
	if cfg.Timeslice() != time.Second {
		t.Fatalf("expected 1s timeslice, got %s", cfg.Timeslice())
	}
	if !strings.Contains(cfg.Upload.Endpoint, "uploadType=resumable") {
		t.Fatalf("unexpected upload endpoint: %q", cfg.Upload.Endpoint)
	}
	if err := cfg.ValidateUploadCredentials(); err == nil {
		t.Fatal("expected missing credentials to be reported")
	}
}

func TestLoadCustomConfigOverridesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	clip := filepath.Join(tempHome, "clips", "intro.webm")
	configPath := filepath.Join(tempHome, "config.toml")
	content := `[paths]
staging_dir = "~/staging"

[stitching]
prompt_clips = ["` + clip + `", "https://cdn.example.com/q2.webm", "s3://prompts/q3.webm"]
placeholder_image = "~/still.png"

[upload]
folder_id = "folder-123"
chunk_size_mib = 8
max_retries = 3

[credentials]
access_token = "token-abc"

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected existing config at %q, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.StagingDir != filepath.Join(tempHome, "staging") {
		t.Fatalf("unexpected staging dir: %q", cfg.Paths.StagingDir)
	}
	if len(cfg.Stitching.PromptClips) != 3 {
		t.Fatalf("expected 3 prompt clips, got %v", cfg.Stitching.PromptClips)
	}
	if cfg.Stitching.PromptClips[0] != clip || cfg.Stitching.PromptClips[2] != "s3://prompts/q3.webm" {
		t.Fatalf("prompt clip order not preserved: %v", cfg.Stitching.PromptClips)
	}
	if cfg.Stitching.PlaceholderImage != filepath.Join(tempHome, "still.png") {
		t.Fatalf("unexpected placeholder image: %q", cfg.Stitching.PlaceholderImage)
	}
	if cfg.ChunkSize() != 8*1024*1024 || cfg.Upload.MaxRetries != 3 {
		t.Fatalf("upload overrides not applied: %+v", cfg.Upload)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging values, got %+v", cfg.Logging)
	}
	if err := cfg.ValidateUploadCredentials(); err != nil {
		t.Fatalf("expected credentials to validate: %v", err)
	}
}

func TestEnvFallbacks(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("FEEDBACKPIPE_ACCESS_TOKEN", "  env-token ")
	t.Setenv("FEEDBACKPIPE_DRIVE_FOLDER", "env-folder")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "~/sa.json")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Credentials.AccessToken != "env-token" {
		t.Fatalf("expected token from env, got %q", cfg.Credentials.AccessToken)
	}
	if cfg.Upload.FolderID != "env-folder" {
		t.Fatalf("expected folder from env, got %q", cfg.Upload.FolderID)
	}
	if cfg.Credentials.ServiceAccountFile != filepath.Join(tempHome, "sa.json") {
		t.Fatalf("unexpected service account path: %q", cfg.Credentials.ServiceAccountFile)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero chunk", func(c *config.Config) { c.Upload.ChunkSizeMiB = 0 }, "upload.chunk_size_mib"},
		{"relative endpoint", func(c *config.Config) { c.Upload.Endpoint = "/upload" }, "upload.endpoint"},
		{"odd width", func(c *config.Config) { c.Stitching.OutputWidth = 1279 }, "must be even"},
		{"ftp clip", func(c *config.Config) { c.Stitching.PromptClips = []string{"ftp://host/clip.webm"} }, "unsupported scheme"},
		{"s3 without key", func(c *config.Config) { c.Stitching.PromptClips = []string{"s3://bucket"} }, "bucket and key"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"video format", func(c *config.Config) { c.Capture.VideoFormat = "x11grab" }, "capture.video_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in error, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	configPath := filepath.Join(tempHome, "config.toml")
	if err := os.WriteFile(configPath, []byte("[upload]\nchunk_size = 4\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestCreateSampleProducesLoadableConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "nested", "config.toml")

	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var parsed map[string]any
	if err := toml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
}

func TestEncodeRedactsSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.Credentials.AccessToken = "secret-token"
	cfg.S3.SecretAccessKey = "secret-key"
	cfg.Paths.APIToken = "secret-api"
	out, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if strings.Contains(out, "secret-token") || strings.Contains(out, "secret-key") || strings.Contains(out, "secret-api") {
		t.Fatalf("expected secrets to be redacted, got:\n%s", out)
	}
	if cfg.Credentials.AccessToken != "secret-token" {
		t.Fatal("Encode must not mutate the receiver")
	}
}
