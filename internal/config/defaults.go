package config

const (
	defaultConfigPath             = "~/.config/feedbackpipe/config.toml"
	defaultStagingDir             = "~/.local/share/feedbackpipe/staging"
	defaultLogDir                 = "~/.local/share/feedbackpipe/logs"
	defaultStateDir               = "~/.local/share/feedbackpipe"
	defaultAPIBind                = "127.0.0.1:7490"
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultVideoDevice            = "/dev/video0"
	defaultAudioDevice            = "default"
	defaultVideoFormat            = "v4l2"
	defaultAudioFormat            = "alsa"
	defaultTimesliceMillis        = 1000
	defaultStopTimeoutSeconds     = 5
	defaultOutputWidth            = 1280
	defaultOutputHeight           = 720
	defaultFrameRate              = 30
	defaultFetchConcurrency       = 3
	defaultFetchRetries           = 2
	defaultFetchTimeoutSeconds    = 60
	defaultS3Region               = "us-east-1"
	defaultUploadEndpoint         = "https://www.googleapis.com/upload/drive/v3/files?uploadType=resumable&supportsAllDrives=true"
	defaultDriveAPIEndpoint       = "https://www.googleapis.com/drive/v3/"
	defaultChunkSizeMiB           = 5
	defaultMaxRetries             = 5
	defaultBaseDelayMillis        = 1000
	defaultInitiateTimeoutSeconds = 30
	defaultChunkTimeoutSeconds    = 600
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
	defaultDriveScope             = "https://www.googleapis.com/auth/drive.file"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			StateDir:   defaultStateDir,
			APIBind:    defaultAPIBind,
		},
		Capture: Capture{
			FFmpegBinary:       defaultFFmpegBinary,
			VideoDevice:        defaultVideoDevice,
			AudioDevice:        defaultAudioDevice,
			VideoFormat:        defaultVideoFormat,
			AudioFormat:        defaultAudioFormat,
			TimesliceMillis:    defaultTimesliceMillis,
			StopTimeoutSeconds: defaultStopTimeoutSeconds,
			WatchHotplug:       true,
		},
		Stitching: Stitching{
			FFprobeBinary:       defaultFFprobeBinary,
			OutputWidth:         defaultOutputWidth,
			OutputHeight:        defaultOutputHeight,
			FrameRate:           defaultFrameRate,
			FetchConcurrency:    defaultFetchConcurrency,
			FetchRetries:        defaultFetchRetries,
			FetchTimeoutSeconds: defaultFetchTimeoutSeconds,
		},
		S3: S3{
			Region: defaultS3Region,
		},
		Upload: Upload{
			Endpoint:               defaultUploadEndpoint,
			ChunkSizeMiB:           defaultChunkSizeMiB,
			MaxRetries:             defaultMaxRetries,
			BaseDelayMillis:        defaultBaseDelayMillis,
			InitiateTimeoutSeconds: defaultInitiateTimeoutSeconds,
			ChunkTimeoutSeconds:    defaultChunkTimeoutSeconds,
			DriveAPIEndpoint:       defaultDriveAPIEndpoint,
		},
		Credentials: Credentials{
			Scopes: []string{defaultDriveScope},
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completed:      true,
			Failed:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
