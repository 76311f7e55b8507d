package stitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"feedbackpipe/internal/config"
	"feedbackpipe/internal/deps"
	"feedbackpipe/internal/logging"
	"feedbackpipe/internal/media"
	"feedbackpipe/internal/media/ffmpeg"
	"feedbackpipe/internal/media/ffprobe"
	"feedbackpipe/internal/services"
)

// Processor is the media-processing capability the engine drives.
type Processor interface {
	ConcatCopy(ctx context.Context, inputs []string, output string) error
	ConcatReencode(ctx context.Context, clips []ffmpeg.Clip, output string, geometry ffmpeg.Geometry) error
	StillImageVideo(ctx context.Context, image, audio, output string, duration time.Duration, geometry ffmpeg.Geometry) error
}

// Prober inspects clip streams.
type Prober interface {
	Probe(ctx context.Context, path string) (ffprobe.Result, error)
}

// Request is one stitch job. Prompts are references in playback order.
type Request struct {
	Prompts []string
	User    media.Artifact
	Mode    media.Mode
	// DurationHint bounds the synthesized video in audio mode. Whole seconds
	// are used.
	DurationHint time.Duration
	// WorkDir overrides the engine's scratch root for this job.
	WorkDir string
}

// Output is the stitched artifact and how it was produced.
type Output struct {
	Artifact media.Artifact
	// Order lists the clip labels in output order: prompt-01 ... user.
	Order    []string
	Lossless bool
}

// Engine builds stitched artifacts.
type Engine struct {
	fetcher     Fetcher
	processor   Processor
	prober      Prober
	placeholder string
	geometry    ffmpeg.Geometry
	concurrency int
	workRoot    string
	logger      *slog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithPlaceholderImage sets the still image reference used in audio mode.
func WithPlaceholderImage(ref string) Option {
	return func(e *Engine) { e.placeholder = strings.TrimSpace(ref) }
}

// WithGeometry sets the normalized output frame.
func WithGeometry(g ffmpeg.Geometry) Option {
	return func(e *Engine) { e.geometry = g }
}

// WithFetchConcurrency bounds parallel prompt fetches.
func WithFetchConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithWorkRoot sets where per-build scratch directories are created.
func WithWorkRoot(dir string) Option {
	return func(e *Engine) { e.workRoot = dir }
}

// WithProber enables stream probing; without one every build re-encodes.
func WithProber(p Prober) Option {
	return func(e *Engine) { e.prober = p }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logging.NewComponentLogger(logger, "stitching") }
}

// New constructs an Engine.
func New(fetcher Fetcher, processor Processor, opts ...Option) *Engine {
	e := &Engine{
		fetcher:     fetcher,
		processor:   processor,
		geometry:    ffmpeg.DefaultGeometry,
		concurrency: 3,
		logger:      logging.NewComponentLogger(nil, "stitching"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewFromConfig wires the ffmpeg runner, ffprobe prober, and fetchers from cfg.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	registry, err := RegistryFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	runner := ffmpeg.New(cfg.Capture.FFmpegBinary, ffmpeg.WithLogger(logger))
	return New(registry, runner,
		WithProber(ffprobe.NewProber(deps.ResolveFFprobe(cfg.Capture.FFmpegBinary, cfg.Stitching.FFprobeBinary), nil)),
		WithPlaceholderImage(cfg.Stitching.PlaceholderImage),
		WithGeometry(ffmpeg.Geometry{
			Width:     cfg.Stitching.OutputWidth,
			Height:    cfg.Stitching.OutputHeight,
			FrameRate: cfg.Stitching.FrameRate,
		}),
		WithFetchConcurrency(cfg.Stitching.FetchConcurrency),
		WithWorkRoot(cfg.Paths.StagingDir),
		WithLogger(logger),
	), nil
}

type clipFile struct {
	label string
	path  string
}

// Build produces the stitched artifact. Prompts come first in declared order
// and the user clip last.
func (e *Engine) Build(ctx context.Context, req Request) (Output, error) {
	if req.User.Empty() {
		return Output{}, services.Wrap(services.ErrValidation, "stitching", "build", "user artifact is empty", nil)
	}
	if !req.Mode.Records() {
		return Output{}, services.Wrap(services.ErrValidation, "stitching", "build", fmt.Sprintf("mode %q has no media", req.Mode), nil)
	}
	logger := logging.WithContext(ctx, e.logger)

	refs := append([]string(nil), req.Prompts...)
	audio := req.Mode == media.ModeAudio
	duration := req.DurationHint.Truncate(time.Second)
	if audio {
		if e.placeholder == "" {
			return Output{}, services.Wrap(services.ErrConfiguration, "stitching", "build", "stitching.placeholder_image is required for audio feedback", nil)
		}
		if duration <= 0 {
			return Output{}, services.Wrap(services.ErrValidation, "stitching", "build", "audio feedback needs a positive duration", nil)
		}
		refs = append(refs, e.placeholder)
	}

	started := time.Now()
	fetched, err := FetchAll(ctx, e.fetcher, refs, e.concurrency)
	if err != nil {
		hint := "verify the prompt clip references are reachable"
		var fetchErr *FetchError
		if audio && errors.As(err, &fetchErr) && fetchErr.Index == len(req.Prompts) {
			fetchErr.Label = "placeholder"
			hint = "verify stitching.placeholder_image is reachable"
		}
		logging.ErrorWithContext(logger, "clip fetch failed", "stitch_fetch_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hint),
		)
		return Output{}, err
	}

	root := e.workRoot
	if req.WorkDir != "" {
		root = req.WorkDir
	}
	workDir, err := os.MkdirTemp(root, "stitch-")
	if err != nil {
		return Output{}, services.Wrap(services.ErrConfiguration, "stitching", "workspace", "create scratch directory", err)
	}
	defer os.RemoveAll(workDir)

	clips := make([]clipFile, 0, len(req.Prompts)+1)
	for i := range req.Prompts {
		ext := RefExtension(req.Prompts[i])
		if ext == "" {
			ext = ".mp4"
		}
		label := PromptLabel(i)
		p := filepath.Join(workDir, label+ext)
		if err := os.WriteFile(p, fetched[i], 0o644); err != nil {
			return Output{}, services.Wrap(services.ErrTransient, "stitching", "stage prompt", label, err)
		}
		clips = append(clips, clipFile{label: label, path: p})
	}

	userPath := filepath.Join(workDir, "user"+media.Extension(req.User.MimeType))
	if err := os.WriteFile(userPath, req.User.Data, 0o644); err != nil {
		return Output{}, services.Wrap(services.ErrTransient, "stitching", "stage recording", "", err)
	}
	if audio {
		imageExt := RefExtension(e.placeholder)
		if imageExt == "" {
			imageExt = ".png"
		}
		imagePath := filepath.Join(workDir, "placeholder"+imageExt)
		if err := os.WriteFile(imagePath, fetched[len(fetched)-1], 0o644); err != nil {
			return Output{}, services.Wrap(services.ErrTransient, "stitching", "stage placeholder", "", err)
		}
		videoPath := filepath.Join(workDir, "user-video.mp4")
		if err := e.processor.StillImageVideo(ctx, imagePath, userPath, videoPath, duration, e.geometry); err != nil {
			return Output{}, err
		}
		logger.Info("audio rendered as still-image video",
			logging.String(logging.FieldEventType, "stitch_still_image"),
			logging.Duration("duration", duration),
		)
		userPath = videoPath
	}
	clips = append(clips, clipFile{label: "user", path: userPath})

	output, lossless, err := e.join(ctx, logger, workDir, clips)
	if err != nil {
		return Output{}, err
	}
	data, err := os.ReadFile(output)
	if err != nil {
		return Output{}, services.Wrap(services.ErrExternalTool, "stitching", "read output", "ffmpeg produced no output", err)
	}
	mimeType := media.MimeTypeForExtension(filepath.Ext(output))
	artifact := media.Artifact{Data: data, MimeType: mimeType, Duration: e.outputDuration(ctx, output, req.User.Duration)}

	order := make([]string, len(clips))
	for i, c := range clips {
		order[i] = c.label
	}
	logger.Info("stitching completed",
		logging.String(logging.FieldEventType, "stitch_completed"),
		logging.Int("clips", len(clips)),
		logging.Bool("lossless", lossless),
		logging.Int64("bytes", artifact.Size()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return Output{Artifact: artifact, Order: order, Lossless: lossless}, nil
}

// join concatenates clips in order, losslessly when every stream matches.
func (e *Engine) join(ctx context.Context, logger *slog.Logger, workDir string, clips []clipFile) (string, bool, error) {
	paths := make([]string, len(clips))
	for i, c := range clips {
		paths[i] = c.path
	}

	var probes []ffprobe.Result
	if e.prober != nil {
		probes = make([]ffprobe.Result, len(clips))
		for i, c := range clips {
			res, err := e.prober.Probe(ctx, c.path)
			if err != nil {
				return "", false, services.Wrap(services.ErrExternalTool, "stitching", "probe", c.label, err)
			}
			probes[i] = res
		}
		ok, reason := ffprobe.ConcatCompatible(probes)
		if ok {
			ext := filepath.Ext(paths[0])
			output := filepath.Join(workDir, "stitched"+ext)
			if err := e.processor.ConcatCopy(ctx, paths, output); err != nil {
				return "", false, err
			}
			return output, true, nil
		}
		logger.Info("clips differ; re-encoding",
			logging.String(logging.FieldEventType, "stitch_reencode"),
			logging.String("reason", reason),
		)
	}

	inputs := make([]ffmpeg.Clip, len(clips))
	for i, c := range clips {
		clip := ffmpeg.Clip{Path: c.path, HasAudio: true}
		if probes != nil {
			_, clip.HasAudio = probes[i].AudioStream()
			if secs := probes[i].DurationSeconds(); secs > 0 {
				clip.Duration = time.Duration(secs * float64(time.Second))
			}
		}
		inputs[i] = clip
	}
	output := filepath.Join(workDir, "stitched.mp4")
	if err := e.processor.ConcatReencode(ctx, inputs, output, e.geometry); err != nil {
		return "", false, err
	}
	return output, false, nil
}

func (e *Engine) outputDuration(ctx context.Context, path string, fallback time.Duration) time.Duration {
	if e.prober == nil {
		return fallback
	}
	res, err := e.prober.Probe(ctx, path)
	if err != nil {
		return fallback
	}
	if secs := res.DurationSeconds(); secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
