package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"feedbackpipe/internal/logging"
	"feedbackpipe/internal/services"
)

// Geometry is the normalized output frame all re-encoded clips share.
type Geometry struct {
	Width     int
	Height    int
	FrameRate int
}

// DefaultGeometry is 720p at 30 fps.
var DefaultGeometry = Geometry{Width: 1280, Height: 720, FrameRate: 30}

// Clip is one input to a re-encoding concat.
type Clip struct {
	Path     string
	HasAudio bool
	// Duration is used to synthesize silence for clips without audio.
	Duration time.Duration
}

type commandRunner func(ctx context.Context, name string, args ...string) error

// Runner executes ffmpeg jobs.
type Runner struct {
	binary string
	run    commandRunner
	logger *slog.Logger
}

// Option customises a Runner.
type Option func(*Runner)

// WithCommandRunner allows injecting a custom command runner for tests.
func WithCommandRunner(run func(ctx context.Context, name string, args ...string) error) Option {
	return func(r *Runner) {
		if run != nil {
			r.run = run
		}
	}
}

// WithLogger sets the logger used for command tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logging.NewComponentLogger(logger, "ffmpeg")
	}
}

// New constructs a Runner for binary (default "ffmpeg").
func New(binary string, opts ...Option) *Runner {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	r := &Runner{binary: binary, run: defaultCommandRunner, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ConcatCopy joins inputs in order with the concat demuxer and stream copy.
// The list file is written next to output.
func (r *Runner) ConcatCopy(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return services.Wrap(services.ErrValidation, "stitching", "concat copy", "no inputs", nil)
	}
	listPath := strings.TrimSuffix(output, filepath.Ext(output)) + ".concat.txt"
	if err := os.WriteFile(listPath, []byte(ConcatList(inputs)), 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "stitching", "write concat list", "", err)
	}
	defer os.Remove(listPath)
	return r.exec(ctx, "concat copy", ConcatCopyArgs(listPath, output))
}

// ConcatReencode joins clips in order through the concat filter, normalizing
// every clip to geometry first.
func (r *Runner) ConcatReencode(ctx context.Context, clips []Clip, output string, geometry Geometry) error {
	if len(clips) == 0 {
		return services.Wrap(services.ErrValidation, "stitching", "concat reencode", "no inputs", nil)
	}
	return r.exec(ctx, "concat reencode", ConcatReencodeArgs(clips, output, geometry))
}

// StillImageVideo renders image for duration with audio as its soundtrack.
func (r *Runner) StillImageVideo(ctx context.Context, image, audio, output string, duration time.Duration, geometry Geometry) error {
	if duration <= 0 {
		return services.Wrap(services.ErrValidation, "stitching", "still image video", "duration must be positive", nil)
	}
	return r.exec(ctx, "still image video", StillImageArgs(image, audio, output, duration, geometry))
}

func (r *Runner) exec(ctx context.Context, operation string, args []string) error {
	started := time.Now()
	r.logger.Debug("ffmpeg command",
		logging.String("operation", operation),
		logging.String("command", r.binary+" "+strings.Join(args, " ")),
	)
	if err := r.run(ctx, r.binary, args...); err != nil {
		if ctx.Err() != nil {
			return services.Wrap(services.ErrTimeout, "stitching", operation, "cancelled", ctx.Err())
		}
		return services.Wrap(services.ErrExternalTool, "stitching", operation, "ffmpeg failed", err)
	}
	r.logger.Debug("ffmpeg finished",
		logging.String("operation", operation),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// ConcatList renders the concat demuxer list for inputs.
func ConcatList(inputs []string) string {
	var b strings.Builder
	for _, path := range inputs {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(path, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// ConcatCopyArgs builds the lossless concat command line.
func ConcatCopyArgs(listPath, output string) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-c", "copy",
		output,
	}
}

// ConcatReencodeArgs builds the filter-graph concat command line. Output is
// H.264/AAC so every player accepts the result.
func ConcatReencodeArgs(clips []Clip, output string, geometry Geometry) []string {
	geometry = geometry.orDefault()
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	for _, clip := range clips {
		args = append(args, "-i", clip.Path)
	}

	var graph strings.Builder
	var joins strings.Builder
	for i, clip := range clips {
		fmt.Fprintf(&graph, "[%d:v:0]%s[v%d];", i, normalizeVideo(geometry), i)
		if clip.HasAudio {
			fmt.Fprintf(&graph, "[%d:a:0]aresample=48000,aformat=sample_fmts=fltp:channel_layouts=stereo[a%d];", i, i)
		} else {
			fmt.Fprintf(&graph, "anullsrc=r=48000:cl=stereo,atrim=duration=%s[a%d];", seconds(clip.Duration), i)
		}
		fmt.Fprintf(&joins, "[v%d][a%d]", i, i)
	}
	fmt.Fprintf(&graph, "%sconcat=n=%d:v=1:a=1[outv][outa]", joins.String(), len(clips))

	args = append(args,
		"-filter_complex", graph.String(),
		"-map", "[outv]", "-map", "[outa]",
	)
	args = append(args, h264AAC()...)
	return append(args, output)
}

// StillImageArgs builds the audio-plus-image synthesis command line. The
// output is bounded by -t so a long audio tail never outlives the recording.
func StillImageArgs(image, audio, output string, duration time.Duration, geometry Geometry) []string {
	geometry = geometry.orDefault()
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-loop", "1", "-framerate", strconv.Itoa(geometry.FrameRate), "-i", image,
		"-i", audio,
		"-t", seconds(duration),
		"-map", "0:v:0", "-map", "1:a:0",
		"-vf", normalizeVideo(geometry),
		"-tune", "stillimage",
	}
	args = append(args, h264AAC()...)
	return append(args, output)
}

func normalizeVideo(g Geometry) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d,format=yuv420p",
		g.Width, g.Height, g.Width, g.Height, g.FrameRate,
	)
}

func h264AAC() []string {
	return []string{
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "23", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "128k", "-ar", "48000",
		"-movflags", "+faststart",
	}
}

// seconds renders whole seconds when possible so "-t 45" stays readable.
func seconds(d time.Duration) string {
	if d%time.Second == 0 {
		return strconv.FormatInt(int64(d/time.Second), 10)
	}
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func (g Geometry) orDefault() Geometry {
	if g.Width <= 0 || g.Height <= 0 {
		g.Width, g.Height = DefaultGeometry.Width, DefaultGeometry.Height
	}
	if g.FrameRate <= 0 {
		g.FrameRate = DefaultGeometry.FrameRate
	}
	return g
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
