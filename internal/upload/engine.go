package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"feedbackpipe/internal/config"
	"feedbackpipe/internal/logging"
	"feedbackpipe/internal/services"
)

// Protocol defaults.
const (
	DefaultEndpoint        = "https://www.googleapis.com/upload/drive/v3/files?uploadType=resumable&supportsAllDrives=true"
	DefaultChunkSize       = 5 * 1024 * 1024
	DefaultMaxRetries      = 5
	DefaultBaseDelay       = time.Second
	DefaultInitiateTimeout = 30 * time.Second
	DefaultChunkTimeout    = 10 * time.Minute
)

// State is the lifecycle state of one transfer.
type State string

const (
	StateInitiating   State = "initiating"
	StateTransferring State = "transferring"
	StateBackingOff   State = "backing_off"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

// Destination names where the artifact lands.
type Destination struct {
	FolderID string
	Name     string
}

// Request describes one artifact to transfer. Data is owned by the transfer
// until Transfer returns.
type Request struct {
	Data        []byte
	MimeType    string
	Destination Destination
	Credential  oauth2.TokenSource
	// Progress receives round(confirmed/total*100) whenever it increases.
	Progress func(percent int)
}

// Result is the snapshot of a finished transfer.
type Result struct {
	RemoteID   string
	SessionURI string
	TotalBytes int64
	// Attempts counts chunk PUTs, Retries counts failures absorbed.
	Attempts int
	Retries  int
	State    State
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Engine runs resumable transfers. It is safe for concurrent use; each
// Transfer call keeps its own state.
type Engine struct {
	client          HTTPDoer
	endpoint        string
	chunkSize       int64
	maxRetries      int
	baseDelay       time.Duration
	initiateTimeout time.Duration
	chunkTimeout    time.Duration
	sleep           Sleeper
	now             func() time.Time
	logger          *slog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

func WithHTTPClient(client HTTPDoer) Option {
	return func(e *Engine) {
		if client != nil {
			e.client = client
		}
	}
}

func WithEndpoint(endpoint string) Option {
	return func(e *Engine) {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			e.endpoint = endpoint
		}
	}
}

func WithChunkSize(size int64) Option {
	return func(e *Engine) {
		if size > 0 {
			e.chunkSize = size
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.baseDelay = d
		}
	}
}

// WithSleeper replaces the backoff wait, mainly for tests.
func WithSleeper(sleep Sleeper) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

func WithInitiateTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.initiateTimeout = d
		}
	}
}

func WithChunkTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.chunkTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logging.NewComponentLogger(logger, "upload")
	}
}

// noRedirectClient hands 308 Resume Incomplete back to the engine instead of
// treating it as a redirect.
var noRedirectClient = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
}

// New constructs an Engine with protocol defaults.
func New(opts ...Option) *Engine {
	e := &Engine{
		client:          noRedirectClient,
		endpoint:        DefaultEndpoint,
		chunkSize:       DefaultChunkSize,
		maxRetries:      DefaultMaxRetries,
		baseDelay:       DefaultBaseDelay,
		initiateTimeout: DefaultInitiateTimeout,
		chunkTimeout:    DefaultChunkTimeout,
		sleep:           sleepContext,
		now:             time.Now,
		logger:          logging.NewComponentLogger(nil, "upload"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewFromConfig builds an Engine from the [upload] section.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, opts ...Option) *Engine {
	base := []Option{
		WithEndpoint(cfg.Upload.Endpoint),
		WithChunkSize(int64(cfg.ChunkSize())),
		WithMaxRetries(cfg.Upload.MaxRetries),
		WithBaseDelay(cfg.BaseDelay()),
		WithInitiateTimeout(time.Duration(cfg.Upload.InitiateTimeoutSeconds) * time.Second),
		WithChunkTimeout(time.Duration(cfg.Upload.ChunkTimeoutSeconds) * time.Second),
		WithLogger(logger),
	}
	return New(append(base, opts...)...)
}

// Backoff returns the wait after the given failure count (1-based).
func (e *Engine) Backoff(retries int) time.Duration {
	if retries < 1 {
		retries = 1
	}
	return e.baseDelay * time.Duration(1<<(retries-1))
}

// Transfer uploads req.Data and returns the remote identifier. Initiate
// failures return ErrInitiate immediately; slice failures are retried up to
// the engine's budget and then reported as ErrRetriesExhausted.
func (e *Engine) Transfer(ctx context.Context, req Request) (Result, error) {
	if len(req.Data) == 0 {
		return Result{State: StateFailed}, services.Wrap(services.ErrValidation, "upload", "transfer", "artifact is empty", nil)
	}
	if strings.TrimSpace(req.Destination.Name) == "" {
		return Result{State: StateFailed}, services.Wrap(services.ErrValidation, "upload", "transfer", "destination name is required", nil)
	}
	if req.Credential == nil {
		return Result{State: StateFailed}, services.Wrap(services.ErrConfiguration, "upload", "transfer", "no credential source", nil)
	}

	t := &transfer{
		engine:  e,
		req:     req,
		total:   int64(len(req.Data)),
		state:   StateInitiating,
		lastPct: -1,
		sampler: logging.NewProgressSampler(10),
		logger:  logging.WithContext(ctx, e.logger),
	}
	t.logger.Info("upload initiating",
		logging.String(logging.FieldEventType, "upload_initiating"),
		logging.String("name", req.Destination.Name),
		logging.Int64("bytes", t.total),
	)

	uri, err := e.initiate(ctx, req, t.total)
	if err != nil {
		t.state = StateFailed
		logging.ErrorWithContext(t.logger, "upload initiate failed", "upload_initiate_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check credentials and the destination folder"),
		)
		return t.result(), err
	}
	t.sessionURI = uri
	t.state = StateTransferring
	t.report(0)

	if err := t.run(ctx); err != nil {
		t.state = StateFailed
		logging.ErrorWithContext(t.logger, "upload failed", "upload_failed",
			logging.Error(err),
			logging.Int64("confirmed_bytes", t.confirmed),
			logging.Int("retries", t.retries),
			logging.String(logging.FieldImpact, "partial bytes are left for the provider to expire"),
		)
		return t.result(), err
	}
	t.state = StateCompleted
	t.report(100)
	t.logger.Info("upload completed",
		logging.String(logging.FieldEventType, "upload_completed"),
		logging.String("remote_id", t.remoteID),
		logging.Int("attempts", t.attempts),
		logging.Int("retries", t.retries),
	)
	return t.result(), nil
}

type transfer struct {
	engine     *Engine
	req        Request
	total      int64
	confirmed  int64
	sessionURI string
	remoteID   string
	state      State
	attempts   int
	retries    int
	lastPct    int
	sampler    *logging.ProgressSampler
	logger     *slog.Logger
}

func (t *transfer) run(ctx context.Context) error {
	e := t.engine
	for t.remoteID == "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		before := t.confirmed
		var (
			out outcome
			err error
		)
		if t.confirmed >= t.total {
			// Every byte is held but the server has not answered with an id.
			out, err = e.probe(ctx, t.sessionURI, t.total)
		} else {
			end := min(t.confirmed+e.chunkSize, t.total)
			t.attempts++
			out, err = e.putChunk(ctx, t.sessionURI, t.req.MimeType, t.req.Data, t.confirmed, end, t.total)
			if err == nil && out.confirmed < 0 {
				out, err = e.probe(ctx, t.sessionURI, t.total)
			}
		}
		if err == nil {
			t.apply(out)
			if out.complete || t.confirmed > before {
				continue
			}
			// A stalled or rewound offset costs a retry like any failed request.
			err = protocolError("server made no progress")
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err := t.recover(ctx, err); err != nil {
			return err
		}
	}
	return nil
}

// recover counts the failure, backs off, and resynchronizes from the server.
// A failed probe is another failure against the same budget.
func (t *transfer) recover(ctx context.Context, cause error) error {
	e := t.engine
	for {
		t.retries++
		if t.retries >= e.maxRetries {
			return fmt.Errorf("%w after %d failures: %w", ErrRetriesExhausted, t.retries, cause)
		}
		delay := e.Backoff(t.retries)
		t.state = StateBackingOff
		logging.WarnWithContext(t.logger, "upload request failed; backing off", "upload_retry",
			logging.Error(cause),
			logging.Int("retry", t.retries),
			logging.Duration("delay", delay),
			logging.Int64("confirmed_bytes", t.confirmed),
			logging.String(logging.FieldImpact, "transfer resumes from the server offset"),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
		out, err := e.probe(ctx, t.sessionURI, t.total)
		if err == nil {
			t.state = StateTransferring
			t.apply(out)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		cause = err
	}
}

// apply adopts the server's offset. The server is authoritative even when it
// reports fewer bytes than before; progress never moves backwards.
func (t *transfer) apply(out outcome) {
	if out.complete {
		t.confirmed = t.total
		t.remoteID = out.remoteID
	} else {
		if out.confirmed < t.confirmed {
			logging.WarnWithContext(t.logger, "server offset moved backwards", "upload_offset_regressed",
				logging.Int64("previous_bytes", t.confirmed),
				logging.Int64("confirmed_bytes", out.confirmed),
				logging.String(logging.FieldImpact, "bytes are re-sent from the server offset"),
			)
		}
		t.confirmed = out.confirmed
	}
	if t.remoteID == "" {
		t.report(Percent(t.confirmed, t.total))
	}
}

func (t *transfer) report(pct int) {
	if pct <= t.lastPct {
		return
	}
	t.lastPct = pct
	if t.sampler.ShouldLog(float64(pct), string(t.state)) {
		t.logger.Info("upload progress",
			logging.String(logging.FieldEventType, "upload_progress"),
			logging.Int("percent", pct),
			logging.Int64("confirmed_bytes", t.confirmed),
		)
	}
	if t.req.Progress != nil {
		t.req.Progress(pct)
	}
}

func (t *transfer) result() Result {
	return Result{
		RemoteID:   t.remoteID,
		SessionURI: t.sessionURI,
		TotalBytes: t.total,
		Attempts:   t.attempts,
		Retries:    t.retries,
		State:      t.state,
	}
}

// Percent is round(confirmed/total*100).
func Percent(confirmed, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(confirmed) / float64(total) * 100))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsTerminal reports whether err ended a transfer for good.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrRetriesExhausted) || errors.Is(err, ErrInitiate)
}
