package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"feedbackpipe/internal/capture"
	"feedbackpipe/internal/drive"
	"feedbackpipe/internal/logging"
	"feedbackpipe/internal/media"
	"feedbackpipe/internal/notifications"
	"feedbackpipe/internal/recording"
	"feedbackpipe/internal/services"
	"feedbackpipe/internal/staging"
	"feedbackpipe/internal/stitch"
	"feedbackpipe/internal/store"
	"feedbackpipe/internal/textutil"
	"feedbackpipe/internal/upload"
)

// State is a pipeline lifecycle state.
type State string

const (
	StateIdle        State = "idle"
	StateCollecting  State = "collecting_answers"
	StateStopPending State = "recording_stop_pending"
	StateStitching   State = "stitching"
	StateUploading   State = "uploading"
	StatePersisting  State = "persisting"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

var (
	// ErrInvalidState is returned for events not accepted in the current state.
	ErrInvalidState = errors.New("invalid pipeline state")
	// ErrRestarted is returned to work that was overtaken by Restart.
	ErrRestarted = errors.New("pipeline restarted")
)

// Answer is one recorded question response.
type Answer = store.Answer

// Stitcher builds the final artifact from prompts and the recording.
type Stitcher interface {
	Build(ctx context.Context, req stitch.Request) (stitch.Output, error)
}

// Uploader transfers the final artifact.
type Uploader interface {
	Transfer(ctx context.Context, req upload.Request) (upload.Result, error)
}

// Persister is the persistence collaborator for finished submissions.
type Persister interface {
	Save(ctx context.Context, sub store.Submission) (*store.Submission, error)
}

// Verifier confirms the uploaded file exists remotely with the right size.
type Verifier interface {
	Verify(ctx context.Context, id string, wantSize int64) (drive.File, error)
}

// Dependencies are the collaborators the orchestrator drives. Device,
// Stitcher, Uploader, and Credential are only needed for video and audio
// feedback.
type Dependencies struct {
	Device     capture.Device
	Stitcher   Stitcher
	Uploader   Uploader
	Credential oauth2.TokenSource
	Store      Persister
	Verifier   Verifier
	Notifier   notifications.Service
	Publisher  Publisher
}

// Settings carries per-deployment values.
type Settings struct {
	Prompts     []string
	FolderID    string
	NamePrefix  string
	StagingDir  string
	Timeslice   time.Duration
	StopTimeout time.Duration
}

// Result describes a completed submission.
type Result struct {
	SessionID  string
	Mode       media.Mode
	RemoteID   string
	RemoteName string
	SizeBytes  int64
	Duration   time.Duration
	// Clips lists the stitched clip labels in output order.
	Clips  []string
	Upload upload.Result
}

// Snapshot is a point-in-time view of the orchestrator.
type Snapshot struct {
	SessionID string
	State     State
	Mode      media.Mode
	Cause     string
	Progress  int
	Elapsed   time.Duration
	Answers   int
	RemoteID  string
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source for the recording and remote names.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(next func() string) Option {
	return func(o *Orchestrator) {
		if next != nil {
			o.newID = next
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.baseLogger = logger
		o.logger = logging.NewComponentLogger(logger, "pipeline")
	}
}

// Orchestrator runs one feedback session at a time.
type Orchestrator struct {
	deps       Dependencies
	settings   Settings
	now        func() time.Time
	newID      func() string
	baseLogger *slog.Logger
	logger     *slog.Logger

	mu         sync.Mutex
	generation uint64
	id         string
	state      State
	mode       media.Mode
	consent    bool
	starting   bool
	session    *recording.Session
	answers    []Answer
	cause      string
	progress   int
	remoteID   string
}

// New creates an idle orchestrator with a fresh session id.
func New(deps Dependencies, settings Settings, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:     deps,
		settings: settings,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logging.NewComponentLogger(nil, "pipeline"),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.deps.Notifier == nil {
		o.deps.Notifier = noopNotifier{}
	}
	o.id = o.newID()
	return o
}

// SessionID returns the current feedback session id.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.id
}

// Session returns the live recording session, if any.
func (o *Orchestrator) Session() *recording.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// SelectMode records the feedback mode. Recording starts once consent is
// also given.
func (o *Orchestrator) SelectMode(ctx context.Context, mode media.Mode) error {
	parsed, err := media.ParseMode(string(mode))
	if err != nil {
		return services.Wrap(services.ErrValidation, "pipeline", "select mode", err.Error(), nil)
	}
	o.mu.Lock()
	if o.state != StateIdle || o.session != nil || o.starting {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: select mode in %s", ErrInvalidState, state)
	}
	o.mode = parsed
	o.mu.Unlock()
	return o.begin(ctx)
}

// GiveConsent records the respondent's consent. Recording starts once the
// mode is also known.
func (o *Orchestrator) GiveConsent(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateIdle {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: consent in %s", ErrInvalidState, state)
	}
	o.consent = true
	o.mu.Unlock()
	return o.begin(ctx)
}

// begin creates and starts the recording session once mode and consent are
// both known. Text mode moves straight to collecting answers.
func (o *Orchestrator) begin(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateIdle || o.mode == "" || !o.consent || o.session != nil || o.starting {
		o.mu.Unlock()
		return nil
	}
	gen, id, mode := o.generation, o.id, o.mode
	if !mode.Records() {
		o.state = StateCollecting
		o.mu.Unlock()
		o.publish(gen, "collecting answers")
		return nil
	}
	if err := o.checkMediaDeps(); err != nil {
		o.mu.Unlock()
		return o.fail(ctx, gen, "recording", err)
	}
	session, err := recording.New(mode, o.deps.Device,
		recording.WithID(id),
		recording.WithClock(o.now),
		recording.WithTimeslice(o.settings.Timeslice),
		recording.WithStopTimeout(o.settings.StopTimeout),
		recording.WithLogger(o.baseLogger),
	)
	if err != nil {
		o.mu.Unlock()
		return o.fail(ctx, gen, "recording", err)
	}
	o.session = session
	o.starting = true
	o.mu.Unlock()

	err = session.Start(services.WithSessionID(ctx, id))

	o.mu.Lock()
	if o.generation != gen {
		o.mu.Unlock()
		return ErrRestarted
	}
	o.starting = false
	if err != nil {
		o.mu.Unlock()
		return o.fail(ctx, gen, "recording", err)
	}
	o.state = StateCollecting
	o.mu.Unlock()
	o.publish(gen, "recording")
	return nil
}

func (o *Orchestrator) checkMediaDeps() error {
	var missing []string
	if o.deps.Device == nil {
		missing = append(missing, "capture device")
	}
	if o.deps.Stitcher == nil {
		missing = append(missing, "stitcher")
	}
	if o.deps.Uploader == nil {
		missing = append(missing, "uploader")
	}
	if o.deps.Credential == nil {
		missing = append(missing, "upload credential")
	}
	if len(missing) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "pipeline", "begin", "missing "+strings.Join(missing, ", "), nil)
}

// RecordAnswer stores an answer for the persistence record. A later answer
// for the same question replaces the earlier one.
func (o *Orchestrator) RecordAnswer(a Answer) error {
	if strings.TrimSpace(a.QuestionID) == "" {
		return services.Wrap(services.ErrValidation, "pipeline", "record answer", "question id is required", nil)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle && o.state != StateCollecting {
		return fmt.Errorf("%w: record answer in %s", ErrInvalidState, o.state)
	}
	for i := range o.answers {
		if o.answers[i].QuestionID == a.QuestionID {
			o.answers[i] = a
			return nil
		}
	}
	o.answers = append(o.answers, a)
	return nil
}

// Complete is the single "all questions answered" event. It stops the
// recording, stitches, uploads, and persists, returning once the submission
// is stored. Any stage failure leaves the orchestrator failed with a cause.
func (o *Orchestrator) Complete(ctx context.Context) (Result, error) {
	o.mu.Lock()
	if o.state != StateCollecting {
		state := o.state
		o.mu.Unlock()
		return Result{}, fmt.Errorf("%w: complete in %s", ErrInvalidState, state)
	}
	gen, id, mode, session := o.generation, o.id, o.mode, o.session
	answers := append([]Answer(nil), o.answers...)
	if mode.Records() {
		o.state = StateStopPending
	} else {
		o.state = StatePersisting
	}
	o.mu.Unlock()
	o.publish(gen, "")

	ctx = services.WithSessionID(ctx, id)
	result := Result{SessionID: id, Mode: mode}
	if !mode.Records() {
		return o.persist(ctx, gen, result, answers)
	}

	artifact, err := session.Stop(services.WithStage(ctx, string(StateStopPending)))
	if err != nil {
		return Result{}, o.fail(ctx, gen, "recording", err)
	}
	if !o.advance(gen, StateStitching) {
		return Result{}, ErrRestarted
	}

	var workspace *staging.Workspace
	var workDir string
	if o.settings.StagingDir != "" {
		workspace, err = staging.Open(o.settings.StagingDir, id)
		if err != nil {
			return Result{}, o.fail(ctx, gen, "stitching", err)
		}
		workDir = workspace.Dir
	}
	stitched, err := o.deps.Stitcher.Build(services.WithStage(ctx, string(StateStitching)), stitch.Request{
		Prompts:      o.settings.Prompts,
		User:         artifact,
		Mode:         mode,
		DurationHint: artifact.Duration,
		WorkDir:      workDir,
	})
	if err != nil {
		_ = workspace.Close()
		return Result{}, o.fail(ctx, gen, "stitching", err)
	}
	if !o.advance(gen, StateUploading) {
		_ = workspace.Close()
		return Result{}, ErrRestarted
	}

	name := textutil.RemoteName(o.settings.NamePrefix, mode.String(), id, o.now(), media.Extension(stitched.Artifact.MimeType))
	uploaded, err := o.deps.Uploader.Transfer(services.WithStage(ctx, string(StateUploading)), upload.Request{
		Data:        stitched.Artifact.Data,
		MimeType:    stitched.Artifact.MimeType,
		Destination: upload.Destination{FolderID: o.settings.FolderID, Name: name},
		Credential:  o.deps.Credential,
		Progress:    func(pct int) { o.setProgress(gen, pct) },
	})
	if err != nil {
		_ = workspace.Close()
		return Result{}, o.fail(ctx, gen, "uploading", err)
	}
	if o.deps.Verifier != nil {
		if _, err := o.deps.Verifier.Verify(ctx, uploaded.RemoteID, uploaded.TotalBytes); err != nil {
			_ = workspace.Close()
			return Result{}, o.fail(ctx, gen, "uploading", err)
		}
	}
	if err := workspace.Remove(); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "staging workspace cleanup failed", "staging_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale cleanup will remove it later"),
		)
	}

	result.RemoteID = uploaded.RemoteID
	result.RemoteName = name
	result.SizeBytes = uploaded.TotalBytes
	result.Duration = artifact.Duration
	result.Clips = stitched.Order
	result.Upload = uploaded
	return o.persist(ctx, gen, result, answers)
}

func (o *Orchestrator) persist(ctx context.Context, gen uint64, result Result, answers []Answer) (Result, error) {
	if !o.advance(gen, StatePersisting) {
		return Result{}, ErrRestarted
	}
	if o.deps.Store != nil {
		_, err := o.deps.Store.Save(services.WithStage(ctx, string(StatePersisting)), store.Submission{
			SessionID:       result.SessionID,
			Mode:            result.Mode.String(),
			Status:          store.StatusCompleted,
			RemoteID:        result.RemoteID,
			SizeBytes:       result.SizeBytes,
			DurationSeconds: int64(result.Duration / time.Second),
			Answers:         answers,
		})
		if err != nil {
			return Result{}, o.fail(ctx, gen, "persisting", err)
		}
	}

	o.mu.Lock()
	if o.generation != gen {
		o.mu.Unlock()
		return Result{}, ErrRestarted
	}
	o.state = StateDone
	o.remoteID = result.RemoteID
	o.mu.Unlock()

	logger := logging.WithContext(ctx, o.logger)
	if err := o.deps.Notifier.NotifyCompleted(ctx, notifications.Completion{
		SessionID: result.SessionID,
		Mode:      result.Mode.String(),
		RemoteID:  result.RemoteID,
		SizeBytes: result.SizeBytes,
		Duration:  result.Duration,
	}); err != nil {
		logging.WarnWithContext(logger, "completion notification failed", "notification_failed", logging.Error(err))
	}
	logger.Info("submission complete",
		logging.String(logging.FieldEventType, "pipeline_done"),
		logging.String("mode", result.Mode.String()),
		logging.String("remote_id", result.RemoteID),
		logging.Int64("bytes", result.SizeBytes),
		logging.Duration("duration", result.Duration),
	)
	o.publish(gen, "submission complete")
	return result, nil
}

// fail moves the orchestrator to failed, releases the recording, and records
// the failure best-effort. It returns err unchanged, or ErrRestarted when the
// work was overtaken by Restart.
func (o *Orchestrator) fail(ctx context.Context, gen uint64, stage string, err error) error {
	o.mu.Lock()
	if o.generation != gen {
		o.mu.Unlock()
		return ErrRestarted
	}
	cause := causeText(err)
	o.state = StateFailed
	o.cause = cause
	session := o.session
	sub := store.Submission{
		SessionID:    o.id,
		Mode:         o.mode.String(),
		Status:       store.StatusFailed,
		ErrorMessage: cause,
		Answers:      append([]Answer(nil), o.answers...),
	}
	o.mu.Unlock()

	if session != nil {
		session.Abort(err)
	}
	logger := logging.WithContext(services.WithStage(ctx, stage), o.logger)
	details := services.Details(err)
	logging.ErrorWithContext(logger, "pipeline failed", "pipeline_failed",
		logging.Error(err),
		logging.String("error_kind", details.Kind),
		logging.String(logging.FieldErrorHint, details.Hint),
	)

	bg := context.WithoutCancel(ctx)
	if o.deps.Store != nil {
		if _, saveErr := o.deps.Store.Save(bg, sub); saveErr != nil {
			logging.WarnWithContext(logger, "failure record not persisted", "persist_failure_record_failed",
				logging.Error(saveErr),
				logging.String(logging.FieldImpact, "the failed submission will not appear in status output"),
			)
		}
	}
	if notifyErr := o.deps.Notifier.NotifyFailed(bg, sub.SessionID, stage, err); notifyErr != nil {
		logging.WarnWithContext(logger, "failure notification failed", "notification_failed", logging.Error(notifyErr))
	}
	o.publish(gen, cause)
	return err
}

func causeText(err error) string {
	var devErr *capture.DeviceError
	if errors.As(err, &devErr) {
		return devErr.UserMessage()
	}
	return services.Details(err).Message
}

// Restart aborts any recording, discards in-flight results, and resets to
// idle with a new session id.
func (o *Orchestrator) Restart(cause string) {
	o.mu.Lock()
	session := o.session
	previous := o.id
	o.generation++
	gen := o.generation
	o.id = o.newID()
	o.state = StateIdle
	o.mode = ""
	o.consent = false
	o.starting = false
	o.session = nil
	o.answers = nil
	o.cause = ""
	o.progress = 0
	o.remoteID = ""
	o.mu.Unlock()

	if strings.TrimSpace(cause) == "" {
		cause = "restart requested"
	}
	if session != nil {
		session.Abort(fmt.Errorf("%w: %s", ErrRestarted, cause))
	}
	o.logger.Info("pipeline restarted",
		logging.String(logging.FieldEventType, "pipeline_restarted"),
		logging.String("previous_session_id", previous),
		logging.String("reason", cause),
	)
	o.publish(gen, cause)
}

// Snapshot reports the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	snap := Snapshot{
		SessionID: o.id,
		State:     o.state,
		Mode:      o.mode,
		Cause:     o.cause,
		Progress:  o.progress,
		Answers:   len(o.answers),
		RemoteID:  o.remoteID,
	}
	session := o.session
	o.mu.Unlock()
	if session != nil {
		snap.Elapsed = session.Elapsed()
	}
	return snap
}

func (o *Orchestrator) advance(gen uint64, state State) bool {
	o.mu.Lock()
	if o.generation != gen {
		o.mu.Unlock()
		return false
	}
	o.state = state
	o.mu.Unlock()
	o.publish(gen, "")
	return true
}

func (o *Orchestrator) setProgress(gen uint64, pct int) {
	o.mu.Lock()
	if o.generation != gen || pct <= o.progress {
		o.mu.Unlock()
		return
	}
	o.progress = pct
	o.mu.Unlock()
	o.publish(gen, "")
}

func (o *Orchestrator) publish(gen uint64, message string) {
	if o.deps.Publisher == nil {
		return
	}
	o.mu.Lock()
	if o.generation != gen {
		o.mu.Unlock()
		return
	}
	event := Event{
		SessionID: o.id,
		State:     o.state,
		Mode:      o.mode,
		Progress:  o.progress,
		Message:   message,
		RemoteID:  o.remoteID,
		Time:      o.now(),
	}
	o.mu.Unlock()
	o.deps.Publisher.Publish(event)
}

type noopNotifier struct{}

func (noopNotifier) NotifyCompleted(context.Context, notifications.Completion) error { return nil }
func (noopNotifier) NotifyFailed(context.Context, string, string, error) error       { return nil }
func (noopNotifier) TestNotification(context.Context) error                          { return nil }
