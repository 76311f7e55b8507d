package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"feedbackpipe/internal/capture"
	"feedbackpipe/internal/capture/capturetest"
	"feedbackpipe/internal/credential"
	"feedbackpipe/internal/media"
	"feedbackpipe/internal/media/ffmpeg"
	"feedbackpipe/internal/pipeline"
	"feedbackpipe/internal/services"
	"feedbackpipe/internal/staging"
	"feedbackpipe/internal/stitch"
	"feedbackpipe/internal/store"
	"feedbackpipe/internal/testsupport"
)

func fixedID(id string) pipeline.Option {
	return pipeline.WithIDGenerator(func() string { return id })
}

func inputsOf(args []string) []string {
	var inputs []string
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-i" {
			inputs = append(inputs, filepath.Base(args[i+1]))
		}
	}
	return inputs
}

func valueAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestAudioFeedbackEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithPromptClips("q1.webm", "q2.webm", "q3.webm"),
		testsupport.WithPlaceholderImage(),
	)
	st := testsupport.MustOpenStore(t, cfg)
	srv := newDriveServer(t)
	clock := newFakeClock()
	events := &eventLog{}

	var (
		mu    sync.Mutex
		calls [][]string
	)
	runner := ffmpeg.New("ffmpeg", ffmpeg.WithCommandRunner(func(_ context.Context, _ string, args ...string) error {
		mu.Lock()
		calls = append(calls, append([]string(nil), args...))
		mu.Unlock()
		out := args[len(args)-1]
		return os.WriteFile(out, []byte("out:"+filepath.Base(out)), 0o644)
	}))
	stitcher := stitch.New(stitch.NewRegistry(), runner,
		stitch.WithPlaceholderImage(cfg.Stitching.PlaceholderImage),
	)

	device := &capturetest.Device{FinalChunk: []byte("-tail")}
	orch := pipeline.New(pipeline.Dependencies{
		Device:     device,
		Stitcher:   stitcher,
		Uploader:   newUploader(srv, 4),
		Credential: credential.Static("token"),
		Store:      st,
		Publisher:  events,
	}, pipeline.Settings{
		Prompts:    cfg.Stitching.PromptClips,
		FolderID:   "folder-1",
		StagingDir: cfg.Paths.StagingDir,
	}, pipeline.WithClock(clock.Now), fixedID("sess-audio"))

	ctx := context.Background()
	if err := orch.SelectMode(ctx, media.ModeAudio); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}
	if got := orch.Snapshot().State; got != pipeline.StateIdle {
		t.Fatalf("recording must wait for consent, state %s", got)
	}
	if err := orch.GiveConsent(ctx); err != nil {
		t.Fatalf("GiveConsent: %v", err)
	}
	if got := orch.Snapshot().State; got != pipeline.StateCollecting {
		t.Fatalf("expected collecting_answers, got %s", got)
	}
	if c := device.Constraints(); len(c) != 1 || c[0].Video || !c[0].Audio {
		t.Fatalf("audio feedback must request the microphone only: %+v", c)
	}

	stream := device.Last()
	stream.Emit([]byte("voice"))
	for _, q := range []string{"q1", "q2", "q3"} {
		clock.Advance(15 * time.Second)
		if err := orch.RecordAnswer(pipeline.Answer{QuestionID: q, Value: "answer " + q}); err != nil {
			t.Fatalf("RecordAnswer: %v", err)
		}
	}
	clock.Advance(700 * time.Millisecond)

	res, err := orch.Complete(ctx)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if res.Duration != 45*time.Second {
		t.Fatalf("expected 45s duration, got %s", res.Duration)
	}
	if res.RemoteID != "remote-123" {
		t.Fatalf("unexpected remote id %q", res.RemoteID)
	}
	wantClips := []string{"prompt-01", "prompt-02", "prompt-03", "user"}
	if !reflect.DeepEqual(res.Clips, wantClips) {
		t.Fatalf("clip order %v, want %v", res.Clips, wantClips)
	}

	mu.Lock()
	recorded := append([][]string(nil), calls...)
	mu.Unlock()
	if len(recorded) != 2 {
		t.Fatalf("expected still-image synthesis then concat, got %d ffmpeg runs", len(recorded))
	}
	if got := valueAfter(recorded[0], "-t"); got != "45" {
		t.Fatalf("synthesized video must be bounded by -t 45, got %q", got)
	}
	if got := inputsOf(recorded[0]); len(got) != 2 || got[1] != "user.webm" {
		t.Fatalf("still image inputs %v", got)
	}
	wantInputs := []string{"prompt-01.webm", "prompt-02.webm", "prompt-03.webm", "user-video.mp4"}
	if got := inputsOf(recorded[1]); !reflect.DeepEqual(got, wantInputs) {
		t.Fatalf("concat inputs %v, want %v", got, wantInputs)
	}

	body, contentType := srv.Received()
	if string(body) != "out:stitched.mp4" || contentType != "video/mp4" {
		t.Fatalf("server received %q (%s)", body, contentType)
	}

	all := events.All()
	sawFull := false
	lastProgress := 0
	for _, e := range all {
		if e.Progress < lastProgress {
			t.Fatalf("progress regressed: %d after %d", e.Progress, lastProgress)
		}
		lastProgress = e.Progress
		if e.State == pipeline.StateUploading && e.Progress == 100 {
			sawFull = true
		}
		if e.RemoteID != "" && !sawFull {
			t.Fatal("remote id published before progress reached 100")
		}
	}
	if !sawFull {
		t.Fatal("upload progress never reached 100")
	}
	if last := all[len(all)-1]; last.State != pipeline.StateDone || last.RemoteID != "remote-123" {
		t.Fatalf("unexpected final event %+v", last)
	}

	sub, err := st.GetBySession(ctx, "sess-audio")
	if err != nil || sub == nil {
		t.Fatalf("submission not persisted: %v", err)
	}
	if sub.Status != store.StatusCompleted || sub.RemoteID != "remote-123" || sub.DurationSeconds != 45 || sub.SizeBytes != int64(len(body)) {
		t.Fatalf("unexpected submission %+v", sub)
	}
	if len(sub.Answers) != 3 || sub.Answers[2].QuestionID != "q3" {
		t.Fatalf("answers not persisted: %+v", sub.Answers)
	}
	if stream.Released() != 1 {
		t.Fatalf("device released %d times", stream.Released())
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.StagingDir, staging.DirName("sess-audio"))); !os.IsNotExist(err) {
		t.Fatal("staging workspace should be removed after success")
	}
	if snap := orch.Snapshot(); snap.State != pipeline.StateDone || snap.Progress != 100 || snap.Elapsed != 45*time.Second {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestTextFeedbackSkipsMedia(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	events := &eventLog{}
	orch := pipeline.New(pipeline.Dependencies{Store: st, Publisher: events}, pipeline.Settings{}, fixedID("sess-text"))
	ctx := context.Background()

	if err := orch.GiveConsent(ctx); err != nil {
		t.Fatalf("GiveConsent: %v", err)
	}
	if err := orch.SelectMode(ctx, "TEXT"); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}
	if orch.Session() != nil {
		t.Fatal("text feedback must not create a recording session")
	}
	_ = orch.RecordAnswer(pipeline.Answer{QuestionID: "q1", Value: "first"})
	_ = orch.RecordAnswer(pipeline.Answer{QuestionID: "q1", Value: "revised"})

	res, err := orch.Complete(ctx)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.RemoteID != "" || res.Mode != media.ModeText {
		t.Fatalf("unexpected result %+v", res)
	}
	states := make([]pipeline.State, 0)
	for _, e := range events.All() {
		states = append(states, e.State)
	}
	for _, s := range states {
		if s == pipeline.StateStitching || s == pipeline.StateUploading {
			t.Fatalf("text feedback passed through %s: %v", s, states)
		}
	}
	sub, _ := st.GetBySession(ctx, "sess-text")
	if sub == nil || len(sub.Answers) != 1 || sub.Answers[0].Value != "revised" {
		t.Fatalf("unexpected text submission %+v", sub)
	}
	if _, err := orch.Complete(ctx); !errors.Is(err, pipeline.ErrInvalidState) {
		t.Fatalf("second Complete should be rejected, got %v", err)
	}
}

func TestDeviceDenialFailsWithUserMessage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	denial := &capture.DeviceError{Kind: capture.KindPermissionDenied, Device: "/dev/video0"}
	device := &capturetest.Device{OpenErr: denial}
	orch := pipeline.New(pipeline.Dependencies{
		Device:     device,
		Stitcher:   &stubStitcher{},
		Uploader:   newBlockingUploader(),
		Credential: credential.Static("token"),
		Store:      st,
	}, pipeline.Settings{}, fixedID("sess-denied"))
	ctx := context.Background()

	_ = orch.SelectMode(ctx, media.ModeVideo)
	err := orch.GiveConsent(ctx)
	if !errors.Is(err, services.ErrDeviceAccess) {
		t.Fatalf("expected device access error, got %v", err)
	}
	snap := orch.Snapshot()
	if snap.State != pipeline.StateFailed || snap.Cause != denial.UserMessage() {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if device.Opens() != 1 {
		t.Fatalf("device denial must not be retried, opens=%d", device.Opens())
	}
	sub, _ := st.GetBySession(ctx, "sess-denied")
	if sub == nil || sub.Status != store.StatusFailed || sub.ErrorMessage != denial.UserMessage() {
		t.Fatalf("failure record not persisted: %+v", sub)
	}

	orch.Restart("try again")
	if snap := orch.Snapshot(); snap.State != pipeline.StateIdle || snap.Cause != "" || snap.Mode != "" {
		t.Fatalf("restart should return to idle: %+v", snap)
	}
}

func TestMissingUploadDependenciesFailBeforeOpeningDevice(t *testing.T) {
	device := &capturetest.Device{}
	orch := pipeline.New(pipeline.Dependencies{Device: device, Stitcher: &stubStitcher{}}, pipeline.Settings{})
	ctx := context.Background()
	_ = orch.GiveConsent(ctx)
	err := orch.SelectMode(ctx, media.ModeVideo)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "uploader") || !strings.Contains(err.Error(), "upload credential") {
		t.Fatalf("error should name the missing pieces: %v", err)
	}
	if device.Opens() != 0 {
		t.Fatal("device must not be opened without an upload path")
	}
}

func TestStitchFailureLeavesFailedState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	fetchErr := &stitch.FetchError{Index: 1, Ref: "https://cdn.example.com/q2.webm", Err: services.ErrNotFound}
	stitcher := &stubStitcher{err: fetchErr}
	device := &capturetest.Device{}
	orch := pipeline.New(pipeline.Dependencies{
		Device:     device,
		Stitcher:   stitcher,
		Uploader:   newBlockingUploader(),
		Credential: credential.Static("token"),
		Store:      st,
	}, pipeline.Settings{Prompts: []string{"a.webm", "https://cdn.example.com/q2.webm"}, StagingDir: cfg.Paths.StagingDir}, fixedID("sess-stitch"))
	ctx := context.Background()

	_ = orch.SelectMode(ctx, media.ModeVideo)
	if err := orch.GiveConsent(ctx); err != nil {
		t.Fatalf("GiveConsent: %v", err)
	}
	device.Last().Emit([]byte("frame"))

	_, err := orch.Complete(ctx)
	var fe *stitch.FetchError
	if !errors.As(err, &fe) || fe.Index != 1 {
		t.Fatalf("expected fetch error for index 1, got %v", err)
	}
	if len(stitcher.calls) != 1 || stitcher.calls[0].WorkDir == "" || stitcher.calls[0].User.MimeType != "video/webm" {
		t.Fatalf("unexpected stitch request %+v", stitcher.calls)
	}
	if snap := orch.Snapshot(); snap.State != pipeline.StateFailed || snap.Cause == "" {
		t.Fatalf("expected failed with cause, got %+v", snap)
	}
	sub, _ := st.GetBySession(ctx, "sess-stitch")
	if sub == nil || sub.Status != store.StatusFailed {
		t.Fatalf("expected failure record, got %+v", sub)
	}
	dirs, err := staging.ListDirectories(cfg.Paths.StagingDir)
	if err != nil || len(dirs) != 1 || dirs[0].Locked {
		t.Fatalf("failed workspace should be kept unlocked for cleanup: %+v %v", dirs, err)
	}
}

func TestRestartDiscardsInFlightUpload(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	uploader := newBlockingUploader()
	events := &eventLog{}
	ids := []string{"first", "second"}
	next := 0
	device := &capturetest.Device{}
	stitcher := &stubStitcher{out: stitch.Output{
		Artifact: media.Artifact{Data: []byte("stitched"), MimeType: "video/webm"},
		Order:    []string{"user"},
	}}
	orch := pipeline.New(pipeline.Dependencies{
		Device:     device,
		Stitcher:   stitcher,
		Uploader:   uploader,
		Credential: credential.Static("token"),
		Store:      st,
		Publisher:  events,
	}, pipeline.Settings{}, pipeline.WithIDGenerator(func() string {
		id := ids[next]
		next++
		return id
	}))
	ctx := context.Background()

	_ = orch.SelectMode(ctx, media.ModeVideo)
	_ = orch.GiveConsent(ctx)
	device.Last().Emit([]byte("frame"))

	done := make(chan error, 1)
	go func() {
		_, err := orch.Complete(ctx)
		done <- err
	}()
	select {
	case <-uploader.started:
	case <-time.After(5 * time.Second):
		t.Fatal("upload never started")
	}
	if got := orch.Snapshot().State; got != pipeline.StateUploading {
		t.Fatalf("expected uploading, got %s", got)
	}

	orch.Restart("respondent started over")
	close(uploader.release)
	if err := <-done; !errors.Is(err, pipeline.ErrRestarted) {
		t.Fatalf("abandoned upload should report ErrRestarted, got %v", err)
	}

	snap := orch.Snapshot()
	if snap.SessionID != "second" || snap.State != pipeline.StateIdle || snap.Progress != 0 {
		t.Fatalf("unexpected snapshot after restart %+v", snap)
	}
	if sub, _ := st.GetBySession(ctx, "first"); sub != nil {
		t.Fatalf("abandoned result must not be persisted: %+v", sub)
	}
	for _, e := range events.All() {
		if e.RemoteID != "" || e.State == pipeline.StateDone {
			t.Fatalf("abandoned result must not be published: %+v", e)
		}
	}
}

func TestRestartReleasesActiveRecording(t *testing.T) {
	device := &capturetest.Device{}
	orch := pipeline.New(pipeline.Dependencies{
		Device:     device,
		Stitcher:   &stubStitcher{},
		Uploader:   newBlockingUploader(),
		Credential: credential.Static("token"),
	}, pipeline.Settings{})
	ctx := context.Background()
	_ = orch.SelectMode(ctx, media.ModeVideo)
	_ = orch.GiveConsent(ctx)
	session := orch.Session()
	before := orch.SessionID()

	orch.Restart("")
	if device.Last().Released() != 1 {
		t.Fatal("restart must release the capture device")
	}
	if _, err := session.Artifact(); err == nil {
		t.Fatal("aborted session must not yield an artifact")
	}
	if orch.SessionID() == before {
		t.Fatal("restart should assign a new session id")
	}
	if err := orch.RecordAnswer(pipeline.Answer{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("blank question id should be rejected, got %v", err)
	}
}

func TestCompleteBeforeCollectingIsRejected(t *testing.T) {
	orch := pipeline.New(pipeline.Dependencies{}, pipeline.Settings{})
	if _, err := orch.Complete(context.Background()); !errors.Is(err, pipeline.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if err := orch.SelectMode(context.Background(), "hologram"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown mode, got %v", err)
	}
}
