package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"feedbackpipe/internal/services"
	"feedbackpipe/internal/store"
	"feedbackpipe/internal/testsupport"
)

func TestSaveAndGetBySession(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	saved, err := st.Save(ctx, store.Submission{
		SessionID:       "sess-1",
		Mode:            "audio",
		Status:          store.StatusCompleted,
		RemoteID:        "drive-file-1",
		SizeBytes:       4096,
		DurationSeconds: 45,
		Answers: []store.Answer{
			{QuestionID: "q1", Value: "yes"},
			{QuestionID: "q2", Value: "the onboarding"},
		},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.ID == 0 || saved.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamps, got %+v", saved)
	}
	if saved.RemoteID != "drive-file-1" || saved.SizeBytes != 4096 || saved.DurationSeconds != 45 {
		t.Fatalf("unexpected stored values %+v", saved)
	}
	if len(saved.Answers) != 2 || saved.Answers[1].Value != "the onboarding" {
		t.Fatalf("answers not round-tripped: %+v", saved.Answers)
	}

	missing, err := st.GetBySession(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown session, got %v %v", missing, err)
	}
}

func TestSaveReplacesExistingSession(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.SaveSubmission(t, st, store.Submission{
		SessionID:    "sess-2",
		Mode:         "video",
		Status:       store.StatusFailed,
		ErrorMessage: "upload retries exhausted",
	})
	second, err := st.Save(ctx, store.Submission{
		SessionID: "sess-2",
		Mode:      "video",
		Status:    store.StatusCompleted,
		RemoteID:  "drive-file-2",
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if second.ID != first.ID || !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("expected row to be updated in place: %+v vs %+v", first, second)
	}
	if second.ErrorMessage != "" || second.Status != store.StatusCompleted {
		t.Fatalf("expected completed record, got %+v", second)
	}
}

func TestSaveValidates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cases := []store.Submission{
		{Mode: "video", Status: store.StatusCompleted, RemoteID: "x"},
		{SessionID: "s", Mode: "video", Status: store.StatusCompleted},
		{SessionID: "s", Mode: "video", Status: "pending"},
	}
	for _, sub := range cases {
		if _, err := st.Save(ctx, sub); !errors.Is(err, services.ErrValidation) {
			t.Errorf("expected validation error for %+v, got %v", sub, err)
		}
	}
	if _, err := st.Save(ctx, store.Submission{SessionID: "text-1", Mode: "text", Status: store.StatusCompleted}); err != nil {
		t.Fatalf("text submissions need no remote id: %v", err)
	}
}

func TestListNewestFirstWithFilter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SaveSubmission(t, st, store.Submission{SessionID: "a", Mode: "video", Status: store.StatusCompleted, RemoteID: "r1"})
	testsupport.SaveSubmission(t, st, store.Submission{SessionID: "b", Mode: "audio", Status: store.StatusFailed, ErrorMessage: "denied"})
	testsupport.SaveSubmission(t, st, store.Submission{SessionID: "c", Mode: "audio", Status: store.StatusCompleted, RemoteID: "r3"})

	all, err := st.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].SessionID != "c" || all[2].SessionID != "a" {
		t.Fatalf("unexpected order: %v %v %v", all[0].SessionID, all[1].SessionID, all[2].SessionID)
	}

	limited, err := st.List(ctx, 1, store.StatusCompleted)
	if err != nil {
		t.Fatalf("List limited: %v", err)
	}
	if len(limited) != 1 || limited[0].SessionID != "c" {
		t.Fatalf("unexpected filtered result %+v", limited)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[store.StatusCompleted] != 2 || stats[store.StatusFailed] != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}

	removed, err := st.Remove(ctx, "b")
	if err != nil || !removed {
		t.Fatalf("Remove: %v %v", removed, err)
	}
	if removed, _ := st.Remove(ctx, "b"); removed {
		t.Fatal("second Remove should report false")
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	testsupport.SaveSubmission(t, st, store.Submission{SessionID: "persisted", Mode: "text", Status: store.StatusCompleted})
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	sub, err := reopened.GetBySession(context.Background(), "persisted")
	if err != nil || sub == nil {
		t.Fatalf("expected record after reopen, got %v %v", sub, err)
	}
}

func TestOpenRejectsOtherSchemaVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	path := st.Path()
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	_ = db.Close()

	if _, err := store.OpenPath(path); !errors.Is(err, store.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
