package testsupport

import (
	"context"
	"testing"

	"feedbackpipe/internal/config"
	"feedbackpipe/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SaveSubmission persists sub and fails the test on error.
func SaveSubmission(t testing.TB, st *store.Store, sub store.Submission) *store.Submission {
	t.Helper()

	saved, err := st.Save(context.Background(), sub)
	if err != nil {
		t.Fatalf("store.Save: %v", err)
	}
	return saved
}
