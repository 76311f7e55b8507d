package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path holding size bytes of 'B'. Non-positive sizes write
// one byte so the file is never empty.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	WriteContent(t, path, bytes.Repeat([]byte{'B'}, int(max(size, 1))))
}

// WriteContent writes data to path, creating parent directories.
func WriteContent(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
