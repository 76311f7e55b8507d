package deps

import (
	"os"
	"path/filepath"
	"testing"

	"feedbackpipe/internal/config"
)

func writeStub(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	writeStub(t, present)
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  ", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for blank command: %q", results[2].Detail)
	}

	missing := Missing(results)
	if len(missing) != 1 || missing[0].Name != "Missing" {
		t.Fatalf("optional failures must not count as missing: %#v", missing)
	}
}

func TestResolveFFprobePrefersSibling(t *testing.T) {
	tmp := t.TempDir()
	ffmpegPath := filepath.Join(tmp, executableName("ffmpeg"))
	ffprobePath := filepath.Join(tmp, executableName("ffprobe"))
	writeStub(t, ffmpegPath)
	writeStub(t, ffprobePath)

	if got := ResolveFFprobe(ffmpegPath, "ffprobe"); got != ffprobePath {
		t.Fatalf("expected sibling %s, got %s", ffprobePath, got)
	}
	if got := ResolveFFprobe(ffmpegPath, "/opt/ffprobe"); got != "/opt/ffprobe" {
		t.Fatalf("explicit path should win, got %s", got)
	}
}

func TestResolveFFprobeFallsBackToPath(t *testing.T) {
	tmp := t.TempDir()
	ffmpegPath := filepath.Join(tmp, executableName("ffmpeg"))
	writeStub(t, ffmpegPath)
	if got := ResolveFFprobe(ffmpegPath, ""); got != "ffprobe" {
		t.Fatalf("expected PATH fallback, got %s", got)
	}
}

func TestRequirementsNameBothTools(t *testing.T) {
	cfg := config.Default()
	reqs := Requirements(&cfg)
	if len(reqs) != 2 || reqs[0].Command != "ffmpeg" || reqs[1].Name != "FFprobe" {
		t.Fatalf("unexpected requirements %#v", reqs)
	}
}
