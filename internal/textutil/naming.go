package textutil

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.Und)

// RemoteName builds the upload file name for a submission, for example
// "Feedback - Video - 2026-10-14 153000 - 3f2a9c1e.mp4". An empty prefix
// defaults to "Feedback".
func RemoteName(prefix, mode, sessionID string, created time.Time, ext string) string {
	prefix = SanitizeFileName(prefix)
	if prefix == "" {
		prefix = "Feedback"
	}
	parts := []string{prefix}
	if mode = strings.TrimSpace(mode); mode != "" {
		parts = append(parts, titleCaser.String(strings.ToLower(mode)))
	}
	if !created.IsZero() {
		parts = append(parts, created.UTC().Format("2006-01-02 150405"))
	}
	if token := SanitizeToken(sessionID); token != "unknown" {
		if len(token) > 8 {
			token = token[:8]
		}
		parts = append(parts, token)
	}
	name := SanitizeFileName(strings.Join(parts, " - "))
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		return name
	}
	return name + "." + SanitizeToken(ext)
}
