package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"feedbackpipe/internal/services"
	"feedbackpipe/internal/textutil"
)

const (
	dirPrefix = "session-"
	lockName  = ".lock"
)

// ErrLocked is returned when another process holds the session workspace.
var ErrLocked = errors.New("staging workspace is locked")

// Workspace is a locked session directory.
type Workspace struct {
	SessionID string
	Dir       string
	lock      *flock.Flock
}

// DirName returns the directory name used for sessionID.
func DirName(sessionID string) string {
	return dirPrefix + textutil.SanitizeToken(sessionID)
}

// Open creates (if needed) and locks the workspace for sessionID.
func Open(root, sessionID string) (*Workspace, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "staging", "open", "paths.staging_dir is empty", nil)
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, services.Wrap(services.ErrValidation, "staging", "open", "session id is required", nil)
	}
	dir := filepath.Join(root, DirName(sessionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "staging", "open", "create workspace", err)
	}
	lock := flock.New(filepath.Join(dir, lockName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "staging", "open", "acquire workspace lock", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}
	return &Workspace{SessionID: sessionID, Dir: dir, lock: lock}, nil
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// WriteFile stores data under name and returns the full path.
func (w *Workspace) WriteFile(name string, data []byte) (string, error) {
	p := w.Path(name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", services.Wrap(services.ErrTransient, "staging", "write", name, err)
	}
	return p, nil
}

// Close releases the lock and keeps the directory.
func (w *Workspace) Close() error {
	if w == nil || w.lock == nil {
		return nil
	}
	return w.lock.Unlock()
}

// Remove releases the lock and deletes the directory.
func (w *Workspace) Remove() error {
	if w == nil {
		return nil
	}
	closeErr := w.Close()
	if err := os.RemoveAll(w.Dir); err != nil {
		return err
	}
	return closeErr
}

// locked reports whether another holder has dir's lock.
func locked(dir string) bool {
	lockPath := filepath.Join(dir, lockName)
	if _, err := os.Stat(lockPath); err != nil {
		return false
	}
	probe := flock.New(lockPath)
	ok, err := probe.TryLock()
	if err != nil {
		return true
	}
	if ok {
		_ = probe.Unlock()
		return false
	}
	return true
}
