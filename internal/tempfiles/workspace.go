// Package tempfiles provides per-call scratch directories with guaranteed
// cleanup for subprocess I/O (ffmpeg transcode and denoise runs).
package tempfiles

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is a scoped temporary directory. Create one per pipeline call,
// defer Cleanup, and every file written under it is reaped on all exit paths.
type Workspace struct {
	dir string
}

// New creates a workspace under parent (os.TempDir() when empty).
func New(parent, pattern string) (*Workspace, error) {
	if parent == "" {
		parent = os.TempDir()
	}
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return nil, fmt.Errorf("create workspace parent: %w", err)
	}
	dir, err := os.MkdirTemp(parent, pattern)
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace directory path.
func (w *Workspace) Dir() string { return w.dir }

// Path returns the path of name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// WriteFile writes data to name inside the workspace and returns its path.
func (w *Workspace) WriteFile(name string, data []byte) (string, error) {
	p := w.Path(name)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return p, nil
}

// Cleanup removes the workspace and everything in it.
func (w *Workspace) Cleanup() error {
	if w.dir == "" {
		return nil
	}
	return os.RemoveAll(w.dir)
}
