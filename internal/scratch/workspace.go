// Package scratch manages the per-request temporary files of a conversion.
package scratch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// DirPattern is the os.MkdirTemp pattern for workspace directories.
const DirPattern = "bookscan_*"

// Workspace is one request's scratch directory. Cleanup is idempotent and safe
// to call from multiple goroutines.
type Workspace struct {
	dir  string
	once sync.Once
	err  error
}

// New creates a fresh, uniquely named workspace under root.
func New(root string) (*Workspace, error) {
	dir, err := os.MkdirTemp(root, DirPattern)
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns a path for name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// UniquePath returns a collision-free path for an untrusted filename:
// <uuid>_<sanitised name>.
func (w *Workspace) UniquePath(filename string) string {
	return w.Path(uuid.NewString() + "_" + SanitizeFilename(filename))
}

// Save streams r into a uniquely named file derived from filename and returns
// its path and size. A partially written file is removed on error.
func (w *Workspace) Save(filename string, r io.Reader) (string, int64, error) {
	path := w.UniquePath(filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("create scratch file: %w", err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", n, fmt.Errorf("write scratch file: %w", err)
	}
	return path, n, nil
}

// Remove deletes one file inside the workspace. Missing files are ignored.
func (w *Workspace) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Cleanup removes the workspace and everything in it.
func (w *Workspace) Cleanup() error {
	w.once.Do(func() {
		w.err = os.RemoveAll(w.dir)
	})
	return w.err
}
