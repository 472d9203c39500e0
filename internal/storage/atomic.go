package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

const defaultFilePerm os.FileMode = 0644

// AtomicWriter provides atomic file write operations using temp file + rename.
// The target file is never left in a partially-written state: readers see
// either the previous content or the complete new content.
type AtomicWriter struct {
	path    string
	pending *renameio.PendingFile
}

// NewAtomicWriter creates a writer for atomic file updates.
// The temporary file lives next to the target so the final rename never
// crosses a mount point. An existing target keeps its permissions.
func NewAtomicWriter(path string) (*AtomicWriter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	pending, err := renameio.NewPendingFile(path,
		renameio.WithTempDir(dir),
		renameio.WithPermissions(defaultFilePerm),
		renameio.WithExistingPermissions(),
	)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	return &AtomicWriter{path: path, pending: pending}, nil
}

// Write writes data to the temporary file.
func (w *AtomicWriter) Write(p []byte) (n int, err error) {
	return w.pending.Write(p)
}

// Commit fsyncs the temporary file and atomically renames it over the target.
func (w *AtomicWriter) Commit() error {
	if err := w.pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", w.path, err)
	}
	return nil
}

// Abort discards the temporary file. It is a no-op after a successful Commit,
// so it is safe to defer.
func (w *AtomicWriter) Abort() error {
	return w.pending.Cleanup()
}
