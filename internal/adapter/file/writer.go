// Package file persists the output artifact with an atomic replace: the new
// contents are written to a temp file in the destination directory and then
// renamed over the destination, so readers see either the old table or the
// new one, never a partial write.
package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/hotspot-etl-service/internal/domain"
)

// Writer implements pipeline.Persister for a single destination path.
type Writer struct {
	path   string
	perm   os.FileMode
	logger *slog.Logger
}

// NewWriter creates a Writer for path. Call EnsureDir before the first write.
func NewWriter(path string, logger *slog.Logger) *Writer {
	return &Writer{path: path, perm: 0o644, logger: logger}
}

// Path returns the destination path.
func (w *Writer) Path() string { return w.path }

// EnsureDir creates the destination directory if needed. A failure here is a
// startup configuration error.
func (w *Writer) EnsureDir() error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create destination directory %s: %w", dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat destination directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("destination directory %s is not a directory", dir)
	}
	return nil
}

// Persist replaces the destination with data. On any error the previous
// artifact is left in place and the temp file is removed.
func (w *Writer) Persist(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return &domain.PersistError{Path: w.path, Op: "create", Err: err}
	}

	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return &domain.PersistError{Path: w.path, Op: "create", Err: err}
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			if rmErr := os.Remove(tmpName); rmErr != nil && !os.IsNotExist(rmErr) {
				w.logger.Warn("remove temp file failed", "path", tmpName, "error", rmErr)
			}
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return &domain.PersistError{Path: w.path, Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &domain.PersistError{Path: w.path, Op: "sync", Err: err}
	}
	if err := tmp.Chmod(w.perm); err != nil {
		return &domain.PersistError{Path: w.path, Op: "chmod", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &domain.PersistError{Path: w.path, Op: "close", Err: err}
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		return &domain.PersistError{Path: w.path, Op: "rename", Err: err}
	}
	committed = true

	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry so the rename survives a crash.
// Some filesystems refuse fsync on directories; that is not an error.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
