// Package storage provides the filesystem primitives shared by the
// configuration file and the persisted panel record: atomic file
// replacement and advisory cross-process file locks.
package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// RenameError wraps a rename failure together with the temporary file path,
// so callers can verify that the temp file was cleaned up.
type RenameError struct {
	Err      error
	tempPath string
}

func (e RenameError) Error() string    { return e.Err.Error() }
func (e RenameError) TempPath() string { return e.tempPath }
func (e RenameError) Unwrap() error    { return e.Err }

// AtomicWriteFile writes data to filename by way of a temporary file in the
// same directory and an atomic rename, so readers never observe a partial
// write. Parent directories are created as needed.
func AtomicWriteFile(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}

	// The temp file must live in the target directory; rename is only
	// atomic within a filesystem.
	tempFile, err := os.CreateTemp(dir, ".tmp-viewscreen-*")
	if err != nil {
		return fmt.Errorf("create temp file in %q: %w", dir, err)
	}
	tempPath := tempFile.Name()

	// On success the rename consumes the temp file; on any error path the
	// deferred cleanup removes it.
	var success bool
	defer func() {
		if !success {
			if err := os.Remove(tempPath); err != nil {
				slog.Warn("failed to remove temporary file", "path", tempPath, "error", err)
			}
		}
	}()

	if err := sealTemp(tempFile, data, perm); err != nil {
		return err
	}
	if err := replaceFile(tempPath, filename); err != nil {
		return RenameError{Err: err, tempPath: tempPath}
	}
	success = true
	return nil
}

// sealTemp fills the temp file, forces it to disk, and applies the target
// permissions. The file is closed in every case.
func sealTemp(f *os.File, data []byte, perm os.FileMode) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp file %q: %w", f.Name(), err)
	}
	// Data must reach disk before the rename publishes the file.
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp file %q: %w", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file %q: %w", f.Name(), err)
	}
	if err := os.Chmod(f.Name(), perm); err != nil {
		return fmt.Errorf("chmod temp file %q: %w", f.Name(), err)
	}
	return nil
}
