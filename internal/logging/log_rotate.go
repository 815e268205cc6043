// Package logging provides the log sinks shared by the CLI commands: a
// size-rotated file writer and a bounded in-memory handler that feeds the
// repl's logs view.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// RotatingFileWriter is an io.WriteCloser with size-based rotation. When a
// write would push the current file past the size limit, the current file is
// renamed to <path>.1 after existing backups shift up one slot, and the
// backup past the retention limit is removed.
//
// All operations are safe for concurrent use.
type RotatingFileWriter struct {
	mu           sync.Mutex
	path         string
	maxSizeBytes int64
	maxFiles     int
	size         int64
	file         *os.File
}

// NewRotatingFileWriter opens path in append mode, creating parent
// directories as needed. maxSizeMB is clamped to a minimum of 1. maxFiles is
// clamped to a minimum of 0; zero keeps no backups, the rotated file is
// simply discarded.
func NewRotatingFileWriter(path string, maxSizeMB, maxFiles int) (*RotatingFileWriter, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("logging: mkdir %s: %w", dir, err)
		}
	}
	f, size, err := openCurrent(path)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	return &RotatingFileWriter{
		path:         path,
		maxSizeBytes: int64(max(maxSizeMB, 1)) * 1024 * 1024,
		maxFiles:     max(maxFiles, 0),
		size:         size,
		file:         f,
	}, nil
}

// openCurrent opens the log file in append mode and reports its size.
func openCurrent(path string) (*os.File, int64, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return f, info.Size(), nil
}

// Write appends p to the current file, rotating first if the write would
// exceed the size limit. A single write is never split across files; a write
// larger than the limit still lands whole in a fresh file.
func (w *RotatingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, fmt.Errorf("logging: write %s: %w", w.path, os.ErrClosed)
	}

	if w.size > 0 && w.size+int64(len(p)) > w.maxSizeBytes {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("logging: rotate: %w", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the current file. Further writes fail.
func (w *RotatingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// rotate shifts backups up one slot and reopens a fresh current file.
// Callers hold w.mu.
func (w *RotatingFileWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil

	if w.maxFiles > 0 {
		// Free each slot before its predecessor moves in.
		_ = os.Remove(w.backupPath(w.maxFiles))
		for n := w.maxFiles - 1; n >= 1; n-- {
			_ = os.Rename(w.backupPath(n), w.backupPath(n+1))
		}
		_ = os.Rename(w.path, w.backupPath(1))
	} else {
		_ = os.Remove(w.path)
	}

	f, size, err := openCurrent(w.path)
	if err != nil {
		return err
	}
	w.file, w.size = f, size
	return nil
}

// backupPath returns the path for backup number n (e.g., "panel.log.1").
func (w *RotatingFileWriter) backupPath(n int) string {
	return w.path + "." + strconv.Itoa(n)
}

var _ io.WriteCloser = (*RotatingFileWriter)(nil)
