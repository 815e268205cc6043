//go:build !windows

package storage

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// acquireFileLock opens (creating if needed) the lock artifact at path and
// takes an exclusive flock(2) on it without blocking. A lock held elsewhere
// surfaces as ErrWouldBlock.
func acquireFileLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrWouldBlock
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	return f, nil
}

// releaseFileLock drops the flock, closes the handle, and removes the
// artifact. A missing artifact on removal is not an error.
func releaseFileLock(f *os.File) error {
	if f == nil {
		return nil
	}
	path := f.Name()

	// LOCK_UN cannot meaningfully fail; the close releases it regardless.
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)

	closeErr := f.Close()
	removeErr := os.Remove(path)
	if removeErr != nil && os.IsNotExist(removeErr) {
		removeErr = nil
	}
	return errors.Join(closeErr, removeErr)
}
