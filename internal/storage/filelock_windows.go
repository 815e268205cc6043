//go:build windows

package storage

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// acquireFileLock opens (creating if needed) the lock artifact at path and
// takes an exclusive one-byte LockFileEx region on it without blocking. A
// lock held elsewhere surfaces as ErrWouldBlock.
func acquireFileLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	var ov windows.Overlapped
	err = windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, &ov)
	if err != nil {
		f.Close()
		if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
			return nil, ErrWouldBlock
		}
		return nil, fmt.Errorf("LockFileEx %s: %w", path, err)
	}
	return f, nil
}

// releaseFileLock unlocks the held region, closes the handle, and removes
// the artifact. A missing artifact on removal is not an error.
func releaseFileLock(f *os.File) error {
	if f == nil {
		return nil
	}
	path := f.Name()

	var ov windows.Overlapped
	unlockErr := windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, &ov)
	if unlockErr != nil {
		unlockErr = fmt.Errorf("UnlockFileEx %s: %w", path, unlockErr)
	}

	closeErr := f.Close()
	removeErr := os.Remove(path)
	if removeErr != nil && os.IsNotExist(removeErr) {
		removeErr = nil
	}
	return errors.Join(unlockErr, closeErr, removeErr)
}
