package storage

import (
	"errors"
	"os"
)

// ErrWouldBlock signals that a non-blocking lock attempt failed because the
// resource is locked by another process.
var ErrWouldBlock = errors.New("file lock would block")

// AcquireLockHandle attempts to acquire an exclusive lock on path. It returns
// the held handle and true on success, or (nil, false, nil) when another
// process holds the lock. Callers may close the handle to release the lock
// while leaving the artifact in place, or call ReleaseLockHandle to release
// and remove it.
func AcquireLockHandle(path string) (*os.File, bool, error) {
	// acquireFileLock never returns a handle alongside an error.
	f, err := acquireFileLock(path)
	switch {
	case err == nil:
		return f, true, nil
	case errors.Is(err, ErrWouldBlock):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// ReleaseLockHandle releases the lock represented by the provided file handle
// and removes the lock artifact. Passing nil is a no-op.
func ReleaseLockHandle(f *os.File) error { return releaseFileLock(f) }
