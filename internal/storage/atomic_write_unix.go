//go:build !windows

package storage

import "os"

// replaceFile swaps newpath for oldpath. A plain rename is atomic on POSIX
// filesystems and replaces any existing target.
func replaceFile(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}
