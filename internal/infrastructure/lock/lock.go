// Package lock enforces single-instance execution with an advisory file lock.
//
// The lock is taken with flock(2) LOCK_EX|LOCK_NB, so it is released by the
// kernel when the process exits, even on a crash, and a stale lock file on
// disk never blocks a restart.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when another process already holds the lock.
var ErrLocked = errors.New("lock: already held by another process")

const (
	dirPermissions  = 0750
	filePermissions = 0640
)

// FileLock is an exclusive lock held on a file for the life of the process.
type FileLock struct {
	path string
	file *os.File
}

// Acquire takes the lock at path, creating the file and its directory if
// needed. The holder's PID is written into the file for operators.
func Acquire(path string) (*FileLock, error) {
	if path == "" {
		return nil, fmt.Errorf("lock path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close() //nolint:errcheck // Best effort cleanup on error path
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0) //nolint:errcheck // PID is informational
	}

	return &FileLock{path: path, file: f}, nil
}

// Release drops the lock. The file itself is left in place.
func (l *FileLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil

	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		f.Close() //nolint:errcheck // Already failing
		return fmt.Errorf("unlocking %s: %w", l.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing lock file: %w", err)
	}
	return nil
}
