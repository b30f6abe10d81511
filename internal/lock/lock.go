// Package lock serializes runs that share a staging root.
package lock

import (
	stderrors "errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
)

// FileName is the lock file created in the state directory.
const FileName = "meshpack.lock"

// ErrLocked reports that another run holds the lock.
var ErrLocked = stderrors.New("another run holds the staging lock")

// Lock is an exclusive advisory lock on a file. It is released when the
// process exits, even without Release.
type Lock struct {
	f *os.File
}

// Acquire takes the lock in dir without blocking.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "create state directory").
			WithContext("path", dir).
			Build()
	}
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "open lock file").
			WithContext("path", path).
			Build()
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if stderrors.Is(err, unix.EWOULDBLOCK) {
			return nil, errors.WrapError(ErrLocked, errors.CategoryRuntime, "staging root busy").
				Fatal().
				WithContext("path", path).
				Build()
		}
		return nil, errors.WrapError(err, errors.CategoryRuntime, "lock staging root").
			WithContext("path", path).
			Build()
	}
	return &Lock{f: f}, nil
}

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return f.Close()
}
