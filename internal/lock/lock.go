// Package lock guards a workspace against concurrent pipeline runs.
package lock

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileName is the lock file created in the locked directory.
const FileName = ".fmlsetup.lock"

// ErrLocked is returned when another process holds the workspace lock.
var ErrLocked = errors.New("workspace is locked by another run")

// Workspace is an acquired workspace lock.
type Workspace struct {
	path string
	lock *flock.Flock
}

// Acquire takes the lock for dir without blocking.
func Acquire(dir string) (*Workspace, error) {
	path := filepath.Join(dir, FileName)
	locker := flock.New(path)

	ok, err := locker.TryLock()
	if err != nil {
		_ = locker.Close()
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		_ = locker.Close()
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return &Workspace{path: path, lock: locker}, nil
}

// Path returns the lock file path.
func (w *Workspace) Path() string { return w.path }

// Release unlocks the workspace. It is safe to call more than once.
func (w *Workspace) Release() error {
	if w == nil || w.lock == nil {
		return nil
	}
	err := w.lock.Close()
	w.lock = nil
	return err
}
