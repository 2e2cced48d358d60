// Package runlock keeps two caravel runs on one host from overlapping.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrHeld is returned when another process owns the lock.
var ErrHeld = errors.New("another caravel run holds the lock")

// Guard is an acquired advisory lock.
type Guard struct {
	path string
	lock *flock.Flock
}

// Acquire takes the lock at path without blocking.
func Acquire(path string) (*Guard, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrHeld, path)
	}
	return &Guard{path: path, lock: lock}, nil
}

// Path returns the lock file location.
func (g *Guard) Path() string { return g.path }

// Release drops the lock. It is safe to call more than once.
func (g *Guard) Release() error {
	if g == nil || g.lock == nil {
		return nil
	}
	return g.lock.Unlock()
}
