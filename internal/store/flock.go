package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// DefaultLockTimeout is how long lock acquisition waits before giving up.
const DefaultLockTimeout = 5 * time.Second

// WithLock runs fn while holding an exclusive lock on path's lockfile.
// The lock lives at path + ".lock" so the data file itself stays clean.
func WithLock(path string, timeout time.Duration, fn func() error) error {
	fileLock := flock.New(path + ".lock")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquiring lock for %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("timed out acquiring lock for %s", path)
	}
	defer fileLock.Unlock()

	return fn()
}

// WithReadLock runs fn while holding a shared lock on path's lockfile.
// Multiple readers may hold it at once; writers wait.
func WithReadLock(path string, timeout time.Duration, fn func() error) error {
	fileLock := flock.New(path + ".lock")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	locked, err := fileLock.TryRLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquiring read lock for %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("timed out acquiring read lock for %s", path)
	}
	defer fileLock.Unlock()

	return fn()
}

// Acquire takes an exclusive lock on path's lockfile without blocking
// and returns a release function. A monitor holds one of these for its
// whole run so a second monitor on the same PR fails fast instead of
// interleaving writes. The lock path must differ from any path used
// with WithLock in the same process, since flock state is per file.
func Acquire(path string) (release func(), err error) {
	fileLock := flock.New(path + ".lock")

	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock for %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%s is locked by another process", path)
	}

	return func() { fileLock.Unlock() }, nil
}
