// Package filelock serialises read-modify-write cycles on a file across processes
// with an exclusive sibling "<path>.lock" file.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	lockSuffix   = ".lock"
	pollInterval = 10 * time.Millisecond
)

// ErrLockTimeout is returned when the lock could not be acquired before the timeout
var ErrLockTimeout = errors.New("timeout acquiring file lock")

// FileLock guards the file at Target() with an exclusive lock file next to it
type FileLock struct {
	target   string
	path     string
	file     *os.File
	acquired bool
	mu       sync.Mutex
}

// New creates a lock for target; nothing is touched on disk until Lock is called
func New(target string) *FileLock {
	return &FileLock{
		target: target,
		path:   target + lockSuffix,
	}
}

// Target returns the guarded file path
func (fl *FileLock) Target() string {
	return fl.target
}

// Path returns the lock file path
func (fl *FileLock) Path() string {
	return fl.path
}

// Lock acquires the lock, polling until timeout elapses or ctx is done
func (fl *FileLock) Lock(ctx context.Context, timeout time.Duration) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.acquired {
		return fmt.Errorf("lock %s already acquired", fl.path)
	}

	deadline := time.Now().Add(timeout)
	for {
		file, err := os.OpenFile(fl.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err == nil {
			_, _ = fmt.Fprintf(file, "%d\n", os.Getpid())
			fl.file = file
			fl.acquired = true
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to acquire lock %s: %w", fl.path, err)
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w %s after %v", ErrLockTimeout, fl.path, timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Unlock releases the lock; calling it on an unlocked FileLock is a no-op
func (fl *FileLock) Unlock() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if !fl.acquired {
		return nil
	}

	var err error
	if fl.file != nil {
		err = fl.file.Close()
		fl.file = nil
	}

	if removeErr := os.Remove(fl.path); removeErr != nil && !os.IsNotExist(removeErr) && err == nil {
		err = fmt.Errorf("failed to remove lock file: %w", removeErr)
	}

	fl.acquired = false
	return err
}

// WithLock executes fn while holding the lock
func (fl *FileLock) WithLock(ctx context.Context, timeout time.Duration, fn func() error) error {
	if err := fl.Lock(ctx, timeout); err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	return fn()
}
