package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
)

// LockFileName is created in the data directory by writers.
const LockFileName = ".index.lock"

// WriteLock serialises writers of one on-disk store across processes.
// Readers never take it.
type WriteLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewWriteLock returns an unlocked lock for dataDir.
func NewWriteLock(dataDir string) *WriteLock {
	path := filepath.Join(dataDir, LockFileName)
	return &WriteLock{path: path, flock: flock.New(path)}
}

// TryLock acquires the lock without blocking. When another process holds
// it the error is ERR_LOCK_HELD.
func (l *WriteLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return amerrors.New(amerrors.ErrCodeLockHeld, "another process is writing to this index", nil).
			WithDetail("lock", l.path).
			WithSuggestion("Wait for the other amanctx process to finish, or use a different --data-dir")
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Calling it on an unlocked lock is a no-op.
func (l *WriteLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *WriteLock) Path() string { return l.path }
