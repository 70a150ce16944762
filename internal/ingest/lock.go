package ingest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
)

// LockFileName is the lock file created inside the data directory.
const LockFileName = ".ingest.lock"

// FileLock serializes ingestion across processes sharing a data directory.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates a lock at <dir>/.ingest.lock. Nothing is created until
// Lock or TryLock.
func NewFileLock(dir string) *FileLock {
	lockPath := filepath.Join(dir, LockFileName)
	return &FileLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// Lock blocks until the exclusive lock is held.
func (l *FileLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock takes the lock without blocking. A lock held elsewhere is
// ERR_207_LOCK_HELD.
func (l *FileLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return lwerrors.New(lwerrors.ErrCodeLockHeld, "another ingestion is running", nil).
			WithDetail("lock", l.path).
			WithSuggestion("Wait for it to finish, or pass --wait to queue behind it")
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Unlocking an unlocked FileLock is a no-op.
func (l *FileLock) Unlock() error {
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
func (l *FileLock) Path() string {
	return l.path
}
