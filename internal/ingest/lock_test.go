package ingest

import (
	"os"
	"testing"

	lwerrors "github.com/Aman-CERP/legalwise/internal/errors"
)

func TestFileLock_LockUnlock(t *testing.T) {
	dir := t.TempDir()
	lock := NewFileLock(dir)

	if err := lock.Lock(); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if _, err := os.Stat(lock.Path()); os.IsNotExist(err) {
		t.Error("Lock file was not created")
	}
	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock() failed: %v", err)
	}
}

func TestFileLock_UnlockWithoutLock(t *testing.T) {
	lock := NewFileLock(t.TempDir())

	if err := lock.Unlock(); err != nil {
		t.Errorf("Unlock() without Lock() should not error: %v", err)
	}
}

func TestFileLock_TryLock_HeldElsewhere(t *testing.T) {
	dir := t.TempDir()
	first := NewFileLock(dir)
	second := NewFileLock(dir)

	if err := first.TryLock(); err != nil {
		t.Fatalf("first TryLock() failed: %v", err)
	}
	defer func() { _ = first.Unlock() }()

	err := second.TryLock()
	if err == nil {
		t.Fatal("second TryLock() should fail while the lock is held")
	}
	if code := lwerrors.GetCode(err); code != lwerrors.ErrCodeLockHeld {
		t.Errorf("code = %q, want %q", code, lwerrors.ErrCodeLockHeld)
	}
	if !lwerrors.IsRetryable(err) {
		t.Error("lock held should be retryable")
	}
}

func TestFileLock_TryLock_AfterRelease(t *testing.T) {
	dir := t.TempDir()
	first := NewFileLock(dir)
	second := NewFileLock(dir)

	if err := first.Lock(); err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock() failed: %v", err)
	}

	if err := second.TryLock(); err != nil {
		t.Errorf("TryLock() after release failed: %v", err)
	}
	_ = second.Unlock()
}

func TestFileLock_CreatesDirectory(t *testing.T) {
	dir := t.TempDir() + "/nested/data"
	lock := NewFileLock(dir)

	if err := lock.TryLock(); err != nil {
		t.Fatalf("TryLock() failed: %v", err)
	}
	defer func() { _ = lock.Unlock() }()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("data directory not created: %v", err)
	}
}
