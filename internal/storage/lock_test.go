package storage

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestMutexLock(t *testing.T) {
	lock := NewMutexLock()

	if err := lock.TryAcquire("pipeline"); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if err := lock.TryAcquire("pipeline"); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("second acquire = %v, want ErrLockHeld", err)
	}

	// Other keys are independent.
	if err := lock.TryAcquire("reprocess"); err != nil {
		t.Fatalf("acquire of other key failed: %v", err)
	}

	if err := lock.Release("pipeline"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := lock.TryAcquire("pipeline"); err != nil {
		t.Fatalf("reacquire after release failed: %v", err)
	}
}

func TestFileLock(t *testing.T) {
	dir := t.TempDir()
	lock, err := NewFileLock(dir, "scopeline-test")
	if err != nil {
		t.Fatalf("NewFileLock: %v", err)
	}

	if err := lock.TryAcquire("pipeline"); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	// A second locker in the same directory sees the live lock.
	other, err := NewFileLock(dir, "scopeline-other")
	if err != nil {
		t.Fatalf("NewFileLock: %v", err)
	}
	if err := other.TryAcquire("pipeline"); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("second acquire = %v, want ErrLockHeld", err)
	}

	if err := lock.Release("pipeline"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := other.TryAcquire("pipeline"); err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
}

func TestFileLockStaleLockOverwritten(t *testing.T) {
	dir := t.TempDir()
	lock, err := NewFileLock(dir, "scopeline-test")
	if err != nil {
		t.Fatalf("NewFileLock: %v", err)
	}

	// Fabricate a lock held by a local process that cannot exist.
	hostname, err := os.Hostname()
	if err != nil {
		t.Fatalf("hostname: %v", err)
	}
	stale := fmt.Sprintf(
		`{"holder": "crashed-run", "pid": 999999999, "hostname": %q, "started_at": "2026-01-01T00:00:00Z"}`,
		hostname)
	if err := os.WriteFile(lock.pathFor("pipeline"), []byte(stale), 0644); err != nil {
		t.Fatalf("writing stale lock: %v", err)
	}

	if err := lock.TryAcquire("pipeline"); err != nil {
		t.Fatalf("acquire over stale lock = %v, want nil", err)
	}
}
