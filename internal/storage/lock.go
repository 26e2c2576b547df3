package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ErrLockHeld is returned when a run lock is already held by a live process.
var ErrLockHeld = errors.New("run lock already held")

// RunLock serializes pipeline runs. TryAcquire never blocks: a second run
// starting while one is in flight reports contention immediately.
type RunLock interface {
	TryAcquire(key string) error
	Release(key string) error
}

// lockFileContents is the JSON payload written to the lock file. PID and
// hostname let a later process detect a lock left behind by a crash.
type lockFileContents struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
}

// FileLock implements RunLock with lock files in a directory, so concurrent
// runs are excluded across processes sharing the same data directory.
type FileLock struct {
	dir    string
	holder string
}

var _ RunLock = (*FileLock)(nil)

// NewFileLock creates a file-based run lock rooted at dir.
func NewFileLock(dir, holder string) (*FileLock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &FileLock{dir: dir, holder: holder}, nil
}

func (l *FileLock) pathFor(key string) string {
	return filepath.Join(l.dir, key+".lock")
}

// TryAcquire claims the lock for key. A lock file whose owning process is
// gone is treated as stale and overwritten.
func (l *FileLock) TryAcquire(key string) error {
	path := l.pathFor(key)

	if data, err := os.ReadFile(path); err == nil {
		var existing lockFileContents
		if json.Unmarshal(data, &existing) == nil {
			if isProcessAlive(existing.PID, existing.Hostname) {
				return fmt.Errorf("%w: held by %s (PID %d on %s, started %s)",
					ErrLockHeld, existing.Holder, existing.PID, existing.Hostname,
					existing.StartedAt.Format(time.RFC3339))
			}
			// Stale lock, overwrite.
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("failed to get hostname: %w", err)
	}
	contents := lockFileContents{
		Holder:    l.holder,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
	}
	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	return nil
}

// Release removes the lock file for key.
func (l *FileLock) Release(key string) error {
	if err := os.Remove(l.pathFor(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// isProcessAlive checks if a process with the given PID exists on the given
// hostname. Remote hosts cannot be checked, so their locks are assumed live.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}
	if !strings.EqualFold(hostname, currentHost) {
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to another user.
	return errors.Is(err, syscall.EPERM)
}

// MutexLock implements RunLock in-process, for tests and embedded use.
type MutexLock struct {
	mu   sync.Mutex
	held map[string]bool
}

var _ RunLock = (*MutexLock)(nil)

// NewMutexLock creates an in-process run lock.
func NewMutexLock() *MutexLock {
	return &MutexLock{held: make(map[string]bool)}
}

// TryAcquire claims the lock for key without blocking.
func (l *MutexLock) TryAcquire(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return ErrLockHeld
	}
	l.held[key] = true
	return nil
}

// Release frees the lock for key.
func (l *MutexLock) Release(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
