package patterns

import (
	"fmt"
	"os"
	"time"

	"testmend/internal/logging"
)

// Advisory lock defaults. The lock is a sidecar marker file, not an OS lock:
// presence plus age is the sole liveness signal (no process-id tracking).
const (
	// DefaultLockStale is the age past which an existing lock is considered
	// abandoned and forcibly taken over.
	DefaultLockStale = 30 * time.Second

	// DefaultLockMaxWait bounds how long an operation waits for the lock
	// before proceeding without it.
	DefaultLockMaxWait = 5 * time.Second

	// DefaultLockRetry is the sleep between acquisition attempts.
	DefaultLockRetry = 100 * time.Millisecond
)

// FileLock guards the pattern store file via an exclusive-create sidecar
// marker (<storePath>.lock) containing a creation timestamp.
type FileLock struct {
	path    string
	stale   time.Duration
	maxWait time.Duration
	retry   time.Duration
	clock   Clock
}

// NewFileLock creates a lock for the given store path. Zero durations fall
// back to the defaults; a nil clock uses the system clock.
func NewFileLock(storePath string, stale, maxWait, retry time.Duration, clock Clock) *FileLock {
	if stale <= 0 {
		stale = DefaultLockStale
	}
	if maxWait <= 0 {
		maxWait = DefaultLockMaxWait
	}
	if retry <= 0 {
		retry = DefaultLockRetry
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &FileLock{
		path:    storePath + ".lock",
		stale:   stale,
		maxWait: maxWait,
		retry:   retry,
		clock:   clock,
	}
}

// Path returns the lock marker path.
func (l *FileLock) Path() string { return l.path }

// Acquire tries to take the lock. It returns held=true when the marker was
// created (or taken over from a stale holder). After maxWait it gives up and
// returns held=false with no error: availability is preferred over strict
// exclusion, and the caller proceeds unlocked with a logged warning.
func (l *FileLock) Acquire() (held bool, err error) {
	deadline := l.clock.Now().Add(l.maxWait)

	for {
		ok, createErr := l.tryCreate()
		if createErr != nil {
			return false, createErr
		}
		if ok {
			return true, nil
		}

		// Marker exists. Stale holders are forcibly taken over.
		if age, ageErr := l.age(); ageErr == nil && age > l.stale {
			logging.Get(logging.CategoryStore).Warn(
				"Stale lock %s (age %v > %v), taking over", l.path, age.Round(time.Millisecond), l.stale)
			if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) {
				return false, fmt.Errorf("failed to remove stale lock: %w", rmErr)
			}
			// Re-create through the exclusive path so a racing process still
			// observes O_EXCL semantics.
			continue
		}

		if l.clock.Now().After(deadline) {
			logging.Get(logging.CategoryStore).Warn(
				"Lock %s not acquired within %v, proceeding without lock", l.path, l.maxWait)
			return false, nil
		}

		time.Sleep(l.retry)
	}
}

// Release removes the lock marker. Held=false acquisitions have nothing to
// release and must not remove a marker another process may now own.
func (l *FileLock) Release(held bool) {
	if !held {
		return
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		logging.Get(logging.CategoryStore).Warn("Failed to remove lock %s: %v", l.path, err)
	}
}

// tryCreate attempts the exclusive create. ok=false means the marker already
// exists; other errors are real failures (missing directory, permissions).
func (l *FileLock) tryCreate() (ok bool, err error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create lock %s: %w", l.path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(l.clock.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		os.Remove(l.path)
		return false, fmt.Errorf("failed to write lock timestamp: %w", err)
	}
	return true, nil
}

// age reads the marker's creation timestamp. An unreadable or garbled marker
// falls back to file mtime so a corrupt lock cannot wedge the store forever.
func (l *FileLock) age() (time.Duration, error) {
	data, err := os.ReadFile(l.path)
	if err == nil {
		if ts, parseErr := time.Parse(time.RFC3339Nano, string(data)); parseErr == nil {
			return l.clock.Now().Sub(ts), nil
		}
	}

	info, err := os.Stat(l.path)
	if err != nil {
		return 0, err
	}
	return l.clock.Now().Sub(info.ModTime()), nil
}
