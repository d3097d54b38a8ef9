package patterns

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockAcquireRelease(t *testing.T) {
	store := filepath.Join(t.TempDir(), "learned.json")
	lock := NewFileLock(store, 0, 0, 0, nil)

	held, err := lock.Acquire()
	require.NoError(t, err)
	assert.True(t, held)

	data, err := os.ReadFile(lock.Path())
	require.NoError(t, err)
	_, err = time.Parse(time.RFC3339Nano, string(data))
	assert.NoError(t, err, "lock marker carries an RFC3339Nano timestamp")

	lock.Release(held)
	_, err = os.Stat(lock.Path())
	assert.True(t, os.IsNotExist(err), "release removes the marker")
}

func TestLockContentionTimesOutWithoutError(t *testing.T) {
	store := filepath.Join(t.TempDir(), "learned.json")

	holder := NewFileLock(store, 0, 0, 0, nil)
	held, err := holder.Acquire()
	require.NoError(t, err)
	require.True(t, held)
	defer holder.Release(held)

	// A fresh (non-stale) marker forces the waiter to its deadline.
	waiter := NewFileLock(store, time.Hour, 300*time.Millisecond, 50*time.Millisecond, nil)
	held2, err := waiter.Acquire()
	require.NoError(t, err, "a contended lock degrades to unlocked operation, not an error")
	assert.False(t, held2)

	// Unheld release must not remove the holder's marker.
	waiter.Release(held2)
	_, err = os.Stat(holder.Path())
	assert.NoError(t, err)
}

func TestLockStaleTakeover(t *testing.T) {
	store := filepath.Join(t.TempDir(), "learned.json")

	// Simulate a crashed process: a marker whose timestamp is far in the past.
	stamp := time.Now().Add(-10 * time.Minute).UTC().Format(time.RFC3339Nano)
	require.NoError(t, os.WriteFile(store+".lock", []byte(stamp), 0644))

	lock := NewFileLock(store, 30*time.Second, time.Second, 10*time.Millisecond, nil)
	held, err := lock.Acquire()
	require.NoError(t, err)
	assert.True(t, held, "a stale marker is taken over, not waited on")

	// The marker now belongs to this acquisition.
	data, err := os.ReadFile(lock.Path())
	require.NoError(t, err)
	ts, err := time.Parse(time.RFC3339Nano, string(data))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)

	lock.Release(held)
}

func TestLockGarbledMarkerFallsBackToMtime(t *testing.T) {
	store := filepath.Join(t.TempDir(), "learned.json")
	lockPath := store + ".lock"
	require.NoError(t, os.WriteFile(lockPath, []byte("not a timestamp"), 0644))

	// Age the file itself; the timestamp is unreadable.
	old := time.Now().Add(-10 * time.Minute)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	lock := NewFileLock(store, 30*time.Second, time.Second, 10*time.Millisecond, nil)
	held, err := lock.Acquire()
	require.NoError(t, err)
	assert.True(t, held, "a corrupt marker must not wedge the store")
	lock.Release(held)
}

func TestLockFreshGarbledMarkerIsRespected(t *testing.T) {
	store := filepath.Join(t.TempDir(), "learned.json")
	require.NoError(t, os.WriteFile(store+".lock", []byte("garbage"), 0644))

	lock := NewFileLock(store, time.Hour, 200*time.Millisecond, 50*time.Millisecond, nil)
	held, err := lock.Acquire()
	require.NoError(t, err)
	assert.False(t, held, "a recent marker holds even when its timestamp is unreadable")
}
