package healing

import (
	"bufio"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"testmend/internal/logging"
)

// journal entry kinds.
const (
	entryKindAttempt  = "attempt"
	entryKindTerminal = "terminal"
)

// JournalEntry is one line of the session journal: either an attempt record
// or the terminal status marker.
type JournalEntry struct {
	Kind           string          `json:"kind"`
	Timestamp      time.Time       `json:"timestamp"`
	Attempt        *HealingAttempt `json:"attempt,omitempty"`
	Status         Status          `json:"status,omitempty"`
	Recommendation string          `json:"recommendation,omitempty"`
}

// Journal is the append-only healing session log. Every attempt is written
// and synced before the loop proceeds, so a crash mid-loop leaves an
// inspectable trail.
type Journal struct {
	path string
	file *os.File
}

var sessionIDCleaner = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// DeriveSessionID produces a deterministic session identifier from a test
// file path: readable base name plus a short path hash so distinct files
// with the same name do not collide.
func DeriveSessionID(testFile string) string {
	base := filepath.Base(testFile)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = sessionIDCleaner.ReplaceAllString(base, "-")

	h := fnv.New32a()
	h.Write([]byte(testFile))
	return fmt.Sprintf("%s-%08x", base, h.Sum32())
}

// JournalPath returns the deterministic journal path for a session.
func JournalPath(sessionsDir, sessionID string) string {
	return filepath.Join(sessionsDir, sessionID+".jsonl")
}

// OpenJournal opens (appending) the journal for a session.
func OpenJournal(sessionsDir, sessionID string) (*Journal, error) {
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	path := JournalPath(sessionsDir, sessionID)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open session journal %s: %w", path, err)
	}
	return &Journal{path: path, file: file}, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// AppendAttempt durably appends one attempt record.
func (j *Journal) AppendAttempt(a *HealingAttempt) error {
	return j.append(JournalEntry{
		Kind:      entryKindAttempt,
		Timestamp: time.Now().UTC(),
		Attempt:   a,
	})
}

// AppendTerminal durably appends the terminal status marker.
func (j *Journal) AppendTerminal(status Status, recommendation string) error {
	return j.append(JournalEntry{
		Kind:           entryKindTerminal,
		Timestamp:      time.Now().UTC(),
		Status:         status,
		Recommendation: recommendation,
	})
}

func (j *Journal) append(entry JournalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode journal entry: %w", err)
	}
	if _, err := j.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append to session journal: %w", err)
	}
	// Each record must survive a crash of the very next operation.
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync session journal: %w", err)
	}
	logging.SessionDebug("Journal %s: %s", filepath.Base(j.path), entry.Kind)
	return nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	return j.file.Close()
}

// ReadJournal loads all entries of a session journal, for inspection and
// tests. Unparseable lines are skipped with a warning.
func ReadJournal(sessionsDir, sessionID string) ([]JournalEntry, error) {
	f, err := os.Open(JournalPath(sessionsDir, sessionID))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []JournalEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry JournalEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			logging.Get(logging.CategorySession).Warn("Skipping unparseable journal line: %v", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// SessionState is the persisted breaker/convergence snapshot for one session.
// It lets a restarted process continue with correct attempt counts: state is
// restored from the snapshot and advanced by new observations only.
type SessionState struct {
	SessionID   string              `json:"sessionId"`
	TestFile    string              `json:"testFile"`
	Attempts    int                 `json:"attempts"`
	Breaker     BreakerSnapshot     `json:"breaker"`
	Convergence ConvergenceSnapshot `json:"convergence"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// statePath returns the snapshot path for a session.
func statePath(sessionsDir, sessionID string) string {
	return filepath.Join(sessionsDir, sessionID+".state.json")
}

// LoadSessionState reads a persisted session state. A missing file yields
// (nil, nil); a malformed one is treated as missing with a warning.
func LoadSessionState(sessionsDir, sessionID string) (*SessionState, error) {
	data, err := os.ReadFile(statePath(sessionsDir, sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session state: %w", err)
	}

	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		logging.Get(logging.CategorySession).Warn(
			"Malformed session state for %s: %v (starting fresh)", sessionID, err)
		return nil, nil
	}
	return &state, nil
}

// SaveSessionState atomically persists the session state.
func SaveSessionState(sessionsDir string, state *SessionState) error {
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return fmt.Errorf("failed to create sessions directory: %w", err)
	}

	state.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}

	path := statePath(sessionsDir, state.SessionID)
	tmp, err := os.CreateTemp(sessionsDir, state.SessionID+".state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write session state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace session state: %w", err)
	}
	return nil
}

// ClearSessionState removes a session's persisted state. Called on terminal
// HEALED or an explicit clear; a missing file is not an error.
func ClearSessionState(sessionsDir, sessionID string) error {
	err := os.Remove(statePath(sessionsDir, sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear session state: %w", err)
	}
	return nil
}
