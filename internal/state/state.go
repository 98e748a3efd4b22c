// Package state persists per-account sync history between runs: the last
// successful sync time per account, used to default the start of the next
// run's date range. The conversion engine itself is stateless; this file is
// purely an orchestration convenience.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// CurrentVersion is the current state file format version
	CurrentVersion = 1

	// overlap re-fetched before the recorded last sync, so entries posted
	// around the boundary are not missed
	overlap = 24 * time.Hour
)

// State is the sync-state file contents.
type State struct {
	Version  int                      `json:"version"`
	Accounts map[string]*AccountState `json:"accounts"`
	Metadata Metadata                 `json:"metadata"`
}

// AccountState tracks one account's sync history.
type AccountState struct {
	LastSync    time.Time `json:"lastSync"`
	RecordCount int       `json:"recordCount"`
	RunCount    int       `json:"runCount"`
}

// Metadata contains aggregate statistics about the state.
type Metadata struct {
	LastUpdated   time.Time `json:"lastUpdated"`
	TotalAccounts int       `json:"totalAccounts"`
}

// New creates an empty sync state.
func New() *State {
	return &State{
		Version:  CurrentVersion,
		Accounts: make(map[string]*AccountState),
		Metadata: Metadata{LastUpdated: time.Now()},
	}
}

// Load reads a state file from disk.
// Returns os.IsNotExist error if the file doesn't exist (caller should handle).
func Load(filePath string) (*State, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err // Preserve os.IsNotExist for caller
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	if state.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported state file version %d (current version: %d)", state.Version, CurrentVersion)
	}
	if state.Accounts == nil {
		state.Accounts = make(map[string]*AccountState)
	}

	return &state, nil
}

// Save atomically writes the state to disk.
// Uses atomic write pattern: write to temp file, then rename.
// Ensures parent directory exists.
func Save(state *State, filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	state.Metadata.LastUpdated = time.Now()
	state.Metadata.TotalAccounts = len(state.Accounts)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tempFile := filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Validate checks internal consistency of a loaded state.
func (s *State) Validate() error {
	for id, acc := range s.Accounts {
		if id == "" {
			return fmt.Errorf("state contains an entry with an empty account id")
		}
		if acc == nil {
			return fmt.Errorf("account %s: nil state entry", id)
		}
		if acc.LastSync.IsZero() {
			return fmt.Errorf("account %s: zero lastSync", id)
		}
		if acc.RecordCount < 0 || acc.RunCount < 0 {
			return fmt.Errorf("account %s: negative counters", id)
		}
	}
	return nil
}

// RecordRun records a completed sync for an account.
func (s *State) RecordRun(accountID string, syncedAt time.Time, records int) error {
	if accountID == "" {
		return fmt.Errorf("account id cannot be empty")
	}
	if acc, exists := s.Accounts[accountID]; exists {
		acc.LastSync = syncedAt
		acc.RecordCount += records
		acc.RunCount++
	} else {
		s.Accounts[accountID] = &AccountState{
			LastSync:    syncedAt,
			RecordCount: records,
			RunCount:    1,
		}
	}
	return nil
}

// DefaultFrom returns the start date to use when the caller didn't supply
// one: just before the earliest last-sync time among the given accounts, or
// the zero time when any account has never been synced (caller falls back
// to its own default range).
func (s *State) DefaultFrom(accountIDs []string) time.Time {
	var earliest time.Time
	for _, id := range accountIDs {
		acc, ok := s.Accounts[id]
		if !ok {
			return time.Time{}
		}
		if earliest.IsZero() || acc.LastSync.Before(earliest) {
			earliest = acc.LastSync
		}
	}
	if earliest.IsZero() {
		return time.Time{}
	}
	return earliest.Add(-overlap)
}

// TotalAccounts returns the number of tracked accounts.
func (s *State) TotalAccounts() int {
	return len(s.Accounts)
}
