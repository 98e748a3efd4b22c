package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rumor-ml/commons.systems/banksync/internal/domain"
)

// WriteOptions configures how the sync result is written
type WriteOptions struct {
	MergeMode bool   // If true, load existing file and merge
	FilePath  string // Output path (empty = stdout)
}

// WriteResult serializes a SyncResult to JSON with 2-space indentation
func WriteResult(result *domain.SyncResult, w io.Writer) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("failed to encode sync result as JSON: %w", err)
	}

	return nil
}

// WriteResultToFile writes a SyncResult to file or stdout based on options
func WriteResultToFile(result *domain.SyncResult, opts WriteOptions) (err error) {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	if opts.MergeMode && opts.FilePath != "" {
		existing, err := LoadResult(opts.FilePath)
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("failed to load existing result for merge: %w", err)
			}
			// File doesn't exist, create new file
			fmt.Fprintf(os.Stderr, "Warning: merge mode requested but %s does not exist, creating new file\n", opts.FilePath)
		} else {
			if err := mergeResults(existing, result); err != nil {
				return fmt.Errorf("failed to merge sync results: %w", err)
			}
			result = existing
		}
	}

	if opts.FilePath == "" {
		return WriteResult(result, os.Stdout)
	}

	f, err := os.Create(opts.FilePath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", opts.FilePath, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close output file %s: %w", opts.FilePath, closeErr)
		}
	}()

	if err = WriteResult(result, f); err != nil {
		return fmt.Errorf("failed to write sync result to %s: %w", opts.FilePath, err)
	}

	return nil
}

// LoadResult reads an existing result file for merge mode
func LoadResult(filePath string) (*domain.SyncResult, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	f, err := os.Open(filePath)
	if err != nil {
		// Return unwrapped error so caller can check os.IsNotExist
		// to distinguish "file not found" from other loading errors
		return nil, err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close %s: %v\n", filePath, closeErr)
		}
	}()

	var result domain.SyncResult
	decoder := json.NewDecoder(f)
	if err := decoder.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode sync result JSON: %w", err)
	}

	return &result, nil
}

// mergeResults adds everything from source into target. Accounts are merged
// idempotently by ID; transactions carry no stable identifier and are
// appended as-is, so merging the same statement window twice duplicates them.
func mergeResults(target, source *domain.SyncResult) error {
	if target == nil || source == nil {
		return fmt.Errorf("results cannot be nil")
	}

	existing := make(map[string]bool)
	for _, acc := range target.Accounts() {
		existing[acc.ID] = true
	}
	for _, acc := range source.Accounts() {
		if existing[acc.ID] {
			continue
		}
		if err := target.AddAccount(acc); err != nil {
			return fmt.Errorf("failed to merge account %s: %w", acc.ID, err)
		}
	}

	for _, txn := range source.Transactions() {
		if err := target.AddTransaction(txn); err != nil {
			return fmt.Errorf("failed to merge transaction: %w", err)
		}
	}

	return nil
}
