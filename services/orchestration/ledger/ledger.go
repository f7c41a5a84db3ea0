// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/crewgate/services/orchestration/observability"
)

// ErrInvalidEntry is returned when an entry fails schema validation.
var ErrInvalidEntry = errors.New("trace entry failed validation")

// appendLocks serialises appends per workspace root so concurrent
// in-process writers never interleave partial lines.
var appendLocks sync.Map // root -> *sync.Mutex

func appendLock(root string) *sync.Mutex {
	mu, _ := appendLocks.LoadOrStore(root, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// NewEntryID returns a v4 uuid as 32 lowercase hex chars, no dashes.
func NewEntryID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Append validates entry and appends it to the workspace ledger as one
// JSON line.
//
// # Outputs
//
//   - error: ErrInvalidEntry (wrapped with field detail) when the entry
//     fails schema validation; otherwise any I/O error.
func Append(workspaceRoot string, entry TraceEntry) error {
	if err := validate.Struct(entry); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling trace entry: %w", err)
	}

	path := filepath.Join(workspaceRoot, filepath.FromSlash(TraceFile))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating orchestration dir: %w", err)
	}

	mu := appendLock(workspaceRoot)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening trace ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending trace entry: %w", err)
	}

	observability.LedgerAppend()
	slog.Debug("trace entry appended",
		"entry_id", entry.ID,
		"mutation_class", entry.MutationClass)
	return nil
}

// Read returns all valid entries in file order. Blank lines are
// skipped silently; unparseable or invalid lines are skipped with a
// warning so one corrupt line never hides the rest of the history.
func Read(workspaceRoot string) ([]TraceEntry, error) {
	path := filepath.Join(workspaceRoot, filepath.FromSlash(TraceFile))
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening trace ledger: %w", err)
	}
	defer f.Close()

	var entries []TraceEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry TraceEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			slog.Warn("skipping unparseable ledger line",
				"line", lineNo,
				"error", err)
			continue
		}
		if err := validate.Struct(entry); err != nil {
			slog.Warn("skipping invalid ledger entry",
				"line", lineNo,
				"entry_id", entry.ID,
				"error", err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("scanning trace ledger: %w", err)
	}
	return entries, nil
}
