// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot implements the optimistic concurrency baseline for
// agent file operations.
//
// # Description
//
// A snapshot records the content digest a holder (agent session) last
// observed for a file. Before a write is allowed, Verify re-reads the
// file and compares against that baseline; any intervening external
// mutation makes the write stale. Verify never refreshes the stored
// digest, so repeated verifies within one session keep the original
// baseline and still detect later external edits.
//
// Snapshots are in-memory only and expire passively: a background
// sweeper evicts entries older than the snapshot TTL. No operation
// blocks waiting for an expiry.
//
// # Thread Safety
//
// Store is safe for concurrent use. A single mutex guards the map;
// disk reads in Verify happen outside any lock a caller can observe.
package snapshot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AleutianAI/crewgate/services/orchestration/hashutil"
	"github.com/AleutianAI/crewgate/services/orchestration/observability"
	"github.com/AleutianAI/crewgate/services/orchestration/pathspec"
)

// DefaultTTL is how long a snapshot survives without release.
const DefaultTTL = 5 * time.Minute

// DefaultSweepInterval is the cadence of the background sweeper.
const DefaultSweepInterval = 60 * time.Second

// Config configures a Store.
type Config struct {
	// WorkspaceRoot anchors relative paths for disk reads.
	WorkspaceRoot string

	// TTL is the maximum snapshot age enforced by the sweeper.
	// Default: 5 minutes.
	TTL time.Duration

	// SweepInterval is the sweeper cadence. Default: 60 seconds.
	SweepInterval time.Duration

	// Now is the clock source, injectable for tests. Default: time.Now.
	Now func() time.Time

	// WatchExternal enables the fsnotify observer that logs external
	// mutations of snapshotted files. Advisory only. Default: false.
	WatchExternal bool
}

// DefaultConfig returns production defaults for the given root.
func DefaultConfig(workspaceRoot string) Config {
	return Config{
		WorkspaceRoot: workspaceRoot,
		TTL:           DefaultTTL,
		SweepInterval: DefaultSweepInterval,
	}
}

// entry is one holder's recorded baseline for a file.
type entry struct {
	digest     string
	capturedAt time.Time
}

// Store tracks content snapshots per (path, holder).
type Store struct {
	config Config
	mu     sync.Mutex
	files  map[string]map[string]entry // path -> holder -> entry

	sweeper *sweeper
	watcher *externalWatcher
}

// NewStore creates a snapshot store. The sweeper is not started;
// call StartSweeper for background eviction.
func NewStore(config Config) *Store {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	s := &Store{
		config: config,
		files:  make(map[string]map[string]entry),
	}
	if config.WatchExternal {
		if w, err := newExternalWatcher(s); err != nil {
			slog.Warn("snapshot: external watcher unavailable",
				"error", err)
		} else {
			s.watcher = w
		}
	}
	return s
}

// Capture records the digest of content under (path, holder),
// overwriting any previous entry for the pair and refreshing its
// timestamp.
func (s *Store) Capture(path, content, holder string) {
	rel := pathspec.Normalize(path, s.config.WorkspaceRoot)
	digest := hashutil.Digest(content)

	s.mu.Lock()
	holders, ok := s.files[rel]
	if !ok {
		holders = make(map[string]entry)
		s.files[rel] = holders
	}
	if _, existed := holders[holder]; !existed {
		observability.SnapshotDelta(1)
	}
	holders[holder] = entry{digest: digest, capturedAt: s.config.Now()}
	s.mu.Unlock()

	if s.watcher != nil {
		s.watcher.watch(s.abs(rel))
	}

	slog.Debug("snapshot captured",
		"path", rel,
		"holder", holder)
}

// CaptureFromDisk reads the file and captures its current content.
// Missing or unreadable files return the read error; callers at the
// read pre-hook swallow it.
func (s *Store) CaptureFromDisk(path, holder string) error {
	rel := pathspec.Normalize(path, s.config.WorkspaceRoot)
	data, err := os.ReadFile(s.abs(rel))
	if err != nil {
		return fmt.Errorf("reading %s for snapshot: %w", rel, err)
	}
	s.Capture(rel, string(data), holder)
	return nil
}

// Verify reports whether the on-disk content still matches the
// holder's baseline.
//
// # Description
//
// No snapshot for (path, holder) means no prior read and therefore no
// stale contract: Verify returns true. Otherwise the file is read at
// call time, rehashed, and compared. Any read failure is treated as
// stale (false). A successful Verify does not refresh the stored
// digest.
func (s *Store) Verify(path, holder string) bool {
	rel := pathspec.Normalize(path, s.config.WorkspaceRoot)

	s.mu.Lock()
	holders, ok := s.files[rel]
	var baseline string
	if ok {
		var e entry
		e, ok = holders[holder]
		baseline = e.digest
	}
	s.mu.Unlock()

	if !ok {
		return true
	}

	data, err := os.ReadFile(s.abs(rel))
	if err != nil {
		slog.Warn("snapshot verify read failed, treating as stale",
			"path", rel,
			"holder", holder,
			"error", err)
		return false
	}
	return hashutil.Digest(string(data)) == baseline
}

// Release removes the snapshot for (path, holder). Entries of other
// holders on the same path are untouched.
func (s *Store) Release(path, holder string) {
	rel := pathspec.Normalize(path, s.config.WorkspaceRoot)

	s.mu.Lock()
	defer s.mu.Unlock()
	holders, ok := s.files[rel]
	if !ok {
		return
	}
	if _, held := holders[holder]; !held {
		return
	}
	delete(holders, holder)
	observability.SnapshotDelta(-1)
	if len(holders) == 0 {
		delete(s.files, rel)
		if s.watcher != nil {
			s.watcher.unwatch(s.abs(rel))
		}
	}
}

// ReleaseAll removes every snapshot held by holder. Used at session
// teardown.
func (s *Store) ReleaseAll(holder string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, holders := range s.files {
		if _, held := holders[holder]; !held {
			continue
		}
		delete(holders, holder)
		observability.SnapshotDelta(-1)
		if len(holders) == 0 {
			delete(s.files, path)
			if s.watcher != nil {
				s.watcher.unwatch(s.abs(path))
			}
		}
	}
}

// Sweep removes snapshots older than maxAge and returns the eviction
// count.
func (s *Store) Sweep(maxAge time.Duration) int {
	cutoff := s.config.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for path, holders := range s.files {
		for holder, e := range holders {
			if e.capturedAt.Before(cutoff) {
				delete(holders, holder)
				evicted++
			}
		}
		if len(holders) == 0 {
			delete(s.files, path)
			if s.watcher != nil {
				s.watcher.unwatch(s.abs(path))
			}
		}
	}
	if evicted > 0 {
		observability.SnapshotDelta(-evicted)
		observability.SweepEvictions("snapshot", evicted)
	}
	return evicted
}

// Holds reports whether holder currently has a snapshot for path.
func (s *Store) Holds(path, holder string) bool {
	rel := pathspec.Normalize(path, s.config.WorkspaceRoot)

	s.mu.Lock()
	defer s.mu.Unlock()
	holders, ok := s.files[rel]
	if !ok {
		return false
	}
	_, held := holders[holder]
	return held
}

// Len returns the total number of live snapshots across all holders.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, holders := range s.files {
		n += len(holders)
	}
	return n
}

// Close stops the external watcher if one is running. The sweeper has
// its own Stop.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.close()
	}
	return nil
}

// hasSnapshot reports whether any holder tracks the given absolute path.
// Used by the external watcher.
func (s *Store) hasSnapshot(absPath string) bool {
	rel := pathspec.Normalize(absPath, s.config.WorkspaceRoot)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[rel]
	return ok
}

// abs joins a workspace-relative path back onto the root for disk I/O.
func (s *Store) abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(s.config.WorkspaceRoot, filepath.FromSlash(rel))
}
