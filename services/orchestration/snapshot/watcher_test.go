// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	dto "github.com/prometheus/client_model/go"

	"github.com/AleutianAI/crewgate/services/orchestration/observability"
)

func externalChanges(t *testing.T, m *observability.Metrics) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.ExternalChangesTotal.Write(&out); err != nil {
		t.Fatalf("reading counter: %v", err)
	}
	return out.GetCounter().GetValue()
}

func TestExternalWatcher(t *testing.T) {
	metrics := observability.Init()

	root := t.TempDir()
	config := DefaultConfig(root)
	config.WatchExternal = true
	store := NewStore(config)
	if store.watcher == nil {
		t.Skip("fsnotify unavailable in this environment")
	}
	t.Cleanup(func() { store.Close() })

	writeFile(t, root, "src/a.ts", "v0")
	store.Capture("src/a.ts", "v0", "agent-1")
	abs := store.abs("src/a.ts")

	store.watcher.mu.Lock()
	_, watched := store.watcher.watched[abs]
	store.watcher.mu.Unlock()
	if !watched {
		t.Fatal("captured file must be on the watch list")
	}

	// A mutating op on a snapshotted file is counted.
	before := externalChanges(t, metrics)
	store.watcher.handleEvent(fsnotify.Event{Name: abs, Op: fsnotify.Write})
	if got := externalChanges(t, metrics); got != before+1 {
		t.Errorf("external changes = %v, want %v", got, before+1)
	}

	// Files without snapshots and non-mutating ops are ignored.
	store.watcher.handleEvent(fsnotify.Event{
		Name: filepath.Join(root, "src", "other.ts"),
		Op:   fsnotify.Write,
	})
	store.watcher.handleEvent(fsnotify.Event{Name: abs, Op: fsnotify.Chmod})
	if got := externalChanges(t, metrics); got != before+1 {
		t.Errorf("external changes = %v, ignored events must not count", got)
	}

	// Releasing the last snapshot stops watching the file.
	store.Release("src/a.ts", "agent-1")
	store.watcher.mu.Lock()
	_, watched = store.watcher.watched[abs]
	store.watcher.mu.Unlock()
	if watched {
		t.Error("released file must be unwatched")
	}
}
