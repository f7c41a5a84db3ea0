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
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/crewgate/services/orchestration/observability"
)

// externalWatcher surfaces external mutations of snapshotted files.
//
// # Description
//
// Advisory observability layer: when another process writes, removes,
// or renames a file some session holds a snapshot of, the event is
// logged and counted. Staleness enforcement still happens in Verify at
// write time; the watcher only shortens the time to a visible signal.
type externalWatcher struct {
	store   *Store
	watcher *fsnotify.Watcher
	mu      sync.Mutex
	watched map[string]struct{}
}

func newExternalWatcher(store *Store) (*externalWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &externalWatcher{
		store:   store,
		watcher: fsw,
		watched: make(map[string]struct{}),
	}
	go w.watchLoop()
	return w, nil
}

func (w *externalWatcher) watch(absPath string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[absPath]; ok {
		return
	}
	if err := w.watcher.Add(absPath); err != nil {
		slog.Debug("snapshot: cannot watch file",
			"path", absPath,
			"error", err)
		return
	}
	w.watched[absPath] = struct{}{}
}

func (w *externalWatcher) unwatch(absPath string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[absPath]; !ok {
		return
	}
	if err := w.watcher.Remove(absPath); err != nil && !os.IsNotExist(err) {
		slog.Debug("snapshot: file was not being watched",
			"path", absPath)
	}
	delete(w.watched, absPath)
}

func (w *externalWatcher) close() error {
	return w.watcher.Close()
}

func (w *externalWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("snapshot watcher error",
				"error", err)
		}
	}
}

func (w *externalWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if !w.store.hasSnapshot(event.Name) {
		return
	}
	observability.ExternalChange()
	slog.Warn("external modification detected on snapshotted file",
		"path", event.Name,
		"op", event.Op.String())
}
