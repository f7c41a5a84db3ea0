// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session tracks agent sessions and their activity lifecycle.
//
// # Description
//
// Every cooperating agent is identified by a session id. The registry
// records creation and last-activity times, the intent a session has
// bound via select_active_intent, and the set of workspace-relative
// files the session has observed. Sessions end on explicit unregister
// or by eviction once activity idleness exceeds the session TTL.
//
// Session eviction is independent of and coarser than snapshot
// eviction; a dead session's snapshots survive only until the snapshot
// sweeper catches them.
//
// # Thread Safety
//
// Registry is safe for concurrent use; one mutex guards the session map.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/crewgate/services/orchestration/observability"
)

// IDPrefix prefixes every generated session id.
const IDPrefix = "agent-"

// DefaultTTL is the idle lifetime of a session.
const DefaultTTL = 30 * time.Minute

// DefaultSweepInterval is the cadence of the session sweeper.
const DefaultSweepInterval = 300 * time.Second

// Session is the registry's record of one agent session.
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastActivity time.Time
	IntentID     string
	Files        map[string]struct{}
}

// Config configures a Registry.
type Config struct {
	// TTL is the maximum idle time before eviction. Default: 30 minutes.
	TTL time.Duration

	// SweepInterval is the sweeper cadence. Default: 300 seconds.
	SweepInterval time.Duration

	// Now is the clock source, injectable for tests. Default: time.Now.
	Now func() time.Time

	// OnUnregister is called (outside the registry lock) whenever a
	// session is removed, explicitly or by sweep. The snapshot store's
	// ReleaseAll is wired here by the runtime.
	OnUnregister func(id string)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		TTL:           DefaultTTL,
		SweepInterval: DefaultSweepInterval,
	}
}

// Registry tracks active agent sessions.
type Registry struct {
	config   Config
	mu       sync.Mutex
	sessions map[string]*Session

	sweeper *sweeper
}

// NewRegistry creates a session registry. The sweeper is not started;
// call StartSweeper for background eviction.
func NewRegistry(config Config) *Registry {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Registry{
		config:   config,
		sessions: make(map[string]*Session),
	}
}

// NewID returns a fresh session id: the fixed prefix plus 8 hex chars.
func NewID() string {
	return IDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Register creates a session under id, optionally bound to an intent.
// Registering an existing id refreshes its activity and, when intentID
// is non-empty, rebinds the intent.
func (r *Registry) Register(id, intentID string) {
	now := r.config.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.LastActivity = now
		if intentID != "" {
			s.IntentID = intentID
		}
		return
	}
	r.sessions[id] = &Session{
		ID:           id,
		CreatedAt:    now,
		LastActivity: now,
		IntentID:     intentID,
		Files:        make(map[string]struct{}),
	}
	slog.Debug("session registered",
		"session_id", id,
		"intent_id", intentID)
}

// Unregister removes the session. Unknown ids are a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		slog.Debug("session unregistered",
			"session_id", id)
		if r.config.OnUnregister != nil {
			r.config.OnUnregister(id)
		}
	}
}

// Touch refreshes the session's last-activity time. Unknown ids
// register implicitly, so a pre-hook never loses activity tracking.
func (r *Registry) Touch(id string) {
	now := r.config.Now()

	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		s.LastActivity = now
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.Register(id, "")
}

// AddFile records an observed file for the session and touches it.
func (r *Registry) AddFile(id, path string) {
	r.Touch(id)

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.Files[path] = struct{}{}
	}
}

// RemoveFile forgets an observed file.
func (r *Registry) RemoveFile(id, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		delete(s.Files, path)
	}
}

// BindIntent binds intentID to the session, registering it if needed.
func (r *Registry) BindIntent(id, intentID string) {
	r.Register(id, intentID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.IntentID = intentID
		s.LastActivity = r.config.Now()
	}
}

// Intent returns the intent bound to the session, or "".
func (r *Registry) Intent(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s.IntentID
	}
	return ""
}

// IsActive reports whether the session exists.
func (r *Registry) IsActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	return ok
}

// ListActive returns the ids of all live sessions, sorted.
func (r *Registry) ListActive() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Get returns a copy of the session record.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	copied := *s
	copied.Files = make(map[string]struct{}, len(s.Files))
	for f := range s.Files {
		copied.Files[f] = struct{}{}
	}
	return copied, true
}

// Sweep evicts sessions idle longer than maxAge and returns the count.
func (r *Registry) Sweep(maxAge time.Duration) int {
	cutoff := r.config.Now().Add(-maxAge)

	r.mu.Lock()
	var evicted []string
	for id, s := range r.sessions {
		if s.LastActivity.Before(cutoff) {
			evicted = append(evicted, id)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, id := range evicted {
		slog.Info("session evicted after idle timeout",
			"session_id", id)
		if r.config.OnUnregister != nil {
			r.config.OnUnregister(id)
		}
	}
	observability.SweepEvictions("session", len(evicted))
	return len(evicted)
}

// =============================================================================
// Sweeper
// =============================================================================

type sweeper struct {
	registry *Registry
	interval time.Duration
	maxAge   time.Duration
	done     chan struct{}
	mu       sync.Mutex
	running  bool
}

// StartSweeper begins background session eviction.
func (r *Registry) StartSweeper(ctx context.Context) error {
	if r.sweeper == nil {
		r.sweeper = &sweeper{
			registry: r,
			interval: r.config.SweepInterval,
			maxAge:   r.config.TTL,
		}
	}
	return r.sweeper.start(ctx)
}

// StopSweeper stops background eviction. Idempotent.
func (r *Registry) StopSweeper() {
	if r.sweeper != nil {
		r.sweeper.stop()
	}
}

func (w *sweeper) start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("session sweeper is already running")
	}
	w.running = true
	w.done = make(chan struct{})
	w.mu.Unlock()

	slog.Info("session sweeper starting",
		"interval", w.interval.String(),
		"ttl", w.maxAge.String())

	go w.runLoop(ctx)
	return nil
}

func (w *sweeper) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.done)
	w.running = false
	slog.Info("session sweeper stopped")
}

func (w *sweeper) runLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.registry.Sweep(w.maxAge)
		}
	}
}
