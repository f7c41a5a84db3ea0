// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vcs resolves the current source-control revision for a
// workspace root.
//
// # Description
//
// The probe shells out to `git rev-parse HEAD` and caches the answer
// per workspace root for a short TTL, so a burst of trace writes does
// not spawn a subprocess per write. Every failure class — not a
// repository, missing binary, permission denied, non-zero exit,
// timeout — degrades to the literal revision "unknown". The probe
// never returns an error.
//
// # Thread Safety
//
// Probe is safe for concurrent use. Concurrent cache misses for the
// same root are coalesced into a single subprocess via singleflight.
package vcs

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/crewgate/services/orchestration/observability"
)

// RevisionUnknown is returned whenever the revision cannot be resolved.
const RevisionUnknown = "unknown"

// Default timings.
const (
	// DefaultCacheTTL is how long a resolved revision is served from
	// cache before re-probing.
	DefaultCacheTTL = 5 * time.Second

	// DefaultCommandTimeout bounds the git subprocess.
	DefaultCommandTimeout = 3 * time.Second
)

// Config configures a Probe.
type Config struct {
	// CacheTTL is the per-root cache lifetime. Default: 5s.
	CacheTTL time.Duration

	// CommandTimeout bounds each git invocation. Default: 3s.
	CommandTimeout time.Duration

	// Now is the clock source, injectable for tests. Default: time.Now.
	Now func() time.Time
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:       DefaultCacheTTL,
		CommandTimeout: DefaultCommandTimeout,
	}
}

// cacheEntry is a resolved revision with its capture time.
type cacheEntry struct {
	revision string
	cachedAt time.Time
}

// Probe resolves and caches VCS revisions per workspace root.
type Probe struct {
	config Config
	mu     sync.Mutex
	cache  map[string]cacheEntry
	group  singleflight.Group

	// runner executes the git command; injectable for tests.
	runner func(ctx context.Context, root string) (string, error)
}

// NewProbe creates a Probe with the given configuration.
func NewProbe(config Config) *Probe {
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultCacheTTL
	}
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = DefaultCommandTimeout
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	p := &Probe{
		config: config,
		cache:  make(map[string]cacheEntry),
	}
	p.runner = p.runGit
	return p
}

// CurrentRevision returns the current revision id for workspaceRoot, or
// RevisionUnknown. Never returns an error; failures are logged at Debug.
//
// Cached answers (including cached "unknown") are served until the TTL
// elapses. Separate roots have independent cache entries.
func (p *Probe) CurrentRevision(ctx context.Context, workspaceRoot string) string {
	now := p.config.Now()

	p.mu.Lock()
	if entry, ok := p.cache[workspaceRoot]; ok && now.Sub(entry.cachedAt) < p.config.CacheTTL {
		p.mu.Unlock()
		observability.RevisionCache("hit")
		return entry.revision
	}
	p.mu.Unlock()
	observability.RevisionCache("miss")

	// Coalesce concurrent misses for the same root into one subprocess.
	result, _, _ := p.group.Do(workspaceRoot, func() (any, error) {
		revision := p.resolve(ctx, workspaceRoot)
		p.mu.Lock()
		p.cache[workspaceRoot] = cacheEntry{revision: revision, cachedAt: p.config.Now()}
		p.mu.Unlock()
		return revision, nil
	})

	revision, ok := result.(string)
	if !ok {
		return RevisionUnknown
	}
	return revision
}

// Invalidate clears the whole cache. The next CurrentRevision call per
// root re-probes.
func (p *Probe) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]cacheEntry)
}

// resolve runs the probe command and folds every failure to "unknown".
func (p *Probe) resolve(ctx context.Context, workspaceRoot string) string {
	out, err := p.runner(ctx, workspaceRoot)
	if err != nil {
		slog.Debug("revision probe failed",
			"root", workspaceRoot,
			"error", err)
		return RevisionUnknown
	}
	revision := strings.TrimSpace(out)
	if revision == "" {
		return RevisionUnknown
	}
	return revision
}

// runGit executes `git rev-parse HEAD` in workspaceRoot.
func (p *Probe) runGit(ctx context.Context, root string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.CommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
