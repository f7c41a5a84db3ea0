// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intent reads the declared-intent catalog and maintains the
// derived intent map.
//
// # Description
//
// Intents are declared in <root>/.orchestration/active_intents.yaml and
// consumed read-only. Each record carries an id, a display name, and
// the owned_scope glob patterns that bound where the intent may write.
// The catalog caches lookups briefly so the gatekeeper does not hit
// disk on every write.
package intent

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// CatalogFile is the workspace-relative location of the intent catalog.
const CatalogFile = ".orchestration/active_intents.yaml"

// DefaultCacheTTL bounds how stale a cached catalog lookup may be.
const DefaultCacheTTL = 30 * time.Second

// Intent is one declared intent from the catalog.
type Intent struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	OwnedScope []string `yaml:"owned_scope"`
}

// catalogDoc is the on-disk shape. A bare top-level list is also
// accepted for hand-written catalogs.
type catalogDoc struct {
	ActiveIntents []Intent `yaml:"active_intents"`
}

type cachedIntent struct {
	intent   Intent
	found    bool
	cachedAt time.Time
}

// Catalog is a cached read-only view over one workspace's intent file.
//
// # Thread Safety
//
// Safe for concurrent use.
type Catalog struct {
	root     string
	cacheTTL time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cachedIntent
}

// NewCatalog creates a catalog view rooted at workspaceRoot.
func NewCatalog(workspaceRoot string) *Catalog {
	return &Catalog{
		root:     workspaceRoot,
		cacheTTL: DefaultCacheTTL,
		now:      time.Now,
		cache:    make(map[string]cachedIntent),
	}
}

// FindByID loads the catalog from disk and returns the intent with the
// given id. A missing catalog file means no intents, not an error.
func (c *Catalog) FindByID(id string) (Intent, bool, error) {
	intents, err := c.load()
	if err != nil {
		return Intent{}, false, err
	}
	for _, it := range intents {
		if it.ID == id {
			c.store(id, it, true)
			return it, true, nil
		}
	}
	c.store(id, Intent{}, false)
	return Intent{}, false, nil
}

// GetCached returns the intent for id from the in-memory cache when
// the entry is fresh, falling back to a disk load otherwise.
func (c *Catalog) GetCached(id string) (Intent, bool, error) {
	c.mu.Lock()
	entry, ok := c.cache[id]
	ttl := c.cacheTTL
	now := c.now()
	c.mu.Unlock()

	if ok && now.Sub(entry.cachedAt) < ttl {
		return entry.intent, entry.found, nil
	}
	return c.FindByID(id)
}

// load parses the catalog file, tolerating a missing file and intents
// without a display name.
func (c *Catalog) load() ([]Intent, error) {
	path := filepath.Join(c.root, filepath.FromSlash(CatalogFile))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading intent catalog: %w", err)
	}

	// A mapping with an active_intents key is authoritative, even when
	// the list is explicitly empty.
	var doc catalogDoc
	docErr := yaml.Unmarshal(data, &doc)
	if docErr == nil && doc.ActiveIntents != nil {
		return doc.ActiveIntents, nil
	}

	// Fall back to a bare top-level list.
	var bare []Intent
	if err := yaml.Unmarshal(data, &bare); err != nil {
		if docErr == nil {
			// Mapping form without the key (or with a null value).
			return nil, nil
		}
		return nil, fmt.Errorf("parsing intent catalog: %w", err)
	}
	return bare, nil
}

func (c *Catalog) store(id string, it Intent, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[id] = cachedIntent{intent: it, found: found, cachedAt: c.now()}
	if !found {
		slog.Debug("intent not present in catalog",
			"intent_id", id)
	}
}
