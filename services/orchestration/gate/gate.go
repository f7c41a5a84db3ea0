// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gate enforces the pre-write pipeline: optimistic snapshot
// check, intent presence and existence, then scope authorisation.
//
// # Description
//
// The gatekeeper never performs the write itself; it renders a Verdict
// the surrounding runtime acts on. Checks run in a fixed order and the
// first failure short-circuits. The pipeline is deterministic and
// idempotent, holds no locks across the call, and performs at most one
// disk read (the snapshot verify).
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/crewgate/services/orchestration/intent"
	"github.com/AleutianAI/crewgate/services/orchestration/observability"
	"github.com/AleutianAI/crewgate/services/orchestration/pathspec"
)

// Sentinel errors carried by blocked verdicts.
var (
	ErrStaleFile      = errors.New("file changed since it was last read")
	ErrNoActiveIntent = errors.New("write must cite a valid active intent")
	ErrIntentNotFound = errors.New("intent not found")
	ErrNoOwnedScope   = errors.New("intent has no owned_scope")
	ErrScopeViolation = errors.New("scope violation")
)

// Verifier is the snapshot check the gatekeeper consults.
type Verifier interface {
	Verify(path, holder string) bool
}

// Resolver looks intents up by id, typically through the catalog cache.
type Resolver interface {
	GetCached(id string) (intent.Intent, bool, error)
}

// WriteContext carries the caller's identity and authority for one
// write attempt.
type WriteContext struct {
	IntentID      string
	WorkspaceRoot string

	// OwnedScope, when non-nil, skips the catalog lookup for scope
	// patterns. The intent must still exist.
	OwnedScope []string

	// AgentID enables the optimistic snapshot check when set.
	AgentID string
}

// Verdict is the gatekeeper's decision.
type Verdict struct {
	Blocked bool
	Err     error

	// Recoverable hints that a retry after re-reading can succeed.
	Recoverable bool
}

func pass() Verdict {
	return Verdict{}
}

func blocked(reason string, err error, recoverable bool) Verdict {
	observability.BlockedWrite(reason)
	return Verdict{Blocked: true, Err: err, Recoverable: recoverable}
}

// Gate wires the pipeline's collaborators.
type Gate struct {
	snapshots Verifier
	catalog   Resolver
}

// New creates a gatekeeper. snapshots may be nil when no optimistic
// checking is wanted.
func New(snapshots Verifier, catalog Resolver) *Gate {
	return &Gate{snapshots: snapshots, catalog: catalog}
}

// Check renders the verdict for writing content to path under wc.
//
// # Description
//
// Order is fixed: snapshot staleness, intent presence, intent
// existence, scope presence, scope match. A panic inside the snapshot
// verify is logged and does not block; the underlying write will
// surface any real error.
func (g *Gate) Check(ctx context.Context, path, content string, wc WriteContext) Verdict {
	if wc.AgentID != "" && g.snapshots != nil {
		fresh := g.safeVerify(path, wc.AgentID)
		if !fresh {
			return blocked("stale_file", fmt.Errorf(
				"%w: %s was modified since %s read it, re-read before writing",
				ErrStaleFile, path, wc.AgentID), true)
		}
	}

	if wc.IntentID == "" {
		return blocked("no_active_intent", ErrNoActiveIntent, false)
	}

	it, found, err := g.catalog.GetCached(wc.IntentID)
	if err != nil {
		slog.Warn("intent catalog lookup failed",
			"intent_id", wc.IntentID,
			"error", err)
		found = false
	}
	if !found {
		return blocked("intent_not_found", fmt.Errorf(
			"%w: %s", ErrIntentNotFound, wc.IntentID), false)
	}

	scope := wc.OwnedScope
	if scope == nil {
		scope = it.OwnedScope
	}
	if len(scope) == 0 {
		return blocked("no_owned_scope", fmt.Errorf(
			"%w: %s", ErrNoOwnedScope, wc.IntentID), false)
	}

	rel := pathspec.Normalize(path, wc.WorkspaceRoot)
	if !pathspec.MatchesAny(rel, scope, wc.WorkspaceRoot) {
		return blocked("scope_violation", fmt.Errorf(
			"%w: intent '%s' (%s) is not authorised to edit '%s'",
			ErrScopeViolation, it.Name, it.ID, rel), false)
	}

	return pass()
}

// safeVerify shields the pipeline from a panicking verifier. A verify
// failure of that kind must not block the write.
func (g *Gate) safeVerify(path, holder string) (fresh bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("snapshot verify panicked, not blocking",
				"path", path,
				"holder", holder,
				"panic", r)
			fresh = true
		}
	}()
	return g.snapshots.Verify(path, holder)
}
