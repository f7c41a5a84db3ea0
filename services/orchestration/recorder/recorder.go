// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package recorder turns a committed write into a trace entry, an
// intent-map update, and a snapshot release.
//
// # Description
//
// Record runs after the surrounding runtime has already performed the
// file I/O. Nothing in here may fail the tool call that triggered it:
// the whole body sits behind a swallow-and-log boundary, and partial
// progress (trace appended, map update failed) is tolerated because
// the trace ledger is the source of truth.
//
// Writes without an intent id leave no trace. That is deliberate: the
// gatekeeper blocks intent-less writes for managed paths, and anything
// that slipped past it was out of scope for traceability.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/crewgate/services/orchestration/classify"
	"github.com/AleutianAI/crewgate/services/orchestration/hashutil"
	"github.com/AleutianAI/crewgate/services/orchestration/intent"
	"github.com/AleutianAI/crewgate/services/orchestration/ledger"
	"github.com/AleutianAI/crewgate/services/orchestration/pathspec"
)

// Revisioner supplies the VCS revision for a workspace.
type Revisioner interface {
	CurrentRevision(ctx context.Context, workspaceRoot string) string
}

// Releaser releases a snapshot after a successful recorded write.
type Releaser interface {
	Release(path, holder string)
}

// IntentNamer resolves an intent's display name for the map heading.
type IntentNamer interface {
	GetCached(id string) (intent.Intent, bool, error)
}

// RecordRequest carries everything known about one committed write.
type RecordRequest struct {
	WorkspaceRoot string
	Path          string
	Content       string

	// OldContent and HaveOld feed the mutation classifier. HaveOld is
	// false on a first write, where no prior content exists.
	OldContent string
	HaveOld    bool

	// ExplicitClass, when a valid class name, overrides classification.
	ExplicitClass string

	IntentID  string
	AgentID   string
	SessionID string
	Model     string
}

// Recorder wires the post-write collaborators.
type Recorder struct {
	revisions Revisioner
	snapshots Releaser
	catalog   IntentNamer
	now       func() time.Time
}

// New creates a recorder. snapshots and catalog may be nil; the
// corresponding steps degrade gracefully.
func New(revisions Revisioner, snapshots Releaser, catalog IntentNamer) *Recorder {
	return &Recorder{
		revisions: revisions,
		snapshots: snapshots,
		catalog:   catalog,
		now:       time.Now,
	}
}

// Record builds and persists the trace for one committed write. It
// never returns an error and never panics through to the caller.
func (r *Recorder) Record(ctx context.Context, req RecordRequest) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("recorder panicked, write already committed",
				"path", req.Path,
				"panic", rec)
		}
	}()

	if req.IntentID == "" {
		return
	}

	rev := r.revisions.CurrentRevision(ctx, req.WorkspaceRoot)

	class := classify.Resolve(req.ExplicitClass, req.OldContent, req.Content, req.HaveOld)

	lineCount := hashutil.LineCount(req.Content)
	rangeHash := "sha256:" + hashutil.DigestRange(req.Content, 1, lineCount)

	rel := pathspec.Normalize(req.Path, req.WorkspaceRoot)

	url := req.SessionID
	if url == "" {
		url = fmt.Sprintf("session://%d", r.now().Unix())
	}
	model := req.Model
	if model == "" {
		model = "unknown"
	}

	entry := ledger.TraceEntry{
		ID:        ledger.NewEntryID(),
		Timestamp: ledger.NewTimestamp(r.now()),
		VCS:       ledger.VCSInfo{RevisionID: rev},
		Files: []ledger.FileTrace{{
			RelativePath: rel,
			Conversations: []ledger.Conversation{{
				URL: url,
				Contributor: ledger.Contributor{
					EntityType:      "AI",
					ModelIdentifier: model,
				},
				Ranges: []ledger.LineRange{{
					StartLine:   1,
					EndLine:     lineCount,
					ContentHash: rangeHash,
				}},
				Related: []ledger.Related{{
					Type:  "specification",
					Value: req.IntentID,
				}},
			}},
		}},
		MutationClass: class.String(),
	}

	if err := ledger.Append(req.WorkspaceRoot, entry); err != nil {
		slog.Error("trace append failed, write is untracked",
			"path", rel,
			"intent_id", req.IntentID,
			"error", err)
		return
	}

	if err := intent.Upsert(req.WorkspaceRoot, req.IntentID, rel, r.intentName(req.IntentID)); err != nil {
		slog.Warn("intent map update failed, trace entry stands",
			"path", rel,
			"intent_id", req.IntentID,
			"error", err)
	}

	if req.AgentID != "" && r.snapshots != nil {
		r.snapshots.Release(req.Path, req.AgentID)
	}
}

// intentName is best-effort; the map heading falls back to a bare id.
func (r *Recorder) intentName(id string) string {
	if r.catalog == nil {
		return ""
	}
	it, found, err := r.catalog.GetCached(id)
	if err != nil || !found {
		return ""
	}
	return strings.TrimSpace(it.Name)
}
