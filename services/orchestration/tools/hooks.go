// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/crewgate/services/orchestration/gate"
	"github.com/AleutianAI/crewgate/services/orchestration/pathspec"
	"github.com/AleutianAI/crewgate/services/orchestration/recorder"
	"github.com/AleutianAI/crewgate/services/orchestration/session"
	"github.com/AleutianAI/crewgate/services/orchestration/snapshot"
)

// Hooks is the stable contract the surrounding runtime installs around
// its own file I/O.
//
// # Description
//
// The runtime performs all reads and writes itself; these hooks wrap
// them. PreRead captures the optimistic baseline and bumps session
// activity. PreWrite renders the gatekeeper's verdict; the runtime
// must not write when Blocked. PostWrite records the committed write
// and never fails.
type Hooks struct {
	workspaceRoot string
	snapshots     *snapshot.Store
	sessions      *session.Registry
	gatekeeper    *gate.Gate
	recorder      *recorder.Recorder
}

// NewHooks wires the hook facade.
func NewHooks(workspaceRoot string, snapshots *snapshot.Store, sessions *session.Registry, gatekeeper *gate.Gate, rec *recorder.Recorder) *Hooks {
	return &Hooks{
		workspaceRoot: workspaceRoot,
		snapshots:     snapshots,
		sessions:      sessions,
		gatekeeper:    gatekeeper,
		recorder:      rec,
	}
}

// PreRead runs before the runtime reads path for sessionID: snapshot
// the current content, touch the session, and track the file. Failures
// are logged, never surfaced; a read must not fail because tracking
// did.
func (h *Hooks) PreRead(path, sessionID string) {
	if sessionID == "" {
		return
	}
	h.sessions.Touch(sessionID)

	rel := pathspec.Normalize(path, h.workspaceRoot)
	h.sessions.AddFile(sessionID, rel)

	if err := h.snapshots.CaptureFromDisk(path, sessionID); err != nil {
		slog.Debug("pre-read snapshot skipped",
			"path", rel,
			"session_id", sessionID,
			"error", err)
	}
}

// PreWrite renders the write verdict for path under the session's
// bound intent. A write attempt counts as session activity, blocked
// or not, so write-only sessions are not swept mid-work.
func (h *Hooks) PreWrite(ctx context.Context, path, content, sessionID string) gate.Verdict {
	var intentID string
	if sessionID != "" {
		h.sessions.Touch(sessionID)
		intentID = h.sessions.Intent(sessionID)
	}
	return h.gatekeeper.Check(ctx, path, content, gate.WriteContext{
		IntentID:      intentID,
		WorkspaceRoot: h.workspaceRoot,
		AgentID:       sessionID,
	})
}

// PostWrite records a committed write. Never fails.
func (h *Hooks) PostWrite(ctx context.Context, path, content, oldContent string, haveOld bool, explicitClass, sessionID, model string) {
	var intentID string
	if sessionID != "" {
		intentID = h.sessions.Intent(sessionID)
		h.sessions.Touch(sessionID)
	}
	h.recorder.Record(ctx, recorder.RecordRequest{
		WorkspaceRoot: h.workspaceRoot,
		Path:          path,
		Content:       content,
		OldContent:    oldContent,
		HaveOld:       haveOld,
		ExplicitClass: explicitClass,
		IntentID:      intentID,
		AgentID:       sessionID,
		SessionID:     sessionID,
		Model:         model,
	})
}
