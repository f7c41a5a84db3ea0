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
	"fmt"

	"github.com/AleutianAI/crewgate/services/orchestration/intent"
)

// IntentBinder binds an intent to a session, the registry in practice.
type IntentBinder interface {
	BindIntent(sessionID, intentID string)
}

// IntentLookup resolves an intent id, the catalog in practice.
type IntentLookup interface {
	FindByID(id string) (intent.Intent, bool, error)
}

// SelectIntentTool binds a declared intent to the calling session.
// Write tools are gated on this having been called.
type SelectIntentTool struct {
	catalog   IntentLookup
	sessions  IntentBinder
	sessionID string
	mistakes  *MistakeCounter
}

// NewSelectIntentTool creates the tool for one session.
func NewSelectIntentTool(catalog IntentLookup, sessions IntentBinder, sessionID string, mistakes *MistakeCounter) *SelectIntentTool {
	return &SelectIntentTool{
		catalog:   catalog,
		sessions:  sessions,
		sessionID: sessionID,
		mistakes:  mistakes,
	}
}

// Name returns the unique tool name.
func (t *SelectIntentTool) Name() string { return "select_active_intent" }

// Definition returns the tool's parameter schema.
func (t *SelectIntentTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name: t.Name(),
		Description: "Select the active intent for this session. Must be " +
			"called before any write tool; writes are scoped to the " +
			"intent's owned_scope.",
		Parameters: map[string]ParamDef{
			"intent_id": {
				Type:        ParamTypeString,
				Description: "Id of a declared intent from active_intents.yaml.",
				Required:    true,
			},
		},
		SideEffects: true,
	}
}

// Execute validates the intent id against the catalog and binds it.
func (t *SelectIntentTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	intentID, err := stringParam(params, "intent_id")
	if err != nil {
		if t.mistakes != nil {
			t.mistakes.Bump()
		}
		return &Result{Success: false, Error: err.Error()}, err
	}

	it, found, err := t.catalog.FindByID(intentID)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, err
	}
	if !found {
		if t.mistakes != nil {
			t.mistakes.Bump()
		}
		verr := &ValidationError{
			Parameter: "intent_id",
			Message:   fmt.Sprintf("intent %q not found in the catalog", intentID),
		}
		return &Result{Success: false, Error: verr.Error()}, verr
	}

	t.sessions.BindIntent(t.sessionID, intentID)

	name := it.Name
	if name == "" {
		name = it.ID
	}
	return &Result{
		Success:    true,
		OutputText: fmt.Sprintf("Active intent set to '%s' (%s)", name, it.ID),
		Metadata:   map[string]any{"owned_scope": it.OwnedScope},
	}, nil
}
