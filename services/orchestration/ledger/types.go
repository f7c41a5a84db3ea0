// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ledger persists the append-only JSONL trace of agent file
// mutations.
//
// # Description
//
// Every recorded write becomes one TraceEntry serialised as a single
// JSON line in <root>/.orchestration/agent_trace.jsonl. Entries are
// validated before they touch disk; a file that exists is by
// construction well-formed JSONL, and readers skip (with a warning)
// any line that a foreign writer corrupted.
package ledger

import (
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

// TraceFile is the workspace-relative location of the trace ledger.
const TraceFile = ".orchestration/agent_trace.jsonl"

// TraceEntry is one recorded mutation.
type TraceEntry struct {
	ID            string      `json:"id" validate:"required,entry_id"`
	Timestamp     string      `json:"timestamp" validate:"required,utc_millis"`
	VCS           VCSInfo     `json:"vcs"`
	Files         []FileTrace `json:"files" validate:"required,min=1,dive"`
	MutationClass string      `json:"mutation_class" validate:"required,oneof=AST_REFACTOR INTENT_EVOLUTION BUG_FIX DOCUMENTATION"`
}

// VCSInfo pins the entry to a repository revision, or "unknown".
type VCSInfo struct {
	RevisionID string `json:"revision_id" validate:"required"`
}

// FileTrace is the per-file portion of an entry.
type FileTrace struct {
	RelativePath  string         `json:"relative_path" validate:"required"`
	Conversations []Conversation `json:"conversations" validate:"required,min=1,dive"`
}

// Conversation attributes a set of line ranges to one contributor
// within one session.
type Conversation struct {
	URL         string      `json:"url" validate:"required"`
	Contributor Contributor `json:"contributor"`
	Ranges      []LineRange `json:"ranges" validate:"required,min=1,dive"`
	Related     []Related   `json:"related,omitempty" validate:"dive"`
}

// Contributor identifies who produced the change.
type Contributor struct {
	EntityType      string `json:"entity_type" validate:"required,oneof=AI HUMAN"`
	ModelIdentifier string `json:"model_identifier,omitempty"`
}

// LineRange covers an inclusive 1-based span with its content digest.
type LineRange struct {
	StartLine   int    `json:"start_line" validate:"required,min=1"`
	EndLine     int    `json:"end_line" validate:"required,gtefield=StartLine"`
	ContentHash string `json:"content_hash" validate:"required,content_hash"`
}

// Related links the conversation to an external artifact.
type Related struct {
	Type  string `json:"type" validate:"required,oneof=specification requirement issue task"`
	Value string `json:"value" validate:"required"`
}

var (
	entryIDRe     = regexp.MustCompile(`^[0-9a-f]{32}$`)
	contentHashRe = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)
)

// timestampLayout is RFC 3339 with forced millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// validate is the shared validator instance with the ledger's custom
// rules registered.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// 32 lowercase hex chars, a uuid v4 with the dashes removed.
	_ = v.RegisterValidation("entry_id", func(fl validator.FieldLevel) bool {
		return entryIDRe.MatchString(fl.Field().String())
	})

	// sha256: prefix plus 64 lowercase hex chars.
	_ = v.RegisterValidation("content_hash", func(fl validator.FieldLevel) bool {
		return contentHashRe.MatchString(fl.Field().String())
	})

	// RFC 3339 UTC with millisecond precision.
	_ = v.RegisterValidation("utc_millis", func(fl validator.FieldLevel) bool {
		ts, err := time.Parse(timestampLayout, fl.Field().String())
		if err != nil {
			return false
		}
		_, offset := ts.Zone()
		return offset == 0
	})

	return v
}

// NewTimestamp formats t for a trace entry.
func NewTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
