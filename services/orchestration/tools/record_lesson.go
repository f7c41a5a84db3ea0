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
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/AleutianAI/crewgate/services/orchestration/lessons"
)

// MistakeCounter counts malformed tool calls so the runtime can
// surface repeated misuse back to the agent.
type MistakeCounter struct {
	count atomic.Int64
}

// Bump increments the counter.
func (m *MistakeCounter) Bump() {
	m.count.Add(1)
}

// Count returns the current value.
func (m *MistakeCounter) Count() int64 {
	return m.count.Load()
}

// RecordLessonTool appends a categorised lesson to the shared store.
type RecordLessonTool struct {
	workspaceRoot string
	mistakes      *MistakeCounter
}

// NewRecordLessonTool creates the tool. mistakes may be nil.
func NewRecordLessonTool(workspaceRoot string, mistakes *MistakeCounter) *RecordLessonTool {
	return &RecordLessonTool{workspaceRoot: workspaceRoot, mistakes: mistakes}
}

// Name returns the unique tool name.
func (t *RecordLessonTool) Name() string { return "record_lesson" }

// Definition returns the tool's parameter schema.
func (t *RecordLessonTool) Definition() ToolDefinition {
	categories := make([]any, 0, len(lessons.Categories()))
	for _, c := range lessons.Categories() {
		categories = append(categories, string(c))
	}
	return ToolDefinition{
		Name: t.Name(),
		Description: "Record a lesson learned for future sessions. " +
			"Duplicates of recently recorded lessons are skipped.",
		Parameters: map[string]ParamDef{
			"category": {
				Type:        ParamTypeString,
				Description: "Lesson category.",
				Required:    true,
				Enum:        categories,
			},
			"lesson": {
				Type:        ParamTypeString,
				Description: "The lesson body in markdown.",
				Required:    true,
			},
		},
		SideEffects: true,
	}
}

// Execute validates params and records the lesson.
func (t *RecordLessonTool) Execute(ctx context.Context, params map[string]any) (*Result, error) {
	category, err := stringParam(params, "category")
	if err != nil {
		return t.mistake(err)
	}
	body, err := stringParam(params, "lesson")
	if err != nil {
		return t.mistake(err)
	}
	if !lessons.Category(category).Valid() {
		return t.mistake(&ValidationError{
			Parameter: "category",
			Message:   fmt.Sprintf("unknown category %q", category),
		})
	}

	written, err := lessons.Record(t.workspaceRoot, lessons.Category(category), body)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, err
	}
	if !written {
		return &Result{
			Success:    true,
			OutputText: "Lesson skipped (duplicate detected)",
		}, nil
	}
	return &Result{
		Success:    true,
		OutputText: fmt.Sprintf("Lesson recorded in CLAUDE.md under [%s]", category),
	}, nil
}

// mistake bumps the counter and returns the validation failure as a
// structured tool error.
func (t *RecordLessonTool) mistake(err error) (*Result, error) {
	if t.mistakes != nil {
		t.mistakes.Bump()
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		ve = &ValidationError{Parameter: "params", Message: err.Error()}
	}
	return &Result{Success: false, Error: ve.Error()}, ve
}
