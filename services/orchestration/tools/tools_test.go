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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/crewgate/services/orchestration/intent"
	"github.com/AleutianAI/crewgate/services/orchestration/lessons"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	tool := NewRecordLessonTool(t.TempDir(), nil)

	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(tool); err == nil {
		t.Error("duplicate registration must fail")
	}

	got, ok := reg.Get("record_lesson")
	if !ok || got.Name() != "record_lesson" {
		t.Errorf("Get = %v, %v", got, ok)
	}
	if names := reg.List(); len(names) != 1 || names[0] != "record_lesson" {
		t.Errorf("List = %v", names)
	}
}

func TestRecordLessonTool(t *testing.T) {
	t.Run("records and reports category", func(t *testing.T) {
		root := t.TempDir()
		tool := NewRecordLessonTool(root, nil)

		res, err := tool.Execute(context.Background(), map[string]any{
			"category": "TESTING",
			"lesson":   "Prefer fake clocks over sleeps.",
		})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !res.Success || res.OutputText != "Lesson recorded in CLAUDE.md under [TESTING]" {
			t.Errorf("result = %+v", res)
		}

		stored, err := lessons.List(root)
		if err != nil || len(stored) != 1 {
			t.Fatalf("List: %d/%v", len(stored), err)
		}
	})

	t.Run("duplicate reports skip", func(t *testing.T) {
		root := t.TempDir()
		tool := NewRecordLessonTool(root, nil)
		params := map[string]any{
			"category": "BUILD",
			"lesson":   "Same lesson twice.",
		}
		if _, err := tool.Execute(context.Background(), params); err != nil {
			t.Fatal(err)
		}
		res, err := tool.Execute(context.Background(), params)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !res.Success || res.OutputText != "Lesson skipped (duplicate detected)" {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("missing params bump the mistake counter", func(t *testing.T) {
		mistakes := &MistakeCounter{}
		tool := NewRecordLessonTool(t.TempDir(), mistakes)

		cases := []map[string]any{
			{},
			{"category": "TESTING"},
			{"lesson": "body only"},
			{"category": "NOT_A_CATEGORY", "lesson": "x"},
			{"category": 7, "lesson": "x"},
		}
		for _, params := range cases {
			res, err := tool.Execute(context.Background(), params)
			if err == nil {
				t.Errorf("params %v: expected error", params)
			}
			if res.Success {
				t.Errorf("params %v: result must not be success", params)
			}
		}
		if mistakes.Count() != int64(len(cases)) {
			t.Errorf("mistakes = %d, want %d", mistakes.Count(), len(cases))
		}
	})
}

// writeCatalog seeds a workspace with a two-intent catalog.
func writeCatalog(t *testing.T, root string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(intent.CatalogFile))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	content := `active_intents:
  - id: intent_login
    name: Login hardening
    owned_scope:
      - "src/auth/**"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

type fakeBinder struct {
	bound map[string]string
}

func (f *fakeBinder) BindIntent(sessionID, intentID string) {
	if f.bound == nil {
		f.bound = make(map[string]string)
	}
	f.bound[sessionID] = intentID
}

func TestSelectIntentTool(t *testing.T) {
	root := t.TempDir()
	writeCatalog(t, root)
	catalog := intent.NewCatalog(root)

	t.Run("valid intent binds", func(t *testing.T) {
		binder := &fakeBinder{}
		tool := NewSelectIntentTool(catalog, binder, "agent-deadbeef", nil)

		res, err := tool.Execute(context.Background(), map[string]any{
			"intent_id": "intent_login",
		})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !res.Success || !strings.Contains(res.OutputText, "Login hardening") {
			t.Errorf("result = %+v", res)
		}
		if binder.bound["agent-deadbeef"] != "intent_login" {
			t.Errorf("bound = %v", binder.bound)
		}
	})

	t.Run("unknown intent is rejected", func(t *testing.T) {
		binder := &fakeBinder{}
		mistakes := &MistakeCounter{}
		tool := NewSelectIntentTool(catalog, binder, "agent-deadbeef", mistakes)

		res, err := tool.Execute(context.Background(), map[string]any{
			"intent_id": "intent_ghost",
		})
		if err == nil || res.Success {
			t.Errorf("unknown intent must fail: %+v", res)
		}
		if len(binder.bound) != 0 {
			t.Error("nothing may bind on failure")
		}
		if mistakes.Count() != 1 {
			t.Errorf("mistakes = %d, want 1", mistakes.Count())
		}
	})

	t.Run("missing param is rejected", func(t *testing.T) {
		tool := NewSelectIntentTool(catalog, &fakeBinder{}, "agent-deadbeef", nil)
		if _, err := tool.Execute(context.Background(), map[string]any{}); err == nil {
			t.Error("expected validation error")
		}
	})
}
