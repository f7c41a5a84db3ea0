// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lessons maintains the shared lessons file agents append to
// and read from across sessions.
//
// # Description
//
// Lessons are categorised markdown notes stored append-only in
// <root>/.orchestration/CLAUDE.md. A recent-window dedup keeps agents
// from re-recording the same lesson in a tight loop: if the trimmed
// body already appears as a substring within the last five sections,
// the record call is a no-op.
package lessons

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// StoreFile is the workspace-relative location of the lessons store.
const StoreFile = ".orchestration/CLAUDE.md"

const storeHeader = `# Lessons Learned

Shared notes recorded by agents working in this repository. Newest at
the bottom. Sections are append-only; edit only to prune stale advice.
`

// dedupWindow is how many trailing sections the duplicate check scans.
const dedupWindow = 5

// Category classifies a lesson.
type Category string

const (
	Architecture Category = "ARCHITECTURE"
	Testing      Category = "TESTING"
	Linter       Category = "LINTER"
	Build        Category = "BUILD"
	UserFeedback Category = "USER_FEEDBACK"
	Style        Category = "STYLE"
	Performance  Category = "PERFORMANCE"
	Security     Category = "SECURITY"
	General      Category = "GENERAL"
)

// Categories lists every valid category, for tool enums.
func Categories() []Category {
	return []Category{
		Architecture, Testing, Linter, Build, UserFeedback,
		Style, Performance, Security, General,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Lesson is one parsed section of the store.
type Lesson struct {
	Category  Category
	Timestamp string // "YYYY-MM-DD HH:MM"
	Body      string
}

var sectionHeadingRe = regexp.MustCompile(`^## \[([A-Z_]+)\] (\d{4}-\d{2}-\d{2} \d{2}:\d{2})$`)

// storeLocks serialises writes per workspace root.
var storeLocks sync.Map // root -> *sync.Mutex

func storeLock(root string) *sync.Mutex {
	mu, _ := storeLocks.LoadOrStore(root, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// now is the clock source, swapped in tests.
var now = time.Now

// Record appends a lesson under category. Returns false without
// writing when the trimmed body already appears in the last five
// sections.
func Record(workspaceRoot string, category Category, body string) (bool, error) {
	if !category.Valid() {
		return false, fmt.Errorf("unknown lesson category: %s", category)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return false, fmt.Errorf("lesson body is empty")
	}

	mu := storeLock(workspaceRoot)
	mu.Lock()
	defer mu.Unlock()

	existing, err := parse(workspaceRoot)
	if err != nil {
		return false, err
	}

	start := len(existing) - dedupWindow
	if start < 0 {
		start = 0
	}
	for _, lesson := range existing[start:] {
		if strings.Contains(lesson.Body, body) {
			return false, nil
		}
	}

	path := filepath.Join(workspaceRoot, filepath.FromSlash(StoreFile))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("creating orchestration dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return false, fmt.Errorf("opening lessons store: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat lessons store: %w", err)
	}

	var b strings.Builder
	if info.Size() == 0 {
		b.WriteString(storeHeader)
	}
	fmt.Fprintf(&b, "\n## [%s] %s\n%s\n---\n",
		category, now().Format("2006-01-02 15:04"), body)

	if _, err := f.WriteString(b.String()); err != nil {
		return false, fmt.Errorf("appending lesson: %w", err)
	}
	return true, nil
}

// List returns every lesson in file order. A missing store is empty,
// not an error.
func List(workspaceRoot string) ([]Lesson, error) {
	return parse(workspaceRoot)
}

// ListByCategory filters List down to one category.
func ListByCategory(workspaceRoot string, category Category) ([]Lesson, error) {
	all, err := parse(workspaceRoot)
	if err != nil {
		return nil, err
	}
	var out []Lesson
	for _, l := range all {
		if l.Category == category {
			out = append(out, l)
		}
	}
	return out, nil
}

// Search returns lessons matching any keyword, case-insensitive,
// ordered by the number of distinct keywords hit (descending). Ties
// keep file order.
func Search(workspaceRoot string, keywords []string) ([]Lesson, error) {
	all, err := parse(workspaceRoot)
	if err != nil {
		return nil, err
	}

	type scored struct {
		lesson Lesson
		score  int
		index  int
	}
	var hits []scored
	for i, l := range all {
		haystack := strings.ToLower(string(l.Category) + " " + l.Body)
		score := 0
		for _, kw := range keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(haystack, kw) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{lesson: l, score: score, index: i})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return hits[a].index < hits[b].index
	})

	out := make([]Lesson, len(hits))
	for i, h := range hits {
		out[i] = h.lesson
	}
	return out, nil
}

// parse splits the store into sections. Lines before the first heading
// (the fixed header) are ignored.
func parse(workspaceRoot string) ([]Lesson, error) {
	path := filepath.Join(workspaceRoot, filepath.FromSlash(StoreFile))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading lessons store: %w", err)
	}

	var lessons []Lesson
	var current *Lesson
	var body []string

	flush := func() {
		if current != nil {
			current.Body = strings.TrimSpace(strings.Join(body, "\n"))
			lessons = append(lessons, *current)
			current = nil
			body = nil
		}
	}

	for _, line := range strings.Split(string(data), "\n") {
		if m := sectionHeadingRe.FindStringSubmatch(strings.TrimRight(line, "\r")); m != nil {
			flush()
			current = &Lesson{Category: Category(m[1]), Timestamp: m[2]}
			continue
		}
		if current == nil {
			continue
		}
		if strings.TrimSpace(line) == "---" {
			flush()
			continue
		}
		body = append(body, line)
	}
	flush()
	return lessons, nil
}
