// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// MapFile is the workspace-relative location of the derived intent map.
const MapFile = ".orchestration/intent_map.md"

const mapHeader = `# Intent Map

Derived view of which files each active intent has touched. Generated;
do not edit by hand.
`

// mapSection is one intent's block in the map document.
type mapSection struct {
	id    string
	name  string
	paths map[string]struct{}
}

// mapLocks serialises read-modify-write cycles per workspace root.
var mapLocks sync.Map // root -> *sync.Mutex

func mapLock(root string) *sync.Mutex {
	mu, _ := mapLocks.LoadOrStore(root, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Upsert records that path belongs to intentID, creating the map file
// and the intent's section as needed. Paths are stored unique and the
// document is fully re-serialised on every call.
func Upsert(workspaceRoot, intentID, path, intentName string) error {
	mu := mapLock(workspaceRoot)
	mu.Lock()
	defer mu.Unlock()

	sections, err := loadMap(workspaceRoot)
	if err != nil {
		return err
	}

	sec, ok := sections[intentID]
	if !ok {
		sec = &mapSection{id: intentID, paths: make(map[string]struct{})}
		sections[intentID] = sec
	}
	if intentName != "" {
		sec.name = intentName
	}
	sec.paths[filepath.ToSlash(path)] = struct{}{}

	return writeMap(workspaceRoot, sections)
}

// Remove drops path from intentID's section, deleting the section when
// it becomes empty. A missing map file is a no-op.
func Remove(workspaceRoot, intentID, path string) error {
	mu := mapLock(workspaceRoot)
	mu.Lock()
	defer mu.Unlock()

	file := filepath.Join(workspaceRoot, filepath.FromSlash(MapFile))
	if _, err := os.Stat(file); os.IsNotExist(err) {
		return nil
	}

	sections, err := loadMap(workspaceRoot)
	if err != nil {
		return err
	}
	sec, ok := sections[intentID]
	if !ok {
		return nil
	}
	delete(sec.paths, filepath.ToSlash(path))
	if len(sec.paths) == 0 {
		delete(sections, intentID)
	}
	return writeMap(workspaceRoot, sections)
}

// loadMap parses the existing document into sections, tolerating extra
// blank lines and headings without a name part.
func loadMap(workspaceRoot string) (map[string]*mapSection, error) {
	sections := make(map[string]*mapSection)

	file := filepath.Join(workspaceRoot, filepath.FromSlash(MapFile))
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return sections, nil
		}
		return nil, fmt.Errorf("reading intent map: %w", err)
	}

	var current *mapSection
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "## "):
			heading := strings.TrimPrefix(trimmed, "## ")
			id, name := heading, ""
			if i := strings.Index(heading, ":"); i >= 0 {
				id = strings.TrimSpace(heading[:i])
				name = strings.TrimSpace(heading[i+1:])
			}
			current = &mapSection{id: id, name: name, paths: make(map[string]struct{})}
			sections[id] = current
		case strings.HasPrefix(trimmed, "- ") && current != nil:
			current.paths[strings.TrimSpace(trimmed[2:])] = struct{}{}
		}
	}
	return sections, nil
}

// writeMap re-serialises the full document and writes it atomically.
func writeMap(workspaceRoot string, sections map[string]*mapSection) error {
	ids := make([]string, 0, len(sections))
	for id := range sections {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString(mapHeader)
	for _, id := range ids {
		sec := sections[id]
		b.WriteString("\n")
		if sec.name != "" {
			fmt.Fprintf(&b, "## %s: %s\n\n", sec.id, sec.name)
		} else {
			fmt.Fprintf(&b, "## %s\n\n", sec.id)
		}
		if len(sec.paths) == 0 {
			b.WriteString("*No files mapped yet*\n")
			continue
		}
		paths := make([]string, 0, len(sec.paths))
		for p := range sec.paths {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	// Every section ends with a blank line, the last one included.
	if len(ids) > 0 {
		b.WriteString("\n")
	}

	file := filepath.Join(workspaceRoot, filepath.FromSlash(MapFile))
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return fmt.Errorf("creating orchestration dir: %w", err)
	}
	return atomicWriteFile(file, []byte(b.String()), 0644)
}

// atomicWriteFile writes to a temp file in the target directory and
// renames it into place so readers never observe a partial document.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".intent_map-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("setting temp file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
