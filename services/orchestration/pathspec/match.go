// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pathspec provides workspace-relative path normalisation and
// glob matching for intent scope enforcement.
//
// Patterns use glob syntax with ** for recursive matching:
//   - * matches any sequence of non-separator characters
//   - ** matches any sequence of characters including separators
//   - ? matches any single non-separator character
//   - [abc] matches one of the characters in brackets
//
// All public entry points normalise to forward slashes, so callers on
// any platform see one canonical path form.
//
// Thread Safety: all functions are pure and safe for concurrent use.
package pathspec

import (
	"path/filepath"
	"strings"
)

// Normalize converts an absolute or relative path to workspace-relative
// form with forward slashes.
//
// # Description
//
// Absolute paths under workspaceRoot are made relative to it; absolute
// paths outside the root and already-relative paths are cleaned and
// slash-normalised as-is. The result never carries a leading "./".
func Normalize(path, workspaceRoot string) string {
	if path == "" {
		return ""
	}

	cleaned := filepath.Clean(path)
	if filepath.IsAbs(cleaned) && workspaceRoot != "" {
		if rel, err := filepath.Rel(filepath.Clean(workspaceRoot), cleaned); err == nil && !strings.HasPrefix(rel, "..") {
			cleaned = rel
		}
	}

	normalized := filepath.ToSlash(cleaned)
	normalized = strings.TrimPrefix(normalized, "./")
	if normalized == "." {
		return ""
	}
	return normalized
}

// MatchesAny reports whether the normalised path matches at least one
// of the given glob patterns (logical OR).
//
// An empty pattern list never matches; the gatekeeper treats that case
// as a configuration error before calling here.
func MatchesAny(path string, patterns []string, workspaceRoot string) bool {
	normalized := Normalize(path, workspaceRoot)
	for _, pattern := range patterns {
		if Match(pattern, normalized) {
			return true
		}
	}
	return false
}

// Match matches a single forward-slash path against a glob pattern.
func Match(pattern, path string) bool {
	pattern = filepath.ToSlash(pattern)
	path = filepath.ToSlash(path)

	if strings.Contains(pattern, "**") {
		return matchDoublestar(pattern, path)
	}

	matched, _ := filepath.Match(pattern, path)
	if matched {
		return true
	}

	// Bare-filename patterns also match against the basename.
	if !strings.Contains(pattern, "/") {
		matched, _ = filepath.Match(pattern, filepath.Base(path))
		return matched
	}
	return false
}

// matchDoublestar handles ** recursive patterns.
func matchDoublestar(pattern, path string) bool {
	parts := strings.Split(pattern, "**")
	if len(parts) == 1 {
		matched, _ := filepath.Match(pattern, path)
		return matched
	}

	// "prefix/**/suffix" patterns
	if len(parts) == 2 {
		prefix := strings.TrimSuffix(parts[0], "/")
		suffix := strings.TrimPrefix(parts[1], "/")

		if prefix != "" {
			if !strings.HasPrefix(path, prefix+"/") && path != prefix {
				return false
			}
			path = strings.TrimPrefix(path, prefix+"/")
		}

		if suffix != "" {
			return matchSuffix(suffix, path)
		}
		return true
	}

	// Multiple ** segments: require the literal parts to appear in order.
	pathIdx := 0
	for i, part := range parts {
		part = strings.Trim(part, "/")
		if part == "" {
			continue
		}

		idx := strings.Index(path[pathIdx:], part)
		if idx == -1 {
			return false
		}
		if i == 0 && !strings.HasPrefix(pattern, "**") && idx != 0 {
			return false
		}
		pathIdx += idx + len(part)
	}

	if !strings.HasSuffix(pattern, "**") && pathIdx != len(path) {
		return false
	}
	return true
}

// matchSuffix checks whether path ends with or contains the suffix
// pattern after a ** segment.
func matchSuffix(suffix, path string) bool {
	if strings.ContainsAny(suffix, "*?[") {
		parts := strings.Split(path, "/")
		for i := range parts {
			subpath := strings.Join(parts[i:], "/")
			if matched, _ := filepath.Match(suffix, subpath); matched {
				return true
			}
		}
		return false
	}

	return strings.HasSuffix(path, suffix) || strings.Contains(path, suffix+"/") || path == suffix
}
