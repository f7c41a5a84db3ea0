// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hashutil provides line-ending-normalised content digests.
//
// # Description
//
// All digests are SHA-256 over content whose line endings have been
// normalised to \n, so the same logical text hashes identically on
// Windows (\r\n), classic Mac (\r), and Unix (\n). Digests are returned
// as 64 lowercase hex characters without any prefix; ledger callers add
// the "sha256:" prefix at the serialisation boundary.
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Digest returns the SHA-256 hex digest of content after line-ending
// normalisation.
func Digest(content string) string {
	sum := sha256.Sum256([]byte(normalize(content)))
	return hex.EncodeToString(sum[:])
}

// DigestRange returns the digest of an inclusive 1-based line range.
//
// # Description
//
// The range is clamped to [1, N] where N is the normalised line count.
// If startLine > endLine after clamping, or the requested range lies
// wholly outside the content, the digest of the empty string is
// returned (a fixed, known value). The extracted lines are joined with
// \n and hashed without a trailing newline.
//
// # Inputs
//
//   - content: The text to hash. May be empty.
//   - startLine: First line, 1-based inclusive. Values < 1 clamp to 1.
//   - endLine: Last line, 1-based inclusive. Values > N clamp to N.
//
// # Outputs
//
//   - string: 64 lowercase hex characters.
func DigestRange(content string, startLine, endLine int) string {
	lines := strings.Split(normalize(content), "\n")

	if startLine < 1 {
		startLine = 1
	}
	if endLine > len(lines) {
		endLine = len(lines)
	}
	if startLine > endLine {
		return Digest("")
	}

	return Digest(strings.Join(lines[startLine-1:endLine], "\n"))
}

// LineCount returns the number of lines in content, never less than 1.
// An empty string counts as a single empty line, matching the range
// semantics of DigestRange.
func LineCount(content string) int {
	n := strings.Count(normalize(content), "\n") + 1
	if n < 1 {
		return 1
	}
	return n
}

// normalize rewrites \r\n and stray \r to \n.
func normalize(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.ReplaceAll(content, "\r", "\n")
}
