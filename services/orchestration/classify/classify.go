// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classify categorises a file mutation from its pre/post
// content pair.
//
// # Description
//
// The classifier is a layered heuristic with a frozen rule order; the
// first matching rule wins. It exists so that trace entries carry a
// useful mutation_class without asking the agent to self-report, while
// an explicit class from the tool arguments always takes precedence
// (see Resolve).
package classify

import (
	"math"
	"regexp"
	"strings"
)

// Class is the mutation category recorded in the ledger.
type Class string

const (
	AstRefactor     Class = "AST_REFACTOR"
	IntentEvolution Class = "INTENT_EVOLUTION"
	BugFix          Class = "BUG_FIX"
	Documentation   Class = "DOCUMENTATION"
)

// Valid reports whether c is one of the defined classes.
func (c Class) Valid() bool {
	switch c {
	case AstRefactor, IntentEvolution, BugFix, Documentation:
		return true
	}
	return false
}

func (c Class) String() string { return string(c) }

// sizeChangeThreshold is the relative length delta above which a
// mutation counts as intent evolution.
const sizeChangeThreshold = 0.20

var bugFixPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)fix(e[ds])?|bug|issue|repair|patch`),
	regexp.MustCompile(`(?i)undefined|null|error|exception|crash`),
	regexp.MustCompile(`(?i)should|expected|actual|assert`),
}

var (
	lineCommentRe  = regexp.MustCompile(`(?m)//.*$|#.*$`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	docStarRe      = regexp.MustCompile(`(?m)^\s*\*.*$`)
)

// Classify categorises the old→new transition. Rule order is frozen;
// reordering changes recorded history.
func Classify(old, new string) Class {
	// Rule 1: identical content is a documentation-grade non-change.
	if old == new {
		return Documentation
	}

	// Rule 2: only comments moved.
	if stripComments(old) == stripComments(new) {
		return Documentation
	}

	// Rule 3: bug-fix vocabulary in the changed lines.
	diff := lineSetDiff(old, new)
	for _, re := range bugFixPatterns {
		if re.MatchString(diff) {
			return BugFix
		}
	}

	// Rule 4: large size delta suggests the intent itself evolved.
	delta := math.Abs(float64(len(new)) - float64(len(old)))
	base := math.Max(float64(len(old)), 1)
	if delta/base > sizeChangeThreshold {
		return IntentEvolution
	}

	return AstRefactor
}

// Resolve picks the class for a recorded write: a valid explicit name
// wins, then Classify when the prior content is available, then the
// documented AstRefactor default.
func Resolve(explicit string, old, new string, haveOld bool) Class {
	if c := Class(explicit); explicit != "" && c.Valid() {
		return c
	}
	if haveOld {
		return Classify(old, new)
	}
	return AstRefactor
}

// stripComments removes line comments, block comments, and doc-block
// asterisk lines. Good enough for classification; this is not a parser.
func stripComments(s string) string {
	s = blockCommentRe.ReplaceAllString(s, "")
	s = lineCommentRe.ReplaceAllString(s, "")
	s = docStarRe.ReplaceAllString(s, "")

	var kept []string
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, "\n")
}

// lineSetDiff builds "+added\n-removed" from the line-set difference,
// ignoring order and duplicates already present on the other side.
func lineSetDiff(old, new string) string {
	oldLines := lineSet(old)
	newLines := lineSet(new)

	var added, removed []string
	for _, l := range strings.Split(new, "\n") {
		if _, ok := oldLines[l]; !ok {
			added = append(added, l)
		}
	}
	for _, l := range strings.Split(old, "\n") {
		if _, ok := newLines[l]; !ok {
			removed = append(removed, l)
		}
	}
	return "+" + strings.Join(added, "\n") + "\n-" + strings.Join(removed, "\n")
}

func lineSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, l := range strings.Split(s, "\n") {
		set[l] = struct{}{}
	}
	return set
}
