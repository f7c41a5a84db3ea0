// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pathspec

import "testing"

func TestNormalize(t *testing.T) {
	root := "/workspace/project"

	cases := []struct {
		name string
		path string
		want string
	}{
		{"absolute under root", "/workspace/project/src/a.ts", "src/a.ts"},
		{"already relative", "src/a.ts", "src/a.ts"},
		{"relative with dot", "./src/a.ts", "src/a.ts"},
		{"relative with redundant segments", "src/../src/a.ts", "src/a.ts"},
		{"absolute outside root stays cleaned", "/other/place/x.go", "/other/place/x.go"},
		{"root itself", "/workspace/project", ""},
		{"empty", "", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Normalize(c.path, root); got != c.want {
				t.Errorf("Normalize(%q) = %q, want %q", c.path, got, c.want)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"src/**", "src/a.ts", true},
		{"src/**", "src/deep/nested/b.go", true},
		{"src/**", "lib/a.ts", false},
		{"src/api/**", "src/api/handler.ts", true},
		{"src/api/**", "src/db/x.ts", false},
		{"**/*.go", "services/x/y.go", true},
		{"**/*.go", "services/x/y.ts", false},
		{"*.md", "README.md", true},
		{"*.md", "docs/README.md", true}, // basename fallback for bare patterns
		{"docs/*.md", "docs/guide.md", true},
		{"docs/*.md", "docs/sub/guide.md", false},
		{"src/**/*.ts", "src/a.ts", true},
		{"src/**/*.ts", "src/deep/b.ts", true},
		{"src/**/*.ts", "src/deep/b.go", false},
		{"src", "src", true},
	}
	for _, c := range cases {
		if got := Match(c.pattern, c.path); got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.pattern, c.path, got, c.want)
		}
	}
}

func TestMatchesAny(t *testing.T) {
	root := "/ws"

	t.Run("single pattern wins", func(t *testing.T) {
		if !MatchesAny("/ws/src/a.ts", []string{"docs/**", "src/**"}, root) {
			t.Error("expected OR semantics over the pattern list")
		}
	})

	t.Run("no pattern matches", func(t *testing.T) {
		if MatchesAny("/ws/src/db/x.ts", []string{"src/api/**"}, root) {
			t.Error("path outside every pattern must not match")
		}
	})

	t.Run("empty pattern list never matches", func(t *testing.T) {
		if MatchesAny("/ws/src/a.ts", nil, root) {
			t.Error("empty pattern list must not match")
		}
	})

	t.Run("windows-style separators normalised", func(t *testing.T) {
		if !MatchesAny("src/a.ts", []string{"src/**"}, root) {
			t.Error("relative forward-slash path should match")
		}
	})
}
