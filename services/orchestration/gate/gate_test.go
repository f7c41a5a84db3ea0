// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/crewgate/services/orchestration/intent"
)

type fakeVerifier struct {
	fresh bool
	panic bool
	calls int
}

func (f *fakeVerifier) Verify(path, holder string) bool {
	f.calls++
	if f.panic {
		panic("verifier exploded")
	}
	return f.fresh
}

type fakeCatalog struct {
	intents map[string]intent.Intent
	err     error
}

func (f *fakeCatalog) GetCached(id string) (intent.Intent, bool, error) {
	if f.err != nil {
		return intent.Intent{}, false, f.err
	}
	it, ok := f.intents[id]
	return it, ok, nil
}

func newTestGate(fresh bool) (*Gate, *fakeVerifier) {
	v := &fakeVerifier{fresh: fresh}
	c := &fakeCatalog{intents: map[string]intent.Intent{
		"intent_login": {
			ID:         "intent_login",
			Name:       "Login hardening",
			OwnedScope: []string{"src/auth/**"},
		},
		"intent_bare": {ID: "intent_bare"},
	}}
	return New(v, c), v
}

func ctxOf(t *testing.T) context.Context {
	t.Helper()
	return context.Background()
}

func TestCheck_Pass(t *testing.T) {
	g, v := newTestGate(true)
	verdict := g.Check(ctxOf(t), "src/auth/login.ts", "content", WriteContext{
		IntentID: "intent_login",
		AgentID:  "agent-deadbeef",
	})
	if verdict.Blocked {
		t.Fatalf("expected pass, got blocked: %v", verdict.Err)
	}
	if v.calls != 1 {
		t.Errorf("Verify calls = %d, want 1", v.calls)
	}
}

func TestCheck_StaleFile(t *testing.T) {
	g, _ := newTestGate(false)
	verdict := g.Check(ctxOf(t), "src/auth/login.ts", "content", WriteContext{
		IntentID: "intent_login",
		AgentID:  "agent-deadbeef",
	})
	if !verdict.Blocked {
		t.Fatal("stale snapshot must block")
	}
	if !errors.Is(verdict.Err, ErrStaleFile) {
		t.Errorf("Err = %v, want ErrStaleFile", verdict.Err)
	}
	if !verdict.Recoverable {
		t.Error("stale-file block must be recoverable")
	}
	msg := verdict.Err.Error()
	if !strings.Contains(msg, "src/auth/login.ts") || !strings.Contains(msg, "agent-deadbeef") {
		t.Errorf("message should carry path and holder: %s", msg)
	}
}

func TestCheck_NoAgentSkipsVerify(t *testing.T) {
	g, v := newTestGate(false)
	verdict := g.Check(ctxOf(t), "src/auth/login.ts", "content", WriteContext{
		IntentID: "intent_login",
	})
	if verdict.Blocked {
		t.Errorf("no agent id means no snapshot check: %v", verdict.Err)
	}
	if v.calls != 0 {
		t.Errorf("Verify calls = %d, want 0", v.calls)
	}
}

func TestCheck_VerifierPanicDoesNotBlock(t *testing.T) {
	v := &fakeVerifier{panic: true}
	c := &fakeCatalog{intents: map[string]intent.Intent{
		"intent_login": {ID: "intent_login", OwnedScope: []string{"src/**"}},
	}}
	g := New(v, c)

	verdict := g.Check(ctxOf(t), "src/auth/login.ts", "content", WriteContext{
		IntentID: "intent_login",
		AgentID:  "agent-deadbeef",
	})
	if verdict.Blocked {
		t.Errorf("a panicking verifier must not block the write: %v", verdict.Err)
	}
}

func TestCheck_NoActiveIntent(t *testing.T) {
	g, _ := newTestGate(true)
	verdict := g.Check(ctxOf(t), "src/auth/login.ts", "content", WriteContext{})
	if !verdict.Blocked || !errors.Is(verdict.Err, ErrNoActiveIntent) {
		t.Fatalf("verdict = %+v, want NoActiveIntent block", verdict)
	}
	if verdict.Recoverable {
		t.Error("missing intent is not recoverable by retry")
	}
}

func TestCheck_IntentNotFound(t *testing.T) {
	g, _ := newTestGate(true)
	verdict := g.Check(ctxOf(t), "src/auth/login.ts", "content", WriteContext{
		IntentID: "intent_ghost",
	})
	if !verdict.Blocked || !errors.Is(verdict.Err, ErrIntentNotFound) {
		t.Fatalf("verdict = %+v, want IntentNotFound block", verdict)
	}
}

func TestCheck_CatalogErrorBlocksAsNotFound(t *testing.T) {
	g := New(nil, &fakeCatalog{err: errors.New("disk on fire")})
	verdict := g.Check(ctxOf(t), "src/a.ts", "content", WriteContext{
		IntentID: "intent_login",
	})
	if !verdict.Blocked || !errors.Is(verdict.Err, ErrIntentNotFound) {
		t.Fatalf("verdict = %+v, want IntentNotFound block on catalog error", verdict)
	}
}

func TestCheck_NoOwnedScope(t *testing.T) {
	g, _ := newTestGate(true)
	verdict := g.Check(ctxOf(t), "src/auth/login.ts", "content", WriteContext{
		IntentID: "intent_bare",
	})
	if !verdict.Blocked || !errors.Is(verdict.Err, ErrNoOwnedScope) {
		t.Fatalf("verdict = %+v, want NoOwnedScope block", verdict)
	}
}

func TestCheck_ScopeViolation(t *testing.T) {
	g, _ := newTestGate(true)
	verdict := g.Check(ctxOf(t), "src/billing/invoice.ts", "content", WriteContext{
		IntentID: "intent_login",
	})
	if !verdict.Blocked || !errors.Is(verdict.Err, ErrScopeViolation) {
		t.Fatalf("verdict = %+v, want ScopeViolation block", verdict)
	}
	msg := verdict.Err.Error()
	for _, want := range []string{"Login hardening", "intent_login", "src/billing/invoice.ts"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q: %s", want, msg)
		}
	}
}

func TestCheck_CachedScopeSkipsCatalogScope(t *testing.T) {
	g, _ := newTestGate(true)
	verdict := g.Check(ctxOf(t), "docs/readme.md", "content", WriteContext{
		IntentID:   "intent_login",
		OwnedScope: []string{"docs/**"},
	})
	if verdict.Blocked {
		t.Errorf("caller-provided scope should authorise the path: %v", verdict.Err)
	}
}

func TestCheck_Idempotent(t *testing.T) {
	g, _ := newTestGate(true)
	wc := WriteContext{IntentID: "intent_ghost"}
	first := g.Check(ctxOf(t), "src/a.ts", "content", wc)
	second := g.Check(ctxOf(t), "src/a.ts", "content", wc)
	if first.Blocked != second.Blocked || !errors.Is(second.Err, ErrIntentNotFound) {
		t.Error("repeated checks with identical state must agree")
	}
}
