// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vcs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for TTL tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestProbe(clock *fakeClock, runner func(ctx context.Context, root string) (string, error)) *Probe {
	config := DefaultConfig()
	if clock != nil {
		config.Now = clock.Now
	}
	p := NewProbe(config)
	p.runner = runner
	return p
}

func TestCurrentRevision(t *testing.T) {
	t.Run("returns trimmed revision", func(t *testing.T) {
		p := newTestProbe(nil, func(ctx context.Context, root string) (string, error) {
			return "abc123def\n", nil
		})
		if got := p.CurrentRevision(context.Background(), "/ws"); got != "abc123def" {
			t.Errorf("CurrentRevision = %q, want abc123def", got)
		}
	})

	t.Run("non-repo degrades to unknown", func(t *testing.T) {
		p := newTestProbe(nil, func(ctx context.Context, root string) (string, error) {
			return "", errors.New("fatal: not a git repository")
		})
		if got := p.CurrentRevision(context.Background(), "/tmp/norepo"); got != RevisionUnknown {
			t.Errorf("CurrentRevision = %q, want %q", got, RevisionUnknown)
		}
	})

	t.Run("empty output degrades to unknown", func(t *testing.T) {
		p := newTestProbe(nil, func(ctx context.Context, root string) (string, error) {
			return "  \n", nil
		})
		if got := p.CurrentRevision(context.Background(), "/ws"); got != RevisionUnknown {
			t.Errorf("CurrentRevision = %q, want %q", got, RevisionUnknown)
		}
	})

	t.Run("missing binary never panics", func(t *testing.T) {
		// Real runner against a directory that exists but is not a repo.
		p := NewProbe(DefaultConfig())
		got := p.CurrentRevision(context.Background(), t.TempDir())
		if got != RevisionUnknown {
			// A git checkout above TempDir would surface a real hash;
			// either way the call must not fail.
			t.Logf("resolved revision %q from temp dir", got)
		}
	})
}

func TestCurrentRevision_Cache(t *testing.T) {
	t.Run("serves cached value within TTL without re-spawning", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1700000000, 0)}
		var calls int32
		p := newTestProbe(clock, func(ctx context.Context, root string) (string, error) {
			atomic.AddInt32(&calls, 1)
			return "", errors.New("not a repo")
		})

		for i := 0; i < 5; i++ {
			if got := p.CurrentRevision(context.Background(), "/ws"); got != RevisionUnknown {
				t.Fatalf("CurrentRevision = %q, want unknown", got)
			}
		}
		if n := atomic.LoadInt32(&calls); n != 1 {
			t.Errorf("runner called %d times within TTL, want 1", n)
		}
	})

	t.Run("re-probes after TTL", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1700000000, 0)}
		var calls int32
		p := newTestProbe(clock, func(ctx context.Context, root string) (string, error) {
			atomic.AddInt32(&calls, 1)
			return "rev1", nil
		})

		p.CurrentRevision(context.Background(), "/ws")
		clock.Advance(DefaultCacheTTL + time.Second)
		p.CurrentRevision(context.Background(), "/ws")

		if n := atomic.LoadInt32(&calls); n != 2 {
			t.Errorf("runner called %d times across TTL boundary, want 2", n)
		}
	})

	t.Run("roots cache independently", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1700000000, 0)}
		p := newTestProbe(clock, func(ctx context.Context, root string) (string, error) {
			if root == "/a" {
				return "rev-a", nil
			}
			return "rev-b", nil
		})

		if got := p.CurrentRevision(context.Background(), "/a"); got != "rev-a" {
			t.Errorf("root /a = %q", got)
		}
		if got := p.CurrentRevision(context.Background(), "/b"); got != "rev-b" {
			t.Errorf("root /b = %q", got)
		}
	})

	t.Run("invalidate forces re-probe", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1700000000, 0)}
		var calls int32
		p := newTestProbe(clock, func(ctx context.Context, root string) (string, error) {
			atomic.AddInt32(&calls, 1)
			return "rev1", nil
		})

		p.CurrentRevision(context.Background(), "/ws")
		p.Invalidate()
		p.CurrentRevision(context.Background(), "/ws")

		if n := atomic.LoadInt32(&calls); n != 2 {
			t.Errorf("runner called %d times across Invalidate, want 2", n)
		}
	})
}

func TestCurrentRevision_Concurrent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	var calls int32
	release := make(chan struct{})
	p := newTestProbe(clock, func(ctx context.Context, root string) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "rev1", nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := p.CurrentRevision(context.Background(), "/ws"); got != "rev1" {
				t.Errorf("CurrentRevision = %q, want rev1", got)
			}
		}()
	}

	// Give the goroutines a moment to pile onto the singleflight group.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("runner called %d times under concurrent misses, want 1", n)
	}
}
