// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// sweeper runs periodic TTL eviction for a Store using the
// ticker + done channel pattern.
type sweeper struct {
	store    *Store
	interval time.Duration
	maxAge   time.Duration
	done     chan struct{}
	mu       sync.Mutex
	running  bool
}

// StartSweeper begins background eviction at the configured interval.
//
// # Description
//
// Starts a goroutine that calls Sweep(TTL) every SweepInterval until
// StopSweeper is called or ctx is cancelled. Missed ticks are not
// backfilled.
//
// # Outputs
//
//   - error: Non-nil if the sweeper is already running.
func (s *Store) StartSweeper(ctx context.Context) error {
	if s.sweeper == nil {
		s.sweeper = &sweeper{
			store:    s,
			interval: s.config.SweepInterval,
			maxAge:   s.config.TTL,
		}
	}
	return s.sweeper.start(ctx)
}

// StopSweeper stops background eviction. Safe to call multiple times
// and before StartSweeper.
func (s *Store) StopSweeper() {
	if s.sweeper != nil {
		s.sweeper.stop()
	}
}

func (w *sweeper) start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("snapshot sweeper is already running")
	}
	w.running = true
	w.done = make(chan struct{})
	w.mu.Unlock()

	slog.Info("snapshot sweeper starting",
		"interval", w.interval.String(),
		"ttl", w.maxAge.String())

	go w.runLoop(ctx)
	return nil
}

func (w *sweeper) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.done)
	w.running = false
	slog.Info("snapshot sweeper stopped")
}

func (w *sweeper) runLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			if evicted := w.store.Sweep(w.maxAge); evicted > 0 {
				slog.Debug("snapshot sweep evicted entries",
					"count", evicted)
			}
		}
	}
}
