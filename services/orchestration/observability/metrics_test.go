// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("reading counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("reading gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestHelpers_NilDefaultIsNoOp(t *testing.T) {
	old := Default
	Default = nil
	defer func() { Default = old }()

	// Every helper must tolerate metrics being disabled.
	BlockedWrite("stale_file")
	LedgerAppend()
	SnapshotDelta(1)
	SweepEvictions("snapshot", 2)
	RevisionCache("hit")
	ExternalChange()
}

func TestInit_HelpersMoveCounters(t *testing.T) {
	// Init registers on the default registry and may run once per
	// process; every helper below must land on the returned instance.
	m := Init()
	if Default != m {
		t.Fatal("Init must install the package default")
	}

	BlockedWrite("scope_violation")
	BlockedWrite("scope_violation")
	BlockedWrite("stale_file")
	if got := counterValue(t, m.WritesBlockedTotal.WithLabelValues("scope_violation")); got != 2 {
		t.Errorf("writes blocked (scope_violation) = %v, want 2", got)
	}
	if got := counterValue(t, m.WritesBlockedTotal.WithLabelValues("stale_file")); got != 1 {
		t.Errorf("writes blocked (stale_file) = %v, want 1", got)
	}

	LedgerAppend()
	if got := counterValue(t, m.LedgerAppendsTotal); got != 1 {
		t.Errorf("ledger appends = %v, want 1", got)
	}

	SnapshotDelta(3)
	SnapshotDelta(-1)
	if got := gaugeValue(t, m.SnapshotsActive); got != 2 {
		t.Errorf("snapshots active = %v, want 2", got)
	}

	SweepEvictions("session", 4)
	SweepEvictions("session", 0)
	if got := counterValue(t, m.SweepEvictionsTotal.WithLabelValues("session")); got != 4 {
		t.Errorf("sweep evictions (session) = %v, want 4", got)
	}

	RevisionCache("miss")
	if got := counterValue(t, m.RevisionCacheTotal.WithLabelValues("miss")); got != 1 {
		t.Errorf("revision cache (miss) = %v, want 1", got)
	}

	ExternalChange()
	if got := counterValue(t, m.ExternalChangesTotal); got != 1 {
		t.Errorf("external changes = %v, want 1", got)
	}
}
