// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the
// orchestration middleware.
//
// # Description
//
// Metrics cover the write pipeline (blocked writes by reason, ledger
// appends), the snapshot lifecycle (active snapshots, sweeper
// evictions, external changes), and the revision probe cache.
//
// # Integration
//
// Metrics register on the default Prometheus registry via promauto and
// are exposed by whatever /metrics endpoint the embedding runtime runs.
// Library consumers that do not scrape metrics pay only counter
// increments.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics.
const metricsNamespace = "crewgate"

// Subsystem for orchestration metrics.
const orchestrationSubsystem = "orchestration"

// Metrics holds all Prometheus metrics for the orchestration pipeline.
//
// # Fields
//
//   - WritesBlockedTotal: Counter of gatekeeper blocks by reason.
//   - LedgerAppendsTotal: Counter of accepted trace rows.
//   - SnapshotsActive: Gauge of currently held snapshots.
//   - SweepEvictionsTotal: Counter of sweeper evictions by kind.
//   - RevisionCacheTotal: Counter of revision probe cache hits/misses.
//   - ExternalChangesTotal: Counter of external mutations seen on
//     snapshotted files.
type Metrics struct {
	// WritesBlockedTotal counts gatekeeper blocks.
	// Labels: reason (stale_file, no_active_intent, intent_not_found,
	// no_owned_scope, scope_violation)
	WritesBlockedTotal *prometheus.CounterVec

	// LedgerAppendsTotal counts trace rows appended to the ledger.
	LedgerAppendsTotal prometheus.Counter

	// SnapshotsActive tracks snapshots currently held across all holders.
	SnapshotsActive prometheus.Gauge

	// SweepEvictionsTotal counts background evictions.
	// Labels: kind (snapshot, session)
	SweepEvictionsTotal *prometheus.CounterVec

	// RevisionCacheTotal counts revision probe cache outcomes.
	// Labels: result (hit, miss)
	RevisionCacheTotal *prometheus.CounterVec

	// ExternalChangesTotal counts external modifications detected on
	// files with live snapshots.
	ExternalChangesTotal prometheus.Counter
}

// Default is the process-wide metrics instance, set by Init.
// Components treat a nil Default as metrics-disabled.
var Default *Metrics

// Init creates and registers the default metrics instance.
//
// # Description
//
// Should be called once at startup by runtimes that want metrics.
// Calling Init twice panics (duplicate Prometheus registration), which
// matches promauto semantics.
func Init() *Metrics {
	Default = &Metrics{
		WritesBlockedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: orchestrationSubsystem,
			Name:      "writes_blocked_total",
			Help:      "Write attempts blocked by the gatekeeper, by reason.",
		}, []string{"reason"}),
		LedgerAppendsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: orchestrationSubsystem,
			Name:      "ledger_appends_total",
			Help:      "Trace entries appended to the ledger.",
		}),
		SnapshotsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: orchestrationSubsystem,
			Name:      "snapshots_active",
			Help:      "Snapshots currently held across all sessions.",
		}),
		SweepEvictionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: orchestrationSubsystem,
			Name:      "sweep_evictions_total",
			Help:      "Entries evicted by background sweepers, by kind.",
		}, []string{"kind"}),
		RevisionCacheTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: orchestrationSubsystem,
			Name:      "revision_cache_total",
			Help:      "Revision probe cache lookups, by result.",
		}, []string{"result"}),
		ExternalChangesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: orchestrationSubsystem,
			Name:      "external_changes_total",
			Help:      "External modifications observed on snapshotted files.",
		}),
	}
	return Default
}

// BlockedWrite increments the blocked-writes counter if metrics are
// enabled. Safe to call with a nil Default.
func BlockedWrite(reason string) {
	if Default != nil {
		Default.WritesBlockedTotal.WithLabelValues(reason).Inc()
	}
}

// LedgerAppend increments the ledger append counter.
func LedgerAppend() {
	if Default != nil {
		Default.LedgerAppendsTotal.Inc()
	}
}

// SnapshotDelta adjusts the active snapshot gauge by n (may be negative).
func SnapshotDelta(n int) {
	if Default != nil {
		Default.SnapshotsActive.Add(float64(n))
	}
}

// SweepEvictions adds n evictions of the given kind.
func SweepEvictions(kind string, n int) {
	if Default != nil && n > 0 {
		Default.SweepEvictionsTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// RevisionCache records one cache lookup outcome ("hit" or "miss").
func RevisionCache(result string) {
	if Default != nil {
		Default.RevisionCacheTotal.WithLabelValues(result).Inc()
	}
}

// ExternalChange records one external mutation on a snapshotted file.
func ExternalChange() {
	if Default != nil {
		Default.ExternalChangesTotal.Inc()
	}
}
