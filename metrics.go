package kgraph

import "sync/atomic"

// Metrics counts engine activity with atomic counters. All methods are safe
// on a nil receiver so call sites never guard.
type Metrics struct {
	queries      atomic.Uint64
	cacheHits    atomic.Uint64
	cacheMisses  atomic.Uint64
	commits      atomic.Uint64
	conflicts    atomic.Uint64
	indexLookups atomic.Uint64
}

func (m *Metrics) query() {
	if m != nil {
		m.queries.Add(1)
	}
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.cacheHits.Add(1)
	}
}

func (m *Metrics) cacheMiss() {
	if m != nil {
		m.cacheMisses.Add(1)
	}
}

func (m *Metrics) commit() {
	if m != nil {
		m.commits.Add(1)
	}
}

func (m *Metrics) conflict() {
	if m != nil {
		m.conflicts.Add(1)
	}
}

func (m *Metrics) indexLookup() {
	if m != nil {
		m.indexLookups.Add(1)
	}
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Queries      uint64
	CacheHits    uint64
	CacheMisses  uint64
	Commits      uint64
	Conflicts    uint64
	IndexLookups uint64
}

// Snapshot reads every counter at once. Counters advance independently, so
// the snapshot is consistent per counter, not across them.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Queries:      m.queries.Load(),
		CacheHits:    m.cacheHits.Load(),
		CacheMisses:  m.cacheMisses.Load(),
		Commits:      m.commits.Load(),
		Conflicts:    m.conflicts.Load(),
		IndexLookups: m.indexLookups.Load(),
	}
}
