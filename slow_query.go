package kgraph

import (
	"sync"
	"time"
)

// --------------------------------------------------------------------------
// Slow query log: a bounded ring buffer of recent executions that exceeded
// the configured threshold. Observation is cheap enough to sit on the query
// path; reading the log copies the entries out in oldest-first order.
// --------------------------------------------------------------------------

// SlowQueryEntry records one slow execution.
type SlowQueryEntry struct {
	Query     string
	Duration  time.Duration
	Rows      int
	Timestamp time.Time
}

type slowQueryLog struct {
	threshold time.Duration

	mu      sync.Mutex
	entries []SlowQueryEntry
	pos     int
	total   int
}

// newSlowQueryLog returns nil when the threshold disables logging; all
// methods are nil-safe.
func newSlowQueryLog(threshold time.Duration, size int) *slowQueryLog {
	if threshold <= 0 {
		return nil
	}
	if size <= 0 {
		size = 64
	}
	return &slowQueryLog{
		threshold: threshold,
		entries:   make([]SlowQueryEntry, 0, size),
	}
}

// observe records the execution when it crossed the threshold.
func (l *slowQueryLog) observe(query string, d time.Duration, rows int) {
	if l == nil || d < l.threshold {
		return
	}
	entry := SlowQueryEntry{Query: query, Duration: d, Rows: rows, Timestamp: time.Now()}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total++
	if len(l.entries) < cap(l.entries) {
		l.entries = append(l.entries, entry)
		return
	}
	l.entries[l.pos] = entry
	l.pos = (l.pos + 1) % cap(l.entries)
}

// snapshot returns the retained entries, oldest first, and the total number
// of slow queries observed including evicted ones.
func (l *slowQueryLog) snapshot() ([]SlowQueryEntry, int) {
	if l == nil {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SlowQueryEntry, 0, len(l.entries))
	out = append(out, l.entries[l.pos:]...)
	out = append(out, l.entries[:l.pos]...)
	return out, l.total
}
