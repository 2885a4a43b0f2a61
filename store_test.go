package kgraph

import (
	"context"
	"testing"
	"time"
)

func TestStore_CountsAndLabelRegistry(t *testing.T) {
	e := testEngine(t)
	ids := seedSocialGraph(t, e)
	s := e.Store()

	nodes, rels := s.Counts()
	if nodes != 4 || rels != 3 {
		t.Fatalf("expected 4 nodes / 3 rels, got %d / %d", nodes, rels)
	}

	people := s.NodesByLabel("Person")
	if len(people) != 4 {
		t.Fatalf("expected 4 Person nodes, got %d", len(people))
	}
	if got := s.NodesByLabel("Robot"); len(got) != 0 {
		t.Fatalf("expected no Robot nodes, got %v", got)
	}

	ctx := context.Background()
	tx, _ := e.Begin(ctx)
	if err := tx.RemoveLabel(ids["Dave"], "Person"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	if got := s.NodesByLabel("Person"); len(got) != 3 {
		t.Fatalf("label registry not maintained on removal, got %d", len(got))
	}
}

func TestStore_RelationshipsOfDirections(t *testing.T) {
	e := testEngine(t)
	ids := seedSocialGraph(t, e)
	s := e.Store()

	out, err := s.RelationshipsOf(ids["Alice"], Outgoing)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Errorf("Alice outgoing: expected 2, got %d", len(out))
	}

	in, err := s.RelationshipsOf(ids["Carol"], Incoming)
	if err != nil {
		t.Fatal(err)
	}
	if len(in) != 2 {
		t.Errorf("Carol incoming: expected 2, got %d", len(in))
	}

	both, err := s.RelationshipsOf(ids["Bob"], Both)
	if err != nil {
		t.Fatal(err)
	}
	if len(both) != 2 {
		t.Errorf("Bob both: expected 2, got %d", len(both))
	}

	if _, err := s.RelationshipsOf(NodeID(424242), Both); err == nil {
		t.Error("expected error for unknown node")
	}
}

func TestStore_SelfLoopListedOncePerDirection(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	s := e.Store()

	tx, err := e.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	n, err := tx.CreateNode([]string{"Node"}, Props{"name": "loop"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.CreateRelationship(n.ID, n.ID, "SELF", nil); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	for _, dir := range []Direction{Outgoing, Incoming, Both} {
		rels, err := s.RelationshipsOf(n.ID, dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(rels) != 1 {
			t.Errorf("direction %v: expected 1 relationship, got %d", dir, len(rels))
		}
	}

	rows := collect(t, e, `MATCH (a {name: 'loop'})-[r]-(b) RETURN b.name`, nil)
	if len(rows) != 1 {
		t.Errorf("undirected match over a self-loop: expected 1 row, got %d", len(rows))
	}
}

func TestStore_VersionAdvancesPerCommit(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()
	s := e.Store()

	v0 := s.Version()
	tx, _ := e.Begin(ctx)
	tx.CreateNode(nil, Props{"n": int64(1)})
	if err := tx.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	v1 := s.Version()
	if v1 <= v0 {
		t.Fatalf("version did not advance: %d -> %d", v0, v1)
	}
}

func TestStore_IntegrityHealthy(t *testing.T) {
	e := testEngine(t)
	seedSocialGraph(t, e)

	if issues := e.Store().CheckIntegrity(); len(issues) != 0 {
		t.Fatalf("expected clean integrity report, got %v", issues)
	}
}

func TestStore_IntegrityAfterDeletes(t *testing.T) {
	e := testEngine(t)
	ids := seedSocialGraph(t, e)
	ctx := context.Background()

	tx, _ := e.Begin(ctx)
	if err := tx.DetachDeleteNode(ids["Alice"]); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	if issues := e.Store().CheckIntegrity(); len(issues) != 0 {
		t.Fatalf("detach delete left inconsistencies: %v", issues)
	}

	e.Store().Compact()
	if issues := e.Store().CheckIntegrity(); len(issues) != 0 {
		t.Fatalf("compaction left inconsistencies: %v", issues)
	}
}

func TestSlowQueryLog_RingBuffer(t *testing.T) {
	l := newSlowQueryLog(time.Millisecond, 3)

	l.observe("fast", 10*time.Microsecond, 1)
	entries, total := l.snapshot()
	if total != 0 || len(entries) != 0 {
		t.Fatalf("fast query recorded: %v", entries)
	}

	for i, q := range []string{"q1", "q2", "q3", "q4"} {
		l.observe(q, time.Duration(i+2)*time.Millisecond, i)
	}
	entries, total = l.snapshot()
	if total != 4 {
		t.Errorf("expected 4 observed, got %d", total)
	}
	if len(entries) != 3 {
		t.Fatalf("ring should keep 3, got %d", len(entries))
	}
	// Oldest-first with the oldest entry evicted.
	if entries[0].Query != "q2" || entries[2].Query != "q4" {
		t.Errorf("unexpected ring contents: %v", entries)
	}
}

func TestSlowQueryLog_DisabledIsNilSafe(t *testing.T) {
	l := newSlowQueryLog(0, 8)
	if l != nil {
		t.Fatal("threshold 0 should disable the log")
	}
	l.observe("q", time.Second, 1)
	if entries, total := l.snapshot(); total != 0 || entries != nil {
		t.Fatal("nil log must report nothing")
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.query()
	m.commit()
	m.conflict()
	m.indexLookup()
	if snap := m.Snapshot(); snap != (MetricsSnapshot{}) {
		t.Fatalf("nil metrics snapshot not zero: %+v", snap)
	}
}

func TestCompactor_DisabledAndHalt(t *testing.T) {
	if c := startCompactor(NewGraphStore(), nil, 0); c != nil {
		t.Fatal("interval 0 should disable the compactor")
	}
	var c *compactor
	c.halt() // nil-safe

	c = startCompactor(NewGraphStore(), discardLogger(), time.Hour)
	if c == nil {
		t.Fatal("expected a running compactor")
	}
	c.halt()
}

func TestCompareSortKeys_NullsLast(t *testing.T) {
	if compareSortKeys(nil, int64(1), false) <= 0 {
		t.Error("null should sort after values ascending")
	}
	if compareSortKeys(nil, int64(1), true) <= 0 {
		t.Error("null should sort after values descending too")
	}
	if compareSortKeys(int64(1), int64(2), false) >= 0 {
		t.Error("1 should sort before 2 ascending")
	}
	if compareSortKeys(int64(1), int64(2), true) <= 0 {
		t.Error("1 should sort after 2 descending")
	}
	// Cross-type values rank by type, numbers before strings.
	if compareSortKeys(int64(1), "a", false) >= 0 {
		t.Error("numbers should rank before strings")
	}
}
