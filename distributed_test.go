package kgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCluster(t *testing.T, n int) *Cluster {
	t.Helper()
	engines := make([]*Engine, n)
	for i := range engines {
		engines[i] = testEngine(t)
	}
	c, err := NewCluster(engines...)
	require.NoError(t, err)
	return c
}

func seedPartition(t *testing.T, e *Engine, names ...string) {
	t.Helper()
	ctx := context.Background()
	tx, err := e.Begin(ctx)
	require.NoError(t, err)
	for _, name := range names {
		_, err := tx.CreateNode([]string{"Person"}, Props{"name": name})
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit(ctx))
}

func TestCluster_QueryFansOut(t *testing.T) {
	c := testCluster(t, 3)
	seedPartition(t, c.Partitions()[0], "Alice", "Bob")
	seedPartition(t, c.Partitions()[1], "Carol")
	seedPartition(t, c.Partitions()[2], "Dave", "Erin")

	res, err := c.Query(context.Background(), `MATCH (p:Person) RETURN p.name ORDER BY p.name`, nil)
	require.NoError(t, err)
	rows, err := res.Collect()
	require.NoError(t, err)

	got := column(rows, "p.name")
	assert.Equal(t, []any{"Alice", "Bob", "Carol", "Dave", "Erin"}, got,
		"merged rows must be re-sorted across partitions")
}

func TestCluster_DeduplicatesAcrossPartitions(t *testing.T) {
	c := testCluster(t, 2)
	// The same logical person exists on both partitions.
	seedPartition(t, c.Partitions()[0], "Alice", "Bob")
	seedPartition(t, c.Partitions()[1], "Alice")

	res, err := c.Query(context.Background(), `MATCH (p:Person) RETURN p.name ORDER BY p.name`, nil)
	require.NoError(t, err)
	rows, err := res.Collect()
	require.NoError(t, err)

	got := column(rows, "p.name")
	assert.Equal(t, []any{"Alice", "Bob"}, got)
}

func TestCluster_RejectsWrites(t *testing.T) {
	c := testCluster(t, 2)

	_, err := c.Query(context.Background(), `CREATE (n:Person {name: 'X'})`, nil)
	require.Error(t, err)
	var qe *QueryError
	assert.ErrorAs(t, err, &qe)
}

func TestCluster_Parameters(t *testing.T) {
	c := testCluster(t, 2)
	seedPartition(t, c.Partitions()[0], "Alice")
	seedPartition(t, c.Partitions()[1], "Bob")

	res, err := c.Query(context.Background(), `MATCH (p:Person) WHERE p.name = $n RETURN p.name`,
		map[string]any{"n": "Bob"})
	require.NoError(t, err)
	rows, err := res.Collect()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bob", rows[0].Values["p.name"])
}

func TestCluster_AggregatesStayPartitionLocal(t *testing.T) {
	c := testCluster(t, 2)
	seedPartition(t, c.Partitions()[0], "Alice", "Bob")
	seedPartition(t, c.Partitions()[1], "Carol")

	// Each partition reports its own count; rows with distinct values both
	// survive the merge.
	res, err := c.Query(context.Background(), `MATCH (p:Person) RETURN count(*) AS n`, nil)
	require.NoError(t, err)
	rows, err := res.Collect()
	require.NoError(t, err)
	counts := map[any]bool{}
	for _, r := range rows {
		counts[r.Values["n"]] = true
	}
	assert.True(t, counts[int64(2)])
	assert.True(t, counts[int64(1)])
}

func TestCluster_PartitionFor(t *testing.T) {
	c := testCluster(t, 3)
	parts := c.Partitions()

	assert.Same(t, parts[0], c.PartitionFor(3))
	assert.Same(t, parts[1], c.PartitionFor(4))
	assert.Same(t, parts[2], c.PartitionFor(5))
}

func TestCluster_ErrorCancelsSiblings(t *testing.T) {
	c := testCluster(t, 2)
	seedPartition(t, c.Partitions()[0], "Alice")

	// An unknown parameter fails on every partition; the cluster reports the
	// error instead of partial rows.
	_, err := c.Query(context.Background(), `MATCH (p:Person) WHERE p.name = $missing RETURN p.name`, nil)
	require.Error(t, err)
}

func TestNewCluster_RequiresPartitions(t *testing.T) {
	_, err := NewCluster()
	require.Error(t, err)
}
