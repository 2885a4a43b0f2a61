package kgraph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTx_ReadYourWrites(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	tx, err := e.Begin(ctx)
	require.NoError(t, err)

	n, err := tx.CreateNode([]string{"Person"}, Props{"name": "Ada"})
	require.NoError(t, err)

	// Visible inside the transaction before commit.
	got, err := tx.GetNode(n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Props["name"])

	res, err := tx.Query(ctx, `MATCH (p:Person) RETURN p.name`, nil)
	require.NoError(t, err)
	rows, err := res.Collect()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ada", rows[0].Values["p.name"])

	// Invisible to the committed store until commit.
	_, err = e.Store().GetNode(n.ID)
	assert.Error(t, err)

	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, TxCommitted, tx.Status())

	committed, err := e.Store().GetNode(n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", committed.Props["name"])
}

func TestTx_RollbackDiscards(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	tx, err := e.Begin(ctx)
	require.NoError(t, err)
	n, err := tx.CreateNode(nil, Props{"name": "ghost"})
	require.NoError(t, err)

	tx.Rollback()
	assert.Equal(t, TxRolledBack, tx.Status())

	_, err = e.Store().GetNode(n.ID)
	assert.Error(t, err)

	// Terminal transactions reject further work.
	_, err = tx.CreateNode(nil, nil)
	assert.Error(t, err)
	assert.Error(t, tx.Commit(ctx))

	// Rollback stays idempotent.
	tx.Rollback()
	assert.Equal(t, TxRolledBack, tx.Status())
}

func TestTx_DisjointWritesBothCommit(t *testing.T) {
	e := testEngine(t)
	ids := seedSocialGraph(t, e)
	ctx := context.Background()

	tx1, err := e.Begin(ctx)
	require.NoError(t, err)
	tx2, err := e.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, tx1.SetProperty(ids["Alice"], "city", "Bergen"))
	require.NoError(t, tx2.SetProperty(ids["Bob"], "city", "Tromsø"))

	require.NoError(t, tx1.Commit(ctx))
	require.NoError(t, tx2.Commit(ctx))

	alice, _ := e.Store().GetNode(ids["Alice"])
	bob, _ := e.Store().GetNode(ids["Bob"])
	assert.Equal(t, "Bergen", alice.Props["city"])
	assert.Equal(t, "Tromsø", bob.Props["city"])
}

func TestTx_ConflictAborts(t *testing.T) {
	e := testEngine(t)
	ids := seedSocialGraph(t, e)
	ctx := context.Background()

	tx1, err := e.Begin(ctx)
	require.NoError(t, err)
	tx2, err := e.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, tx1.SetProperty(ids["Alice"], "age", int64(31)))
	require.NoError(t, tx2.SetProperty(ids["Alice"], "age", int64(99)))

	require.NoError(t, tx1.Commit(ctx))

	err = tx2.Commit(ctx)
	require.Error(t, err)
	var aborted *TransactionAbortedError
	require.ErrorAs(t, err, &aborted)
	assert.Equal(t, tx2.ID(), aborted.TxID)
	assert.Equal(t, TxAborted, tx2.Status())
	assert.True(t, IsRetryable(err))

	// First writer's value survives.
	alice, _ := e.Store().GetNode(ids["Alice"])
	assert.Equal(t, int64(31), alice.Props["age"])
	assert.EqualValues(t, 1, e.Metrics().Snapshot().Conflicts)
}

func TestTx_DeleteObservedNodeConflicts(t *testing.T) {
	e := testEngine(t)
	ids := seedSocialGraph(t, e)
	ctx := context.Background()

	tx1, err := e.Begin(ctx)
	require.NoError(t, err)
	tx2, err := e.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, tx1.SetProperty(ids["Dave"], "age", int64(29)))
	require.NoError(t, tx2.DeleteNode(ids["Dave"]))
	require.NoError(t, tx2.Commit(ctx))

	err = tx1.Commit(ctx)
	var aborted *TransactionAbortedError
	require.ErrorAs(t, err, &aborted)
}

func TestTx_EmptyCommitSucceeds(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	v0 := e.Bookmark()
	tx, err := e.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, TxCommitted, tx.Status())

	// Read-only commits do not advance the store version.
	assert.Equal(t, v0, e.Bookmark())
}

func TestTx_DeleteNodeWithRelationships(t *testing.T) {
	e := testEngine(t)
	ids := seedSocialGraph(t, e)
	ctx := context.Background()

	tx, err := e.Begin(ctx)
	require.NoError(t, err)
	err = tx.DeleteNode(ids["Alice"])
	require.Error(t, err, "delete with attached relationships must fail")

	tx.Rollback()

	tx, err = e.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.DetachDeleteNode(ids["Alice"]))
	require.NoError(t, tx.Commit(ctx))

	_, err = e.Store().GetNode(ids["Alice"])
	assert.Error(t, err)

	// Alice's relationships went with her; Bob->Carol survives.
	res, err := e.Query(ctx, `MATCH (a)-[:KNOWS]->(b) RETURN a.name, b.name`, nil)
	require.NoError(t, err)
	rows, err := res.Collect()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bob", rows[0].Values["a.name"])
}

func TestTx_LabelAndPropertyMutations(t *testing.T) {
	e := testEngine(t)
	ids := seedSocialGraph(t, e)
	ctx := context.Background()

	tx, err := e.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.AddLabel(ids["Dave"], "Admin"))
	require.NoError(t, tx.RemoveProperty(ids["Carol"], "age"))
	require.NoError(t, tx.Commit(ctx))

	res, err := e.Query(ctx, `MATCH (p:Admin) RETURN p.name`, nil)
	require.NoError(t, err)
	rows, _ := res.Collect()
	require.Len(t, rows, 1)
	assert.Equal(t, "Dave", rows[0].Values["p.name"])

	carol, _ := e.Store().GetNode(ids["Carol"])
	_, has := carol.Props["age"]
	assert.False(t, has)
}

func TestTx_CreateRelationshipToMissingNode(t *testing.T) {
	e := testEngine(t)
	ids := seedSocialGraph(t, e)
	ctx := context.Background()

	tx, err := e.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.CreateRelationship(ids["Alice"], NodeID(999999), "KNOWS", nil)
	require.Error(t, err)
	var se *StorageError
	assert.True(t, errors.As(err, &se))
}

func TestTx_QueryAfterCommitFails(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	tx, err := e.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	_, err = tx.Query(ctx, `RETURN 1 AS x`, nil)
	assert.Error(t, err)
}

func TestBookmark_CrossDatabase(t *testing.T) {
	optA := DefaultOptions()
	optA.Database = "a"
	optB := DefaultOptions()
	optB.Database = "b"

	ea := testEngine(t, optA)
	eb := testEngine(t, optB)

	_, err := ea.Bookmark().NewerThan(eb.Bookmark())
	require.Error(t, err)
	var se *StorageError
	assert.True(t, errors.As(err, &se))
}
