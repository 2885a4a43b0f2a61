package kgraph

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityCodec_RoundTrip(t *testing.T) {
	n := &Node{
		ID:     7,
		Labels: []string{"Person", "Admin"},
		Props: Props{
			"name":   "Ada",
			"age":    int64(36),
			"score":  1.5,
			"tags":   []any{"x", int64(2)},
			"nested": map[string]any{"k": int64(1)},
		},
	}

	ref, data, err := encodeEntity(n)
	require.NoError(t, err)
	assert.Equal(t, EntityRef("n/7"), ref)

	got, err := decodeEntity(ref, data)
	require.NoError(t, err)
	back := got.(*Node)
	assert.Equal(t, n.ID, back.ID)
	assert.Equal(t, n.Labels, back.Labels)
	assert.Equal(t, n.Props, back.Props)
}

func TestEntityCodec_ChecksumRejectsCorruption(t *testing.T) {
	r := &Relationship{ID: 3, Start: 1, End: 2, Type: "KNOWS", Props: Props{"w": 1.0}}
	ref, data, err := encodeEntity(r)
	require.NoError(t, err)
	assert.Equal(t, EntityRef("r/3"), ref)

	data[len(data)-1] ^= 0xff
	_, err = decodeEntity(ref, data)
	require.Error(t, err)
}

func TestBoltStore_RoundTrip(t *testing.T) {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "entities.db"))
	require.NoError(t, err)
	defer s.Close()

	nref, err := s.Put(&Node{ID: 1, Labels: []string{"A"}, Props: Props{"v": int64(1)}})
	require.NoError(t, err)
	rref, err := s.Put(&Relationship{ID: 1, Start: 1, End: 1, Type: "SELF"})
	require.NoError(t, err)

	got, err := s.Get(nref)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.(*Node).Props["v"])

	got, err = s.Get(rref)
	require.NoError(t, err)
	assert.Equal(t, "SELF", got.(*Relationship).Type)

	// ForEach yields every node before any relationship so loads can wire
	// endpoints in one pass.
	var refs []EntityRef
	require.NoError(t, s.ForEach(func(ref EntityRef, entity any) error {
		refs = append(refs, ref)
		return nil
	}))
	require.Equal(t, []EntityRef{nref, rref}, refs)

	require.NoError(t, s.Delete(nref))
	_, err = s.Get(nref)
	assert.Error(t, err)
}

func TestMemoryEntityStore_RoundTrip(t *testing.T) {
	s := NewMemoryEntityStore()

	_, err := s.Put(&Relationship{ID: 9, Start: 1, End: 2, Type: "T"})
	require.NoError(t, err)
	nref, err := s.Put(&Node{ID: 4, Props: Props{"x": "y"}})
	require.NoError(t, err)

	got, err := s.Get(nref)
	require.NoError(t, err)
	assert.Equal(t, "y", got.(*Node).Props["x"])

	var order []EntityRef
	require.NoError(t, s.ForEach(func(ref EntityRef, entity any) error {
		order = append(order, ref)
		return nil
	}))
	require.Len(t, order, 2)
	assert.Equal(t, nref, order[0], "nodes enumerate before relationships")
}

func TestEngine_FlushAndReload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "kgraph")

	opt := DefaultOptions()
	opt.DataDir = dir
	e := testEngine(t, opt)
	ids := seedSocialGraph(t, e)
	require.NoError(t, e.Flush())
	require.NoError(t, e.Close())

	opt2 := DefaultOptions()
	opt2.DataDir = dir
	e2 := testEngine(t, opt2)
	require.NoError(t, e2.Load())

	n, err := e2.Store().GetNode(ids["Alice"])
	require.NoError(t, err)
	assert.Equal(t, "Alice", n.Props["name"])
	assert.Equal(t, int64(30), n.Props["age"])

	rows := collect(t, e2, `MATCH (a {name: 'Alice'})-[:KNOWS]->(b) RETURN b.name ORDER BY b.name`, nil)
	got := column(rows, "b.name")
	require.Len(t, got, 2)
	assert.Equal(t, []any{"Bob", "Carol"}, got)
}

func TestEngine_LoadRebuildsIndexes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "kgraph")

	opt := DefaultOptions()
	opt.DataDir = dir
	e := testEngine(t, opt)
	ids := seedSocialGraph(t, e)
	require.NoError(t, e.Flush())
	require.NoError(t, e.Close())

	opt2 := DefaultOptions()
	opt2.DataDir = dir
	e2 := testEngine(t, opt2)
	require.NoError(t, e2.Load())
	require.NoError(t, e2.CreateOrderedIndex("p_name", "Person", "name"))

	got, err := e2.Indexes().Seek("p_name", []any{"Carol"})
	require.NoError(t, err)
	assert.Equal(t, []NodeID{ids["Carol"]}, got)
}

func TestNormalizeValue_Widening(t *testing.T) {
	assert.Equal(t, int64(3), normalizeValue(3))
	assert.Equal(t, int64(3), normalizeValue(int32(3)))
	assert.Equal(t, float64(1.5), normalizeValue(float32(1.5)))
	assert.Equal(t, []any{int64(1), "a"}, normalizeValue([]any{1, "a"}))
	assert.Equal(t, map[string]any{"n": int64(2)}, normalizeValue(map[string]any{"n": 2}))
}
