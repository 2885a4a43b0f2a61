package kgraph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCities(t *testing.T, e *Engine) map[string]NodeID {
	t.Helper()
	ctx := context.Background()
	tx, err := e.Begin(ctx)
	require.NoError(t, err)

	ids := map[string]NodeID{}
	for _, c := range []struct {
		name string
		pop  int64
		bio  string
		loc  []any
		emb  []any
	}{
		{"Oslo", 700000, "capital of Norway on the Oslofjord", []any{10.75, 59.91}, []any{1.0, 0.0, 0.0}},
		{"Bergen", 290000, "rainy coastal city in western Norway", []any{5.32, 60.39}, []any{0.0, 1.0, 0.0}},
		{"Trondheim", 210000, "historic city on the Trondheimsfjord", []any{10.39, 63.43}, []any{0.7, 0.7, 0.0}},
		{"Tromsø", 77000, "arctic city known for northern lights", []any{18.96, 69.65}, []any{0.0, 0.0, 1.0}},
	} {
		n, err := tx.CreateNode([]string{"City"}, Props{
			"name": c.name, "pop": c.pop, "bio": c.bio, "loc": c.loc, "emb": c.emb,
		})
		require.NoError(t, err)
		ids[c.name] = n.ID
	}
	require.NoError(t, tx.Commit(ctx))
	return ids
}

func TestOrderedIndex_SeekRangePrefix(t *testing.T) {
	e := testEngineOnDisk(t)
	ids := seedCities(t, e)

	require.NoError(t, e.CreateOrderedIndex("city_pop", "City", "pop"))
	require.NoError(t, e.CreateOrderedIndex("city_name", "City", "name"))

	got, err := e.Indexes().Seek("city_pop", []any{int64(290000)})
	require.NoError(t, err)
	assert.Equal(t, []NodeID{ids["Bergen"]}, got)

	// Range scans come back in key order, smallest first.
	got, err = e.Indexes().Range("city_pop", int64(100000), int64(500000))
	require.NoError(t, err)
	assert.Equal(t, []NodeID{ids["Trondheim"], ids["Bergen"]}, got)

	got, err = e.Indexes().PrefixScan("city_name", "Tro")
	require.NoError(t, err)
	assert.ElementsMatch(t, []NodeID{ids["Trondheim"], ids["Tromsø"]}, got)

	// Unknown index name errors rather than returning empty.
	_, err = e.Indexes().Seek("nope", []any{1})
	assert.Error(t, err)
}

func TestOrderedIndex_BackfillExisting(t *testing.T) {
	e := testEngineOnDisk(t)
	ids := seedCities(t, e)

	// Index created after the data; creation backfills from committed state.
	require.NoError(t, e.CreateOrderedIndex("city_name", "City", "name"))
	got, err := e.Indexes().Seek("city_name", []any{"Oslo"})
	require.NoError(t, err)
	assert.Equal(t, []NodeID{ids["Oslo"]}, got)
}

func TestOrderedIndex_SkipsNodesMissingProperties(t *testing.T) {
	e := testEngineOnDisk(t)
	ctx := context.Background()

	require.NoError(t, e.CreateOrderedIndex("city_pop", "City", "pop"))
	tx, _ := e.Begin(ctx)
	_, err := tx.CreateNode([]string{"City"}, Props{"name": "Nowhere"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	got, err := e.Indexes().Range("city_pop", int64(0), int64(1<<40))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFullTextIndex_Search(t *testing.T) {
	e := testEngine(t)
	ids := seedCities(t, e)

	require.NoError(t, e.CreateFullTextIndex("city_bio", "City", "bio"))

	got, err := e.Indexes().SearchFullText("city_bio", "city")
	require.NoError(t, err)
	assert.ElementsMatch(t, []NodeID{ids["Bergen"], ids["Trondheim"], ids["Tromsø"]}, got)

	// Multi-term search intersects: every term must appear.
	got, err = e.Indexes().SearchFullText("city_bio", "coastal rainy")
	require.NoError(t, err)
	assert.Equal(t, []NodeID{ids["Bergen"]}, got)

	// Matching is case-insensitive on both sides.
	got, err = e.Indexes().SearchFullText("city_bio", "NORWAY")
	require.NoError(t, err)
	assert.ElementsMatch(t, []NodeID{ids["Oslo"], ids["Bergen"]}, got)

	got, err = e.Indexes().SearchFullText("city_bio", "volcano")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSpatialIndex_BoxAndNearest(t *testing.T) {
	e := testEngine(t)
	ids := seedCities(t, e)

	require.NoError(t, e.CreateSpatialIndex("city_loc", "City", "loc"))

	// Southern Norway box excludes Tromsø.
	got, err := e.Indexes().SearchBox("city_loc", 4, 58, 12, 64)
	require.NoError(t, err)
	assert.ElementsMatch(t, []NodeID{ids["Oslo"], ids["Bergen"], ids["Trondheim"]}, got)

	near, err := e.Indexes().Nearest("city_loc", 10.7, 59.9, 2)
	require.NoError(t, err)
	require.Len(t, near, 2)
	assert.Equal(t, ids["Oslo"], near[0].ID)
	assert.Equal(t, ids["Trondheim"], near[1].ID)
	assert.Less(t, near[0].Distance, near[1].Distance)
}

func TestVectorIndex_Similarity(t *testing.T) {
	e := testEngine(t)
	ids := seedCities(t, e)

	require.NoError(t, e.CreateVectorIndex("city_emb", "City", "emb", 3))

	matches, err := e.Indexes().Similar("city_emb", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	// Identical vector scores exactly 1.
	assert.Equal(t, ids["Oslo"], matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
	assert.Equal(t, ids["Trondheim"], matches[1].ID)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)

	// Dimension mismatches are rejected, not silently truncated.
	_, err = e.Indexes().Similar("city_emb", []float32{1, 0}, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDimension))
}

func TestVectorIndex_ZeroNormQuery(t *testing.T) {
	e := testEngine(t)
	seedCities(t, e)

	require.NoError(t, e.CreateVectorIndex("city_emb", "City", "emb", 3))

	matches, err := e.Indexes().Similar("city_emb", []float32{0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Zero(t, matches[0].Similarity)
}

func TestVectorIndex_DimensionEnforcedOnInsert(t *testing.T) {
	e := testEngine(t)
	ctx := context.Background()

	require.NoError(t, e.CreateVectorIndex("emb", "Doc", "v", 3))

	tx, _ := e.Begin(ctx)
	_, err := tx.CreateNode([]string{"Doc"}, Props{"v": []any{1.0, 2.0}})
	require.NoError(t, err)
	err = tx.Commit(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDimension))
}

func TestIndexManager_BestIndexFor(t *testing.T) {
	e := testEngineOnDisk(t)

	require.NoError(t, e.CreateOrderedIndex("p_name", "Person", "name"))
	require.NoError(t, e.CreateOrderedIndex("p_name_age", "Person", "name", "age"))
	require.NoError(t, e.CreateFullTextIndex("p_bio", "Person", "bio"))

	m := e.Indexes()

	// Widest fully-covered composite wins.
	def := m.BestIndexFor("Person", []string{"age", "name", "city"})
	require.NotNil(t, def)
	assert.Equal(t, "p_name_age", def.Name)

	def = m.BestIndexFor("Person", []string{"name"})
	require.NotNil(t, def)
	assert.Equal(t, "p_name", def.Name)

	// A composite is unusable when some of its properties are unconstrained.
	assert.Equal(t, "p_name", m.BestIndexFor("Person", []string{"name", "height"}).Name)
	assert.Nil(t, m.BestIndexFor("Person", []string{"age"}))
	assert.Nil(t, m.BestIndexFor("Animal", []string{"name"}))

	// Only ordered indexes answer equality lookups.
	assert.Nil(t, m.BestIndexFor("Person", []string{"bio"}))
}

func TestIndexManager_ListAndDrop(t *testing.T) {
	e := testEngineOnDisk(t)
	seedCities(t, e)

	require.NoError(t, e.CreateOrderedIndex("city_name", "City", "name"))
	require.NoError(t, e.CreateFullTextIndex("city_bio", "City", "bio"))

	defs := e.Indexes().List()
	require.Len(t, defs, 2)

	require.Error(t, e.CreateOrderedIndex("city_name", "City", "name"), "duplicate name")

	require.NoError(t, e.DropIndex("city_name"))
	assert.Len(t, e.Indexes().List(), 1)
	_, err := e.Indexes().Seek("city_name", []any{"Oslo"})
	assert.Error(t, err)

	assert.Error(t, e.DropIndex("city_name"))
}

func TestIndexManager_TracksDeletes(t *testing.T) {
	e := testEngine(t)
	ids := seedCities(t, e)
	ctx := context.Background()

	require.NoError(t, e.CreateFullTextIndex("city_bio", "City", "bio"))

	tx, _ := e.Begin(ctx)
	require.NoError(t, tx.DetachDeleteNode(ids["Bergen"]))
	require.NoError(t, tx.Commit(ctx))

	got, err := e.Indexes().SearchFullText("city_bio", "rainy")
	require.NoError(t, err)
	assert.Empty(t, got)
}
