package kgraph

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"

	"github.com/viterin/vek/vek32"
)

// --------------------------------------------------------------------------
// Vector index: fixed-dimension float32 embeddings scored by cosine
// similarity. A zero-norm vector, stored or queried, scores 0 against
// everything so similarity search never produces NaN.
// --------------------------------------------------------------------------

// ErrDimension reports an embedding whose length does not match the index
// dimension.
var ErrDimension = errors.New("vector dimension mismatch")

type vectorIndex struct {
	definition IndexDef
	dim        int

	mu      sync.RWMutex
	vectors map[NodeID][]float32
}

func newVectorIndex(def IndexDef, dim int) *vectorIndex {
	return &vectorIndex{
		definition: def,
		dim:        dim,
		vectors:    make(map[NodeID][]float32),
	}
}

func (idx *vectorIndex) def() *IndexDef { return &idx.definition }

// parseVector converts a stored property value into a float32 slice.
func parseVector(v any) ([]float32, bool) {
	switch t := v.(type) {
	case []float32:
		out := make([]float32, len(t))
		copy(out, t)
		return out, true
	case []any:
		out := make([]float32, len(t))
		for i, e := range t {
			f, ok := toFloat64(e)
			if !ok {
				return nil, false
			}
			out[i] = float32(f)
		}
		return out, true
	}
	return nil, false
}

func (idx *vectorIndex) insert(n *Node) error {
	if !n.HasLabel(idx.definition.Label) {
		return nil
	}
	vec, ok := parseVector(n.Props[idx.definition.Properties[0]])
	if !ok {
		return nil
	}
	if len(vec) != idx.dim {
		return fmt.Errorf("index %s node %d: %w: want %d, got %d",
			idx.definition.Name, n.ID, ErrDimension, idx.dim, len(vec))
	}
	idx.mu.Lock()
	idx.vectors[n.ID] = vec
	idx.mu.Unlock()
	return nil
}

func (idx *vectorIndex) remove(n *Node) error {
	idx.mu.Lock()
	delete(idx.vectors, n.ID)
	idx.mu.Unlock()
	return nil
}

// VectorMatch is one similarity search hit.
type VectorMatch struct {
	ID         NodeID
	Similarity float64
}

// similar returns up to k stored vectors most similar to the query, best
// first; ties break on node ID.
func (idx *vectorIndex) similar(query []float32, k int) ([]VectorMatch, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("index %s query: %w: want %d, got %d",
			idx.definition.Name, ErrDimension, idx.dim, len(query))
	}
	if k <= 0 {
		return nil, nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	qnorm := vek32.Norm(query)
	h := &vectorMaxHeap{}
	for id, vec := range idx.vectors {
		m := VectorMatch{ID: id, Similarity: cosine32(query, qnorm, vec)}
		if h.Len() < k {
			heap.Push(h, m)
			continue
		}
		if vectorMatchLess(m, (*h)[0]) {
			(*h)[0] = m
			heap.Fix(h, 0)
		}
	}
	out := make([]VectorMatch, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(VectorMatch)
	}
	return out, nil
}

// cosine32 computes cosine similarity with the query norm precomputed.
// Either norm being zero yields 0.
func cosine32(query []float32, qnorm float32, vec []float32) float64 {
	if qnorm == 0 {
		return 0
	}
	vnorm := vek32.Norm(vec)
	if vnorm == 0 {
		return 0
	}
	return float64(vek32.Dot(query, vec) / (qnorm * vnorm))
}

// vectorMatchLess orders matches best-first: higher similarity wins.
func vectorMatchLess(a, b VectorMatch) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	return a.ID < b.ID
}

type vectorMaxHeap []VectorMatch

func (h vectorMaxHeap) Len() int           { return len(h) }
func (h vectorMaxHeap) Less(i, j int) bool { return vectorMatchLess(h[j], h[i]) }
func (h vectorMaxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *vectorMaxHeap) Push(x any)        { *h = append(*h, x.(VectorMatch)) }
func (h *vectorMaxHeap) Pop() any {
	old := *h
	n := len(old)
	m := old[n-1]
	*h = old[:n-1]
	return m
}
