package kgraph

import (
	"container/heap"
	"math"
	"sort"
	"sync"
)

// --------------------------------------------------------------------------
// Spatial index over 2-D points. Property values of the shape [x, y] or
// {x: …, y: …} register the node; anything else is ignored. Supports
// bounding-box membership and k-nearest-neighbor by Euclidean distance via
// a bounded max-heap of the k best candidates seen so far.
// --------------------------------------------------------------------------

type point2 struct {
	X, Y float64
}

type spatialIndex struct {
	definition IndexDef

	mu     sync.RWMutex
	points map[NodeID]point2
}

func newSpatialIndex(def IndexDef) *spatialIndex {
	return &spatialIndex{definition: def, points: make(map[NodeID]point2)}
}

func (idx *spatialIndex) def() *IndexDef { return &idx.definition }

// parsePoint accepts [x, y] lists and {x, y} maps with numeric coordinates.
func parsePoint(v any) (point2, bool) {
	switch t := v.(type) {
	case []any:
		if len(t) != 2 {
			return point2{}, false
		}
		x, okx := toFloat64(t[0])
		y, oky := toFloat64(t[1])
		if !okx || !oky {
			return point2{}, false
		}
		return point2{X: x, Y: y}, true
	case map[string]any:
		x, okx := toFloat64(t["x"])
		y, oky := toFloat64(t["y"])
		if !okx || !oky {
			return point2{}, false
		}
		return point2{X: x, Y: y}, true
	}
	return point2{}, false
}

func (idx *spatialIndex) insert(n *Node) error {
	if !n.HasLabel(idx.definition.Label) {
		return nil
	}
	pt, ok := parsePoint(n.Props[idx.definition.Properties[0]])
	if !ok {
		return nil
	}
	idx.mu.Lock()
	idx.points[n.ID] = pt
	idx.mu.Unlock()
	return nil
}

func (idx *spatialIndex) remove(n *Node) error {
	idx.mu.Lock()
	delete(idx.points, n.ID)
	idx.mu.Unlock()
	return nil
}

// searchBox returns the nodes within the closed box [minX,maxX]×[minY,maxY],
// in ascending ID order.
func (idx *spatialIndex) searchBox(minX, minY, maxX, maxY float64) []NodeID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var ids []NodeID
	for id, pt := range idx.points {
		if pt.X >= minX && pt.X <= maxX && pt.Y >= minY && pt.Y <= maxY {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SpatialMatch is one k-nearest-neighbor hit.
type SpatialMatch struct {
	ID       NodeID
	Distance float64
}

// nearest returns up to k nodes closest to (x, y), nearest first; ties break
// on node ID.
func (idx *spatialIndex) nearest(x, y float64, k int) []SpatialMatch {
	if k <= 0 {
		return nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	h := &matchMaxHeap{}
	for id, pt := range idx.points {
		d := math.Hypot(pt.X-x, pt.Y-y)
		m := SpatialMatch{ID: id, Distance: d}
		if h.Len() < k {
			heap.Push(h, m)
			continue
		}
		if matchLess(m, (*h)[0]) {
			(*h)[0] = m
			heap.Fix(h, 0)
		}
	}
	out := make([]SpatialMatch, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(SpatialMatch)
	}
	return out
}

// matchLess orders matches best-first.
func matchLess(a, b SpatialMatch) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ID < b.ID
}

// matchMaxHeap keeps the worst of the k best at the root so it can be
// evicted in O(log k).
type matchMaxHeap []SpatialMatch

func (h matchMaxHeap) Len() int            { return len(h) }
func (h matchMaxHeap) Less(i, j int) bool  { return matchLess(h[j], h[i]) }
func (h matchMaxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *matchMaxHeap) Push(x any)         { *h = append(*h, x.(SpatialMatch)) }
func (h *matchMaxHeap) Pop() any {
	old := *h
	n := len(old)
	m := old[n-1]
	*h = old[:n-1]
	return m
}
