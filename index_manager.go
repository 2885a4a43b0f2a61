package kgraph

import (
	"sort"
	"sync"

	bolt "go.etcd.io/bbolt"
)

// --------------------------------------------------------------------------
// IndexManager: the registry of every index over the graph. Commits route
// their entity changes through it so all applicable indexes observe every
// mutation; the compiler consults it for access-path selection. Index
// contents are maintained for committed state only; transactional overlays
// never touch an index before commit.
// --------------------------------------------------------------------------

// IndexKind distinguishes index families.
type IndexKind int

const (
	IndexOrdered IndexKind = iota
	IndexFullText
	IndexSpatial
	IndexVector
)

// IndexDef describes one index: its registry name, the label it covers and
// the properties it indexes. Ordered indexes may be composite; the property
// list is stored in canonical sorted order.
type IndexDef struct {
	Name       string
	Kind       IndexKind
	Label      string
	Properties []string
	// Dimension applies to vector indexes only.
	Dimension int
}

// propertyIndex is the maintenance contract every index family implements.
type propertyIndex interface {
	def() *IndexDef
	insert(n *Node) error
	remove(n *Node) error
}

// IndexManager owns all indexes. The bbolt handle backs ordered indexes and
// may be nil, in which case creating an ordered index fails.
type IndexManager struct {
	db *bolt.DB

	mu       sync.RWMutex
	indexes  map[string]propertyIndex
	ordered  map[string]*orderedIndex
	fulltext map[string]*fulltextIndex
	spatial  map[string]*spatialIndex
	vector   map[string]*vectorIndex
}

// NewIndexManager builds an empty registry. db may be nil for engines
// without a data directory.
func NewIndexManager(db *bolt.DB) *IndexManager {
	return &IndexManager{
		db:       db,
		indexes:  make(map[string]propertyIndex),
		ordered:  make(map[string]*orderedIndex),
		fulltext: make(map[string]*fulltextIndex),
		spatial:  make(map[string]*spatialIndex),
		vector:   make(map[string]*vectorIndex),
	}
}

func (m *IndexManager) register(name string, idx propertyIndex) error {
	if _, dup := m.indexes[name]; dup {
		return storageErrorf("index %q already exists", name)
	}
	m.indexes[name] = idx
	return nil
}

// CreateOrderedIndex registers a bbolt-backed ordered index over one or more
// properties of a label. Multiple properties form a composite index; the
// property list is canonicalized by sorting.
func (m *IndexManager) CreateOrderedIndex(name, label string, properties ...string) error {
	if len(properties) == 0 {
		return storageErrorf("index %q needs at least one property", name)
	}
	if m.db == nil {
		return storageErrorf("ordered index %q requires a data directory", name)
	}
	props := append([]string(nil), properties...)
	sort.Strings(props)
	def := IndexDef{Name: name, Kind: IndexOrdered, Label: label, Properties: props}

	m.mu.Lock()
	defer m.mu.Unlock()
	idx, err := newOrderedIndex(def, m.db)
	if err != nil {
		return err
	}
	if err := m.register(name, idx); err != nil {
		return err
	}
	m.ordered[name] = idx
	return nil
}

// CreateFullTextIndex registers a full-text index over one string property.
func (m *IndexManager) CreateFullTextIndex(name, label, property string) error {
	def := IndexDef{Name: name, Kind: IndexFullText, Label: label, Properties: []string{property}}
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := newFulltextIndex(def)
	if err := m.register(name, idx); err != nil {
		return err
	}
	m.fulltext[name] = idx
	return nil
}

// CreateSpatialIndex registers a 2-D point index over one property.
func (m *IndexManager) CreateSpatialIndex(name, label, property string) error {
	def := IndexDef{Name: name, Kind: IndexSpatial, Label: label, Properties: []string{property}}
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := newSpatialIndex(def)
	if err := m.register(name, idx); err != nil {
		return err
	}
	m.spatial[name] = idx
	return nil
}

// CreateVectorIndex registers a fixed-dimension embedding index over one
// property.
func (m *IndexManager) CreateVectorIndex(name, label, property string, dimension int) error {
	if dimension <= 0 {
		return storageErrorf("vector index %q needs a positive dimension", name)
	}
	def := IndexDef{Name: name, Kind: IndexVector, Label: label, Properties: []string{property}, Dimension: dimension}
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := newVectorIndex(def, dimension)
	if err := m.register(name, idx); err != nil {
		return err
	}
	m.vector[name] = idx
	return nil
}

// Drop removes an index from the registry. Dropping an unknown name is an
// error.
func (m *IndexManager) Drop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[name]; !ok {
		return storageErrorf("index %q does not exist", name)
	}
	delete(m.indexes, name)
	delete(m.ordered, name)
	delete(m.fulltext, name)
	delete(m.spatial, name)
	delete(m.vector, name)
	return nil
}

// List returns the definitions of every registered index, sorted by name.
func (m *IndexManager) List() []IndexDef {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]IndexDef, 0, len(m.indexes))
	for _, idx := range m.indexes {
		out = append(out, *idx.def())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ---------------------------------------------------------------------------
// Access-path selection
// ---------------------------------------------------------------------------

// BestIndexFor picks the most selective ordered index usable for the given
// label and equality properties: a composite index wins over a
// single-property one when every component is constrained; ties break on
// name for plan stability. Returns nil when no ordered index applies.
func (m *IndexManager) BestIndexFor(label string, props []string) *IndexDef {
	available := make(map[string]bool, len(props))
	for _, p := range props {
		available[p] = true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *IndexDef
	for _, idx := range m.ordered {
		def := idx.def()
		if def.Label != label {
			continue
		}
		covered := true
		for _, p := range def.Properties {
			if !available[p] {
				covered = false
				break
			}
		}
		if !covered {
			continue
		}
		if best == nil ||
			len(def.Properties) > len(best.Properties) ||
			(len(def.Properties) == len(best.Properties) && def.Name < best.Name) {
			copyDef := *def
			best = &copyDef
		}
	}
	return best
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

// Seek returns candidate node IDs equal to the value tuple on an ordered
// index. Results are candidates: the caller re-checks predicates.
func (m *IndexManager) Seek(name string, values []any) ([]NodeID, error) {
	m.mu.RLock()
	idx, ok := m.ordered[name]
	m.mu.RUnlock()
	if !ok {
		return nil, storageErrorf("ordered index %q does not exist", name)
	}
	return idx.seek(values)
}

// Range returns candidates of a single-property ordered index within
// [low, high]; nil bounds are open ended.
func (m *IndexManager) Range(name string, low, high any) ([]NodeID, error) {
	m.mu.RLock()
	idx, ok := m.ordered[name]
	m.mu.RUnlock()
	if !ok {
		return nil, storageErrorf("ordered index %q does not exist", name)
	}
	return idx.scanRange(low, high)
}

// PrefixScan returns candidates of a single-property ordered index whose
// string value starts with prefix.
func (m *IndexManager) PrefixScan(name, prefix string) ([]NodeID, error) {
	m.mu.RLock()
	idx, ok := m.ordered[name]
	m.mu.RUnlock()
	if !ok {
		return nil, storageErrorf("ordered index %q does not exist", name)
	}
	return idx.scanStringPrefix(prefix)
}

// SearchFullText returns the nodes matching every token of the query.
func (m *IndexManager) SearchFullText(name, query string) ([]NodeID, error) {
	m.mu.RLock()
	idx, ok := m.fulltext[name]
	m.mu.RUnlock()
	if !ok {
		return nil, storageErrorf("full-text index %q does not exist", name)
	}
	return idx.search(query), nil
}

// SearchBox returns the nodes inside the closed bounding box.
func (m *IndexManager) SearchBox(name string, minX, minY, maxX, maxY float64) ([]NodeID, error) {
	m.mu.RLock()
	idx, ok := m.spatial[name]
	m.mu.RUnlock()
	if !ok {
		return nil, storageErrorf("spatial index %q does not exist", name)
	}
	return idx.searchBox(minX, minY, maxX, maxY), nil
}

// Nearest returns up to k nodes closest to (x, y).
func (m *IndexManager) Nearest(name string, x, y float64, k int) ([]SpatialMatch, error) {
	m.mu.RLock()
	idx, ok := m.spatial[name]
	m.mu.RUnlock()
	if !ok {
		return nil, storageErrorf("spatial index %q does not exist", name)
	}
	return idx.nearest(x, y, k), nil
}

// Similar returns up to k nodes by cosine similarity to the query embedding.
func (m *IndexManager) Similar(name string, query []float32, k int) ([]VectorMatch, error) {
	m.mu.RLock()
	idx, ok := m.vector[name]
	m.mu.RUnlock()
	if !ok {
		return nil, storageErrorf("vector index %q does not exist", name)
	}
	return idx.similar(query, k)
}

// ---------------------------------------------------------------------------
// Maintenance
// ---------------------------------------------------------------------------

// insertNode offers a committed node to every applicable index, used for
// backfill after index creation.
func (m *IndexManager) insertNode(n *Node) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, idx := range m.indexes {
		if err := idx.insert(n); err != nil {
			return err
		}
	}
	return nil
}

// applyChanges routes one commit's entity changes to every index. Only node
// changes matter; relationship indexes do not exist.
func (m *IndexManager) applyChanges(changes []entityChange) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range changes {
		switch ch.kind {
		case nodeCreated:
			for _, idx := range m.indexes {
				if err := idx.insert(ch.node); err != nil {
					return err
				}
			}
		case nodeUpdated:
			for _, idx := range m.indexes {
				if err := idx.remove(ch.oldNode); err != nil {
					return err
				}
				if err := idx.insert(ch.node); err != nil {
					return err
				}
			}
		case nodeDeleted:
			for _, idx := range m.indexes {
				if err := idx.remove(ch.oldNode); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
