package kgraph

import (
	"strconv"
	"sync"
)

// --------------------------------------------------------------------------
// GraphStore: the committed, in-memory storage model.
//
// Entities live in an arena keyed by integer identifiers; relationships
// store endpoint IDs rather than pointers, so the graph carries no
// reference cycles. Deletes tombstone the slot; Compact reclaims it.
//
// Concurrency: reads take the RWMutex read lock and never block each other.
// All writes flow through the transaction manager, which is the sole caller
// of validate/apply and the sole writer of the committed version counter.
// --------------------------------------------------------------------------

type nodeSlot struct {
	node       *Node
	deleted    bool
	modVersion uint64 // committed version of the last write to this slot
}

type relSlot struct {
	rel        *Relationship
	deleted    bool
	modVersion uint64
}

// GraphStore holds the committed graph state.
type GraphStore struct {
	mu sync.RWMutex

	nodes map[NodeID]*nodeSlot
	rels  map[RelID]*relSlot

	// Adjacency: relationship IDs by endpoint, outgoing keyed by start,
	// incoming keyed by end.
	outAdj map[NodeID][]RelID
	inAdj  map[NodeID][]RelID

	// Label lookup: label → node ID set. Part of the storage model (the
	// compiler's "label scan" access path), unlike property indexes which
	// belong to the IndexManager.
	byLabel map[string]map[NodeID]struct{}

	nextNodeID NodeID
	nextRelID  RelID
	version    uint64 // committed version counter
}

// NewGraphStore creates an empty store at version 0.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		nodes:   make(map[NodeID]*nodeSlot),
		rels:    make(map[RelID]*relSlot),
		outAdj:  make(map[NodeID][]RelID),
		inAdj:   make(map[NodeID][]RelID),
		byLabel: make(map[string]map[NodeID]struct{}),
	}
}

// Version returns the current committed version.
func (s *GraphStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// allocNodeID reserves the next node identifier.
func (s *GraphStore) allocNodeID() NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextNodeID++
	return s.nextNodeID
}

// allocRelID reserves the next relationship identifier.
func (s *GraphStore) allocRelID() RelID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRelID++
	return s.nextRelID
}

// GetNode returns the committed node or a StorageError if the identifier
// does not resolve (unknown or tombstoned).
func (s *GraphStore) GetNode(id NodeID) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.nodes[id]
	if !ok || slot.deleted {
		return nil, storageErrorf("node %d not found", id)
	}
	return slot.node, nil
}

// GetRelationship returns the committed relationship or a StorageError.
func (s *GraphStore) GetRelationship(id RelID) (*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.rels[id]
	if !ok || slot.deleted {
		return nil, storageErrorf("relationship %d not found", id)
	}
	return slot.rel, nil
}

// ForEachNode calls fn for every live node. fn must not mutate the node.
// Iteration order is not guaranteed stable across runs.
func (s *GraphStore) ForEachNode(fn func(*Node) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, slot := range s.nodes {
		if slot.deleted {
			continue
		}
		if err := fn(slot.node); err != nil {
			return err
		}
	}
	return nil
}

// ForEachRelationship calls fn for every live relationship.
func (s *GraphStore) ForEachRelationship(fn func(*Relationship) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, slot := range s.rels {
		if slot.deleted {
			continue
		}
		if err := fn(slot.rel); err != nil {
			return err
		}
	}
	return nil
}

// NodesByLabel returns the IDs of live nodes carrying the label.
func (s *GraphStore) NodesByLabel(label string) []NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.byLabel[label]
	ids := make([]NodeID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// RelationshipsOf returns the live relationships touching a node in the
// given direction. The node must exist.
func (s *GraphStore) RelationshipsOf(id NodeID, dir Direction) ([]*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.nodes[id]
	if !ok || slot.deleted {
		return nil, storageErrorf("node %d not found", id)
	}

	var rels []*Relationship
	appendLive := func(ids []RelID, skipSelfLoops bool) {
		for _, rid := range ids {
			rs, ok := s.rels[rid]
			if !ok || rs.deleted {
				continue
			}
			// A self-loop sits in both adjacency lists; under an undirected
			// lookup the outgoing pass has already yielded it.
			if skipSelfLoops && rs.rel.Start == rs.rel.End {
				continue
			}
			rels = append(rels, rs.rel)
		}
	}
	if dir&Outgoing != 0 {
		appendLive(s.outAdj[id], false)
	}
	if dir&Incoming != 0 {
		appendLive(s.inAdj[id], dir&Outgoing != 0)
	}
	return rels, nil
}

// Counts returns the number of live nodes and relationships.
func (s *GraphStore) Counts() (nodes, rels int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, slot := range s.nodes {
		if !slot.deleted {
			nodes++
		}
	}
	for _, slot := range s.rels {
		if !slot.deleted {
			rels++
		}
	}
	return nodes, rels
}

// ---------------------------------------------------------------------------
// Commit path, called only by the transaction manager, which serializes
// writers. validate and apply are split so the manager can keep the
// validate→apply window conflict-free under its own commit mutex.
// ---------------------------------------------------------------------------

// validate checks every entity in the write-set against the snapshot: a slot
// whose committed modVersion is newer than the snapshot means another
// transaction committed in between.
func (s *GraphStore) validate(ws *writeSet, snapshot uint64) (conflict string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id := range ws.touchedNodes() {
		if slot, exists := s.nodes[id]; exists && slot.modVersion > snapshot {
			return "node " + itoaU64(uint64(id)), false
		}
	}
	for id := range ws.touchedRels() {
		if slot, exists := s.rels[id]; exists && slot.modVersion > snapshot {
			return "relationship " + itoaU64(uint64(id)), false
		}
	}
	return "", true
}

// apply installs a validated write-set atomically, advances the committed
// version, and returns it together with the per-entity change list the
// IndexManager consumes. Referential integrity of new relationships is
// enforced here: both endpoints must be live at apply time.
func (s *GraphStore) apply(ws *writeSet) (uint64, []entityChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check referential integrity before touching anything.
	for _, r := range ws.rels {
		if r.deleted || r.rel == nil {
			continue
		}
		if !s.nodeLiveOrPending(r.rel.Start, ws) {
			return 0, nil, storageErrorf("relationship %d references missing start node %d", r.rel.ID, r.rel.Start)
		}
		if !s.nodeLiveOrPending(r.rel.End, ws) {
			return 0, nil, storageErrorf("relationship %d references missing end node %d", r.rel.ID, r.rel.End)
		}
	}

	s.version++
	v := s.version
	var changes []entityChange

	for id, pending := range ws.nodes {
		prev := s.nodes[id]
		switch {
		case pending.deleted:
			if prev == nil || prev.deleted {
				continue
			}
			prev.deleted = true
			prev.modVersion = v
			s.unlabelLocked(prev.node)
			changes = append(changes, entityChange{kind: nodeDeleted, oldNode: prev.node})

		case prev == nil || prev.deleted:
			s.nodes[id] = &nodeSlot{node: pending.node, modVersion: v}
			s.labelLocked(pending.node)
			changes = append(changes, entityChange{kind: nodeCreated, node: pending.node})

		default:
			old := prev.node
			s.unlabelLocked(old)
			prev.node = pending.node
			prev.modVersion = v
			s.labelLocked(pending.node)
			changes = append(changes, entityChange{kind: nodeUpdated, node: pending.node, oldNode: old})
		}
	}

	for id, pending := range ws.rels {
		prev := s.rels[id]
		switch {
		case pending.deleted:
			if prev == nil || prev.deleted {
				continue
			}
			prev.deleted = true
			prev.modVersion = v
			changes = append(changes, entityChange{kind: relDeleted, oldRel: prev.rel})

		case prev == nil || prev.deleted:
			s.rels[id] = &relSlot{rel: pending.rel, modVersion: v}
			s.outAdj[pending.rel.Start] = append(s.outAdj[pending.rel.Start], id)
			s.inAdj[pending.rel.End] = append(s.inAdj[pending.rel.End], id)
			changes = append(changes, entityChange{kind: relCreated, rel: pending.rel})

		default:
			old := prev.rel
			prev.rel = pending.rel
			prev.modVersion = v
			changes = append(changes, entityChange{kind: relUpdated, rel: pending.rel, oldRel: old})
		}
	}

	return v, changes, nil
}

// nodeLiveOrPending reports whether a node exists in committed state or is
// being created by the same write-set.
func (s *GraphStore) nodeLiveOrPending(id NodeID, ws *writeSet) bool {
	if p, ok := ws.nodes[id]; ok {
		return !p.deleted
	}
	slot, ok := s.nodes[id]
	return ok && !slot.deleted
}

func (s *GraphStore) labelLocked(n *Node) {
	for _, l := range n.Labels {
		set := s.byLabel[l]
		if set == nil {
			set = make(map[NodeID]struct{})
			s.byLabel[l] = set
		}
		set[n.ID] = struct{}{}
	}
}

func (s *GraphStore) unlabelLocked(n *Node) {
	for _, l := range n.Labels {
		if set := s.byLabel[l]; set != nil {
			delete(set, n.ID)
		}
	}
}

// Compact physically removes tombstoned slots and prunes dangling adjacency
// entries. Safe to call at any time; takes the write lock.
func (s *GraphStore) Compact() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, slot := range s.rels {
		if slot.deleted {
			delete(s.rels, id)
		}
	}
	for id, slot := range s.nodes {
		if slot.deleted {
			delete(s.nodes, id)
			delete(s.outAdj, id)
			delete(s.inAdj, id)
		}
	}
	prune := func(adj map[NodeID][]RelID) {
		for nid, ids := range adj {
			kept := ids[:0]
			for _, rid := range ids {
				if slot, ok := s.rels[rid]; ok && !slot.deleted {
					kept = append(kept, rid)
				}
			}
			if len(kept) == 0 {
				delete(adj, nid)
			} else {
				adj[nid] = kept
			}
		}
	}
	prune(s.outAdj)
	prune(s.inAdj)
}

// restoreNode reinstalls a node loaded from the persistence collaborator,
// keeping the ID allocator ahead of the highest identifier seen.
func (s *GraphStore) restoreNode(n *Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = &nodeSlot{node: n}
	s.labelLocked(n)
	if n.ID > s.nextNodeID {
		s.nextNodeID = n.ID
	}
}

func (s *GraphStore) restoreRelationship(r *Relationship) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rels[r.ID] = &relSlot{rel: r}
	s.outAdj[r.Start] = append(s.outAdj[r.Start], r.ID)
	s.inAdj[r.End] = append(s.inAdj[r.End], r.ID)
	if r.ID > s.nextRelID {
		s.nextRelID = r.ID
	}
}

// ---------------------------------------------------------------------------
// entityChange is what the IndexManager consumes after a commit.
// ---------------------------------------------------------------------------

type changeKind int

const (
	nodeCreated changeKind = iota
	nodeUpdated
	nodeDeleted
	relCreated
	relUpdated
	relDeleted
)

type entityChange struct {
	kind    changeKind
	node    *Node
	oldNode *Node
	rel     *Relationship
	oldRel  *Relationship
}

func itoaU64(v uint64) string { return strconv.FormatUint(v, 10) }
