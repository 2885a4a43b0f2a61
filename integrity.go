package kgraph

import "fmt"

// --------------------------------------------------------------------------
// Integrity checker: read-only verification of the committed graph's
// internal invariants. Intended for tests and operational spot checks, not
// the hot path; it holds the store read lock for the duration.
// --------------------------------------------------------------------------

// IntegrityIssue describes one detected inconsistency.
type IntegrityIssue struct {
	Kind   string
	Detail string
}

func (i IntegrityIssue) String() string { return i.Kind + ": " + i.Detail }

// CheckIntegrity verifies the committed graph and returns every issue
// found. A healthy store returns an empty slice.
//
// Checked invariants: live relationships reference live endpoints, every
// live relationship appears in both endpoint adjacency lists, adjacency
// entries point at existing relationship slots that touch the node, and the
// label registry agrees with node labels.
func (s *GraphStore) CheckIntegrity() []IntegrityIssue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var issues []IntegrityIssue
	report := func(kind, format string, args ...any) {
		issues = append(issues, IntegrityIssue{Kind: kind, Detail: fmt.Sprintf(format, args...)})
	}

	liveNode := func(id NodeID) bool {
		slot, ok := s.nodes[id]
		return ok && !slot.deleted
	}

	contains := func(ids []RelID, want RelID) bool {
		for _, id := range ids {
			if id == want {
				return true
			}
		}
		return false
	}

	for id, slot := range s.rels {
		if slot.deleted {
			continue
		}
		r := slot.rel
		if !liveNode(r.Start) {
			report("dangling-endpoint", "relationship %d start node %d is not live", id, r.Start)
		}
		if !liveNode(r.End) {
			report("dangling-endpoint", "relationship %d end node %d is not live", id, r.End)
		}
		if !contains(s.outAdj[r.Start], id) {
			report("adjacency-miss", "relationship %d missing from out-adjacency of node %d", id, r.Start)
		}
		if !contains(s.inAdj[r.End], id) {
			report("adjacency-miss", "relationship %d missing from in-adjacency of node %d", id, r.End)
		}
	}

	checkAdj := func(adj map[NodeID][]RelID, name string, endpoint func(*Relationship) NodeID) {
		for nid, ids := range adj {
			for _, rid := range ids {
				slot, ok := s.rels[rid]
				if !ok {
					report("adjacency-orphan", "%s-adjacency of node %d references unknown relationship %d", name, nid, rid)
					continue
				}
				if slot.deleted {
					continue // pruned lazily by Compact
				}
				if endpoint(slot.rel) != nid {
					report("adjacency-mismatch", "%s-adjacency of node %d lists relationship %d which does not touch it", name, nid, rid)
				}
			}
		}
	}
	checkAdj(s.outAdj, "out", func(r *Relationship) NodeID { return r.Start })
	checkAdj(s.inAdj, "in", func(r *Relationship) NodeID { return r.End })

	for label, set := range s.byLabel {
		for id := range set {
			slot, ok := s.nodes[id]
			if !ok || slot.deleted {
				report("label-orphan", "label %q lists missing node %d", label, id)
				continue
			}
			if !slot.node.HasLabel(label) {
				report("label-mismatch", "label %q lists node %d which does not carry it", label, id)
			}
		}
	}
	for id, slot := range s.nodes {
		if slot.deleted {
			continue
		}
		for _, label := range slot.node.Labels {
			if _, ok := s.byLabel[label][id]; !ok {
				report("label-miss", "node %d carries label %q but the registry does not list it", id, label)
			}
		}
	}
	return issues
}
