package kgraph

import (
	"errors"
	"fmt"
	"sync"
)

// --------------------------------------------------------------------------
// Unique constraints: no two committed nodes with the same label may share
// a value for the constrained property. Constraints are checked inside the
// commit critical section, after OCC validation and before apply, so a
// violating transaction aborts without touching shared state. Nodes lacking
// the property are unconstrained.
// --------------------------------------------------------------------------

// ErrUniqueConstraint is wrapped by every uniqueness violation.
var ErrUniqueConstraint = errors.New("unique constraint violation")

// UniqueConstraint names one constrained (label, property) pair.
type UniqueConstraint struct {
	Label    string
	Property string
}

func (c UniqueConstraint) key() string { return c.Label + "\x00" + c.Property }

// uniqueIndex tracks the committed owner of every constrained value.
type uniqueIndex struct {
	def    UniqueConstraint
	values map[string]NodeID
}

// valueKey encodes a property value into a comparable key, or ok=false for
// values uniqueness does not apply to.
func (u *uniqueIndex) valueKey(n *Node) (string, bool) {
	if !n.HasLabel(u.def.Label) {
		return "", false
	}
	v, ok := n.Props[u.def.Property]
	if !ok {
		return "", false
	}
	enc, ok := encodeIndexValue(v)
	if !ok {
		return "", false
	}
	return string(enc), true
}

// constraintRegistry holds every unique constraint. Reads during commit take
// the read lock; constraint creation takes the write lock.
type constraintRegistry struct {
	mu          sync.RWMutex
	constraints map[string]*uniqueIndex
}

func newConstraintRegistry() *constraintRegistry {
	return &constraintRegistry{constraints: make(map[string]*uniqueIndex)}
}

// add registers a constraint and backfills it from committed state,
// failing when existing nodes already collide.
func (r *constraintRegistry) add(def UniqueConstraint, store *GraphStore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.constraints[def.key()]; dup {
		return storageErrorf("unique constraint on %s.%s already exists", def.Label, def.Property)
	}
	u := &uniqueIndex{def: def, values: make(map[string]NodeID)}
	err := store.ForEachNode(func(n *Node) error {
		key, ok := u.valueKey(n)
		if !ok {
			return nil
		}
		if owner, taken := u.values[key]; taken {
			return fmt.Errorf("%w: %s.%s shared by nodes %d and %d",
				ErrUniqueConstraint, def.Label, def.Property, owner, n.ID)
		}
		u.values[key] = n.ID
		return nil
	})
	if err != nil {
		return err
	}
	r.constraints[def.key()] = u
	return nil
}

// drop removes a constraint.
func (r *constraintRegistry) drop(def UniqueConstraint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.constraints[def.key()]; !ok {
		return storageErrorf("unique constraint on %s.%s does not exist", def.Label, def.Property)
	}
	delete(r.constraints, def.key())
	return nil
}

// list returns the registered constraints.
func (r *constraintRegistry) list() []UniqueConstraint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]UniqueConstraint, 0, len(r.constraints))
	for _, u := range r.constraints {
		out = append(out, u.def)
	}
	return out
}

// validateWriteSet checks a write-set against every constraint: a buffered
// node may not claim a value owned by a different committed node, nor may
// two nodes in the same write-set claim the same value.
func (r *constraintRegistry) validateWriteSet(ws *writeSet) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.constraints {
		intra := make(map[string]NodeID)
		for id, p := range ws.nodes {
			if p.deleted || p.node == nil {
				continue
			}
			key, ok := u.valueKey(p.node)
			if !ok {
				continue
			}
			if prev, dup := intra[key]; dup {
				return fmt.Errorf("%w: %s.%s claimed twice in one transaction by nodes %d and %d",
					ErrUniqueConstraint, u.def.Label, u.def.Property, prev, id)
			}
			intra[key] = id
			if owner, taken := u.values[key]; taken && owner != id {
				// The owner may be losing the value in this same write-set.
				if p2, ok := ws.nodes[owner]; ok {
					if p2.deleted {
						continue
					}
					if k2, has := u.valueKey(p2.node); !has || k2 != key {
						continue
					}
				}
				return fmt.Errorf("%w: %s.%s value already owned by node %d",
					ErrUniqueConstraint, u.def.Label, u.def.Property, owner)
			}
		}
	}
	return nil
}

// applyChanges folds a committed change list into the ownership maps.
func (r *constraintRegistry) applyChanges(changes []entityChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.constraints {
		for _, ch := range changes {
			switch ch.kind {
			case nodeCreated:
				if key, ok := u.valueKey(ch.node); ok {
					u.values[key] = ch.node.ID
				}
			case nodeUpdated:
				if key, ok := u.valueKey(ch.oldNode); ok && u.values[key] == ch.oldNode.ID {
					delete(u.values, key)
				}
				if key, ok := u.valueKey(ch.node); ok {
					u.values[key] = ch.node.ID
				}
			case nodeDeleted:
				if key, ok := u.valueKey(ch.oldNode); ok && u.values[key] == ch.oldNode.ID {
					delete(u.values, key)
				}
			}
		}
	}
}
