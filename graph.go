package kgraph

import "fmt"

// NodeID uniquely identifies a node in the graph.
type NodeID uint64

// RelID uniquely identifies a relationship in the graph.
type RelID uint64

// Props holds arbitrary key-value properties for nodes and relationships.
// Values are restricted to the scalar/list/map subset of the value model.
type Props map[string]any

// Direction represents the direction of a relationship traversal.
type Direction byte

const (
	// Outgoing follows relationships that start at the bound node.
	Outgoing Direction = 0x01
	// Incoming follows relationships that end at the bound node.
	Incoming Direction = 0x02
	// Both follows relationships in either direction.
	Both Direction = 0x03
)

// Node is a vertex: an identifier, an unordered label set, and properties.
// Nodes are tombstoned on delete, not physically removed until compaction.
type Node struct {
	ID     NodeID   `json:"id" msgpack:"id"`
	Labels []string `json:"labels,omitempty" msgpack:"labels"`
	Props  Props    `json:"props,omitempty" msgpack:"props"`
}

// HasLabel reports whether the node carries the given label.
func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Get returns a property value by key, with an existence flag.
func (n *Node) Get(key string) (any, bool) {
	v, ok := n.Props[key]
	return v, ok
}

// GetString returns a string property or the empty string.
func (n *Node) GetString(key string) string {
	if s, ok := n.Props[key].(string); ok {
		return s
	}
	return ""
}

// Relationship is a directed, typed edge between two existing nodes.
// Start and End are identifiers, never pointers; the arena owns the nodes.
type Relationship struct {
	ID    RelID  `json:"id" msgpack:"id"`
	Type  string `json:"type" msgpack:"type"`
	Start NodeID `json:"start" msgpack:"start"`
	End   NodeID `json:"end" msgpack:"end"`
	Props Props  `json:"props,omitempty" msgpack:"props"`
}

// String returns a human-readable representation of the relationship.
func (r *Relationship) String() string {
	return fmt.Sprintf("(%d)-[:%s]->(%d)", r.Start, r.Type, r.End)
}

// Get returns a property value by key, with an existence flag.
func (r *Relationship) Get(key string) (any, bool) {
	v, ok := r.Props[key]
	return v, ok
}

// otherEnd returns the endpoint opposite to the given node.
func (r *Relationship) otherEnd(id NodeID) NodeID {
	if r.Start == id {
		return r.End
	}
	return r.Start
}

// Path is an alternating Node, Relationship, ..., Node sequence.
// len(Nodes) == len(Rels)+1; consecutive pairs are adjacent per the store.
type Path struct {
	Nodes []*Node
	Rels  []*Relationship
}

// Length is the number of relationships in the path.
func (p *Path) Length() int { return len(p.Rels) }

func (p *Path) startID() NodeID {
	if len(p.Nodes) == 0 {
		return 0
	}
	return p.Nodes[0].ID
}

// EndNode returns the final node of the path, or nil for an empty path.
func (p *Path) EndNode() *Node {
	if len(p.Nodes) == 0 {
		return nil
	}
	return p.Nodes[len(p.Nodes)-1]
}

// containsNode reports whether the path already visits the given node.
// Used for per-path cycle safety during variable-length expansion.
func (p *Path) containsNode(id NodeID) bool {
	for _, n := range p.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// Record is one result row: an ordered mapping from query variable (or
// projection alias) to a bound value. Unmatched OPTIONAL variables are
// present and bound to nil, never absent.
type Record struct {
	Columns []string
	Values  map[string]any
}

// Get returns the value bound to a column name.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// clone copies the record so downstream operators can rebind freely.
func (r *Record) clone() *Record {
	vals := make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		vals[k] = v
	}
	return &Record{Columns: r.Columns, Values: vals}
}
