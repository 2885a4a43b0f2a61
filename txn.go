package kgraph

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Optimistic transactions. Begin captures the committed version as the
// snapshot; every mutation buffers into a write-set with read-your-writes
// visibility. Commit validates the write-set against per-entity modification
// versions under the manager's commit mutex, so the validate→apply window is
// conflict-free; a newer committed version on any touched entity aborts the
// transaction and leaves shared state untouched. The manager is the sole
// writer of the store's version counter, and readers never block on writers.
// --------------------------------------------------------------------------

// TxStatus is the lifecycle state of a transaction.
type TxStatus int

const (
	TxActive TxStatus = iota
	TxCommitted
	TxAborted
	TxRolledBack
)

func (s TxStatus) String() string {
	switch s {
	case TxActive:
		return "active"
	case TxCommitted:
		return "committed"
	case TxAborted:
		return "aborted"
	case TxRolledBack:
		return "rolled back"
	}
	return "unknown"
}

// ---------------------------------------------------------------------------
// Write-set
// ---------------------------------------------------------------------------

type pendingNode struct {
	node    *Node
	deleted bool
}

type pendingRel struct {
	rel     *Relationship
	deleted bool
}

// writeSet buffers a transaction's uncommitted mutations, keyed by entity
// ID. The latest buffered state per entity wins; a create followed by an
// update is indistinguishable from a single create.
type writeSet struct {
	nodes map[NodeID]*pendingNode
	rels  map[RelID]*pendingRel
}

func newWriteSet() *writeSet {
	return &writeSet{
		nodes: make(map[NodeID]*pendingNode),
		rels:  make(map[RelID]*pendingRel),
	}
}

func (ws *writeSet) empty() bool {
	return len(ws.nodes) == 0 && len(ws.rels) == 0
}

func (ws *writeSet) touchedNodes() map[NodeID]struct{} {
	out := make(map[NodeID]struct{}, len(ws.nodes))
	for id := range ws.nodes {
		out[id] = struct{}{}
	}
	return out
}

func (ws *writeSet) touchedRels() map[RelID]struct{} {
	out := make(map[RelID]struct{}, len(ws.rels))
	for id := range ws.rels {
		out[id] = struct{}{}
	}
	return out
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

// TxManager hands out transactions and serializes commits.
type TxManager struct {
	store       *GraphStore
	indexes     *IndexManager
	constraints *constraintRegistry
	logger      *slog.Logger
	metrics     *Metrics
	database    string

	commitMu sync.Mutex
}

func newTxManager(store *GraphStore, indexes *IndexManager, constraints *constraintRegistry, logger *slog.Logger, metrics *Metrics, database string) *TxManager {
	return &TxManager{
		store:       store,
		indexes:     indexes,
		constraints: constraints,
		logger:      logger,
		metrics:     metrics,
		database:    database,
	}
}

// Begin opens a transaction against the current committed version.
func (m *TxManager) Begin(ctx context.Context) (*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, &KnowledgeGraphError{Msg: "begin transaction", Err: err}
	}
	tx := &Transaction{
		id:       uuid.NewString(),
		mgr:      m,
		snapshot: m.store.Version(),
		ws:       newWriteSet(),
	}
	m.logger.Debug("transaction started", "tx", tx.id, "snapshot", tx.snapshot)
	return tx, nil
}

// Bookmark captures the committed position of this manager's database.
func (m *TxManager) Bookmark() Bookmark {
	return Bookmark{Database: m.database, Version: m.store.Version()}
}

// Bookmark is a causal position in one database's commit history.
type Bookmark struct {
	Database string
	Version  uint64
}

// NewerThan reports whether b is causally ahead of other. Bookmarks are
// comparable only within one database.
func (b Bookmark) NewerThan(other Bookmark) (bool, error) {
	if b.Database != other.Database {
		return false, storageErrorf("cannot compare bookmarks across databases %q and %q",
			b.Database, other.Database)
	}
	return b.Version > other.Version, nil
}

// ---------------------------------------------------------------------------
// Transaction
// ---------------------------------------------------------------------------

// Transaction is a buffered unit of work. Not safe for concurrent use by
// multiple goroutines; separate transactions are independent.
type Transaction struct {
	id       string
	mgr      *TxManager
	engine   *Engine // set when created through Engine.Begin
	snapshot uint64
	ws       *writeSet

	mu     sync.Mutex
	status TxStatus
	// commitVersion is the version the commit installed, 0 before commit.
	commitVersion uint64
}

// ID returns the transaction's unique identifier.
func (tx *Transaction) ID() string { return tx.id }

// Status returns the lifecycle state.
func (tx *Transaction) Status() TxStatus {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.status
}

// Snapshot returns the committed version the transaction reads from.
func (tx *Transaction) Snapshot() uint64 { return tx.snapshot }

func (tx *Transaction) active() error {
	if tx.status != TxActive {
		return storageErrorf("transaction %s is %s", tx.id, tx.status)
	}
	return nil
}

// view returns the transaction's read surface: write-set over committed
// state.
func (tx *Transaction) view() graphView {
	return &overlayView{tx: tx}
}

// CreateNode buffers a new node and returns it with its assigned ID.
func (tx *Transaction) CreateNode(labels []string, props Props) (*Node, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return nil, err
	}
	n := &Node{
		ID:     tx.mgr.store.allocNodeID(),
		Labels: append([]string(nil), labels...),
		Props:  cloneProps(props),
	}
	tx.ws.nodes[n.ID] = &pendingNode{node: n}
	return n, nil
}

// CreateRelationship buffers a new relationship. Both endpoints must be
// visible to the transaction, committed or buffered.
func (tx *Transaction) CreateRelationship(start, end NodeID, relType string, props Props) (*Relationship, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return nil, err
	}
	if _, err := tx.nodeLocked(start); err != nil {
		return nil, storageErrorf("relationship start node %d does not exist", start)
	}
	if _, err := tx.nodeLocked(end); err != nil {
		return nil, storageErrorf("relationship end node %d does not exist", end)
	}
	r := &Relationship{
		ID:    tx.mgr.store.allocRelID(),
		Type:  relType,
		Start: start,
		End:   end,
		Props: cloneProps(props),
	}
	tx.ws.rels[r.ID] = &pendingRel{rel: r}
	return r, nil
}

// SetProperty buffers a property write on a node.
func (tx *Transaction) SetProperty(id NodeID, key string, value any) error {
	return tx.mutateNode(id, func(n *Node) {
		n.Props[key] = value
	})
}

// RemoveProperty buffers a property removal on a node.
func (tx *Transaction) RemoveProperty(id NodeID, key string) error {
	return tx.mutateNode(id, func(n *Node) {
		delete(n.Props, key)
	})
}

// AddLabel buffers a label addition; adding a label the node already has is
// a no-op.
func (tx *Transaction) AddLabel(id NodeID, label string) error {
	return tx.mutateNode(id, func(n *Node) {
		if !n.HasLabel(label) {
			n.Labels = append(n.Labels, label)
		}
	})
}

// RemoveLabel buffers a label removal.
func (tx *Transaction) RemoveLabel(id NodeID, label string) error {
	return tx.mutateNode(id, func(n *Node) {
		out := n.Labels[:0]
		for _, l := range n.Labels {
			if l != label {
				out = append(out, l)
			}
		}
		n.Labels = out
	})
}

// SetRelationshipProperty buffers a property write on a relationship.
func (tx *Transaction) SetRelationshipProperty(id RelID, key string, value any) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	r, err := tx.relLocked(id)
	if err != nil {
		return err
	}
	clone := cloneRelationship(r)
	clone.Props[key] = value
	tx.ws.rels[id] = &pendingRel{rel: clone}
	return nil
}

// DeleteNode buffers a node tombstone. A node still attached to visible
// relationships cannot be deleted; use DetachDeleteNode.
func (tx *Transaction) DeleteNode(id NodeID) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	if _, err := tx.nodeLocked(id); err != nil {
		return err
	}
	rels, err := tx.relationshipsOfLocked(id, Both)
	if err != nil {
		return err
	}
	if len(rels) > 0 {
		return storageErrorf("node %d still has %d relationships", id, len(rels))
	}
	tx.ws.nodes[id] = &pendingNode{deleted: true}
	return nil
}

// DetachDeleteNode buffers tombstones for a node and every visible
// relationship attached to it.
func (tx *Transaction) DetachDeleteNode(id NodeID) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	if _, err := tx.nodeLocked(id); err != nil {
		return err
	}
	rels, err := tx.relationshipsOfLocked(id, Both)
	if err != nil {
		return err
	}
	for _, r := range rels {
		tx.ws.rels[r.ID] = &pendingRel{deleted: true}
	}
	tx.ws.nodes[id] = &pendingNode{deleted: true}
	return nil
}

// DeleteRelationship buffers a relationship tombstone.
func (tx *Transaction) DeleteRelationship(id RelID) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	if _, err := tx.relLocked(id); err != nil {
		return err
	}
	tx.ws.rels[id] = &pendingRel{deleted: true}
	return nil
}

// GetNode reads a node with read-your-writes visibility.
func (tx *Transaction) GetNode(id NodeID) (*Node, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return nil, err
	}
	return tx.nodeLocked(id)
}

// GetRelationship reads a relationship with read-your-writes visibility.
func (tx *Transaction) GetRelationship(id RelID) (*Relationship, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return nil, err
	}
	return tx.relLocked(id)
}

// Query runs a Cypher query inside the transaction, seeing the overlay.
// Only transactions created through Engine.Begin can query.
func (tx *Transaction) Query(ctx context.Context, text string, params map[string]any) (*Records, error) {
	if tx.engine == nil {
		return nil, storageErrorf("transaction %s is not attached to an engine", tx.id)
	}
	if st := tx.Status(); st != TxActive {
		return nil, storageErrorf("transaction %s is %s", tx.id, st)
	}
	return tx.engine.queryInTx(ctx, text, params, tx)
}

// Commit validates and atomically applies the write-set. On conflict the
// transaction aborts, shared state stays untouched, and the returned error
// is a *TransactionAbortedError. A terminal transaction cannot commit.
func (tx *Transaction) Commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &KnowledgeGraphError{Msg: "commit", Err: err}
	}
	if tx.ws.empty() {
		tx.status = TxCommitted
		return nil
	}

	m := tx.mgr
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	if conflict, ok := m.store.validate(tx.ws, tx.snapshot); !ok {
		tx.status = TxAborted
		m.metrics.conflict()
		m.logger.Debug("transaction aborted", "tx", tx.id, "conflict", conflict)
		return &TransactionAbortedError{TxID: tx.id, Msg: "write conflict on " + conflict}
	}
	if m.constraints != nil {
		if err := m.constraints.validateWriteSet(tx.ws); err != nil {
			tx.status = TxAborted
			m.logger.Debug("transaction aborted", "tx", tx.id, "cause", err)
			return err
		}
	}
	v, changes, err := m.store.apply(tx.ws)
	if err != nil {
		tx.status = TxAborted
		return err
	}
	if m.indexes != nil {
		if err := m.indexes.applyChanges(changes); err != nil {
			return wrapUnexpected("apply index changes", err)
		}
	}
	if m.constraints != nil {
		m.constraints.applyChanges(changes)
	}
	tx.status = TxCommitted
	tx.commitVersion = v
	m.metrics.commit()
	m.logger.Debug("transaction committed", "tx", tx.id, "version", v, "changes", len(changes))
	return nil
}

// Rollback discards the write-set. It never fails; rolling back a terminal
// transaction is a no-op.
func (tx *Transaction) Rollback() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.status != TxActive {
		return
	}
	tx.ws = newWriteSet()
	tx.status = TxRolledBack
	tx.mgr.logger.Debug("transaction rolled back", "tx", tx.id)
}

// ---------------------------------------------------------------------------
// Overlay reads
// ---------------------------------------------------------------------------

func (tx *Transaction) nodeLocked(id NodeID) (*Node, error) {
	if p, ok := tx.ws.nodes[id]; ok {
		if p.deleted {
			return nil, storageErrorf("node %d does not exist", id)
		}
		return p.node, nil
	}
	return tx.mgr.store.GetNode(id)
}

func (tx *Transaction) relLocked(id RelID) (*Relationship, error) {
	if p, ok := tx.ws.rels[id]; ok {
		if p.deleted {
			return nil, storageErrorf("relationship %d does not exist", id)
		}
		return p.rel, nil
	}
	return tx.mgr.store.GetRelationship(id)
}

func (tx *Transaction) mutateNode(id NodeID, mutate func(*Node)) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	current, err := tx.nodeLocked(id)
	if err != nil {
		return err
	}
	clone := cloneNode(current)
	mutate(clone)
	tx.ws.nodes[id] = &pendingNode{node: clone}
	return nil
}

// relationshipsOfLocked merges committed adjacency with buffered
// relationships, honoring buffered deletes and updates.
func (tx *Transaction) relationshipsOfLocked(id NodeID, dir Direction) ([]*Relationship, error) {
	committed, err := tx.mgr.store.RelationshipsOf(id, dir)
	if err != nil {
		// A node created in this transaction has no committed adjacency.
		if _, pending := tx.ws.nodes[id]; !pending {
			return nil, err
		}
		committed = nil
	}
	var out []*Relationship
	for _, r := range committed {
		if p, ok := tx.ws.rels[r.ID]; ok {
			if p.deleted {
				continue
			}
			r = p.rel
		}
		out = append(out, r)
	}
	for _, p := range tx.ws.rels {
		if p.deleted || p.rel == nil {
			continue
		}
		if _, err := tx.mgr.store.GetRelationship(p.rel.ID); err == nil {
			continue // committed, already merged above
		}
		r := p.rel
		wantOut := dir&Outgoing != 0 && r.Start == id
		wantIn := dir&Incoming != 0 && r.End == id
		if wantOut || wantIn {
			out = append(out, r)
		}
	}
	return out, nil
}

// overlayView adapts a transaction to the executor's read surface.
type overlayView struct {
	tx *Transaction
}

func (v *overlayView) GetNode(id NodeID) (*Node, error) {
	v.tx.mu.Lock()
	defer v.tx.mu.Unlock()
	return v.tx.nodeLocked(id)
}

func (v *overlayView) GetRelationship(id RelID) (*Relationship, error) {
	v.tx.mu.Lock()
	defer v.tx.mu.Unlock()
	return v.tx.relLocked(id)
}

func (v *overlayView) ForEachNode(fn func(*Node) error) error {
	v.tx.mu.Lock()
	defer v.tx.mu.Unlock()
	ws := v.tx.ws
	err := v.tx.mgr.store.ForEachNode(func(n *Node) error {
		if p, ok := ws.nodes[n.ID]; ok {
			if p.deleted {
				return nil
			}
			n = p.node
		}
		return fn(n)
	})
	if err != nil {
		return err
	}
	for id, p := range ws.nodes {
		if p.deleted {
			continue
		}
		if _, err := v.tx.mgr.store.GetNode(id); err == nil {
			continue // already visited as an overlaid committed node
		}
		if err := fn(p.node); err != nil {
			return err
		}
	}
	return nil
}

func (v *overlayView) NodesByLabel(label string) []NodeID {
	v.tx.mu.Lock()
	defer v.tx.mu.Unlock()
	ws := v.tx.ws
	var ids []NodeID
	for _, id := range v.tx.mgr.store.NodesByLabel(label) {
		if p, ok := ws.nodes[id]; ok {
			if p.deleted || !p.node.HasLabel(label) {
				continue
			}
		}
		ids = append(ids, id)
	}
	for id, p := range ws.nodes {
		if p.deleted || !p.node.HasLabel(label) {
			continue
		}
		if n, err := v.tx.mgr.store.GetNode(id); err == nil && n.HasLabel(label) {
			continue // already listed
		}
		ids = append(ids, id)
	}
	return ids
}

func (v *overlayView) RelationshipsOf(id NodeID, dir Direction) ([]*Relationship, error) {
	v.tx.mu.Lock()
	defer v.tx.mu.Unlock()
	return v.tx.relationshipsOfLocked(id, dir)
}

// ---------------------------------------------------------------------------
// Clone helpers. Buffered mutations never alias committed entities.
// ---------------------------------------------------------------------------

func cloneProps(p Props) Props {
	out := make(Props, len(p))
	for k, val := range p {
		out[k] = val
	}
	return out
}

func cloneNode(n *Node) *Node {
	return &Node{
		ID:     n.ID,
		Labels: append([]string(nil), n.Labels...),
		Props:  cloneProps(n.Props),
	}
}

func cloneRelationship(r *Relationship) *Relationship {
	return &Relationship{
		ID:    r.ID,
		Type:  r.Type,
		Start: r.Start,
		End:   r.End,
		Props: cloneProps(r.Props),
	}
}
