package kgraph

import (
	"context"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// --------------------------------------------------------------------------
// Plan executor. Every operator is a cursor with open/next/close; next pulls
// one Record at a time so nothing materializes except where the operator is
// inherently blocking (OrderBy, GroupAggregate) or needs a seen-set
// (Distinct, Union). Cursors check the context at their suspension points,
// so cancelling the context tears the whole chain down mid-stream.
// --------------------------------------------------------------------------

// graphView is the read surface cursors run against. A bare GraphStore
// implements it for auto-committed queries; a transaction's overlay
// implements it with read-your-writes.
type graphView interface {
	GetNode(id NodeID) (*Node, error)
	GetRelationship(id RelID) (*Relationship, error)
	ForEachNode(fn func(*Node) error) error
	NodesByLabel(label string) []NodeID
	RelationshipsOf(id NodeID, dir Direction) ([]*Relationship, error)
}

// execEnv carries the per-execution runtime state shared by all cursors of
// one chain.
type execEnv struct {
	ctx     context.Context
	view    graphView
	indexes *IndexManager // nil disables index seeks at runtime
	params  map[string]any
	tx      *Transaction // write target; nil for read-only execution
	metrics *Metrics     // nil disables counting
}

// check surfaces context cancellation, wrapped so callers see a single
// engine error type with the cause preserved.
func (env *execEnv) check() error {
	if err := env.ctx.Err(); err != nil {
		return &KnowledgeGraphError{Msg: "query cancelled", Err: err}
	}
	return nil
}

// cursor is the volcano operator contract. next returns (nil, nil) at end
// of stream. open may be called again with a new seed to re-run the subtree
// against different outer bindings.
type cursor interface {
	open(seed *Record) error
	next() (*Record, error)
	close() error
}

// buildCursor translates a plan subtree into its cursor chain.
func buildCursor(env *execEnv, p *PlanNode) (cursor, error) {
	if p == nil {
		return &emptyCursor{}, nil
	}
	var input cursor
	if p.Input != nil {
		var err error
		input, err = buildCursor(env, p.Input)
		if err != nil {
			return nil, err
		}
	} else {
		switch p.Op {
		case OpAllNodesScan, OpLabelScan, OpIndexSeek:
			// Scans without an input read the whole graph directly.
		default:
			input = &emptyCursor{}
		}
	}
	switch p.Op {
	case OpAllNodesScan, OpLabelScan, OpIndexSeek:
		return &scanCursor{env: env, plan: p, input: input}, nil
	case OpOptionalScan:
		inner, err := buildCursor(env, p.Right)
		if err != nil {
			return nil, err
		}
		return &optionalScanCursor{env: env, plan: p, input: input, inner: inner}, nil
	case OpExpand:
		return &expandCursor{env: env, plan: p, input: input}, nil
	case OpOptionalExpand:
		return &optionalExpandCursor{env: env, plan: p, input: input}, nil
	case OpVarExpand:
		return &varExpandCursor{env: env, plan: p, input: input}, nil
	case OpFilter:
		return &filterCursor{env: env, plan: p, input: input}, nil
	case OpProject:
		return &projectCursor{env: env, plan: p, input: input}, nil
	case OpDistinct:
		return &distinctCursor{env: env, plan: p, input: input}, nil
	case OpOrderBy:
		return &orderByCursor{env: env, plan: p, input: input}, nil
	case OpSkipLimit:
		return &skipLimitCursor{env: env, plan: p, input: input}, nil
	case OpGroupAggregate:
		return &groupAggCursor{env: env, plan: p, input: input}, nil
	case OpUnion:
		right, err := buildCursor(env, p.Right)
		if err != nil {
			return nil, err
		}
		return &unionCursor{env: env, plan: p, left: input, right: right}, nil
	case OpCreate:
		return &createCursor{env: env, plan: p, input: input}, nil
	}
	return nil, &KnowledgeGraphError{Msg: "unknown plan operator"}
}

// emptyCursor yields a single empty record, the seed for plans with no
// reading clause (bare CREATE, RETURN 1).
type emptyCursor struct {
	done bool
	seed *Record
}

func (c *emptyCursor) open(seed *Record) error {
	c.done = false
	c.seed = seed
	return nil
}

func (c *emptyCursor) next() (*Record, error) {
	if c.done {
		return nil, nil
	}
	c.done = true
	if c.seed != nil {
		return c.seed.clone(), nil
	}
	return &Record{Values: map[string]any{}}, nil
}

func (c *emptyCursor) close() error { return nil }

// ---------------------------------------------------------------------------
// Scans
// ---------------------------------------------------------------------------

// scanCursor implements AllNodesScan, LabelScan and IndexSeek. With an input
// it re-runs per input row, acting as a nested-loop join. Candidate IDs are
// gathered per seed; index results are candidates only, so the residual
// predicate is re-applied to every hit.
type scanCursor struct {
	env   *execEnv
	plan  *PlanNode
	input cursor

	seed       *Record
	candidates []NodeID
	pos        int
	inputDone  bool
}

func (c *scanCursor) open(seed *Record) error {
	c.candidates = nil
	c.pos = 0
	c.inputDone = false
	if c.input != nil {
		c.seed = nil
		return c.input.open(seed)
	}
	if seed == nil {
		seed = &Record{Values: map[string]any{}}
	}
	c.seed = seed
	return c.gather()
}

func (c *scanCursor) gather() error {
	c.candidates = c.candidates[:0]
	c.pos = 0
	switch c.plan.Op {
	case OpAllNodesScan:
		return c.env.view.ForEachNode(func(n *Node) error {
			c.candidates = append(c.candidates, n.ID)
			return nil
		})
	case OpLabelScan:
		c.candidates = append(c.candidates, c.env.view.NodesByLabel(c.plan.Label)...)
		return nil
	case OpIndexSeek:
		seek := c.plan.Seek
		values := make([]any, len(seek.Values))
		for i := range seek.Values {
			v, err := evalExpr(&seek.Values[i], c.seed, c.env.params)
			if err != nil {
				return err
			}
			values[i] = v
		}
		ids, err := c.env.indexes.Seek(seek.IndexName, values)
		if err != nil {
			return err
		}
		c.env.metrics.indexLookup()
		c.candidates = append(c.candidates, ids...)
		return nil
	}
	return &KnowledgeGraphError{Msg: "unknown scan operator"}
}

func (c *scanCursor) next() (*Record, error) {
	for {
		if err := c.env.check(); err != nil {
			return nil, err
		}
		if c.pos >= len(c.candidates) {
			if c.input == nil || c.inputDone {
				return nil, nil
			}
			row, err := c.input.next()
			if err != nil {
				return nil, err
			}
			if row == nil {
				c.inputDone = true
				return nil, nil
			}
			c.seed = row
			if err := c.gather(); err != nil {
				return nil, err
			}
			continue
		}
		id := c.candidates[c.pos]
		c.pos++
		node, err := c.env.view.GetNode(id)
		if err != nil {
			// Index entries can trail deletes inside an overlay; a
			// missing candidate is simply not a match.
			if c.plan.Op == OpIndexSeek {
				continue
			}
			return nil, err
		}
		rec := c.seed.clone()
		rec.Values[c.plan.Variable] = node
		if c.plan.Residual != nil {
			keep, err := evalPredicate(c.plan.Residual, rec, c.env.params)
			if err != nil {
				return nil, err
			}
			if !keep {
				continue
			}
		}
		return rec, nil
	}
}

func (c *scanCursor) close() error {
	if c.input != nil {
		return c.input.close()
	}
	return nil
}

// optionalScanCursor applies its inner pattern subtree per input row and
// null-fills the subtree's variables when it matches nothing, so every
// input row survives exactly once at minimum.
type optionalScanCursor struct {
	env   *execEnv
	plan  *PlanNode
	input cursor
	inner cursor

	current *Record
	matched bool
	done    bool
}

func (c *optionalScanCursor) open(seed *Record) error {
	c.current = nil
	c.done = false
	return c.input.open(seed)
}

func (c *optionalScanCursor) next() (*Record, error) {
	for {
		if err := c.env.check(); err != nil {
			return nil, err
		}
		if c.current == nil {
			if c.done {
				return nil, nil
			}
			row, err := c.input.next()
			if err != nil {
				return nil, err
			}
			if row == nil {
				c.done = true
				return nil, nil
			}
			c.current = row
			c.matched = false
			if err := c.inner.open(row); err != nil {
				return nil, err
			}
		}
		row, err := c.inner.next()
		if err != nil {
			return nil, err
		}
		if row != nil {
			c.matched = true
			return row, nil
		}
		unmatched := c.current
		wasMatched := c.matched
		c.current = nil
		if !wasMatched {
			rec := unmatched.clone()
			for _, v := range c.plan.Columns {
				rec.Values[v] = nil
			}
			return rec, nil
		}
	}
}

func (c *optionalScanCursor) close() error {
	if err := c.inner.close(); err != nil {
		return err
	}
	return c.input.close()
}

// ---------------------------------------------------------------------------
// Expands
// ---------------------------------------------------------------------------

// expandCursor walks one relationship hop from the bound start node.
type expandCursor struct {
	env   *execEnv
	plan  *PlanNode
	input cursor

	seed *Record
	rels []*Relationship
	pos  int
}

func (c *expandCursor) open(seed *Record) error {
	c.seed = nil
	c.rels = nil
	c.pos = 0
	return c.input.open(seed)
}

func (c *expandCursor) next() (*Record, error) {
	for {
		if err := c.env.check(); err != nil {
			return nil, err
		}
		if c.seed == nil || c.pos >= len(c.rels) {
			row, err := c.input.next()
			if err != nil {
				return nil, err
			}
			if row == nil {
				return nil, nil
			}
			from, ok := row.Values[c.plan.FromVar].(*Node)
			if !ok {
				// Null start expands to nothing.
				continue
			}
			rels, err := c.env.view.RelationshipsOf(from.ID, c.plan.Dir)
			if err != nil {
				return nil, err
			}
			c.seed = row
			c.rels = rels
			c.pos = 0
			continue
		}
		rel := c.rels[c.pos]
		c.pos++
		if c.plan.RelType != "" && rel.Type != c.plan.RelType {
			continue
		}
		from := c.seed.Values[c.plan.FromVar].(*Node)
		toID := rel.otherEnd(from.ID)
		if c.plan.ToBound {
			bound, ok := c.seed.Values[c.plan.ToVar].(*Node)
			if !ok || bound.ID != toID {
				continue
			}
			rec := c.seed.clone()
			rec.Values[c.plan.RelVariable] = rel
			return rec, nil
		}
		to, err := c.env.view.GetNode(toID)
		if err != nil {
			return nil, err
		}
		rec := c.seed.clone()
		rec.Values[c.plan.RelVariable] = rel
		rec.Values[c.plan.ToVar] = to
		return rec, nil
	}
}

func (c *expandCursor) close() error { return c.input.close() }

// optionalExpandCursor is expandCursor with row preservation: an input row
// with no surviving match emits exactly one null-filled row.
type optionalExpandCursor struct {
	env   *execEnv
	plan  *PlanNode
	input cursor

	seed    *Record
	rels    []*Relationship
	pos     int
	matched bool
}

func (c *optionalExpandCursor) open(seed *Record) error {
	c.seed = nil
	c.rels = nil
	c.pos = 0
	return c.input.open(seed)
}

func (c *optionalExpandCursor) next() (*Record, error) {
	for {
		if err := c.env.check(); err != nil {
			return nil, err
		}
		if c.seed == nil {
			row, err := c.input.next()
			if err != nil {
				return nil, err
			}
			if row == nil {
				return nil, nil
			}
			c.seed = row
			c.pos = 0
			c.matched = false
			if from, ok := row.Values[c.plan.FromVar].(*Node); ok {
				c.rels, err = c.env.view.RelationshipsOf(from.ID, c.plan.Dir)
				if err != nil {
					return nil, err
				}
			} else {
				c.rels = nil
			}
		}
		if c.pos >= len(c.rels) {
			seed := c.seed
			matched := c.matched
			c.seed = nil
			if !matched {
				rec := seed.clone()
				rec.Values[c.plan.RelVariable] = nil
				rec.Values[c.plan.ToVar] = nil
				return rec, nil
			}
			continue
		}
		rel := c.rels[c.pos]
		c.pos++
		if c.plan.RelType != "" && rel.Type != c.plan.RelType {
			continue
		}
		from := c.seed.Values[c.plan.FromVar].(*Node)
		to, err := c.env.view.GetNode(rel.otherEnd(from.ID))
		if err != nil {
			return nil, err
		}
		rec := c.seed.clone()
		rec.Values[c.plan.RelVariable] = rel
		rec.Values[c.plan.ToVar] = to
		if c.plan.Predicate != nil {
			keep, err := evalPredicate(c.plan.Predicate, rec, c.env.params)
			if err != nil {
				return nil, err
			}
			if !keep {
				continue
			}
		}
		c.matched = true
		return rec, nil
	}
}

func (c *optionalExpandCursor) close() error { return c.input.close() }

// varExpandCursor enumerates variable-length paths by depth-first search.
// A node never repeats within one path, and depth is capped, so traversal
// terminates on cyclic graphs. The relationship variable binds to the list
// of traversed relationships.
type varExpandCursor struct {
	env   *execEnv
	plan  *PlanNode
	input cursor

	seed    *Record
	stack   []*Path
	pending []*Record
}

func (c *varExpandCursor) open(seed *Record) error {
	c.seed = nil
	c.stack = nil
	c.pending = nil
	return c.input.open(seed)
}

func (c *varExpandCursor) next() (*Record, error) {
	for {
		if err := c.env.check(); err != nil {
			return nil, err
		}
		if len(c.pending) > 0 {
			rec := c.pending[0]
			c.pending = c.pending[1:]
			return rec, nil
		}
		if len(c.stack) == 0 {
			row, err := c.input.next()
			if err != nil {
				return nil, err
			}
			if row == nil {
				return nil, nil
			}
			from, ok := row.Values[c.plan.FromVar].(*Node)
			if !ok {
				continue
			}
			c.seed = row
			root := &Path{Nodes: []*Node{from}}
			c.stack = append(c.stack[:0], root)
			if c.plan.MinHops == 0 {
				if rec, ok, err := c.emit(root); err != nil {
					return nil, err
				} else if ok {
					return rec, nil
				}
			}
			continue
		}
		path := c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]
		if path.Length() >= c.plan.MaxHops {
			continue
		}
		tip := path.Nodes[len(path.Nodes)-1]
		rels, err := c.env.view.RelationshipsOf(tip.ID, c.plan.Dir)
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			if c.plan.RelType != "" && rel.Type != c.plan.RelType {
				continue
			}
			nextID := rel.otherEnd(tip.ID)
			if path.containsNode(nextID) {
				continue
			}
			to, err := c.env.view.GetNode(nextID)
			if err != nil {
				return nil, err
			}
			ext := &Path{
				Nodes: append(append([]*Node{}, path.Nodes...), to),
				Rels:  append(append([]*Relationship{}, path.Rels...), rel),
			}
			c.stack = append(c.stack, ext)
			if ext.Length() >= c.plan.MinHops {
				if rec, ok, err := c.emit(ext); err != nil {
					return nil, err
				} else if ok {
					c.pending = append(c.pending, rec)
				}
			}
		}
	}
}

// emit builds the output row for a complete path, honoring a pre-bound end
// variable.
func (c *varExpandCursor) emit(path *Path) (*Record, bool, error) {
	end := path.EndNode()
	if c.plan.ToBound {
		bound, ok := c.seed.Values[c.plan.ToVar].(*Node)
		if !ok || bound.ID != end.ID {
			return nil, false, nil
		}
	}
	rec := c.seed.clone()
	relList := make([]any, len(path.Rels))
	for i, r := range path.Rels {
		relList[i] = r
	}
	rec.Values[c.plan.RelVariable] = relList
	if !c.plan.ToBound {
		rec.Values[c.plan.ToVar] = end
	}
	if c.plan.PathVar != "" {
		rec.Values[c.plan.PathVar] = path
	}
	return rec, true, nil
}

func (c *varExpandCursor) close() error { return c.input.close() }

// ---------------------------------------------------------------------------
// Row pipeline
// ---------------------------------------------------------------------------

type filterCursor struct {
	env   *execEnv
	plan  *PlanNode
	input cursor
}

func (c *filterCursor) open(seed *Record) error { return c.input.open(seed) }

func (c *filterCursor) next() (*Record, error) {
	for {
		if err := c.env.check(); err != nil {
			return nil, err
		}
		row, err := c.input.next()
		if err != nil || row == nil {
			return nil, err
		}
		keep, err := evalPredicate(c.plan.Predicate, row, c.env.params)
		if err != nil {
			return nil, err
		}
		if keep {
			return row, nil
		}
	}
}

func (c *filterCursor) close() error { return c.input.close() }

type projectCursor struct {
	env   *execEnv
	plan  *PlanNode
	input cursor
}

func (c *projectCursor) open(seed *Record) error { return c.input.open(seed) }

func (c *projectCursor) next() (*Record, error) {
	row, err := c.input.next()
	if err != nil || row == nil {
		return nil, err
	}
	// Input bindings are carried through so a later ORDER BY can sort on
	// expressions the projection did not keep. Columns still defines the
	// visible row; carried values never reach fingerprints or output checks.
	out := &Record{
		Columns: c.plan.Columns,
		Values:  make(map[string]any, len(row.Values)+len(c.plan.Items)),
	}
	for k, v := range row.Values {
		out.Values[k] = v
	}
	for i := range c.plan.Items {
		item := &c.plan.Items[i]
		v, err := evalExpr(&item.Expr, row, c.env.params)
		if err != nil {
			return nil, err
		}
		out.Values[item.Alias] = v
	}
	return out, nil
}

func (c *projectCursor) close() error { return c.input.close() }

type distinctCursor struct {
	env   *execEnv
	plan  *PlanNode
	input cursor
	seen  map[string]struct{}
}

func (c *distinctCursor) open(seed *Record) error {
	c.seen = make(map[string]struct{})
	return c.input.open(seed)
}

func (c *distinctCursor) next() (*Record, error) {
	for {
		if err := c.env.check(); err != nil {
			return nil, err
		}
		row, err := c.input.next()
		if err != nil || row == nil {
			return nil, err
		}
		key, err := fingerprintRecord(row, c.plan.Columns)
		if err != nil {
			return nil, err
		}
		if _, dup := c.seen[key]; dup {
			continue
		}
		c.seen[key] = struct{}{}
		return row, nil
	}
}

func (c *distinctCursor) close() error { return c.input.close() }

// orderByCursor materializes its input and sorts with the engine's total
// value order: within a sort key, nulls order last even under DESC, and
// values of different kinds order by kind rank. The sort is stable so rows
// equal under every key keep their upstream order.
type orderByCursor struct {
	env   *execEnv
	plan  *PlanNode
	input cursor

	rows []*Record
	keys [][]any
	pos  int
}

func (c *orderByCursor) open(seed *Record) error {
	c.rows = nil
	c.keys = nil
	c.pos = 0
	return c.input.open(seed)
}

func (c *orderByCursor) next() (*Record, error) {
	if c.rows == nil {
		if err := c.materialize(); err != nil {
			return nil, err
		}
	}
	if c.pos >= len(c.rows) {
		return nil, nil
	}
	rec := c.rows[c.pos]
	c.pos++
	return rec, nil
}

func (c *orderByCursor) materialize() error {
	c.rows = []*Record{}
	for {
		if err := c.env.check(); err != nil {
			return err
		}
		row, err := c.input.next()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		keys := make([]any, len(c.plan.SortItems))
		for i := range c.plan.SortItems {
			v, err := evalExpr(&c.plan.SortItems[i].Expr, row, c.env.params)
			if err != nil {
				return err
			}
			keys[i] = v
		}
		c.rows = append(c.rows, row)
		c.keys = append(c.keys, keys)
	}
	items := c.plan.SortItems
	order := make([]int, len(c.rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool {
		kx, ky := c.keys[order[x]], c.keys[order[y]]
		for i := range items {
			cmp := compareSortKeys(kx[i], ky[i], items[i].Desc)
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	sorted := make([]*Record, len(c.rows))
	for i, idx := range order {
		sorted[i] = c.rows[idx]
	}
	c.rows = sorted
	return nil
}

// compareSortKeys orders two sort key values for one ORDER BY item. Nulls
// sort after everything regardless of direction.
func compareSortKeys(a, b any, desc bool) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}
	cmp := compareValues(a, b)
	if desc {
		return -cmp
	}
	return cmp
}

func (c *orderByCursor) close() error { return c.input.close() }

type skipLimitCursor struct {
	env   *execEnv
	plan  *PlanNode
	input cursor

	skip    int64
	limit   int64 // -1 = unlimited
	emitted int64
}

func (c *skipLimitCursor) open(seed *Record) error {
	var err error
	c.skip, err = c.bound(c.plan.SkipExpr, 0)
	if err != nil {
		return err
	}
	c.limit, err = c.bound(c.plan.LimitExpr, -1)
	if err != nil {
		return err
	}
	c.emitted = 0
	return c.input.open(seed)
}

func (c *skipLimitCursor) bound(e *Expression, def int64) (int64, error) {
	if e == nil {
		return def, nil
	}
	v, err := evalExpr(e, &Record{Values: map[string]any{}}, c.env.params)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok || n < 0 {
		return 0, queryErrorAt(e.Line, e.Column,
			"SKIP/LIMIT requires a non-negative integer, got %v", v)
	}
	return n, nil
}

func (c *skipLimitCursor) next() (*Record, error) {
	for {
		if err := c.env.check(); err != nil {
			return nil, err
		}
		if c.limit >= 0 && c.emitted >= c.limit {
			return nil, nil
		}
		row, err := c.input.next()
		if err != nil || row == nil {
			return nil, err
		}
		if c.skip > 0 {
			c.skip--
			continue
		}
		c.emitted++
		return row, nil
	}
}

func (c *skipLimitCursor) close() error { return c.input.close() }

// groupAggCursor materializes its input into groups keyed by the grouping
// items and folds each aggregate per group. With no grouping keys an empty
// input still yields one row (count(*) over nothing is 0).
type groupAggCursor struct {
	env   *execEnv
	plan  *PlanNode
	input cursor

	out []*Record
	pos int
}

type aggGroup struct {
	rec    *Record
	states []*aggState
}

func (c *groupAggCursor) open(seed *Record) error {
	c.out = nil
	c.pos = 0
	return c.input.open(seed)
}

func (c *groupAggCursor) next() (*Record, error) {
	if c.out == nil {
		if err := c.materialize(); err != nil {
			return nil, err
		}
	}
	if c.pos >= len(c.out) {
		return nil, nil
	}
	rec := c.out[c.pos]
	c.pos++
	return rec, nil
}

func (c *groupAggCursor) materialize() error {
	groups := make(map[string]*aggGroup)
	var order []string

	newGroup := func(groupVals map[string]any) (*aggGroup, error) {
		g := &aggGroup{
			rec: &Record{Columns: c.plan.Columns, Values: groupVals},
		}
		for i := range c.plan.AggItems {
			st, err := newAggState(&c.plan.AggItems[i].Expr)
			if err != nil {
				return nil, err
			}
			g.states = append(g.states, st)
		}
		return g, nil
	}

	for {
		if err := c.env.check(); err != nil {
			return err
		}
		row, err := c.input.next()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		groupVals := make(map[string]any, len(c.plan.GroupItems))
		keyParts := make([]any, len(c.plan.GroupItems))
		for i := range c.plan.GroupItems {
			item := &c.plan.GroupItems[i]
			v, err := evalExpr(&item.Expr, row, c.env.params)
			if err != nil {
				return err
			}
			groupVals[item.Alias] = v
			keyParts[i] = v
		}
		key, err := fingerprintValues(keyParts)
		if err != nil {
			return err
		}
		g, ok := groups[key]
		if !ok {
			g, err = newGroup(groupVals)
			if err != nil {
				return err
			}
			groups[key] = g
			order = append(order, key)
		}
		for i := range c.plan.AggItems {
			if err := g.states[i].feed(&c.plan.AggItems[i].Expr, row, c.env.params); err != nil {
				return err
			}
		}
	}

	// Global aggregation over zero rows still produces one row.
	if len(order) == 0 && len(c.plan.GroupItems) == 0 {
		g, err := newGroup(map[string]any{})
		if err != nil {
			return err
		}
		groups[""] = g
		order = append(order, "")
	}

	c.out = make([]*Record, 0, len(order))
	for _, key := range order {
		g := groups[key]
		for i := range c.plan.AggItems {
			g.rec.Values[c.plan.AggItems[i].Alias] = g.states[i].result()
		}
		c.out = append(c.out, g.rec)
	}
	return nil
}

func (c *groupAggCursor) close() error { return c.input.close() }

// unionCursor drains left then right, deduplicating across both sides
// unless UNION ALL.
type unionCursor struct {
	env   *execEnv
	plan  *PlanNode
	left  cursor
	right cursor

	onRight bool
	seen    map[string]struct{}
}

func (c *unionCursor) open(seed *Record) error {
	c.onRight = false
	if !c.plan.UnionAll {
		c.seen = make(map[string]struct{})
	}
	if err := c.left.open(seed); err != nil {
		return err
	}
	return c.right.open(seed)
}

func (c *unionCursor) next() (*Record, error) {
	for {
		if err := c.env.check(); err != nil {
			return nil, err
		}
		src := c.left
		if c.onRight {
			src = c.right
		}
		row, err := src.next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			if !c.onRight {
				c.onRight = true
				continue
			}
			return nil, nil
		}
		if c.seen != nil {
			key, err := fingerprintRecord(row, c.plan.Columns)
			if err != nil {
				return nil, err
			}
			if _, dup := c.seen[key]; dup {
				continue
			}
			c.seen[key] = struct{}{}
		}
		return row, nil
	}
}

func (c *unionCursor) close() error {
	if err := c.left.close(); err != nil {
		return err
	}
	return c.right.close()
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// createCursor materializes CREATE patterns once per input row. Node
// patterns whose variable is already bound to a node re-use it; everything
// else is created through the surrounding transaction.
type createCursor struct {
	env   *execEnv
	plan  *PlanNode
	input cursor
}

func (c *createCursor) open(seed *Record) error { return c.input.open(seed) }

func (c *createCursor) next() (*Record, error) {
	if err := c.env.check(); err != nil {
		return nil, err
	}
	row, err := c.input.next()
	if err != nil || row == nil {
		return nil, err
	}
	if c.env.tx == nil {
		return nil, queryErrorf("CREATE requires a write transaction")
	}
	rec := row.clone()
	for pi := range c.plan.CreatePatterns {
		pat := &c.plan.CreatePatterns[pi]
		ids := make([]NodeID, len(pat.Nodes))
		for i := range pat.Nodes {
			id, err := c.materializeNode(rec, &pat.Nodes[i])
			if err != nil {
				return nil, err
			}
			ids[i] = id
		}
		for i := range pat.Rels {
			rp := &pat.Rels[i]
			start, end := ids[i], ids[i+1]
			if rp.Dir == Incoming {
				start, end = end, start
			}
			props, err := c.evalProps(rec, rp.Props)
			if err != nil {
				return nil, err
			}
			rel, err := c.env.tx.CreateRelationship(start, end, rp.Type, props)
			if err != nil {
				return nil, err
			}
			if rp.Variable != "" {
				rec.Values[rp.Variable] = rel
			}
		}
	}
	return rec, nil
}

func (c *createCursor) materializeNode(rec *Record, np *NodePattern) (NodeID, error) {
	if np.Variable != "" {
		if existing, ok := rec.Values[np.Variable].(*Node); ok {
			if len(np.Labels) > 0 || len(np.Props) > 0 {
				return 0, queryErrorAt(np.Line, np.Column,
					"variable %q already bound, cannot redeclare in CREATE", np.Variable)
			}
			return existing.ID, nil
		}
	}
	props, err := c.evalProps(rec, np.Props)
	if err != nil {
		return 0, err
	}
	node, err := c.env.tx.CreateNode(np.Labels, props)
	if err != nil {
		return 0, err
	}
	if np.Variable != "" {
		rec.Values[np.Variable] = node
	}
	return node.ID, nil
}

func (c *createCursor) evalProps(rec *Record, props map[string]Expression) (Props, error) {
	if len(props) == 0 {
		return nil, nil
	}
	out := make(Props, len(props))
	for k, e := range props {
		v, err := evalExpr(&e, rec, c.env.params)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (c *createCursor) close() error { return c.input.close() }

// ---------------------------------------------------------------------------
// Row fingerprints
// ---------------------------------------------------------------------------

// fingerprintRecord builds a canonical byte key for a row's column values.
// Used by Distinct, Union dedup, grouping, and cross-partition dedup.
func fingerprintRecord(rec *Record, columns []string) (string, error) {
	vals := make([]any, len(columns))
	for i, col := range columns {
		vals[i] = rec.Values[col]
	}
	return fingerprintValues(vals)
}

func fingerprintValues(vals []any) (string, error) {
	norm := make([]any, len(vals))
	for i, v := range vals {
		norm[i] = normalizeForKey(v)
	}
	b, err := msgpack.Marshal(norm)
	if err != nil {
		return "", wrapUnexpected("fingerprint row", err)
	}
	return string(b), nil
}

// normalizeForKey rewrites a value into a deterministic msgpack-encodable
// shape: entities reduce to tagged IDs and maps to sorted key/value lists,
// so equal values always produce identical bytes.
func normalizeForKey(v any) any {
	switch t := v.(type) {
	case *Node:
		return []any{"@n", uint64(t.ID)}
	case *Relationship:
		return []any{"@r", uint64(t.ID)}
	case *Path:
		ids := make([]any, 0, len(t.Nodes)+len(t.Rels))
		for i, n := range t.Nodes {
			ids = append(ids, uint64(n.ID))
			if i < len(t.Rels) {
				ids = append(ids, uint64(t.Rels[i].ID))
			}
		}
		return []any{"@p", ids}
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeForKey(e)
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, 2*len(keys)+1)
		out = append(out, "@m")
		for _, k := range keys {
			out = append(out, k, normalizeForKey(t[k]))
		}
		return out
	}
	return v
}
