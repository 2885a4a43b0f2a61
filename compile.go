package kgraph

import (
	"fmt"
	"sort"
	"strings"
)

// --------------------------------------------------------------------------
// Query compiler: lowers the parsed AST into a PlanNode tree. The compiler
// threads a bound-variable set through the clause chain so that referencing
// an unbound variable fails here, with a position, rather than at runtime.
// Access-path selection is rule based: a composite index covering every
// equality property beats a single-property index beats a label scan beats a
// full scan. Index hits are candidates only; the residual predicate on the
// scan (and the WHERE filter above it) re-establish exactness.
// --------------------------------------------------------------------------

// indexCatalog is the slice of the IndexManager the compiler consults for
// access-path selection. A nil catalog disables index seeks entirely.
type indexCatalog interface {
	BestIndexFor(label string, props []string) *IndexDef
}

type compiler struct {
	catalog  indexCatalog
	maxDepth int
	bound    map[string]bool
	// relVars collects relationship variables of the MATCH clause currently
	// being compiled so distinct-relationship predicates can be added.
	relVars []string
	anonSeq int
}

// compileQuery lowers a parsed query. maxDepth caps open-ended
// variable-length patterns.
func compileQuery(q *Query, text string, catalog indexCatalog, maxDepth int) (*CompiledPlan, error) {
	c := &compiler{catalog: catalog, maxDepth: maxDepth}
	var root *PlanNode
	var columns []string
	for i := range q.Parts {
		c.bound = make(map[string]bool)
		part, cols, err := c.compileSingle(&q.Parts[i])
		if err != nil {
			return nil, err
		}
		if i == 0 {
			root, columns = part, cols
			continue
		}
		if !sameColumns(columns, cols) {
			return nil, queryErrorf(
				"UNION branches must return the same columns: %v vs %v",
				columns, cols)
		}
		root = &PlanNode{
			Op:       OpUnion,
			Input:    root,
			Right:    part,
			UnionAll: q.UnionAll[i-1],
			Columns:  columns,
		}
	}
	return &CompiledPlan{Text: text, Root: root, Columns: columns}, nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (c *compiler) compileSingle(sq *SingleQuery) (*PlanNode, []string, error) {
	var plan *PlanNode
	var columns []string
	for i := range sq.Clauses {
		cl := &sq.Clauses[i]
		var err error
		switch cl.Kind {
		case ClauseMatch:
			plan, err = c.compileMatch(plan, cl)
		case ClauseOptionalMatch:
			plan, err = c.compileOptionalMatch(plan, cl)
		case ClauseCreate:
			plan, err = c.compileCreate(plan, cl)
		case ClauseWith, ClauseReturn:
			plan, columns, err = c.compileProjection(plan, cl)
		}
		if err != nil {
			return nil, nil, err
		}
	}
	return plan, columns, nil
}

// ---------------------------------------------------------------------------
// MATCH
// ---------------------------------------------------------------------------

func (c *compiler) compileMatch(plan *PlanNode, cl *Clause) (*PlanNode, error) {
	// Distinct-relationship enforcement spans every pattern of the clause.
	c.relVars = c.relVars[:0]
	eq := collectEqualityProps(cl.Where)
	for i := range cl.Patterns {
		var err error
		plan, err = c.compileChain(plan, &cl.Patterns[i], eq)
		if err != nil {
			return nil, err
		}
	}
	if cl.Where != nil {
		if err := c.checkBoundExpr(cl.Where); err != nil {
			return nil, err
		}
		plan = &PlanNode{Op: OpFilter, Input: plan, Predicate: cl.Where}
	}
	return plan, nil
}

// compileOptionalMatch lowers OPTIONAL MATCH. The common single-hop shape
// rooted at a bound variable becomes an OptionalExpand; anything else becomes
// an OptionalScan applying the pattern subtree per input row and null-filling
// its new variables when the subtree produces nothing.
func (c *compiler) compileOptionalMatch(plan *PlanNode, cl *Clause) (*PlanNode, error) {
	if plan == nil {
		return nil, queryErrorAt(cl.Line, cl.Column,
			"OPTIONAL MATCH cannot start a query")
	}
	if opt, ok, err := c.tryOptionalExpand(plan, cl); err != nil {
		return nil, err
	} else if ok {
		return opt, nil
	}

	before := make(map[string]bool, len(c.bound))
	for v := range c.bound {
		before[v] = true
	}
	inner, err := c.compileMatch(nil, cl)
	if err != nil {
		return nil, err
	}
	var newVars []string
	for v := range c.bound {
		if !before[v] {
			newVars = append(newVars, v)
		}
	}
	sort.Strings(newVars)
	return &PlanNode{
		Op:      OpOptionalScan,
		Input:   plan,
		Right:   inner,
		Columns: newVars,
	}, nil
}

// tryOptionalExpand recognizes OPTIONAL MATCH (bound)-[r:T]->(m) with an
// optional WHERE, single pattern, fixed length one.
func (c *compiler) tryOptionalExpand(plan *PlanNode, cl *Clause) (*PlanNode, bool, error) {
	if len(cl.Patterns) != 1 {
		return nil, false, nil
	}
	pat := &cl.Patterns[0]
	if len(pat.Rels) != 1 || pat.Rels[0].VarLength {
		return nil, false, nil
	}
	from, to, rel := &pat.Nodes[0], &pat.Nodes[1], &pat.Rels[0]
	if from.Variable == "" || !c.bound[from.Variable] {
		return nil, false, nil
	}
	if to.Variable != "" && c.bound[to.Variable] {
		return nil, false, nil
	}
	if len(from.Labels) > 0 || len(from.Props) > 0 {
		return nil, false, nil
	}
	relVar := rel.Variable
	if relVar == "" {
		relVar = c.anonVar()
	}
	toVar := to.Variable
	if toVar == "" {
		toVar = c.anonVar()
	}
	c.bind(relVar)
	c.bind(toVar)

	pred := conjoin(
		propsPredicate(relVar, rel.Props),
		labelsPredicate(toVar, to.Labels),
		propsPredicate(toVar, to.Props),
		cl.Where,
	)
	if pred != nil {
		if err := c.checkBoundExpr(pred); err != nil {
			return nil, false, err
		}
	}
	return &PlanNode{
		Op:          OpOptionalExpand,
		Input:       plan,
		FromVar:     from.Variable,
		RelVariable: relVar,
		RelType:     rel.Type,
		Dir:         rel.Dir,
		ToVar:       toVar,
		Predicate:   pred,
	}, true, nil
}

// compileChain lowers one node-rel-node chain onto the running plan.
func (c *compiler) compileChain(plan *PlanNode, pat *Pattern, eq map[string][]eqProp) (*PlanNode, error) {
	node := &pat.Nodes[0]
	fromVar := node.Variable
	if fromVar != "" && c.bound[fromVar] {
		// Re-use of a bound variable: constrain instead of scanning.
		if pred := conjoin(labelsPredicate(fromVar, node.Labels),
			propsPredicate(fromVar, node.Props)); pred != nil {
			plan = &PlanNode{Op: OpFilter, Input: plan, Predicate: pred}
		}
	} else {
		if fromVar == "" {
			fromVar = c.anonVar()
		}
		// Bound before the scan is built so the residual predicate over the
		// node's inline props passes the bound-variable check.
		c.bind(fromVar)
		var err error
		plan, err = c.compileScan(plan, fromVar, node, eq)
		if err != nil {
			return nil, err
		}
	}

	for i := range pat.Rels {
		rel := &pat.Rels[i]
		to := &pat.Nodes[i+1]
		var err error
		plan, fromVar, err = c.compileExpand(plan, fromVar, rel, to)
		if err != nil {
			return nil, err
		}
	}
	return plan, nil
}

func (c *compiler) compileExpand(plan *PlanNode, fromVar string, rel *RelPattern, to *NodePattern) (*PlanNode, string, error) {
	relVar := rel.Variable
	if relVar == "" {
		relVar = c.anonVar()
	}
	if c.bound[relVar] {
		return nil, "", queryErrorAt(rel.Line, rel.Column,
			"relationship variable %q already bound", relVar)
	}
	toVar := to.Variable
	toBound := toVar != "" && c.bound[toVar]
	if toVar == "" {
		toVar = c.anonVar()
	}

	node := &PlanNode{
		Op:          OpExpand,
		Input:       plan,
		FromVar:     fromVar,
		RelVariable: relVar,
		RelType:     rel.Type,
		Dir:         rel.Dir,
		ToVar:       toVar,
		ToBound:     toBound,
	}
	if rel.VarLength {
		node.Op = OpVarExpand
		node.MinHops = rel.MinHops
		node.MaxHops = rel.MaxHops
		if node.MaxHops < 0 {
			node.MaxHops = c.maxDepth
		}
	}
	plan = node
	c.bind(relVar)
	if !toBound {
		c.bind(toVar)
	}

	// Distinct relationship bindings within one pattern.
	var distinct *Expression
	if !rel.VarLength {
		for _, prev := range c.relVars {
			distinct = conjoin(distinct,
				ptrExpr(notExpr(compExpr(varRefExpr(relVar), OpEq, varRefExpr(prev)))))
		}
		c.relVars = append(c.relVars, relVar)
	}

	pred := conjoin(
		propsPredicate(relVar, rel.Props),
		labelsPredicate(toVar, to.Labels),
		propsPredicate(toVar, to.Props),
		distinct,
	)
	if pred != nil {
		if err := c.checkBoundExpr(pred); err != nil {
			return nil, "", err
		}
		plan = &PlanNode{Op: OpFilter, Input: plan, Predicate: pred}
	}
	return plan, toVar, nil
}

// ---------------------------------------------------------------------------
// Scan access-path selection
// ---------------------------------------------------------------------------

// eqProp is a single usable equality constraint for index selection: the
// property compared and the value expression (literal or parameter).
type eqProp struct {
	prop  string
	value Expression
}

func (c *compiler) compileScan(plan *PlanNode, varName string, node *NodePattern, eq map[string][]eqProp) (*PlanNode, error) {
	// Usable equality constraints: inline props plus WHERE conjuncts.
	constraints := make(map[string]Expression)
	for prop, val := range node.Props {
		if isIndexableValue(&val) {
			constraints[prop] = val
		}
	}
	if node.Variable != "" {
		for _, ep := range eq[node.Variable] {
			if _, have := constraints[ep.prop]; !have {
				constraints[ep.prop] = ep.value
			}
		}
	}
	residual := propsPredicate(varName, node.Props)
	if residual != nil {
		if err := c.checkBoundExpr(residual); err != nil {
			return nil, err
		}
	}

	if c.catalog != nil && len(node.Labels) > 0 && len(constraints) > 0 {
		props := make([]string, 0, len(constraints))
		for p := range constraints {
			props = append(props, p)
		}
		sort.Strings(props)
		for _, label := range node.Labels {
			def := c.catalog.BestIndexFor(label, props)
			if def == nil {
				continue
			}
			seek := &IndexSeekSpec{
				IndexName:  def.Name,
				Label:      def.Label,
				Properties: def.Properties,
			}
			for _, p := range def.Properties {
				seek.Values = append(seek.Values, constraints[p])
			}
			scan := &PlanNode{
				Op:       OpIndexSeek,
				Input:    plan,
				Variable: varName,
				Label:    label,
				Seek:     seek,
				Residual: conjoin(residual, extraLabelsPredicate(varName, node.Labels, label)),
			}
			return scan, nil
		}
	}

	if len(node.Labels) > 0 {
		return &PlanNode{
			Op:       OpLabelScan,
			Input:    plan,
			Variable: varName,
			Label:    node.Labels[0],
			Residual: conjoin(residual, extraLabelsPredicate(varName, node.Labels, node.Labels[0])),
		}, nil
	}
	return &PlanNode{
		Op:       OpAllNodesScan,
		Input:    plan,
		Variable: varName,
		Residual: residual,
	}, nil
}

// collectEqualityProps walks the top-level AND conjuncts of a WHERE
// expression and gathers var.prop = value constraints with an indexable
// right-hand side. Reversed operand order is normalized.
func collectEqualityProps(where *Expression) map[string][]eqProp {
	out := make(map[string][]eqProp)
	if where == nil {
		return out
	}
	var visit func(e *Expression)
	visit = func(e *Expression) {
		switch e.Kind {
		case ExprAnd:
			for i := range e.Operands {
				visit(&e.Operands[i])
			}
		case ExprComparison:
			if e.Op != OpEq {
				return
			}
			l, r := e.Left, e.Right
			if l.Kind != ExprPropAccess {
				l, r = r, l
			}
			if l.Kind == ExprPropAccess && isIndexableValue(r) {
				out[l.Object] = append(out[l.Object],
					eqProp{prop: l.Property, value: *r})
			}
		}
	}
	visit(where)
	return out
}

func isIndexableValue(e *Expression) bool {
	return e.Kind == ExprLiteral || e.Kind == ExprParam
}

// ---------------------------------------------------------------------------
// Projection (WITH / RETURN)
// ---------------------------------------------------------------------------

func (c *compiler) compileProjection(plan *PlanNode, cl *Clause) (*PlanNode, []string, error) {
	proj := cl.Projection
	items := make([]ProjectionItem, len(proj.Items))
	columns := make([]string, len(proj.Items))
	seen := make(map[string]bool)
	for i, item := range proj.Items {
		if err := c.checkBoundExpr(&item.Expr); err != nil {
			return nil, nil, err
		}
		alias := item.Alias
		if alias == "" {
			alias = exprText(&item.Expr)
		}
		if seen[alias] {
			return nil, nil, queryErrorAt(cl.Line, cl.Column,
				"duplicate column name %q", alias)
		}
		seen[alias] = true
		items[i] = ProjectionItem{Expr: item.Expr, Alias: alias}
		columns[i] = alias
	}

	var grouped, aggs []ProjectionItem
	for _, item := range items {
		if exprHasAggregate(&item.Expr) {
			aggs = append(aggs, item)
		} else {
			grouped = append(grouped, item)
		}
	}
	for i := range aggs {
		e := &aggs[i].Expr
		if e.Kind == ExprFuncCall {
			for j := range e.Args {
				if exprHasAggregate(&e.Args[j]) {
					return nil, nil, queryErrorAt(e.Line, e.Column,
						"cannot nest aggregate functions")
				}
			}
		}
	}

	if len(aggs) > 0 {
		plan = &PlanNode{
			Op:         OpGroupAggregate,
			Input:      plan,
			GroupItems: grouped,
			AggItems:   aggs,
			Columns:    columns,
		}
	} else {
		plan = &PlanNode{Op: OpProject, Input: plan, Items: items, Columns: columns}
	}
	if proj.Distinct {
		plan = &PlanNode{Op: OpDistinct, Input: plan, Columns: columns}
	}

	// Projected aliases are the only variables visible downstream.
	preBound := c.bound
	c.bound = make(map[string]bool, len(columns))
	for _, col := range columns {
		c.bound[col] = true
	}

	if len(proj.OrderBy) > 0 {
		// Sort keys may name a projected column, or, when the projection
		// does not aggregate, any expression over the pre-projection scope.
		sortScope := c.bound
		if len(aggs) == 0 {
			sortScope = make(map[string]bool, len(preBound)+len(columns))
			for v := range preBound {
				sortScope[v] = true
			}
			for _, col := range columns {
				sortScope[col] = true
			}
		}
		for i := range proj.OrderBy {
			item := &proj.OrderBy[i]
			if alias := exprText(&item.Expr); seen[alias] && item.Expr.Kind != ExprVarRef {
				item.Expr = varRefExpr(alias)
				continue
			}
			prev := c.bound
			c.bound = sortScope
			err := c.checkBoundExpr(&item.Expr)
			c.bound = prev
			if err != nil {
				return nil, nil, err
			}
		}
		plan = &PlanNode{Op: OpOrderBy, Input: plan, SortItems: proj.OrderBy, Columns: columns}
	}
	if proj.Skip != nil || proj.Limit != nil {
		plan = &PlanNode{Op: OpSkipLimit, Input: plan, SkipExpr: proj.Skip, LimitExpr: proj.Limit, Columns: columns}
	}
	if cl.Kind == ClauseWith && cl.Where != nil {
		if err := c.checkBoundExpr(cl.Where); err != nil {
			return nil, nil, err
		}
		plan = &PlanNode{Op: OpFilter, Input: plan, Predicate: cl.Where}
	}
	return plan, columns, nil
}

// ---------------------------------------------------------------------------
// CREATE
// ---------------------------------------------------------------------------

func (c *compiler) compileCreate(plan *PlanNode, cl *Clause) (*PlanNode, error) {
	for pi := range cl.Patterns {
		pat := &cl.Patterns[pi]
		for i := range pat.Rels {
			rel := &pat.Rels[i]
			if rel.VarLength {
				return nil, queryErrorAt(rel.Line, rel.Column,
					"cannot CREATE a variable-length relationship")
			}
			if rel.Type == "" {
				return nil, queryErrorAt(rel.Line, rel.Column,
					"CREATE relationship requires a type")
			}
			if rel.Dir == Both {
				return nil, queryErrorAt(rel.Line, rel.Column,
					"CREATE relationship requires a direction")
			}
		}
		for i := range pat.Nodes {
			np := &pat.Nodes[i]
			for _, v := range np.Props {
				if err := c.checkBoundExpr(&v); err != nil {
					return nil, err
				}
			}
			if np.Variable != "" && !c.bound[np.Variable] {
				c.bind(np.Variable)
			}
		}
		for i := range pat.Rels {
			rp := &pat.Rels[i]
			for _, v := range rp.Props {
				if err := c.checkBoundExpr(&v); err != nil {
					return nil, err
				}
			}
			if rp.Variable != "" {
				c.bind(rp.Variable)
			}
		}
	}
	return &PlanNode{Op: OpCreate, Input: plan, CreatePatterns: cl.Patterns}, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (c *compiler) bind(v string) { c.bound[v] = true }

func (c *compiler) anonVar() string {
	c.anonSeq++
	return fmt.Sprintf("@anon%d", c.anonSeq)
}

// checkBoundExpr rejects references to variables not bound upstream.
func (c *compiler) checkBoundExpr(e *Expression) error {
	switch e.Kind {
	case ExprVarRef:
		if !c.bound[e.Variable] {
			return queryErrorAt(e.Line, e.Column, "variable %q not defined", e.Variable)
		}
	case ExprPropAccess:
		if !c.bound[e.Object] {
			return queryErrorAt(e.Line, e.Column, "variable %q not defined", e.Object)
		}
	case ExprFuncCall:
		for i := range e.Args {
			if err := c.checkBoundExpr(&e.Args[i]); err != nil {
				return err
			}
		}
	case ExprComparison:
		if err := c.checkBoundExpr(e.Left); err != nil {
			return err
		}
		return c.checkBoundExpr(e.Right)
	case ExprAnd, ExprOr:
		for i := range e.Operands {
			if err := c.checkBoundExpr(&e.Operands[i]); err != nil {
				return err
			}
		}
	case ExprNot, ExprIsNull:
		return c.checkBoundExpr(e.Inner)
	case ExprList:
		for i := range e.Elems {
			if err := c.checkBoundExpr(&e.Elems[i]); err != nil {
				return err
			}
		}
	case ExprMap:
		for _, v := range e.MapElems {
			if err := c.checkBoundExpr(&v); err != nil {
				return err
			}
		}
	}
	return nil
}

// conjoin ANDs the non-nil expressions together, returning nil when all are.
func conjoin(exprs ...*Expression) *Expression {
	var parts []Expression
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if e.Kind == ExprAnd {
			parts = append(parts, e.Operands...)
		} else {
			parts = append(parts, *e)
		}
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return &parts[0]
	default:
		return &Expression{Kind: ExprAnd, Operands: parts}
	}
}

func ptrExpr(e Expression) *Expression { return &e }

// propsPredicate turns inline property constraints into an equality
// conjunction over the bound variable.
func propsPredicate(varName string, props map[string]Expression) *Expression {
	if len(props) == 0 {
		return nil
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []*Expression
	for _, k := range keys {
		parts = append(parts, ptrExpr(compExpr(propExpr(varName, k), OpEq, props[k])))
	}
	return conjoin(parts...)
}

// labelsPredicate constrains a bound variable to carry every given label,
// expressed as label IN labels(v) so the evaluator needs no special case.
func labelsPredicate(varName string, labels []string) *Expression {
	var parts []*Expression
	for _, l := range labels {
		parts = append(parts, labelPredicate(varName, l))
	}
	return conjoin(parts...)
}

func labelPredicate(varName, label string) *Expression {
	call := Expression{Kind: ExprFuncCall, FuncName: "labels",
		Args: []Expression{varRefExpr(varName)}}
	return ptrExpr(compExpr(litExpr(label), OpIn, call))
}

// extraLabelsPredicate covers labels beyond the one the chosen access path
// already guarantees.
func extraLabelsPredicate(varName string, labels []string, covered string) *Expression {
	var parts []*Expression
	for _, l := range labels {
		if l != covered {
			parts = append(parts, labelPredicate(varName, l))
		}
	}
	return conjoin(parts...)
}

var aggregateFuncs = map[string]bool{
	"count":   true,
	"sum":     true,
	"avg":     true,
	"min":     true,
	"max":     true,
	"collect": true,
}

func exprHasAggregate(e *Expression) bool {
	switch e.Kind {
	case ExprFuncCall:
		if aggregateFuncs[strings.ToLower(e.FuncName)] {
			return true
		}
		for i := range e.Args {
			if exprHasAggregate(&e.Args[i]) {
				return true
			}
		}
	case ExprComparison:
		return exprHasAggregate(e.Left) || exprHasAggregate(e.Right)
	case ExprAnd, ExprOr:
		for i := range e.Operands {
			if exprHasAggregate(&e.Operands[i]) {
				return true
			}
		}
	case ExprNot, ExprIsNull:
		return exprHasAggregate(e.Inner)
	case ExprList:
		for i := range e.Elems {
			if exprHasAggregate(&e.Elems[i]) {
				return true
			}
		}
	case ExprMap:
		for _, v := range e.MapElems {
			if exprHasAggregate(&v) {
				return true
			}
		}
	}
	return false
}

// exprText reconstructs a readable source form of an expression, used for
// default column names.
func exprText(e *Expression) string {
	switch e.Kind {
	case ExprLiteral:
		if s, ok := e.LitValue.(string); ok {
			return fmt.Sprintf("%q", s)
		}
		if e.LitValue == nil {
			return "null"
		}
		return fmt.Sprintf("%v", e.LitValue)
	case ExprVarRef:
		return e.Variable
	case ExprPropAccess:
		return e.Object + "." + e.Property
	case ExprParam:
		return "$" + e.ParamName
	case ExprFuncCall:
		if e.Star {
			return e.FuncName + "(*)"
		}
		args := make([]string, len(e.Args))
		for i := range e.Args {
			args[i] = exprText(&e.Args[i])
		}
		return e.FuncName + "(" + strings.Join(args, ", ") + ")"
	case ExprComparison:
		return exprText(e.Left) + " " + compOpText(e.Op) + " " + exprText(e.Right)
	case ExprAnd:
		return joinExprTexts(e.Operands, " AND ")
	case ExprOr:
		return joinExprTexts(e.Operands, " OR ")
	case ExprNot:
		return "NOT " + exprText(e.Inner)
	case ExprIsNull:
		if e.Negated {
			return exprText(e.Inner) + " IS NOT NULL"
		}
		return exprText(e.Inner) + " IS NULL"
	case ExprList:
		return "[" + joinExprTexts(e.Elems, ", ") + "]"
	case ExprMap:
		keys := make([]string, 0, len(e.MapElems))
		for k := range e.MapElems {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			v := e.MapElems[k]
			parts[i] = k + ": " + exprText(&v)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "?"
}

func joinExprTexts(exprs []Expression, sep string) string {
	parts := make([]string, len(exprs))
	for i := range exprs {
		parts[i] = exprText(&exprs[i])
	}
	return strings.Join(parts, sep)
}

func compOpText(op CompOp) string {
	switch op {
	case OpEq:
		return "="
	case OpNeq:
		return "<>"
	case OpLt:
		return "<"
	case OpGt:
		return ">"
	case OpLte:
		return "<="
	case OpGte:
		return ">="
	case OpIn:
		return "IN"
	case OpStartsWith:
		return "STARTS WITH"
	case OpEndsWith:
		return "ENDS WITH"
	case OpContains:
		return "CONTAINS"
	}
	return "?"
}
