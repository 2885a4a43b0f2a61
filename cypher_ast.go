package kgraph

// --------------------------------------------------------------------------
// Cypher AST: clause/list representation produced by the parser and lowered
// by the compiler. Every AST level is a closed tagged struct: a Kind field
// plus the fields relevant to that kind. The compiler and executor switch
// exhaustively on the tags, so a new clause or expression kind is a
// compile-visible addition rather than a runtime probe.
// --------------------------------------------------------------------------

// Query is the top-level AST node: one or more single queries joined by UNION.
type Query struct {
	Parts []SingleQuery
	// UnionAll[i] is true when Parts[i] and Parts[i+1] are joined by
	// UNION ALL rather than plain UNION. len == len(Parts)-1.
	UnionAll []bool
}

// SingleQuery is an ordered clause chain ending (usually) in RETURN.
type SingleQuery struct {
	Clauses []Clause
}

// ClauseKind identifies a clause.
type ClauseKind int

const (
	ClauseMatch ClauseKind = iota
	ClauseOptionalMatch
	ClauseWith
	ClauseReturn
	ClauseCreate
)

// Clause is a single query clause. Pattern-bearing clauses (MATCH, OPTIONAL
// MATCH, CREATE) fill Patterns and possibly Where; projection clauses (WITH,
// RETURN) fill Projection and possibly Where (WITH ... WHERE).
type Clause struct {
	Kind       ClauseKind
	Patterns   []Pattern
	Where      *Expression
	Projection *Projection
	Line       int
	Column     int
}

// Projection is the body of a WITH or RETURN clause.
type Projection struct {
	Distinct bool
	Items    []ProjectionItem
	OrderBy  []OrderItem
	Skip     *Expression // nil when absent; integer literal or parameter
	Limit    *Expression
}

// ProjectionItem is one projected expression, optionally aliased.
type ProjectionItem struct {
	Expr  Expression
	Alias string // "" if no AS
}

// OrderItem is a single expression in ORDER BY.
type OrderItem struct {
	Expr Expression
	Desc bool
}

// ---------------------------------------------------------------------------
// Patterns: alternating node/relationship chains.
//
//	(a:Label {k: v})-[r:TYPE*1..3]->(b)
//
// Nodes has one more element than Rels; Rels[i] connects Nodes[i] and
// Nodes[i+1].
// ---------------------------------------------------------------------------

// Pattern is a node–rel–node–…–node chain.
type Pattern struct {
	Nodes []NodePattern
	Rels  []RelPattern
}

// NodePattern is a single node element of a pattern.
type NodePattern struct {
	Variable string                // binding variable, may be ""
	Labels   []string              // label constraints, may be nil
	Props    map[string]Expression // inline property constraints, may be nil
	Line     int
	Column   int
}

// RelPattern is a relationship element of a pattern.
type RelPattern struct {
	Variable  string
	Type      string    // empty = match any relationship type
	Dir       Direction // Outgoing, Incoming, Both
	VarLength bool      // true when * is present
	MinHops   int       // default 1
	MaxHops   int       // -1 = unbounded (capped by Options.MaxTraversalDepth)
	Props     map[string]Expression
	Line      int
	Column    int
}

// ---------------------------------------------------------------------------
// Expressions: a polymorphic tagged struct; only the fields relevant to the
// Kind are populated.
// ---------------------------------------------------------------------------

// ExprKind distinguishes expression types.
type ExprKind int

const (
	ExprLiteral    ExprKind = iota // string, int64, float64, bool, nil
	ExprVarRef                     // n
	ExprPropAccess                 // n.name
	ExprParam                      // $name
	ExprFuncCall                   // type(r), count(*)
	ExprComparison                 // n.age > 25, name IN [...], s STARTS WITH t
	ExprAnd
	ExprOr
	ExprNot
	ExprIsNull // x IS NULL / x IS NOT NULL
	ExprList   // [e1, e2, ...]
	ExprMap    // {k: e, ...}
)

// CompOp is a comparison operator.
type CompOp int

const (
	OpEq CompOp = iota // =
	OpNeq
	OpLt
	OpGt
	OpLte
	OpGte
	OpIn         // value IN list
	OpStartsWith // string STARTS WITH string
	OpEndsWith
	OpContains
)

// Expression is the polymorphic expression node.
type Expression struct {
	Kind ExprKind

	// ExprLiteral
	LitValue any

	// ExprVarRef
	Variable string

	// ExprPropAccess
	Object   string
	Property string

	// ExprParam
	ParamName string

	// ExprFuncCall
	FuncName string
	Args     []Expression
	Star     bool // count(*)

	// ExprComparison
	Left  *Expression
	Op    CompOp
	Right *Expression

	// ExprAnd / ExprOr
	Operands []Expression

	// ExprNot / ExprIsNull
	Inner   *Expression
	Negated bool // IS NOT NULL

	// ExprList
	Elems []Expression

	// ExprMap
	MapElems map[string]Expression

	Line   int
	Column int
}

// Convenience constructors, used by the parser and tests.

func litExpr(v any) Expression {
	return Expression{Kind: ExprLiteral, LitValue: v}
}

func varRefExpr(name string) Expression {
	return Expression{Kind: ExprVarRef, Variable: name}
}

func propExpr(obj, prop string) Expression {
	return Expression{Kind: ExprPropAccess, Object: obj, Property: prop}
}

func compExpr(left Expression, op CompOp, right Expression) Expression {
	return Expression{Kind: ExprComparison, Left: &left, Op: op, Right: &right}
}

func notExpr(inner Expression) Expression {
	return Expression{Kind: ExprNot, Inner: &inner}
}
