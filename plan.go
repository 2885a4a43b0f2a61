package kgraph

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Query plan IR. The compiler lowers the AST into an immutable PlanNode tree
// which the executor walks bottom-up to build its cursor chain. Like the AST,
// a PlanNode is a closed tagged struct: Op selects the operator, and only the
// fields that operator reads are populated. Plans hold no runtime state, so
// a compiled plan can be executed concurrently and is cacheable by query
// text; parameters are resolved at execution time.
// --------------------------------------------------------------------------

// OpKind identifies a plan operator.
type OpKind int

const (
	// Leaf scans. When Input is non-nil a scan re-runs per input row,
	// acting as a nested-loop join against the upstream bindings.
	OpAllNodesScan OpKind = iota
	OpLabelScan
	OpIndexSeek
	OpOptionalScan // OPTIONAL MATCH of a fresh pattern root

	// Traversal.
	OpExpand
	OpOptionalExpand
	OpVarExpand

	// Row pipeline.
	OpFilter
	OpProject
	OpDistinct
	OpOrderBy
	OpSkipLimit
	OpGroupAggregate
	OpUnion

	// Writes.
	OpCreate
)

var opNames = map[OpKind]string{
	OpAllNodesScan:   "AllNodesScan",
	OpLabelScan:      "LabelScan",
	OpIndexSeek:      "IndexSeek",
	OpOptionalScan:   "OptionalScan",
	OpExpand:         "Expand",
	OpOptionalExpand: "OptionalExpand",
	OpVarExpand:      "VarExpand",
	OpFilter:         "Filter",
	OpProject:        "Project",
	OpDistinct:       "Distinct",
	OpOrderBy:        "OrderBy",
	OpSkipLimit:      "SkipLimit",
	OpGroupAggregate: "GroupAggregate",
	OpUnion:          "Union",
	OpCreate:         "Create",
}

// IndexSeekSpec describes the index consulted by an OpIndexSeek and the
// equality values it seeks. Values align with the index definition's
// property list. Index hits are candidates only; the scan's Residual
// predicate re-checks everything the seek key implies.
type IndexSeekSpec struct {
	IndexName  string
	Label      string
	Properties []string
	Values     []Expression
}

// PlanNode is one operator in the plan tree.
type PlanNode struct {
	Op    OpKind
	Input *PlanNode // nil for leaf scans without an upstream
	Right *PlanNode // second input of Union; inner subtree of OptionalScan

	// Scans and expands bind Variable (the node variable).
	Variable string
	Label    string
	Seek     *IndexSeekSpec
	// Residual is re-applied to every scan candidate. Index results are
	// never trusted as exact.
	Residual *Expression

	// Expand / OptionalExpand / VarExpand.
	RelVariable string
	RelType     string
	Dir         Direction
	FromVar     string
	ToVar       string
	// ToBound is set when ToVar was bound upstream; the expand then
	// filters by identity instead of binding a new variable.
	ToBound bool
	MinHops int
	MaxHops int
	// PathVar binds the traversed path for VarExpand, "" when unused.
	PathVar string

	// Filter.
	Predicate *Expression

	// Project / GroupAggregate. For GroupAggregate, GroupItems are the
	// grouping keys and AggItems the aggregate expressions; Columns is
	// the output column order for both operators.
	Items      []ProjectionItem
	GroupItems []ProjectionItem
	AggItems   []ProjectionItem
	Columns    []string

	// OrderBy.
	SortItems []OrderItem

	// SkipLimit. Either may be nil.
	SkipExpr  *Expression
	LimitExpr *Expression

	// Union.
	UnionAll bool

	// Create.
	CreatePatterns []Pattern
}

// String renders the plan as an indented operator tree, one operator per
// line, children beneath their parent. Useful for EXPLAIN-style debugging
// and asserted on in tests.
func (p *PlanNode) String() string {
	var b strings.Builder
	p.render(&b, 0)
	return b.String()
}

func (p *PlanNode) render(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(opNames[p.Op])
	if d := p.detail(); d != "" {
		b.WriteString("(")
		b.WriteString(d)
		b.WriteString(")")
	}
	b.WriteString("\n")
	if p.Right != nil {
		p.Right.render(b, depth+1)
	}
	if p.Input != nil {
		p.Input.render(b, depth+1)
	}
}

func (p *PlanNode) detail() string {
	switch p.Op {
	case OpAllNodesScan, OpOptionalScan:
		return p.Variable
	case OpLabelScan:
		return fmt.Sprintf("%s:%s", p.Variable, p.Label)
	case OpIndexSeek:
		return fmt.Sprintf("%s:%s[%s]", p.Variable, p.Seek.Label,
			strings.Join(p.Seek.Properties, ","))
	case OpExpand, OpOptionalExpand:
		return fmt.Sprintf("%s%s%s", p.FromVar, dirGlyph(p.Dir), p.ToVar)
	case OpVarExpand:
		if p.MaxHops < 0 {
			return fmt.Sprintf("%s%s%s *%d..", p.FromVar, dirGlyph(p.Dir), p.ToVar, p.MinHops)
		}
		return fmt.Sprintf("%s%s%s *%d..%d", p.FromVar, dirGlyph(p.Dir), p.ToVar, p.MinHops, p.MaxHops)
	case OpProject, OpGroupAggregate:
		return strings.Join(p.Columns, ", ")
	case OpUnion:
		if p.UnionAll {
			return "all"
		}
	}
	return ""
}

func dirGlyph(d Direction) string {
	switch d {
	case Outgoing:
		return "->"
	case Incoming:
		return "<-"
	default:
		return "--"
	}
}

// CompiledPlan is the reusable result of compilation: the operator tree plus
// the output column names. It carries no execution state.
type CompiledPlan struct {
	Text    string
	Root    *PlanNode
	Columns []string
}
