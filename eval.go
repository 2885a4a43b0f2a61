package kgraph

import (
	"math"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Expression evaluator. Expressions evaluate against a Record (the binding
// frame) plus the query parameters. Null propagates: property access on null
// yields null, any comparison with a null operand is false, and only IS NULL
// observes a null directly. Type errors at runtime surface as QueryError.
// --------------------------------------------------------------------------

func evalExpr(e *Expression, rec *Record, params map[string]any) (any, error) {
	switch e.Kind {
	case ExprLiteral:
		return e.LitValue, nil
	case ExprVarRef:
		return rec.Values[e.Variable], nil
	case ExprPropAccess:
		obj := rec.Values[e.Object]
		return propValue(e, obj)
	case ExprParam:
		v, ok := params[e.ParamName]
		if !ok {
			return nil, queryErrorAt(e.Line, e.Column,
				"parameter $%s not supplied", e.ParamName)
		}
		return v, nil
	case ExprFuncCall:
		return evalFunc(e, rec, params)
	case ExprComparison:
		return evalComparison(e, rec, params)
	case ExprAnd:
		for i := range e.Operands {
			v, err := evalExpr(&e.Operands[i], rec, params)
			if err != nil {
				return nil, err
			}
			if !toBool(v) {
				return false, nil
			}
		}
		return true, nil
	case ExprOr:
		for i := range e.Operands {
			v, err := evalExpr(&e.Operands[i], rec, params)
			if err != nil {
				return nil, err
			}
			if toBool(v) {
				return true, nil
			}
		}
		return false, nil
	case ExprNot:
		v, err := evalExpr(e.Inner, rec, params)
		if err != nil {
			return nil, err
		}
		return !toBool(v), nil
	case ExprIsNull:
		v, err := evalExpr(e.Inner, rec, params)
		if err != nil {
			return nil, err
		}
		return (v == nil) != e.Negated, nil
	case ExprList:
		out := make([]any, len(e.Elems))
		for i := range e.Elems {
			v, err := evalExpr(&e.Elems[i], rec, params)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case ExprMap:
		out := make(map[string]any, len(e.MapElems))
		for k, sub := range e.MapElems {
			v, err := evalExpr(&sub, rec, params)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	}
	return nil, queryErrorAt(e.Line, e.Column, "cannot evaluate expression")
}

func propValue(e *Expression, obj any) (any, error) {
	switch o := obj.(type) {
	case nil:
		return nil, nil
	case *Node:
		return o.Props[e.Property], nil
	case *Relationship:
		return o.Props[e.Property], nil
	case map[string]any:
		return o[e.Property], nil
	default:
		return nil, queryErrorAt(e.Line, e.Column,
			"type error: cannot access property %q on %T", e.Property, obj)
	}
}

// evalPredicate evaluates an expression in boolean context.
func evalPredicate(e *Expression, rec *Record, params map[string]any) (bool, error) {
	v, err := evalExpr(e, rec, params)
	if err != nil {
		return false, err
	}
	return toBool(v), nil
}

func evalComparison(e *Expression, rec *Record, params map[string]any) (any, error) {
	left, err := evalExpr(e.Left, rec, params)
	if err != nil {
		return nil, err
	}
	right, err := evalExpr(e.Right, rec, params)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case OpEq:
		return valuesEqual(left, right), nil
	case OpNeq:
		if left == nil || right == nil {
			return false, nil
		}
		return !valuesEqual(left, right), nil
	case OpLt, OpGt, OpLte, OpGte:
		if left == nil || right == nil {
			return false, nil
		}
		if typeRank(left) != typeRank(right) {
			return false, nil
		}
		cmp := compareValues(left, right)
		switch e.Op {
		case OpLt:
			return cmp < 0, nil
		case OpGt:
			return cmp > 0, nil
		case OpLte:
			return cmp <= 0, nil
		default:
			return cmp >= 0, nil
		}
	case OpIn:
		list, ok := right.([]any)
		if !ok || left == nil {
			return false, nil
		}
		for _, elem := range list {
			if valuesEqual(left, elem) {
				return true, nil
			}
		}
		return false, nil
	case OpStartsWith, OpEndsWith, OpContains:
		ls, lok := left.(string)
		rs, rok := right.(string)
		if !lok || !rok {
			return false, nil
		}
		switch e.Op {
		case OpStartsWith:
			return strings.HasPrefix(ls, rs), nil
		case OpEndsWith:
			return strings.HasSuffix(ls, rs), nil
		default:
			return strings.Contains(ls, rs), nil
		}
	}
	return nil, queryErrorAt(e.Line, e.Column, "unknown comparison operator")
}

// ---------------------------------------------------------------------------
// Scalar functions
// ---------------------------------------------------------------------------

func evalFunc(e *Expression, rec *Record, params map[string]any) (any, error) {
	name := strings.ToLower(e.FuncName)
	if aggregateFuncs[name] {
		return nil, queryErrorAt(e.Line, e.Column,
			"aggregate function %s() not allowed here", e.FuncName)
	}

	args := make([]any, len(e.Args))
	for i := range e.Args {
		v, err := evalExpr(&e.Args[i], rec, params)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch name {
	case "coalesce":
		for _, a := range args {
			if a != nil {
				return a, nil
			}
		}
		return nil, nil
	}

	if err := checkArity(e, name, len(args)); err != nil {
		return nil, err
	}

	switch name {
	case "id":
		switch v := args[0].(type) {
		case nil:
			return nil, nil
		case *Node:
			return int64(v.ID), nil
		case *Relationship:
			return int64(v.ID), nil
		}
		return nil, funcTypeError(e, "a node or relationship", args[0])
	case "type":
		switch v := args[0].(type) {
		case nil:
			return nil, nil
		case *Relationship:
			return v.Type, nil
		}
		return nil, funcTypeError(e, "a relationship", args[0])
	case "labels":
		switch v := args[0].(type) {
		case nil:
			return nil, nil
		case *Node:
			out := make([]any, len(v.Labels))
			for i, l := range v.Labels {
				out[i] = l
			}
			return out, nil
		}
		return nil, funcTypeError(e, "a node", args[0])
	case "length":
		switch v := args[0].(type) {
		case nil:
			return nil, nil
		case *Path:
			return int64(v.Length()), nil
		case []any:
			return int64(len(v)), nil
		case string:
			return int64(len([]rune(v))), nil
		}
		return nil, funcTypeError(e, "a path, list or string", args[0])
	case "size":
		switch v := args[0].(type) {
		case nil:
			return nil, nil
		case []any:
			return int64(len(v)), nil
		case string:
			return int64(len([]rune(v))), nil
		case map[string]any:
			return int64(len(v)), nil
		}
		return nil, funcTypeError(e, "a list, string or map", args[0])
	case "toupper":
		s, ok := args[0].(string)
		if args[0] == nil {
			return nil, nil
		}
		if !ok {
			return nil, funcTypeError(e, "a string", args[0])
		}
		return strings.ToUpper(s), nil
	case "tolower":
		s, ok := args[0].(string)
		if args[0] == nil {
			return nil, nil
		}
		if !ok {
			return nil, funcTypeError(e, "a string", args[0])
		}
		return strings.ToLower(s), nil
	case "abs":
		switch v := args[0].(type) {
		case nil:
			return nil, nil
		case int64:
			if v < 0 {
				return -v, nil
			}
			return v, nil
		case float64:
			return math.Abs(v), nil
		}
		return nil, funcTypeError(e, "a number", args[0])
	case "tostring":
		switch v := args[0].(type) {
		case nil:
			return nil, nil
		case string:
			return v, nil
		case int64:
			return strconv.FormatInt(v, 10), nil
		case float64:
			return strconv.FormatFloat(v, 'g', -1, 64), nil
		case bool:
			return strconv.FormatBool(v), nil
		}
		return nil, funcTypeError(e, "a scalar", args[0])
	case "nodes":
		switch v := args[0].(type) {
		case nil:
			return nil, nil
		case *Path:
			out := make([]any, len(v.Nodes))
			for i, n := range v.Nodes {
				out[i] = n
			}
			return out, nil
		}
		return nil, funcTypeError(e, "a path", args[0])
	case "relationships":
		switch v := args[0].(type) {
		case nil:
			return nil, nil
		case *Path:
			out := make([]any, len(v.Rels))
			for i, r := range v.Rels {
				out[i] = r
			}
			return out, nil
		}
		return nil, funcTypeError(e, "a path", args[0])
	}
	return nil, queryErrorAt(e.Line, e.Column, "unknown function %s()", e.FuncName)
}

func checkArity(e *Expression, name string, n int) error {
	if n != 1 {
		return queryErrorAt(e.Line, e.Column,
			"%s() expects 1 argument, got %d", name, n)
	}
	return nil
}

func funcTypeError(e *Expression, want string, got any) error {
	return queryErrorAt(e.Line, e.Column,
		"type error: %s() expects %s, got %T", strings.ToLower(e.FuncName), want, got)
}

// ---------------------------------------------------------------------------
// Aggregates. The GroupAggregate cursor feeds one aggState per aggregate
// column per group; aggregates ignore null inputs except count(*).
// ---------------------------------------------------------------------------

type aggState struct {
	fn        string
	count     int64
	sumInt    int64
	sumFloat  float64
	seenFloat bool
	minV      any
	maxV      any
	hasMinMax bool
	collected []any
}

// newAggState validates that the expression is a direct aggregate call and
// returns fresh state for it.
func newAggState(e *Expression) (*aggState, error) {
	if e.Kind != ExprFuncCall {
		return nil, queryErrorAt(e.Line, e.Column,
			"aggregate expression must be a function call")
	}
	fn := strings.ToLower(e.FuncName)
	if !aggregateFuncs[fn] {
		return nil, queryErrorAt(e.Line, e.Column,
			"unknown aggregate function %s()", e.FuncName)
	}
	if e.Star {
		if fn != "count" {
			return nil, queryErrorAt(e.Line, e.Column,
				"%s(*) is not valid", e.FuncName)
		}
	} else if len(e.Args) != 1 {
		return nil, queryErrorAt(e.Line, e.Column,
			"%s() expects 1 argument, got %d", fn, len(e.Args))
	}
	return &aggState{fn: fn}, nil
}

// feed evaluates the aggregate's argument against the row and folds it in.
func (a *aggState) feed(e *Expression, rec *Record, params map[string]any) error {
	if e.Star {
		a.count++
		return nil
	}
	v, err := evalExpr(&e.Args[0], rec, params)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	switch a.fn {
	case "count":
		a.count++
	case "sum", "avg":
		switch n := v.(type) {
		case int64:
			a.sumInt += n
			a.sumFloat += float64(n)
		case float64:
			a.seenFloat = true
			a.sumFloat += n
		default:
			return queryErrorAt(e.Line, e.Column,
				"type error: %s() expects numbers, got %T", a.fn, v)
		}
		a.count++
	case "min":
		if !a.hasMinMax || compareValues(v, a.minV) < 0 {
			a.minV = v
		}
		if !a.hasMinMax || compareValues(v, a.maxV) > 0 {
			a.maxV = v
		}
		a.hasMinMax = true
	case "max":
		if !a.hasMinMax || compareValues(v, a.minV) < 0 {
			a.minV = v
		}
		if !a.hasMinMax || compareValues(v, a.maxV) > 0 {
			a.maxV = v
		}
		a.hasMinMax = true
	case "collect":
		a.collected = append(a.collected, v)
	}
	return nil
}

// result finalizes the aggregate. Empty groups yield count 0, sum 0,
// null avg/min/max, and an empty list for collect.
func (a *aggState) result() any {
	switch a.fn {
	case "count":
		return a.count
	case "sum":
		if a.seenFloat {
			return a.sumFloat
		}
		return a.sumInt
	case "avg":
		if a.count == 0 {
			return nil
		}
		return a.sumFloat / float64(a.count)
	case "min":
		if !a.hasMinMax {
			return nil
		}
		return a.minV
	case "max":
		if !a.hasMinMax {
			return nil
		}
		return a.maxV
	case "collect":
		if a.collected == nil {
			return []any{}
		}
		return a.collected
	}
	return nil
}
