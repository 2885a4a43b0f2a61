package kgraph

import "testing"

func evalIn(t *testing.T, e Expression, rec *Record) any {
	t.Helper()
	v, err := evalExpr(&e, rec, map[string]any{})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	return v
}

func emptyRec() *Record {
	return &Record{Values: map[string]any{}}
}

func TestEval_NullComparisonsAreFalse(t *testing.T) {
	rec := emptyRec()
	cases := []Expression{
		compExpr(litExpr(nil), OpEq, litExpr(nil)),
		compExpr(litExpr(nil), OpEq, litExpr(int64(1))),
		compExpr(litExpr(int64(1)), OpLt, litExpr(nil)),
		compExpr(propExpr("missing", "x"), OpEq, litExpr("y")),
	}
	for i, e := range cases {
		if v := evalIn(t, e, rec); v != false {
			t.Errorf("case %d: expected false, got %v", i, v)
		}
	}
}

func TestEval_CrossTypeOrderingIsFalse(t *testing.T) {
	rec := emptyRec()
	// 1 < "a" is false, not a type-rank comparison.
	e := compExpr(litExpr(int64(1)), OpLt, litExpr("a"))
	if v := evalIn(t, e, rec); v != false {
		t.Errorf("expected false, got %v", v)
	}
	// Mixed numeric widths still compare numerically.
	e = compExpr(litExpr(int64(2)), OpLt, litExpr(2.5))
	if v := evalIn(t, e, rec); v != true {
		t.Errorf("expected true, got %v", v)
	}
}

func TestEval_StringOperatorsRequireStrings(t *testing.T) {
	rec := emptyRec()
	e := compExpr(litExpr(int64(42)), OpStartsWith, litExpr("4"))
	if v := evalIn(t, e, rec); v != false {
		t.Errorf("expected false for non-string subject, got %v", v)
	}
	e = compExpr(litExpr("abc"), OpContains, litExpr("b"))
	if v := evalIn(t, e, rec); v != true {
		t.Errorf("expected true, got %v", v)
	}
}

func TestEval_InList(t *testing.T) {
	rec := emptyRec()
	list := Expression{Kind: ExprList, Elems: []Expression{
		litExpr(int64(1)), litExpr("a"), litExpr(nil),
	}}

	if v := evalIn(t, compExpr(litExpr("a"), OpIn, list), rec); v != true {
		t.Errorf("expected true, got %v", v)
	}
	if v := evalIn(t, compExpr(litExpr(int64(2)), OpIn, list), rec); v != false {
		t.Errorf("expected false, got %v", v)
	}
	// Null is not IN anything, even a list containing null.
	if v := evalIn(t, compExpr(litExpr(nil), OpIn, list), rec); v != false {
		t.Errorf("expected false, got %v", v)
	}
}

func TestEval_IsNull(t *testing.T) {
	rec := &Record{Values: map[string]any{"n": &Node{ID: 1, Props: Props{"a": int64(1)}}}}

	isNull := Expression{Kind: ExprIsNull, Inner: ptrExpr(propExpr("n", "missing"))}
	if v := evalIn(t, isNull, rec); v != true {
		t.Errorf("expected true, got %v", v)
	}
	isNotNull := Expression{Kind: ExprIsNull, Inner: ptrExpr(propExpr("n", "a")), Negated: true}
	if v := evalIn(t, isNotNull, rec); v != true {
		t.Errorf("expected true, got %v", v)
	}
}

func TestEval_PropertyAccess(t *testing.T) {
	n := &Node{ID: 3, Labels: []string{"L"}, Props: Props{"a": int64(7)}}
	r := &Relationship{ID: 2, Type: "T", Props: Props{"w": 1.5}}
	rec := &Record{Values: map[string]any{
		"n": n, "r": r, "m": map[string]any{"k": "v"}, "s": "str",
	}}

	if v := evalIn(t, propExpr("n", "a"), rec); v != int64(7) {
		t.Errorf("node prop: %v", v)
	}
	if v := evalIn(t, propExpr("r", "w"), rec); v != 1.5 {
		t.Errorf("rel prop: %v", v)
	}
	if v := evalIn(t, propExpr("m", "k"), rec); v != "v" {
		t.Errorf("map prop: %v", v)
	}
	// Property access on a scalar is a runtime query error.
	e := propExpr("s", "k")
	if _, err := evalExpr(&e, rec, nil); err == nil {
		t.Error("expected error for property access on string")
	}
}

func TestEval_Functions(t *testing.T) {
	n := &Node{ID: 9, Labels: []string{"A", "B"}, Props: Props{"name": "x"}}
	r := &Relationship{ID: 4, Type: "KNOWS"}
	rec := &Record{Values: map[string]any{"n": n, "r": r}}

	call := func(name string, args ...Expression) Expression {
		return Expression{Kind: ExprFuncCall, FuncName: name, Args: args}
	}

	if v := evalIn(t, call("id", varRefExpr("n")), rec); v != int64(9) {
		t.Errorf("id(): %v", v)
	}
	if v := evalIn(t, call("type", varRefExpr("r")), rec); v != "KNOWS" {
		t.Errorf("type(): %v", v)
	}
	if v := evalIn(t, call("size", Expression{Kind: ExprList, Elems: []Expression{litExpr(int64(1)), litExpr(int64(2))}}), rec); v != int64(2) {
		t.Errorf("size(): %v", v)
	}
	if v := evalIn(t, call("abs", litExpr(-2.5)), rec); v != 2.5 {
		t.Errorf("abs(): %v", v)
	}
	if v := evalIn(t, call("toString", litExpr(int64(12))), rec); v != "12" {
		t.Errorf("toString(): %v", v)
	}
	// Null passes through scalar functions.
	if v := evalIn(t, call("toUpper", litExpr(nil)), rec); v != nil {
		t.Errorf("toUpper(null): %v", v)
	}
	// coalesce picks the first non-null argument.
	if v := evalIn(t, call("coalesce", litExpr(nil), litExpr(nil), litExpr("x")), rec); v != "x" {
		t.Errorf("coalesce(): %v", v)
	}

	e := call("noSuchFn", litExpr(int64(1)))
	if _, err := evalExpr(&e, rec, nil); err == nil {
		t.Error("expected unknown function error")
	}
}

func TestEval_BooleanConnectives(t *testing.T) {
	rec := emptyRec()
	tr := compExpr(litExpr(int64(1)), OpEq, litExpr(int64(1)))
	fa := compExpr(litExpr(int64(1)), OpEq, litExpr(int64(2)))

	and := Expression{Kind: ExprAnd, Operands: []Expression{tr, fa}}
	if v := evalIn(t, and, rec); v != false {
		t.Errorf("AND: %v", v)
	}
	or := Expression{Kind: ExprOr, Operands: []Expression{fa, tr}}
	if v := evalIn(t, or, rec); v != true {
		t.Errorf("OR: %v", v)
	}
	if v := evalIn(t, notExpr(fa), rec); v != true {
		t.Errorf("NOT: %v", v)
	}
}
