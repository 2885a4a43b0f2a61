package kgraph

import (
	"strings"
	"testing"
)

func parseOne(t *testing.T, input string) *SingleQuery {
	t.Helper()
	q, err := ParseQuery(input)
	if err != nil {
		t.Fatalf("parse %q: %v", input, err)
	}
	if len(q.Parts) != 1 {
		t.Fatalf("expected 1 query part, got %d", len(q.Parts))
	}
	return &q.Parts[0]
}

func TestParse_MatchReturn(t *testing.T) {
	sq := parseOne(t, `MATCH (p:Person {name: 'Alice'}) RETURN p.name AS name`)
	if len(sq.Clauses) != 2 {
		t.Fatalf("expected 2 clauses, got %d", len(sq.Clauses))
	}

	m := sq.Clauses[0]
	if m.Kind != ClauseMatch || len(m.Patterns) != 1 {
		t.Fatalf("unexpected match clause %+v", m)
	}
	n := m.Patterns[0].Nodes[0]
	if n.Variable != "p" || len(n.Labels) != 1 || n.Labels[0] != "Person" {
		t.Errorf("unexpected node pattern %+v", n)
	}
	if v, ok := n.Props["name"]; !ok || v.Kind != ExprLiteral || v.LitValue != "Alice" {
		t.Errorf("unexpected inline props %+v", n.Props)
	}

	r := sq.Clauses[1]
	if r.Kind != ClauseReturn || len(r.Projection.Items) != 1 {
		t.Fatalf("unexpected return clause %+v", r)
	}
	if r.Projection.Items[0].Alias != "name" {
		t.Errorf("expected alias name, got %q", r.Projection.Items[0].Alias)
	}
}

func TestParse_RelationshipDirections(t *testing.T) {
	cases := []struct {
		input string
		dir   Direction
		typ   string
	}{
		{`MATCH (a)-[r:KNOWS]->(b) RETURN a`, Outgoing, "KNOWS"},
		{`MATCH (a)<-[r:KNOWS]-(b) RETURN a`, Incoming, "KNOWS"},
		{`MATCH (a)-[r:KNOWS]-(b) RETURN a`, Both, "KNOWS"},
		{`MATCH (a)--(b) RETURN a`, Both, ""},
		{`MATCH (a)-->(b) RETURN a`, Outgoing, ""},
	}
	for _, tc := range cases {
		sq := parseOne(t, tc.input)
		rel := sq.Clauses[0].Patterns[0].Rels[0]
		if rel.Dir != tc.dir || rel.Type != tc.typ {
			t.Errorf("%s: got dir=%v type=%q", tc.input, rel.Dir, rel.Type)
		}
	}
}

func TestParse_VarLength(t *testing.T) {
	sq := parseOne(t, `MATCH (a)-[:KNOWS*2..4]->(b) RETURN b`)
	rel := sq.Clauses[0].Patterns[0].Rels[0]
	if !rel.VarLength || rel.MinHops != 2 || rel.MaxHops != 4 {
		t.Fatalf("unexpected var-length %+v", rel)
	}

	sq = parseOne(t, `MATCH (a)-[:KNOWS*]->(b) RETURN b`)
	rel = sq.Clauses[0].Patterns[0].Rels[0]
	if !rel.VarLength || rel.MinHops != 1 || rel.MaxHops != -1 {
		t.Fatalf("unexpected open-ended var-length %+v", rel)
	}

	sq = parseOne(t, `MATCH (a)-[:KNOWS*3]->(b) RETURN b`)
	rel = sq.Clauses[0].Patterns[0].Rels[0]
	if rel.MinHops != 3 || rel.MaxHops != 3 {
		t.Fatalf("unexpected fixed var-length %+v", rel)
	}

	if _, err := ParseQuery(`MATCH (a)-[:KNOWS*4..2]->(b) RETURN b`); err == nil {
		t.Fatal("expected error for empty hop range")
	}
}

func TestParse_WherePrecedence(t *testing.T) {
	sq := parseOne(t, `MATCH (n) WHERE n.a = 1 OR n.b = 2 AND NOT n.c = 3 RETURN n`)
	w := sq.Clauses[0].Where
	// OR binds loosest: OR(a=1, AND(b=2, NOT(c=3))).
	if w.Kind != ExprOr || len(w.Operands) != 2 {
		t.Fatalf("expected top-level OR, got %+v", w)
	}
	right := w.Operands[1]
	if right.Kind != ExprAnd || len(right.Operands) != 2 {
		t.Fatalf("expected AND under OR, got %+v", right)
	}
	if right.Operands[1].Kind != ExprNot {
		t.Fatalf("expected NOT under AND, got %+v", right.Operands[1])
	}
}

func TestParse_ComparisonOperators(t *testing.T) {
	ops := map[string]CompOp{
		"=": OpEq, "<>": OpNeq, "<": OpLt, "<=": OpLte, ">": OpGt, ">=": OpGte,
	}
	for tok, want := range ops {
		sq := parseOne(t, `MATCH (n) WHERE n.x `+tok+` 1 RETURN n`)
		w := sq.Clauses[0].Where
		if w.Kind != ExprComparison || w.Op != want {
			t.Errorf("%s: got %+v", tok, w)
		}
	}

	sq := parseOne(t, `MATCH (n) WHERE n.name STARTS WITH 'A' AND n.name CONTAINS 'b' RETURN n`)
	ands := sq.Clauses[0].Where.Operands
	if ands[0].Op != OpStartsWith || ands[1].Op != OpContains {
		t.Errorf("unexpected string operators %+v", ands)
	}

	sq = parseOne(t, `MATCH (n) WHERE n.x IN [1, 2, 3] RETURN n`)
	w := sq.Clauses[0].Where
	if w.Op != OpIn || w.Right.Kind != ExprList || len(w.Right.Elems) != 3 {
		t.Errorf("unexpected IN expression %+v", w)
	}
}

func TestParse_IsNull(t *testing.T) {
	sq := parseOne(t, `MATCH (n) WHERE n.x IS NULL RETURN n`)
	if sq.Clauses[0].Where.Kind != ExprIsNull {
		t.Fatalf("expected IS NULL, got %+v", sq.Clauses[0].Where)
	}

	sq = parseOne(t, `MATCH (n) WHERE n.x IS NOT NULL RETURN n`)
	w := sq.Clauses[0].Where
	if w.Kind != ExprIsNull || !w.Negated {
		t.Fatalf("expected negated IS NULL, got %+v", w)
	}
}

func TestParse_Literals(t *testing.T) {
	sq := parseOne(t, `RETURN 42 AS i, 3.5 AS f, 'str' AS s, true AS b, null AS z, [1, 'a'] AS l, {k: 1} AS m`)
	items := sq.Clauses[0].Projection.Items
	if items[0].Expr.LitValue != int64(42) {
		t.Errorf("int literal: %v (%T)", items[0].Expr.LitValue, items[0].Expr.LitValue)
	}
	if items[1].Expr.LitValue != 3.5 {
		t.Errorf("float literal: %v", items[1].Expr.LitValue)
	}
	if items[2].Expr.LitValue != "str" {
		t.Errorf("string literal: %v", items[2].Expr.LitValue)
	}
	if items[3].Expr.LitValue != true {
		t.Errorf("bool literal: %v", items[3].Expr.LitValue)
	}
	if items[4].Expr.Kind != ExprLiteral || items[4].Expr.LitValue != nil {
		t.Errorf("null literal: %+v", items[4].Expr)
	}
	if items[5].Expr.Kind != ExprList || len(items[5].Expr.Elems) != 2 {
		t.Errorf("list literal: %+v", items[5].Expr)
	}
	if items[6].Expr.Kind != ExprMap || len(items[6].Expr.MapElems) != 1 {
		t.Errorf("map literal: %+v", items[6].Expr)
	}
}

func TestParse_Parameters(t *testing.T) {
	sq := parseOne(t, `MATCH (n {name: $who}) RETURN n`)
	p := sq.Clauses[0].Patterns[0].Nodes[0].Props["name"]
	if p.Kind != ExprParam || p.ParamName != "who" {
		t.Fatalf("unexpected parameter expr %+v", p)
	}
}

func TestParse_FunctionsAndCountStar(t *testing.T) {
	sq := parseOne(t, `MATCH (n) RETURN count(*) AS c, toUpper(n.name) AS u`)
	items := sq.Clauses[1].Projection.Items
	if items[0].Expr.Kind != ExprFuncCall || !items[0].Expr.Star {
		t.Fatalf("expected count(*), got %+v", items[0].Expr)
	}
	if items[1].Expr.FuncName != "toUpper" || len(items[1].Expr.Args) != 1 {
		t.Fatalf("expected toUpper call, got %+v", items[1].Expr)
	}
}

func TestParse_OrderBySkipLimit(t *testing.T) {
	sq := parseOne(t, `MATCH (n) RETURN n.a ORDER BY n.a DESC, n.b SKIP 2 LIMIT 5`)
	proj := sq.Clauses[1].Projection
	if len(proj.OrderBy) != 2 || !proj.OrderBy[0].Desc || proj.OrderBy[1].Desc {
		t.Fatalf("unexpected order items %+v", proj.OrderBy)
	}
	if proj.Skip == nil || proj.Skip.LitValue != int64(2) {
		t.Errorf("unexpected skip %+v", proj.Skip)
	}
	if proj.Limit == nil || proj.Limit.LitValue != int64(5) {
		t.Errorf("unexpected limit %+v", proj.Limit)
	}
}

func TestParse_Union(t *testing.T) {
	q, err := ParseQuery(`MATCH (a) RETURN a.x AS x UNION MATCH (b) RETURN b.x AS x UNION ALL MATCH (c) RETURN c.x AS x`)
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Parts) != 3 || len(q.UnionAll) != 2 {
		t.Fatalf("unexpected union shape: %d parts, %d seams", len(q.Parts), len(q.UnionAll))
	}
	if q.UnionAll[0] || !q.UnionAll[1] {
		t.Errorf("unexpected union kinds %v", q.UnionAll)
	}
}

func TestParse_OptionalMatchAndWith(t *testing.T) {
	sq := parseOne(t, `MATCH (a) OPTIONAL MATCH (a)-[:R]->(b) WITH a, count(b) AS n WHERE n > 0 RETURN a`)
	kinds := []ClauseKind{ClauseMatch, ClauseOptionalMatch, ClauseWith, ClauseReturn}
	if len(sq.Clauses) != len(kinds) {
		t.Fatalf("expected %d clauses, got %d", len(kinds), len(sq.Clauses))
	}
	for i, k := range kinds {
		if sq.Clauses[i].Kind != k {
			t.Errorf("clause %d: expected kind %v, got %v", i, k, sq.Clauses[i].Kind)
		}
	}
	if sq.Clauses[2].Where == nil {
		t.Error("expected WHERE attached to WITH")
	}
}

func TestParse_CreateWithoutReturn(t *testing.T) {
	sq := parseOne(t, `CREATE (a:X {v: 1})-[:NEXT]->(b:X)`)
	if len(sq.Clauses) != 1 || sq.Clauses[0].Kind != ClauseCreate {
		t.Fatalf("unexpected clauses %+v", sq.Clauses)
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []string{
		``,
		`MATCH (n)`,                      // reading query needs RETURN
		`RETURN`,                         // empty projection
		`MATCH (n RETURN n`,              // unclosed paren
		`MATCH (n) WHERE RETURN n`,       // missing predicate
		`MATCH (n) RETURN n.`,            // dangling property access
		`FOO (n) RETURN n`,               // unknown clause
		`MATCH (n) RETURN n LIMIT 'two'`, // handled at parse or compile

		`MATCH (a)-[:T*2..1]->(b) RETURN a`, // inverted range
	}
	for _, input := range cases {
		if input == `MATCH (n) RETURN n LIMIT 'two'` {
			continue // a string limit is legal grammar; execution rejects it
		}
		if _, err := ParseQuery(input); err == nil {
			t.Errorf("%q: expected parse error", input)
		}
	}
}

func TestParse_ErrorsCarryPosition(t *testing.T) {
	_, err := ParseQuery("MATCH (n)\nRETURN n.")
	if err == nil {
		t.Fatal("expected error")
	}
	qe, ok := err.(*QueryError)
	if !ok {
		t.Fatalf("expected *QueryError, got %T", err)
	}
	if qe.Line < 1 || qe.Column < 1 {
		t.Errorf("expected positive position, got line=%d col=%d", qe.Line, qe.Column)
	}
	if !strings.Contains(qe.Error(), "at 2:") {
		t.Errorf("error text should carry the position: %s", qe.Error())
	}
}

func TestLex_KeywordsAreCaseInsensitive(t *testing.T) {
	if _, err := ParseQuery(`match (n) where n.x = 1 return n`); err != nil {
		t.Fatalf("lowercase keywords: %v", err)
	}
	if _, err := ParseQuery(`Match (n) Return n`); err != nil {
		t.Fatalf("mixed-case keywords: %v", err)
	}
}
