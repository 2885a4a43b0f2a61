package kgraph

import "strconv"

// --------------------------------------------------------------------------
// Cypher parser: hand-rolled recursive descent over the token stream.
// Grammar (informal):
//
//	query        := singleQuery ( UNION [ALL] singleQuery )*
//	singleQuery  := readingClause* ( RETURN projection )?
//	readingClause:= [OPTIONAL] MATCH patterns [WHERE expr]
//	              | WITH projection [WHERE expr]
//	              | CREATE patterns
//	projection   := [DISTINCT] item (',' item)*
//	                [ORDER BY orderItem (',' orderItem)*] [SKIP e] [LIMIT e]
//	pattern      := nodePattern ( relPattern nodePattern )*
//	expr         := orExpr, with NOT / comparison / atom below
//
// Every parse error carries the 1-based line/column of the offending token.
// --------------------------------------------------------------------------

type parser struct {
	tokens []Token
	pos    int
}

// ParseQuery tokenizes and parses a Cypher query string into its AST.
func ParseQuery(input string) (*Query, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if !p.at(tokEOF) {
		return nil, p.errHere("unexpected %s", tokenKindName(p.cur().Kind))
	}
	return q, nil
}

// ---------------------------------------------------------------------------
// Token helpers
// ---------------------------------------------------------------------------

func (p *parser) cur() Token { return p.tokens[p.pos] }

func (p *parser) at(kind TokenKind) bool { return p.cur().Kind == kind }

func (p *parser) accept(kind TokenKind) bool {
	if p.at(kind) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(kind TokenKind) (Token, error) {
	if p.at(kind) {
		t := p.cur()
		p.pos++
		return t, nil
	}
	return Token{}, p.errHere("expected %s, found %s",
		tokenKindName(kind), tokenKindName(p.cur().Kind))
}

func (p *parser) errHere(format string, args ...any) error {
	t := p.cur()
	return queryErrorAt(t.Line, t.Column, format, args...)
}

// ---------------------------------------------------------------------------
// Query / clauses
// ---------------------------------------------------------------------------

func (p *parser) parseQuery() (*Query, error) {
	q := &Query{}
	for {
		sq, err := p.parseSingleQuery()
		if err != nil {
			return nil, err
		}
		q.Parts = append(q.Parts, sq)
		if !p.accept(tokUnion) {
			break
		}
		q.UnionAll = append(q.UnionAll, p.accept(tokAll))
	}
	return q, nil
}

func (p *parser) parseSingleQuery() (SingleQuery, error) {
	var sq SingleQuery
	for {
		t := p.cur()
		switch t.Kind {
		case tokMatch, tokOptional:
			c, err := p.parseMatch()
			if err != nil {
				return sq, err
			}
			sq.Clauses = append(sq.Clauses, c)
		case tokCreate:
			c, err := p.parseCreate()
			if err != nil {
				return sq, err
			}
			sq.Clauses = append(sq.Clauses, c)
		case tokWith:
			c, err := p.parseWith()
			if err != nil {
				return sq, err
			}
			sq.Clauses = append(sq.Clauses, c)
		case tokReturn:
			c, err := p.parseReturn()
			if err != nil {
				return sq, err
			}
			sq.Clauses = append(sq.Clauses, c)
			return sq, nil
		default:
			if len(sq.Clauses) == 0 {
				return sq, p.errHere("expected a clause, found %s",
					tokenKindName(t.Kind))
			}
			// Queries without RETURN are legal only when they write.
			for _, c := range sq.Clauses {
				if c.Kind == ClauseCreate {
					return sq, nil
				}
			}
			return sq, p.errHere("query must end with RETURN")
		}
	}
}

func (p *parser) parseMatch() (Clause, error) {
	t := p.cur()
	c := Clause{Kind: ClauseMatch, Line: t.Line, Column: t.Column}
	if p.accept(tokOptional) {
		c.Kind = ClauseOptionalMatch
	}
	if _, err := p.expect(tokMatch); err != nil {
		return c, err
	}
	patterns, err := p.parsePatterns()
	if err != nil {
		return c, err
	}
	c.Patterns = patterns
	if p.accept(tokWhere) {
		e, err := p.parseExpression()
		if err != nil {
			return c, err
		}
		c.Where = &e
	}
	return c, nil
}

func (p *parser) parseCreate() (Clause, error) {
	t := p.cur()
	c := Clause{Kind: ClauseCreate, Line: t.Line, Column: t.Column}
	p.pos++ // CREATE
	patterns, err := p.parsePatterns()
	if err != nil {
		return c, err
	}
	c.Patterns = patterns
	return c, nil
}

func (p *parser) parseWith() (Clause, error) {
	t := p.cur()
	c := Clause{Kind: ClauseWith, Line: t.Line, Column: t.Column}
	p.pos++ // WITH
	proj, err := p.parseProjection()
	if err != nil {
		return c, err
	}
	c.Projection = proj
	if p.accept(tokWhere) {
		e, err := p.parseExpression()
		if err != nil {
			return c, err
		}
		c.Where = &e
	}
	return c, nil
}

func (p *parser) parseReturn() (Clause, error) {
	t := p.cur()
	c := Clause{Kind: ClauseReturn, Line: t.Line, Column: t.Column}
	p.pos++ // RETURN
	proj, err := p.parseProjection()
	if err != nil {
		return c, err
	}
	c.Projection = proj
	return c, nil
}

func (p *parser) parseProjection() (*Projection, error) {
	proj := &Projection{Distinct: p.accept(tokDistinct)}
	for {
		item, err := p.parseProjectionItem()
		if err != nil {
			return nil, err
		}
		proj.Items = append(proj.Items, item)
		if !p.accept(tokComma) {
			break
		}
	}
	if p.accept(tokOrder) {
		if _, err := p.expect(tokBy); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			item := OrderItem{Expr: e}
			if p.accept(tokDesc) {
				item.Desc = true
			} else {
				p.accept(tokAsc)
			}
			proj.OrderBy = append(proj.OrderBy, item)
			if !p.accept(tokComma) {
				break
			}
		}
	}
	if p.accept(tokSkip) {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		proj.Skip = &e
	}
	if p.accept(tokLimit) {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		proj.Limit = &e
	}
	return proj, nil
}

func (p *parser) parseProjectionItem() (ProjectionItem, error) {
	e, err := p.parseExpression()
	if err != nil {
		return ProjectionItem{}, err
	}
	item := ProjectionItem{Expr: e}
	if p.accept(tokAs) {
		t, err := p.expect(tokIdent)
		if err != nil {
			return item, err
		}
		item.Alias = t.Text
	}
	return item, nil
}

// ---------------------------------------------------------------------------
// Patterns
// ---------------------------------------------------------------------------

func (p *parser) parsePatterns() ([]Pattern, error) {
	var patterns []Pattern
	for {
		pat, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, pat)
		if !p.accept(tokComma) {
			return patterns, nil
		}
	}
}

func (p *parser) parsePattern() (Pattern, error) {
	var pat Pattern
	node, err := p.parseNodePattern()
	if err != nil {
		return pat, err
	}
	pat.Nodes = append(pat.Nodes, node)
	for p.at(tokDash) || p.at(tokLArrow) {
		rel, err := p.parseRelPattern()
		if err != nil {
			return pat, err
		}
		next, err := p.parseNodePattern()
		if err != nil {
			return pat, err
		}
		pat.Rels = append(pat.Rels, rel)
		pat.Nodes = append(pat.Nodes, next)
	}
	return pat, nil
}

func (p *parser) parseNodePattern() (NodePattern, error) {
	open, err := p.expect(tokLParen)
	if err != nil {
		return NodePattern{}, err
	}
	np := NodePattern{Line: open.Line, Column: open.Column}
	if p.at(tokIdent) {
		np.Variable = p.cur().Text
		p.pos++
	}
	for p.accept(tokColon) {
		t, err := p.expect(tokIdent)
		if err != nil {
			return np, err
		}
		np.Labels = append(np.Labels, t.Text)
	}
	if p.at(tokLBrace) {
		props, err := p.parsePropertyMap()
		if err != nil {
			return np, err
		}
		np.Props = props
	}
	if _, err := p.expect(tokRParen); err != nil {
		return np, err
	}
	return np, nil
}

// parseRelPattern consumes one of the four relationship shapes:
//
//	-[r:T]->   -[r:T]-   <-[r:T]-   and the bracketless -- / --> / <--
func (p *parser) parseRelPattern() (RelPattern, error) {
	t := p.cur()
	rp := RelPattern{Dir: Both, MinHops: 1, MaxHops: 1, Line: t.Line, Column: t.Column}
	if p.accept(tokLArrow) {
		rp.Dir = Incoming
	} else if _, err := p.expect(tokDash); err != nil {
		return rp, err
	}
	if p.accept(tokLBracket) {
		if p.at(tokIdent) {
			rp.Variable = p.cur().Text
			p.pos++
		}
		if p.accept(tokColon) {
			t, err := p.expect(tokIdent)
			if err != nil {
				return rp, err
			}
			rp.Type = t.Text
		}
		if p.accept(tokStar) {
			rp.VarLength = true
			rp.MinHops = 1
			rp.MaxHops = -1
			if p.at(tokInt) {
				n, err := p.parseHopCount()
				if err != nil {
					return rp, err
				}
				rp.MinHops = n
				rp.MaxHops = n
			}
			if p.accept(tokDotDot) {
				rp.MaxHops = -1
				if p.at(tokInt) {
					n, err := p.parseHopCount()
					if err != nil {
						return rp, err
					}
					rp.MaxHops = n
				}
			}
			if rp.MaxHops >= 0 && rp.MaxHops < rp.MinHops {
				return rp, queryErrorAt(rp.Line, rp.Column,
					"variable-length range %d..%d is empty", rp.MinHops, rp.MaxHops)
			}
		}
		if p.at(tokLBrace) {
			props, err := p.parsePropertyMap()
			if err != nil {
				return rp, err
			}
			rp.Props = props
		}
		if _, err := p.expect(tokRBracket); err != nil {
			return rp, err
		}
	}
	if p.accept(tokArrow) {
		if rp.Dir == Incoming {
			return rp, queryErrorAt(rp.Line, rp.Column,
				"relationship cannot point both ways")
		}
		rp.Dir = Outgoing
	} else if _, err := p.expect(tokDash); err != nil {
		return rp, err
	}
	return rp, nil
}

func (p *parser) parseHopCount() (int, error) {
	t, err := p.expect(tokInt)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(t.Text)
	if err != nil || n < 0 {
		return 0, queryErrorAt(t.Line, t.Column, "invalid hop count %q", t.Text)
	}
	return n, nil
}

func (p *parser) parsePropertyMap() (map[string]Expression, error) {
	if _, err := p.expect(tokLBrace); err != nil {
		return nil, err
	}
	props := make(map[string]Expression)
	if p.accept(tokRBrace) {
		return props, nil
	}
	for {
		key, err := p.expect(tokIdent)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokColon); err != nil {
			return nil, err
		}
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		props[key.Text] = e
		if !p.accept(tokComma) {
			break
		}
	}
	if _, err := p.expect(tokRBrace); err != nil {
		return nil, err
	}
	return props, nil
}

// ---------------------------------------------------------------------------
// Expressions, in precedence order: OR < AND < NOT < comparison < atom.
// ---------------------------------------------------------------------------

func (p *parser) parseExpression() (Expression, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return left, err
	}
	if !p.at(tokOr) {
		return left, nil
	}
	operands := []Expression{left}
	for p.accept(tokOr) {
		e, err := p.parseAnd()
		if err != nil {
			return left, err
		}
		operands = append(operands, e)
	}
	return Expression{Kind: ExprOr, Operands: operands}, nil
}

func (p *parser) parseAnd() (Expression, error) {
	left, err := p.parseNot()
	if err != nil {
		return left, err
	}
	if !p.at(tokAnd) {
		return left, nil
	}
	operands := []Expression{left}
	for p.accept(tokAnd) {
		e, err := p.parseNot()
		if err != nil {
			return left, err
		}
		operands = append(operands, e)
	}
	return Expression{Kind: ExprAnd, Operands: operands}, nil
}

func (p *parser) parseNot() (Expression, error) {
	if p.accept(tokNot) {
		inner, err := p.parseNot()
		if err != nil {
			return inner, err
		}
		return notExpr(inner), nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expression, error) {
	left, err := p.parseAtom()
	if err != nil {
		return left, err
	}
	t := p.cur()
	var op CompOp
	switch t.Kind {
	case tokEq:
		op = OpEq
	case tokNeq:
		op = OpNeq
	case tokLt:
		op = OpLt
	case tokGt:
		op = OpGt
	case tokLte:
		op = OpLte
	case tokGte:
		op = OpGte
	case tokIn:
		op = OpIn
	case tokStarts:
		p.pos++
		if _, err := p.expect(tokWith); err != nil {
			return left, err
		}
		right, err := p.parseAtom()
		if err != nil {
			return left, err
		}
		e := compExpr(left, OpStartsWith, right)
		e.Line, e.Column = t.Line, t.Column
		return e, nil
	case tokEnds:
		p.pos++
		if _, err := p.expect(tokWith); err != nil {
			return left, err
		}
		right, err := p.parseAtom()
		if err != nil {
			return left, err
		}
		e := compExpr(left, OpEndsWith, right)
		e.Line, e.Column = t.Line, t.Column
		return e, nil
	case tokContains:
		p.pos++
		right, err := p.parseAtom()
		if err != nil {
			return left, err
		}
		e := compExpr(left, OpContains, right)
		e.Line, e.Column = t.Line, t.Column
		return e, nil
	case tokIs:
		p.pos++
		negated := p.accept(tokNot)
		if _, err := p.expect(tokNull); err != nil {
			return left, err
		}
		return Expression{Kind: ExprIsNull, Inner: &left, Negated: negated,
			Line: t.Line, Column: t.Column}, nil
	default:
		return left, nil
	}
	p.pos++
	right, err := p.parseAtom()
	if err != nil {
		return left, err
	}
	e := compExpr(left, op, right)
	e.Line, e.Column = t.Line, t.Column
	return e, nil
}

func (p *parser) parseAtom() (Expression, error) {
	t := p.cur()
	switch t.Kind {
	case tokInt:
		p.pos++
		n, err := strconv.ParseInt(t.Text, 10, 64)
		if err != nil {
			return Expression{}, queryErrorAt(t.Line, t.Column,
				"invalid integer literal %q", t.Text)
		}
		e := litExpr(n)
		e.Line, e.Column = t.Line, t.Column
		return e, nil
	case tokFloat:
		p.pos++
		f, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return Expression{}, queryErrorAt(t.Line, t.Column,
				"invalid float literal %q", t.Text)
		}
		e := litExpr(f)
		e.Line, e.Column = t.Line, t.Column
		return e, nil
	case tokString:
		p.pos++
		e := litExpr(t.Text)
		e.Line, e.Column = t.Line, t.Column
		return e, nil
	case tokTrue:
		p.pos++
		return litExpr(true), nil
	case tokFalse:
		p.pos++
		return litExpr(false), nil
	case tokNull:
		p.pos++
		return litExpr(nil), nil
	case tokParam:
		p.pos++
		return Expression{Kind: ExprParam, ParamName: t.Text,
			Line: t.Line, Column: t.Column}, nil
	case tokLParen:
		p.pos++
		e, err := p.parseExpression()
		if err != nil {
			return e, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return e, err
		}
		return e, nil
	case tokLBracket:
		return p.parseListLiteral()
	case tokLBrace:
		m, err := p.parsePropertyMap()
		if err != nil {
			return Expression{}, err
		}
		return Expression{Kind: ExprMap, MapElems: m,
			Line: t.Line, Column: t.Column}, nil
	case tokIdent:
		return p.parseIdentAtom()
	default:
		return Expression{}, p.errHere("expected an expression, found %s",
			tokenKindName(t.Kind))
	}
}

func (p *parser) parseListLiteral() (Expression, error) {
	t := p.cur()
	p.pos++ // [
	e := Expression{Kind: ExprList, Line: t.Line, Column: t.Column}
	if p.accept(tokRBracket) {
		return e, nil
	}
	for {
		elem, err := p.parseExpression()
		if err != nil {
			return e, err
		}
		e.Elems = append(e.Elems, elem)
		if !p.accept(tokComma) {
			break
		}
	}
	if _, err := p.expect(tokRBracket); err != nil {
		return e, err
	}
	return e, nil
}

// parseIdentAtom handles variable references, property access and function
// calls, which all start with an identifier.
func (p *parser) parseIdentAtom() (Expression, error) {
	t := p.cur()
	p.pos++
	if p.accept(tokDot) {
		prop, err := p.expect(tokIdent)
		if err != nil {
			return Expression{}, err
		}
		e := propExpr(t.Text, prop.Text)
		e.Line, e.Column = t.Line, t.Column
		return e, nil
	}
	if p.accept(tokLParen) {
		e := Expression{Kind: ExprFuncCall, FuncName: t.Text,
			Line: t.Line, Column: t.Column}
		if p.accept(tokStar) {
			e.Star = true
			if _, err := p.expect(tokRParen); err != nil {
				return e, err
			}
			return e, nil
		}
		if p.accept(tokRParen) {
			return e, nil
		}
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return e, err
			}
			e.Args = append(e.Args, arg)
			if !p.accept(tokComma) {
				break
			}
		}
		if _, err := p.expect(tokRParen); err != nil {
			return e, err
		}
		return e, nil
	}
	e := varRefExpr(t.Text)
	e.Line, e.Column = t.Line, t.Column
	return e, nil
}
