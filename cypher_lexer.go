package kgraph

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// --------------------------------------------------------------------------
// Cypher Lexer: tokenises a query string into a stream of tokens.
//
// Every token carries a 1-based line and column so parse and compile errors
// can point at the offending source position.
//
// String escapes: the canonical rule set, applied here and by anything that
// must round-trip tokens:
//
//	\\  backslash      \'  single quote     \"  double quote
//	\n  newline        \t  tab              \r  carriage return
//	\uXXXX  exactly four hex digits, a UTF-16 code unit
//
// Any other backslash sequence is a lexical error.
// --------------------------------------------------------------------------

// TokenKind identifies the type of a lexer token.
type TokenKind int

const (
	// Special
	tokEOF TokenKind = iota

	// Literals
	tokIdent  // unquoted identifier: a, n, myVar
	tokString // 'Alice' or "Alice"
	tokInt    // 42
	tokFloat  // 3.14, 1e9, 2.5E-3
	tokParam  // $paramName

	// Keywords (case-insensitive)
	tokMatch
	tokOptional
	tokWhere
	tokWith
	tokReturn
	tokOrder
	tokBy
	tokSkip
	tokLimit
	tokUnion
	tokAll
	tokDistinct
	tokCreate
	tokAnd
	tokOr
	tokNot
	tokAs
	tokAsc
	tokDesc
	tokTrue
	tokFalse
	tokNull
	tokIn
	tokIs
	tokStarts
	tokEnds
	tokContains

	// Operators
	tokEq  // =
	tokNeq // <>
	tokLt  // <
	tokGt  // >
	tokLte // <=
	tokGte // >=

	// Punctuation
	tokLParen   // (
	tokRParen   // )
	tokLBracket // [
	tokRBracket // ]
	tokLBrace   // {
	tokRBrace   // }
	tokColon    // :
	tokDot      // .
	tokDotDot   // ..
	tokComma    // ,
	tokStar     // *
	tokDash     // -
	tokArrow    // ->
	tokLArrow   // <-
)

// Token is a single lexer token with its kind, literal text, and position.
type Token struct {
	Kind   TokenKind
	Text   string // decoded text for strings, raw text otherwise
	Line   int    // 1-based
	Column int    // 1-based, in bytes
}

// tokenKindName returns a human-readable name for error messages.
func tokenKindName(k TokenKind) string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return "???"
}

var tokenNames = map[TokenKind]string{
	tokEOF: "end of query", tokIdent: "identifier", tokString: "string",
	tokInt: "integer", tokFloat: "float", tokParam: "parameter",
	tokMatch: "MATCH", tokOptional: "OPTIONAL", tokWhere: "WHERE",
	tokWith: "WITH", tokReturn: "RETURN", tokOrder: "ORDER", tokBy: "BY",
	tokSkip: "SKIP", tokLimit: "LIMIT", tokUnion: "UNION", tokAll: "ALL",
	tokDistinct: "DISTINCT", tokCreate: "CREATE", tokAnd: "AND", tokOr: "OR",
	tokNot: "NOT", tokAs: "AS", tokAsc: "ASC", tokDesc: "DESC",
	tokTrue: "TRUE", tokFalse: "FALSE", tokNull: "NULL", tokIn: "IN",
	tokIs: "IS", tokStarts: "STARTS", tokEnds: "ENDS", tokContains: "CONTAINS",
	tokEq: "=", tokNeq: "<>", tokLt: "<", tokGt: ">", tokLte: "<=", tokGte: ">=",
	tokLParen: "(", tokRParen: ")", tokLBracket: "[", tokRBracket: "]",
	tokLBrace: "{", tokRBrace: "}", tokColon: ":", tokDot: ".", tokDotDot: "..",
	tokComma: ",", tokStar: "*", tokDash: "-", tokArrow: "->", tokLArrow: "<-",
}

// keywords maps uppercase keyword text to token kind.
var keywords = map[string]TokenKind{
	"MATCH": tokMatch, "OPTIONAL": tokOptional, "WHERE": tokWhere,
	"WITH": tokWith, "RETURN": tokReturn, "ORDER": tokOrder, "BY": tokBy,
	"SKIP": tokSkip, "LIMIT": tokLimit, "UNION": tokUnion, "ALL": tokAll,
	"DISTINCT": tokDistinct, "CREATE": tokCreate, "AND": tokAnd, "OR": tokOr,
	"NOT": tokNot, "AS": tokAs, "ASC": tokAsc, "DESC": tokDesc,
	"TRUE": tokTrue, "FALSE": tokFalse, "NULL": tokNull, "IN": tokIn,
	"IS": tokIs, "STARTS": tokStarts, "ENDS": tokEnds, "CONTAINS": tokContains,
}

// lexer holds the state for tokenising a query string.
type lexer struct {
	input  string
	pos    int
	line   int
	col    int
	tokens []Token
}

// tokenize converts a query string into a slice of tokens ending in tokEOF.
// A malformed input produces a positioned QueryError; the first error aborts.
func tokenize(input string) ([]Token, error) {
	l := &lexer{input: input, line: 1, col: 1}
	if err := l.scan(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func (l *lexer) scan() error {
	for l.pos < len(l.input) {
		l.skipWhitespace()
		if l.pos >= len(l.input) {
			break
		}

		ch := l.input[l.pos]

		switch {
		case ch == '(':
			l.emit(tokLParen, "(")
		case ch == ')':
			l.emit(tokRParen, ")")
		case ch == '[':
			l.emit(tokLBracket, "[")
		case ch == ']':
			l.emit(tokRBracket, "]")
		case ch == '{':
			l.emit(tokLBrace, "{")
		case ch == '}':
			l.emit(tokRBrace, "}")
		case ch == ':':
			l.emit(tokColon, ":")
		case ch == ',':
			l.emit(tokComma, ",")
		case ch == '*':
			l.emit(tokStar, "*")

		case ch == '.':
			if l.peek(1) == '.' {
				l.emitN(tokDotDot, "..", 2)
			} else {
				l.emit(tokDot, ".")
			}

		case ch == '-':
			if l.peek(1) == '>' {
				l.emitN(tokArrow, "->", 2)
			} else {
				l.emit(tokDash, "-")
			}

		case ch == '<':
			switch l.peek(1) {
			case '-':
				l.emitN(tokLArrow, "<-", 2)
			case '=':
				l.emitN(tokLte, "<=", 2)
			case '>':
				l.emitN(tokNeq, "<>", 2)
			default:
				l.emit(tokLt, "<")
			}

		case ch == '>':
			if l.peek(1) == '=' {
				l.emitN(tokGte, ">=", 2)
			} else {
				l.emit(tokGt, ">")
			}

		case ch == '=':
			l.emit(tokEq, "=")

		case ch == '\'' || ch == '"':
			if err := l.scanString(ch); err != nil {
				return err
			}

		case ch == '`':
			if err := l.scanBackquotedIdent(); err != nil {
				return err
			}

		case isDigit(ch):
			l.scanNumber()

		case ch == '$':
			l.scanParam()

		case isIdentStart(ch):
			l.scanIdentOrKeyword()

		default:
			return queryErrorAt(l.line, l.col, "unexpected character %q", ch)
		}
	}

	l.tokens = append(l.tokens, Token{Kind: tokEOF, Line: l.line, Column: l.col})
	return nil
}

// emit adds a single-char token and advances.
func (l *lexer) emit(kind TokenKind, text string) {
	l.tokens = append(l.tokens, Token{Kind: kind, Text: text, Line: l.line, Column: l.col})
	l.advance(1)
}

// emitN adds a multi-char token and advances by n.
func (l *lexer) emitN(kind TokenKind, text string, n int) {
	l.tokens = append(l.tokens, Token{Kind: kind, Text: text, Line: l.line, Column: l.col})
	l.advance(n)
}

// advance moves the cursor n bytes forward, tracking line/column.
func (l *lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.input); i++ {
		if l.input[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

// peek returns the byte at pos+offset, or 0 if out of bounds.
func (l *lexer) peek(offset int) byte {
	idx := l.pos + offset
	if idx >= len(l.input) {
		return 0
	}
	return l.input[idx]
}

func (l *lexer) skipWhitespace() {
	for l.pos < len(l.input) && isWhitespace(l.input[l.pos]) {
		l.advance(1)
	}
}

// scanString scans a quoted string literal, decoding the canonical escapes.
func (l *lexer) scanString(quote byte) error {
	startLine, startCol := l.line, l.col
	l.advance(1) // opening quote
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\\' {
			if l.pos+1 >= len(l.input) {
				break
			}
			esc := l.input[l.pos+1]
			switch esc {
			case '\\':
				b.WriteByte('\\')
			case '\'':
				b.WriteByte('\'')
			case '"':
				b.WriteByte('"')
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'u':
				if l.pos+6 > len(l.input) {
					return queryErrorAt(l.line, l.col, "truncated \\u escape")
				}
				code, ok := parseHex4(l.input[l.pos+2 : l.pos+6])
				if !ok {
					return queryErrorAt(l.line, l.col, "invalid \\u escape %q", l.input[l.pos:l.pos+6])
				}
				b.WriteRune(rune(code))
				l.advance(6)
				continue
			default:
				return queryErrorAt(l.line, l.col, "unknown escape sequence \\%c", esc)
			}
			l.advance(2)
			continue
		}
		if ch == quote {
			l.advance(1) // closing quote
			l.tokens = append(l.tokens, Token{Kind: tokString, Text: b.String(), Line: startLine, Column: startCol})
			return nil
		}
		b.WriteByte(ch)
		l.advance(1)
	}
	return queryErrorAt(startLine, startCol, "unterminated string")
}

// scanBackquotedIdent scans `quoted identifier` (no escapes inside).
func (l *lexer) scanBackquotedIdent() error {
	startLine, startCol := l.line, l.col
	l.advance(1)
	start := l.pos
	for l.pos < len(l.input) && l.input[l.pos] != '`' {
		l.advance(1)
	}
	if l.pos >= len(l.input) {
		return queryErrorAt(startLine, startCol, "unterminated backquoted identifier")
	}
	text := l.input[start:l.pos]
	l.advance(1)
	l.tokens = append(l.tokens, Token{Kind: tokIdent, Text: text, Line: startLine, Column: startCol})
	return nil
}

// scanNumber scans an integer or float literal. Floats may carry a decimal
// point, an exponent, or both: 3.14, 1e9, 2.5E-3.
func (l *lexer) scanNumber() {
	startLine, startCol := l.line, l.col
	start := l.pos
	isFloat := false

	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.advance(1)
	}

	// Fractional part. A lone dot followed by a digit is a decimal point;
	// ".." is the range operator and stays untouched.
	if l.pos < len(l.input) && l.input[l.pos] == '.' && l.peek(1) != '.' &&
		l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1]) {
		isFloat = true
		l.advance(1)
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.advance(1)
		}
	}

	// Exponent.
	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		expEnd := l.pos + 1
		if expEnd < len(l.input) && (l.input[expEnd] == '+' || l.input[expEnd] == '-') {
			expEnd++
		}
		if expEnd < len(l.input) && isDigit(l.input[expEnd]) {
			isFloat = true
			l.advance(expEnd - l.pos)
			for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
				l.advance(1)
			}
		}
	}

	text := l.input[start:l.pos]
	kind := tokInt
	if isFloat {
		kind = tokFloat
	}
	l.tokens = append(l.tokens, Token{Kind: kind, Text: text, Line: startLine, Column: startCol})
}

// scanIdentOrKeyword scans an identifier and promotes it to a keyword if it matches.
func (l *lexer) scanIdentOrKeyword() {
	startLine, startCol := l.line, l.col
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.advance(1)
	}
	text := l.input[start:l.pos]
	if kind, ok := keywords[strings.ToUpper(text)]; ok {
		l.tokens = append(l.tokens, Token{Kind: kind, Text: text, Line: startLine, Column: startCol})
	} else {
		l.tokens = append(l.tokens, Token{Kind: tokIdent, Text: text, Line: startLine, Column: startCol})
	}
}

// scanParam scans a parameter reference: $name. Text holds the bare name.
func (l *lexer) scanParam() {
	startLine, startCol := l.line, l.col
	l.advance(1) // '$'
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.advance(1)
	}
	l.tokens = append(l.tokens, Token{Kind: tokParam, Text: l.input[start:l.pos], Line: startLine, Column: startCol})
}

// Character classification helpers.

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	if ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') {
		return true
	}
	if ch < utf8.RuneSelf {
		return false
	}
	return unicode.IsLetter(rune(ch))
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func parseHex4(s string) (int, bool) {
	var v int
	for i := 0; i < 4; i++ {
		c := s[i]
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= int(c - '0')
		case c >= 'a' && c <= 'f':
			v |= int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v |= int(c-'A') + 10
		default:
			return 0, false
		}
	}
	return v, true
}
