// Package parser turns match-expression and action-descriptor rule text
// into the compiled ast package's data model. It is a small hand-written
// recursive-descent parser over internal/frontend/lexer's token stream,
// following spec.md §4.A's grammar.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/e9rw/e9rw/internal/frontend/ast"
	"github.com/e9rw/e9rw/internal/frontend/lexer"
	"github.com/e9rw/e9rw/internal/frontend/reg"
)

// Mode names the parse context, echoed in error messages per spec.md §4.A
// ("the current parse mode: matching, action, memory operand").
type Mode string

const (
	ModeMatching      Mode = "matching"
	ModeAction        Mode = "action"
	ModeMemoryOperand Mode = "memory operand"
)

// ParseError carries the offending token, the parse mode, and an
// expected-set description, matching spec.md §4.A's error-reporting
// contract.
type ParseError struct {
	Mode     Mode
	Token    lexer.Token
	Expected string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s mode at %q: expected %s", e.Mode, e.Token.String(), e.Expected)
}

// Options threads the callbacks the parser needs to fully resolve a rule at
// parse time: CSV value-set loading, plugin opening, and ELF symbol
// resolution for "&name" references. All three are optional: a nil LoadCSV
// makes a CSV value set an error, a nil OpenPlugin leaves plugins unopened,
// and a nil ResolveSymbol makes "&name" an undefined value.
type Options struct {
	LoadCSV       func(basename string, column int) (*ast.ValueIndex, error)
	OpenPlugin    func(basename string) (ast.PluginHandle, error)
	ResolveSymbol func(name string) (addr uint64, defined bool)
	// Warn receives non-fatal diagnostics (undefined symbolic address).
	Warn func(msg string)
}

type parser struct {
	lex  *lexer.Lexer
	opts Options
	mode Mode
	cur  lexer.Token
}

func newParser(src string, opts Options, mode Mode) (*parser, error) {
	p := &parser{lex: lexer.New(src), opts: opts, mode: mode}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) advanceRegex() error {
	tok, err := p.lex.NextRegex()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) errorf(expected string) error {
	return &ParseError{Mode: p.mode, Token: p.cur, Expected: expected}
}

func (p *parser) expect(kind lexer.TokenKind, expected string) (lexer.Token, error) {
	if p.cur.Kind != kind {
		return lexer.Token{}, p.errorf(expected)
	}
	tok := p.cur
	if err := p.advance(); err != nil {
		return lexer.Token{}, err
	}
	return tok, nil
}

func (p *parser) isIdent(name string) bool {
	return p.cur.Kind == lexer.TokenIdent && strings.EqualFold(p.cur.Text, name)
}

// ParseMatchExpr parses a full boolean match expression.
func ParseMatchExpr(src string, opts Options) (*ast.MatchExpr, error) {
	p, err := newParser(src, opts, ModeMatching)
	if err != nil {
		return nil, err
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.Kind != lexer.TokenEOF {
		return nil, p.errorf("end of expression")
	}
	return expr, nil
}

// expr := or-expr
// or-expr := and-expr ('||' and-expr)*
func (p *parser) parseOr() (*ast.MatchExpr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.Kind == lexer.TokenOrOr || p.isIdent("OR") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = ast.Or(left, right)
	}
	return left, nil
}

// and-expr := test-expr ('&&' test-expr)*
func (p *parser) parseAnd() (*ast.MatchExpr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.Kind == lexer.TokenAndAnd || p.isIdent("AND") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = ast.And(left, right)
	}
	return left, nil
}

// test-expr := '(' or-expr ')' | ('!'|NOT) test-expr | test
func (p *parser) parseUnary() (*ast.MatchExpr, error) {
	if p.cur.Kind == lexer.TokenLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	if p.cur.Kind == lexer.TokenBang || p.isIdent("NOT") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return ast.Not(inner), nil
	}
	return p.parseTest()
}

// parseTest dispatches between 'defined(attr)', a register-set test, and a
// plain attr test.
func (p *parser) parseTest() (*ast.MatchExpr, error) {
	if p.isIdent("defined") {
		return p.parseDefined()
	}
	if _, ok := reg.Lookup(p.cur.Text); p.cur.Kind == lexer.TokenIdent && ok {
		if expr, matched, err := p.tryParseRegSetTest(); err != nil {
			return nil, err
		} else if matched {
			return expr, nil
		}
	}
	return p.parseAttrTest()
}

func (p *parser) parseDefined() (*ast.MatchExpr, error) {
	if err := p.advance(); err != nil { // consume 'defined'
		return nil, err
	}
	if _, err := p.expect(lexer.TokenLParen, "'('"); err != nil {
		return nil, err
	}
	test, err := p.parseAttr(false)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenRParen, "')'"); err != nil {
		return nil, err
	}
	test.Cmp = ast.CmpDefined
	return ast.Leaf(test), nil
}

// tryParseRegSetTest attempts "R1, R2, ... in {regs|reads|writes}"; it
// speculatively scans ahead and returns matched=false, leaving the parser
// state to fall back to parseAttrTest, if the "in {kind}" tail is absent.
func (p *parser) tryParseRegSetTest() (*ast.MatchExpr, bool, error) {
	// Snapshot lexer state for backtracking.
	savedLex := *p.lex
	savedCur := p.cur

	var regs []reg.Register
	for {
		r, ok := reg.Lookup(p.cur.Text)
		if p.cur.Kind != lexer.TokenIdent || !ok {
			*p.lex = savedLex
			p.cur = savedCur
			return nil, false, nil
		}
		regs = append(regs, r)
		if err := p.advance(); err != nil {
			return nil, false, err
		}
		if p.cur.Kind == lexer.TokenComma {
			if err := p.advance(); err != nil {
				return nil, false, err
			}
			continue
		}
		break
	}
	if !p.isIdent("in") {
		*p.lex = savedLex
		p.cur = savedCur
		return nil, false, nil
	}
	if err := p.advance(); err != nil {
		return nil, false, err
	}
	if _, err := p.expect(lexer.TokenLBrace, "'{'"); err != nil {
		return nil, false, err
	}
	var kind ast.Kind
	switch {
	case p.isIdent("regs"):
		kind = ast.KindRegs
	case p.isIdent("reads"):
		kind = ast.KindReads
	case p.isIdent("writes"):
		kind = ast.KindWrites
	default:
		return nil, false, p.errorf("'regs', 'reads', or 'writes'")
	}
	if err := p.advance(); err != nil {
		return nil, false, err
	}
	if _, err := p.expect(lexer.TokenRBrace, "'}'"); err != nil {
		return nil, false, err
	}

	regSet := make(map[reg.Register]bool, len(regs))
	for _, r := range regs {
		regSet[r] = true
	}
	test := &ast.MatchTest{Kind: kind, Field: ast.FieldNone, Cmp: ast.CmpIn, Regs: regSet}
	return ast.Leaf(test), true, nil
}

var kindKeywords = map[string]ast.Kind{
	"true": ast.KindTrue, "false": ast.KindFalse,
	"asm": ast.KindAssembly, "mnemonic": ast.KindMnemonic,
	"addr": ast.KindAddress, "call": ast.KindCall, "jump": ast.KindJump,
	"offset": ast.KindOffset, "size": ast.KindSize, "random": ast.KindRandom,
	"return": ast.KindReturn, "plugin": ast.KindPlugin,
	"op": ast.KindOp, "src": ast.KindSrc, "dst": ast.KindDst,
	"imm": ast.KindImm, "reg": ast.KindReg, "mem": ast.KindMem,
	"regs": ast.KindRegs, "reads": ast.KindReads, "writes": ast.KindWrites,
}

var fieldKeywords = map[string]ast.Field{
	"type": ast.FieldType, "access": ast.FieldAccess,
	"size": ast.FieldSize, "length": ast.FieldSize,
	"seg": ast.FieldSeg, "base": ast.FieldBase, "index": ast.FieldIndex,
	"scale": ast.FieldScale, "displacement": ast.FieldDispl, "displ": ast.FieldDispl,
}

// operandKinds is the set of kinds that accept an operand index and field
// projection.
var operandKinds = map[ast.Kind]bool{
	ast.KindOp: true, ast.KindSrc: true, ast.KindDst: true,
	ast.KindImm: true, ast.KindReg: true, ast.KindMem: true,
}

func (p *parser) parseAttrTest() (*ast.MatchExpr, error) {
	test, err := p.parseAttr(true)
	if err != nil {
		return nil, err
	}
	return ast.Leaf(test), nil
}

// parseAttr parses `attr [index] [ '.' field ] [ op rhs ]`. If allowCmp is
// false (used inside defined(...)), no comparison operator is consumed.
func (p *parser) parseAttr(allowCmp bool) (*ast.MatchTest, error) {
	if p.cur.Kind != lexer.TokenIdent {
		return nil, p.errorf("a match-kind keyword")
	}
	kind, ok := kindKeywords[strings.ToLower(p.cur.Text)]
	if !ok {
		return nil, p.errorf("a match-kind keyword")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	test := &ast.MatchTest{Kind: kind, Index: -1}

	if kind == ast.KindPlugin {
		if _, err := p.expect(lexer.TokenLParen, "'(' after plugin"); err != nil {
			return nil, err
		}
		name, err := p.expect(lexer.TokenString, "a plugin basename string")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenRParen, "')'"); err != nil {
			return nil, err
		}
		test.Basename = name.Text
		if p.opts.OpenPlugin != nil {
			handle, err := p.opts.OpenPlugin(name.Text)
			if err != nil {
				return nil, fmt.Errorf("open plugin %q: %w", name.Text, err)
			}
			test.Plugin = handle
		}
	}

	if operandKinds[kind] && p.cur.Kind == lexer.TokenLBracket {
		if err := p.advance(); err != nil {
			return nil, err
		}
		idxTok, err := p.expect(lexer.TokenInt, "an operand index 0..7")
		if err != nil {
			return nil, err
		}
		if idxTok.Int < 0 || idxTok.Int > 7 {
			return nil, p.errorf("an operand index in range 0..7")
		}
		test.Index = int(idxTok.Int)
		if _, err := p.expect(lexer.TokenRBracket, "']'"); err != nil {
			return nil, err
		}
	}

	if operandKinds[kind] && p.cur.Kind == lexer.TokenDot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind != lexer.TokenIdent {
			return nil, p.errorf("a field name")
		}
		field, ok := fieldKeywords[strings.ToLower(p.cur.Text)]
		if !ok {
			return nil, p.errorf("a field name")
		}
		test.Field = field
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	if !allowCmp {
		return test, nil
	}

	if isStringAttr(kind) && p.cur.Kind == lexer.TokenEq {
		// The rhs may be a /regex/ literal, which only NextRegex can scan,
		// so the token after '=' is left to finishStringRHS.
		test.Cmp = ast.CmpEq
		return p.finishStringRHS(test)
	}

	cmp, hasCmp, err := p.parseCmpOp()
	if err != nil {
		return nil, err
	}
	if !hasCmp {
		test.Cmp = ast.CmpNeqZero
		return test, nil
	}
	test.Cmp = cmp

	if isStringAttr(kind) {
		return p.finishStringRHS(test)
	}
	return p.finishValueRHS(test, cmp)
}

func isStringAttr(kind ast.Kind) bool {
	return kind == ast.KindAssembly || kind == ast.KindMnemonic
}

func (p *parser) parseCmpOp() (ast.Cmp, bool, error) {
	switch p.cur.Kind {
	case lexer.TokenEq:
		return ast.CmpEq, true, p.advance()
	case lexer.TokenNeq:
		return ast.CmpNeq, true, p.advance()
	case lexer.TokenLt:
		return ast.CmpLt, true, p.advance()
	case lexer.TokenLeq:
		return ast.CmpLeq, true, p.advance()
	case lexer.TokenGt:
		return ast.CmpGt, true, p.advance()
	case lexer.TokenGeq:
		return ast.CmpGeq, true, p.advance()
	default:
		return 0, false, nil
	}
}

// finishStringRHS parses the right-hand side of an asm/mnemonic test: a
// regex literal, a quoted string or a bare word, compiled once into test.Regex.
func (p *parser) finishStringRHS(test *ast.MatchTest) (*ast.MatchTest, error) {
	if err := p.advanceRegex(); err != nil {
		// Fall back: rhs may be a quoted string or bare word rather than /regex/.
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	var pattern string
	switch p.cur.Kind {
	case lexer.TokenRegex:
		pattern = p.cur.Text
	case lexer.TokenString, lexer.TokenIdent:
		pattern = regexp.QuoteMeta(p.cur.Text)
	default:
		return nil, p.errorf("a regex literal or string")
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("compile regex %q: %w", pattern, err)
	}
	test.Regex = re
	if err := p.advance(); err != nil {
		return nil, err
	}
	return test, nil
}

// finishValueRHS parses an integer/register/operand-type/access/CSV
// right-hand side, per spec.md §4.A's rhs grammar.
func (p *parser) finishValueRHS(test *ast.MatchTest, cmp ast.Cmp) (*ast.MatchTest, error) {
	// CSV-backed set: attr = "basename" [column]
	if cmp == ast.CmpEq && p.cur.Kind == lexer.TokenString {
		basename := p.cur.Text
		column := 0
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind == lexer.TokenInt {
			column = int(p.cur.Int)
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		test.Basename = basename
		if p.opts.LoadCSV == nil {
			return nil, fmt.Errorf("CSV value set %q referenced but no CSV loader configured", basename)
		}
		idx, err := p.opts.LoadCSV(basename, column)
		if err != nil {
			return nil, fmt.Errorf("load CSV %q: %w", basename, err)
		}
		test.Values = idx
		return test, nil
	}

	values, err := p.parseValueList(cmp == ast.CmpEq || cmp == ast.CmpNeq)
	if err != nil {
		return nil, err
	}
	if len(values) == 1 {
		test.RHS = values[0]
		return test, nil
	}
	idx := ast.NewValueIndex()
	for _, v := range values {
		idx.Add(v, nil)
	}
	test.Values = idx
	return test, nil
}

func (p *parser) parseValueList(allowMultiple bool) ([]ast.MatchValue, error) {
	first, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	values := []ast.MatchValue{first}
	for allowMultiple && p.cur.Kind == lexer.TokenComma {
		if err := p.advance(); err != nil {
			return nil, err
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func (p *parser) parseValue() (ast.MatchValue, error) {
	switch {
	case p.cur.Kind == lexer.TokenInt:
		v := p.cur.Int
		if err := p.advance(); err != nil {
			return ast.MatchValue{}, err
		}
		return ast.Integer(v), nil

	case p.cur.Kind == lexer.TokenAmp:
		if err := p.advance(); err != nil {
			return ast.MatchValue{}, err
		}
		name, err := p.expect(lexer.TokenIdent, "a symbol name after '&'")
		if err != nil {
			return ast.MatchValue{}, err
		}
		if p.opts.ResolveSymbol == nil {
			return ast.Undefined(), nil
		}
		addr, defined := p.opts.ResolveSymbol(name.Text)
		if !defined {
			if p.opts.Warn != nil {
				p.opts.Warn(fmt.Sprintf("undefined symbol %q, bound to 0", name.Text))
			}
			return ast.Integer(0), nil
		}
		return ast.Integer(int64(addr)), nil

	case p.isIdent("nil"):
		if err := p.advance(); err != nil {
			return ast.MatchValue{}, err
		}
		return ast.Nil(), nil

	case p.isIdent("imm"):
		return p.consumeIdentValue(ast.OperandTypeValue(ast.OperandImm))
	case p.isIdent("reg"):
		return p.consumeIdentValue(ast.OperandTypeValue(ast.OperandReg))
	case p.isIdent("mem"):
		return p.consumeIdentValue(ast.OperandTypeValue(ast.OperandMem))

	case p.isIdent("rw"):
		return p.consumeIdentValue(ast.AccessValue(ast.AccessRead | ast.AccessWrite))
	case p.isIdent("r"):
		return p.consumeIdentValue(ast.AccessValue(ast.AccessRead))
	case p.isIdent("w"):
		return p.consumeIdentValue(ast.AccessValue(ast.AccessWrite))
	case p.isIdent("none"):
		return p.consumeIdentValue(ast.AccessValue(0))

	case p.cur.Kind == lexer.TokenIdent:
		if r, ok := reg.Lookup(p.cur.Text); ok {
			return p.consumeIdentValue(ast.RegisterValue(r))
		}
		return ast.MatchValue{}, p.errorf("an integer, register, nil, operand-type, or access value")

	default:
		return ast.MatchValue{}, p.errorf("a value")
	}
}

func (p *parser) consumeIdentValue(v ast.MatchValue) (ast.MatchValue, error) {
	if err := p.advance(); err != nil {
		return ast.MatchValue{}, err
	}
	return v, nil
}
