package ast

import "github.com/e9rw/e9rw/internal/frontend/reg"

// Kind enumerates what a MatchTest leaf actually inspects: a whole
// instruction property (assembly text, address, mnemonic, size, ...) or a
// specific operand slot (op/src/dst/imm/reg/mem, each qualified by an index).
type Kind int

const (
	KindInvalid Kind = iota
	KindTrue
	KindFalse
	KindPlugin
	KindAssembly
	KindAddress
	KindCall
	KindJump
	KindMnemonic
	KindOffset
	KindRandom
	KindReturn
	KindSize

	KindOp
	KindSrc
	KindDst
	KindImm
	KindReg
	KindMem

	KindRegs  // the "regs" set-of-all-registers-used test
	KindReads // "reads" set-of-registers-read test
	KindWrites
)

// Field qualifies which sub-property of an operand a test inspects, when the
// leaf Kind is one of Op/Src/Dst/Imm/Reg/Mem.
type Field int

const (
	FieldNone Field = iota
	FieldType
	FieldAccess
	FieldSize
	FieldSeg
	FieldDispl
	FieldBase
	FieldIndex
	FieldScale
)

// Cmp enumerates the comparison operators a MatchTest leaf can apply between
// the extracted MatchValue and the test's right-hand side.
type Cmp int

const (
	CmpInvalid Cmp = iota
	CmpDefined
	CmpEqZero
	CmpNeqZero
	CmpEq
	CmpNeq
	CmpLt
	CmpLeq
	CmpGt
	CmpGeq
	CmpIn
)

// MatchTest is a single leaf of a match expression: "extract this fact about
// the current instruction (or operand N), then compare it".
type MatchTest struct {
	Kind  Kind
	Index int // operand index for Op/Src/Dst/Imm/Reg/Mem; -1 when the rule gives no [k]
	Field Field
	Cmp   Cmp

	// Basename is the name used to open a plugin (Kind == KindPlugin) or to
	// look up a CSV value set (an eq test), kept for diagnostics even
	// after resolution.
	Basename string

	// Plugin holds the opened plugin handle for a KindPlugin leaf. Declared
	// as a narrow interface so ast has no dependency on the plugin
	// package's loading mechanics.
	Plugin PluginHandle

	// Regex holds the compiled pattern for KindAssembly/KindMnemonic tests
	// using a /pattern/ literal on the right-hand side.
	Regex Matcher

	// Values holds the ordered value set backing a CSV-backed eq test or a
	// multi-value eq/neq list.
	Values *ValueIndex

	// Regs holds the register set backing a KindRegs/Reads/Writes ∈ {...}
	// style test.
	Regs map[reg.Register]bool

	// RHS is the right-hand side for single-value comparisons (eq/neq/lt/...)
	// that are not value-set lookups.
	RHS MatchValue
}

// Matcher is satisfied by a compiled regular expression; kept as an
// interface here so ast has no direct dependency on the parser's regex
// compilation choices.
type Matcher interface {
	MatchString(s string) bool
}

// PluginHandle is the narrow view of a loaded plugin the AST needs: enough
// to invoke its match callback and identify it in diagnostics.
type PluginHandle interface {
	Path() string
	Match(fact PluginMatchInput) (int64, error)
}

// PluginMatchInput carries the per-instruction facts a plugin's match
// callback needs, kept minimal and decoder-agnostic.
type PluginMatchInput struct {
	Offset  uint64
	Address uint64
}

// Op enumerates the boolean connective a MatchExpr node applies.
type Op int

const (
	OpNot Op = iota
	OpAnd
	OpOr
	OpTest
)

// MatchExpr is a node of the compiled boolean match expression tree.
// A OpNot node uses Arg1 only. OpAnd/OpOr use Arg1 and Arg2. OpTest is a
// leaf and uses Test only.
type MatchExpr struct {
	Op   Op
	Arg1 *MatchExpr
	Arg2 *MatchExpr
	Test *MatchTest
}

// Not builds a negation node.
func Not(arg *MatchExpr) *MatchExpr { return &MatchExpr{Op: OpNot, Arg1: arg} }

// And builds a conjunction node.
func And(a, b *MatchExpr) *MatchExpr { return &MatchExpr{Op: OpAnd, Arg1: a, Arg2: b} }

// Or builds a disjunction node.
func Or(a, b *MatchExpr) *MatchExpr { return &MatchExpr{Op: OpOr, Arg1: a, Arg2: b} }

// Leaf builds a test leaf node.
func Leaf(test *MatchTest) *MatchExpr { return &MatchExpr{Op: OpTest, Test: test} }
