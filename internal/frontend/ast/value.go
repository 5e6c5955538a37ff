// Package ast defines the data model compiled from rule text: typed match
// values, boolean match expressions, and action descriptors. Nothing in this
// package touches rule syntax or instruction decoding; it is the shared
// vocabulary that the parser produces and the match evaluator consumes.
package ast

import (
	"fmt"

	"github.com/e9rw/e9rw/internal/frontend/reg"
)

// ValueKind tags the payload carried by a MatchValue. The ordering here
// doubles as the cross-type ordering used by Compare: a value of one kind is
// always less than a value of any later kind, matching the original matcher's
// "value.type < type" comparison before falling through to the
// same-type comparison.
type ValueKind int

const (
	KindUndefined ValueKind = iota
	KindNil
	KindInteger
	KindOperandType
	KindAccess
	KindRegister
	KindMemory
	KindString
)

// OperandType mirrors the OP_TYPE_* enum: what kind of operand a MATCH_OP/SRC/
// DST/IMM/REG/MEM test observed.
type OperandType int

const (
	OperandImm OperandType = 1 + iota
	OperandReg
	OperandMem
)

// Access is a bitmask of read/write access, matching ACCESS_READ/ACCESS_WRITE.
type Access uint

const (
	AccessRead  Access = 0x01
	AccessWrite Access = 0x02
)

// memorySentinel is the fixed payload used for KindMemory: the original
// matcher only ever asks "is this operand a memory operand" via MATCH_MEMORY,
// never compares distinct memory values against each other, so the kind
// itself is the entire value.
type memorySentinel struct{}

// MatchValue is a tagged union over the value space a match test can
// evaluate to: undefined (symbol not resolvable at compile time), nil
// (explicit absence, e.g. no base register), an integer, an operand type, an
// access mask, a register, a memory-operand sentinel, or a string.
type MatchValue struct {
	Kind ValueKind

	Int     int64
	OpType  OperandType
	Access  Access
	Reg     reg.Register
	Str     string
	hasMem  bool // set alongside Kind == KindMemory; kept distinct from the zero Kind check
}

// Undefined returns the value used when a symbolic reference (an unresolved
// CSV basename, an out-of-range $N argument) cannot be evaluated at compile
// time. It compares less than every other kind and is never equal to itself
// under eq (matching the original's "always false on undefined" policy,
// enforced by the evaluator rather than by Compare).
func Undefined() MatchValue { return MatchValue{Kind: KindUndefined} }

// Nil returns the explicit-absence value, e.g. for a memory operand's
// missing index register.
func Nil() MatchValue { return MatchValue{Kind: KindNil} }

// Integer returns an integer-typed match value.
func Integer(v int64) MatchValue { return MatchValue{Kind: KindInteger, Int: v} }

// OperandTypeValue returns an operand-type-typed match value.
func OperandTypeValue(t OperandType) MatchValue { return MatchValue{Kind: KindOperandType, OpType: t} }

// AccessValue returns an access-mask-typed match value.
func AccessValue(a Access) MatchValue { return MatchValue{Kind: KindAccess, Access: a} }

// RegisterValue returns a register-typed match value.
func RegisterValue(r reg.Register) MatchValue { return MatchValue{Kind: KindRegister, Reg: r} }

// Memory returns the memory-operand sentinel value.
func Memory() MatchValue { return MatchValue{Kind: KindMemory, hasMem: true} }

// StringValue returns a string-typed match value (assembly text, mnemonic).
func StringValue(s string) MatchValue { return MatchValue{Kind: KindString, Str: s} }

// Compare orders two values, first by Kind then by payload within a shared
// Kind; cross-kind comparisons only ever matter for ordering inside a value
// set's binary search, never for eq/neq which the evaluator short-circuits by
// kind first.
func (v MatchValue) Compare(other MatchValue) int {
	if v.Kind != other.Kind {
		if v.Kind < other.Kind {
			return -1
		}
		return 1
	}
	switch v.Kind {
	case KindInteger:
		return cmpInt64(v.Int, other.Int)
	case KindOperandType:
		return cmpInt64(int64(v.OpType), int64(other.OpType))
	case KindAccess:
		return cmpInt64(int64(v.Access), int64(other.Access))
	case KindRegister:
		return cmpInt64(int64(v.Reg), int64(other.Reg))
	case KindString:
		switch {
		case v.Str < other.Str:
			return -1
		case v.Str > other.Str:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Equal reports whether two values are equal, i.e. Compare == 0.
func (v MatchValue) Equal(other MatchValue) bool { return v.Compare(other) == 0 }

// String renders the value for diagnostics and log attributes.
func (v MatchValue) String() string {
	switch v.Kind {
	case KindUndefined:
		return "<undefined>"
	case KindNil:
		return "nil"
	case KindInteger:
		return fmt.Sprintf("%d", v.Int)
	case KindOperandType:
		return v.OpType.String()
	case KindAccess:
		return v.Access.String()
	case KindRegister:
		return v.Reg.String()
	case KindMemory:
		return "<memory>"
	case KindString:
		return v.Str
	default:
		return "<invalid>"
	}
}

// String renders the operand type the way rule text spells it.
func (t OperandType) String() string {
	switch t {
	case OperandImm:
		return "imm"
	case OperandReg:
		return "reg"
	case OperandMem:
		return "mem"
	default:
		return "invalid-op-type"
	}
}

// String renders an access mask as "r", "w", or "rw".
func (a Access) String() string {
	switch a {
	case AccessRead:
		return "r"
	case AccessWrite:
		return "w"
	case AccessRead | AccessWrite:
		return "rw"
	default:
		return ""
	}
}
