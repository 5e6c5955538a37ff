// Package match evaluates a compiled ast.MatchExpr against a decoded
// instruction: extracting the MatchValue a leaf test names, then applying
// its comparison operator, short-circuiting And/Or/Not the way a boolean
// expression tree should.
package match

import (
	"strings"

	"github.com/e9rw/e9rw/internal/frontend/ast"
	"github.com/e9rw/e9rw/internal/frontend/decoder"
	"github.com/e9rw/e9rw/internal/frontend/reg"
)

// Fact bundles the per-instruction context a match expression evaluates
// against: the decoded instruction itself plus the binary-level facts
// (offset, address, plugin dispatch) that live outside the instruction
// bytes.
type Fact struct {
	Instr decoder.Instruction

	// RandomFunc supplies KindRandom's value; nil defaults to always 0,
	// which is deterministic and safe for tests but never used by the CLI
	// wiring, which injects a real PRNG.
	RandomFunc func() int64
}

// ErrAmbiguousRecord is returned when two leaves over the same CSV
// basename surface distinct records within one expression evaluation.
type ErrAmbiguousRecord struct {
	Basename string
}

func (e *ErrAmbiguousRecord) Error() string {
	return "ambiguous CSV lookup: basename " + e.Basename + " surfaced two distinct records"
}

// Evaluate walks expr against fact, applying De Morgan-free short-circuit
// evaluation: And stops at the first false child, Or stops at the first
// true one. It returns the same ambiguous-CSV-record error as
// EvaluateSurfaced but discards the surfaced records.
func Evaluate(expr *ast.MatchExpr, fact Fact) (bool, error) {
	ok, _, err := EvaluateSurfaced(expr, fact)
	return ok, err
}

// EvaluateSurfaced evaluates expr like Evaluate, additionally tracking the
// CSV record each successful eq-against-a-value-set leaf surfaced. If two
// leaves referencing the same basename surface different records, it
// returns *ErrAmbiguousRecord.
func EvaluateSurfaced(expr *ast.MatchExpr, fact Fact) (bool, map[string][]string, error) {
	surfaced := make(map[string][]string)
	ok, err := evalNode(expr, fact, surfaced)
	return ok, surfaced, err
}

func evalNode(expr *ast.MatchExpr, fact Fact, surfaced map[string][]string) (bool, error) {
	if expr == nil {
		return true, nil
	}
	switch expr.Op {
	case ast.OpNot:
		v, err := evalNode(expr.Arg1, fact, surfaced)
		return !v, err
	case ast.OpAnd:
		v, err := evalNode(expr.Arg1, fact, surfaced)
		if err != nil || !v {
			return false, err
		}
		return evalNode(expr.Arg2, fact, surfaced)
	case ast.OpOr:
		v, err := evalNode(expr.Arg1, fact, surfaced)
		if err != nil || v {
			return v, err
		}
		return evalNode(expr.Arg2, fact, surfaced)
	case ast.OpTest:
		return evaluateTest(expr.Test, fact, surfaced)
	default:
		return false, nil
	}
}

func evaluateTest(test *ast.MatchTest, fact Fact, surfaced map[string][]string) (bool, error) {
	if test.Kind == ast.KindRegs || test.Kind == ast.KindReads || test.Kind == ast.KindWrites {
		return evaluateRegisterSet(test, fact.Instr), nil
	}
	lhs, err := extract(test, fact)
	if err != nil {
		return false, err
	}
	ok := compare(lhs, test)
	if ok && test.Cmp == ast.CmpEq && test.Values != nil && test.Basename != "" {
		if record, has := test.Values.Record(lhs); has {
			if prior, seen := surfaced[test.Basename]; seen && !sameRecord(prior, record) {
				return false, &ErrAmbiguousRecord{Basename: test.Basename}
			}
			surfaced[test.Basename] = record
		}
	}
	return ok, nil
}

func sameRecord(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// extract computes the MatchValue a leaf test names, per spec.md §4.C-E's
// fact table.
func extract(test *ast.MatchTest, fact Fact) (ast.MatchValue, error) {
	instr := fact.Instr
	switch test.Kind {
	case ast.KindTrue:
		return ast.Integer(1), nil
	case ast.KindFalse:
		return ast.Integer(0), nil
	case ast.KindPlugin:
		if test.Plugin == nil {
			return ast.Undefined(), nil
		}
		result, err := test.Plugin.Match(ast.PluginMatchInput{Offset: instr.Offset, Address: instr.Address})
		if err != nil {
			return ast.MatchValue{}, err
		}
		return ast.Integer(result), nil
	case ast.KindAssembly:
		return ast.StringValue(instr.AsmText), nil
	case ast.KindAddress:
		return ast.Integer(int64(instr.Address)), nil
	case ast.KindCall:
		return boolValue(instr.IsCall), nil
	case ast.KindJump:
		return boolValue(instr.IsJump), nil
	case ast.KindMnemonic:
		return ast.StringValue(strings.ToLower(instr.Mnemonic)), nil
	case ast.KindOffset:
		return ast.Integer(int64(instr.Offset)), nil
	case ast.KindRandom:
		if fact.RandomFunc == nil {
			return ast.Integer(0), nil
		}
		return ast.Integer(fact.RandomFunc()), nil
	case ast.KindReturn:
		return boolValue(instr.IsReturn), nil
	case ast.KindSize:
		return ast.Integer(int64(instr.Size)), nil
	case ast.KindOp, ast.KindSrc, ast.KindDst, ast.KindImm, ast.KindReg, ast.KindMem:
		return extractOperand(test, instr)
	case ast.KindRegs, ast.KindReads, ast.KindWrites:
		return ast.Nil(), nil // evaluated by evaluateRegisterSet via test.Regs
	default:
		return ast.Undefined(), nil
	}
}

func boolValue(b bool) ast.MatchValue {
	if b {
		return ast.Integer(1)
	}
	return ast.Integer(0)
}

// selectOperands returns the operand slate a leaf's Kind selects from:
// KindOp selects every operand, KindSrc/KindDst filter by read/write
// access, KindImm/KindReg/KindMem filter by operand type.
func selectOperands(kind ast.Kind, operands []decoder.Operand) []decoder.Operand {
	var out []decoder.Operand
	for _, op := range operands {
		switch kind {
		case ast.KindOp:
			out = append(out, op)
		case ast.KindSrc:
			if op.Access&decoder.AccessRead != 0 {
				out = append(out, op)
			}
		case ast.KindDst:
			if op.Access&decoder.AccessWrite != 0 {
				out = append(out, op)
			}
		case ast.KindImm:
			if op.Kind == decoder.OperandImm {
				out = append(out, op)
			}
		case ast.KindReg:
			if op.Kind == decoder.OperandReg {
				out = append(out, op)
			}
		case ast.KindMem:
			if op.Kind == decoder.OperandMem {
				out = append(out, op)
			}
		}
	}
	return out
}

func extractOperand(test *ast.MatchTest, instr decoder.Instruction) (ast.MatchValue, error) {
	slate := selectOperands(test.Kind, instr.Operands)
	if test.Index < 0 && test.Field == ast.FieldSize {
		return ast.Integer(int64(len(slate))), nil
	}
	if test.Index < 0 || test.Index >= len(slate) {
		return ast.Undefined(), nil
	}
	op := slate[test.Index]

	if test.Field == ast.FieldNone {
		switch op.Kind {
		case decoder.OperandReg:
			return ast.RegisterValue(op.Register()), nil
		case decoder.OperandMem:
			return ast.Memory(), nil
		case decoder.OperandImm:
			return ast.Integer(op.Imm), nil
		}
		return ast.Undefined(), nil
	}

	switch test.Field {
	case ast.FieldType:
		return ast.OperandTypeValue(operandTypeOf(op.Kind)), nil
	case ast.FieldAccess:
		return ast.AccessValue(accessOf(op.Access)), nil
	case ast.FieldSize:
		return ast.Integer(int64(op.Size)), nil
	case ast.FieldSeg:
		return registerOrNil(op.SegmentRegister()), nil
	case ast.FieldBase:
		return registerOrNil(op.BaseRegister()), nil
	case ast.FieldIndex:
		return registerOrNil(op.IndexRegister()), nil
	case ast.FieldScale:
		return ast.Integer(int64(op.Scale)), nil
	case ast.FieldDispl:
		return ast.Integer(op.Displacement), nil
	default:
		return ast.Undefined(), nil
	}
}

func registerOrNil(r reg.Register) ast.MatchValue {
	if r == reg.None {
		return ast.Nil()
	}
	return ast.RegisterValue(r)
}

func operandTypeOf(kind decoder.OperandKind) ast.OperandType {
	switch kind {
	case decoder.OperandImm:
		return ast.OperandImm
	case decoder.OperandReg:
		return ast.OperandReg
	case decoder.OperandMem:
		return ast.OperandMem
	default:
		return 0
	}
}

func accessOf(a decoder.Access) ast.Access {
	var out ast.Access
	if a&decoder.AccessRead != 0 {
		out |= ast.AccessRead
	}
	if a&decoder.AccessWrite != 0 {
		out |= ast.AccessWrite
	}
	return out
}

// compare applies test.Cmp to the extracted lhs, per spec.md §4.F's
// comparison table. An undefined lhs compares false under every operator
// except "defined" itself, matching the original matcher's fail-closed
// policy for unresolved symbolic references.
func compare(lhs ast.MatchValue, test *ast.MatchTest) bool {
	if test.Cmp == ast.CmpDefined {
		return lhs.Kind != ast.KindUndefined
	}
	if lhs.Kind == ast.KindUndefined {
		return false
	}

	switch test.Cmp {
	case ast.CmpEqZero:
		return lhs.Kind == ast.KindInteger && lhs.Int == 0
	case ast.CmpNeqZero:
		return lhs.Kind == ast.KindInteger && lhs.Int != 0
	case ast.CmpEq:
		return matchEquals(lhs, test)
	case ast.CmpNeq:
		// Against a multi-value set, neq is always true (the set is not a
		// single point of comparison); against a singleton it is plain
		// non-membership.
		if test.Values != nil && test.Values.Len() > 1 {
			return true
		}
		return !matchEquals(lhs, test)
	case ast.CmpLt, ast.CmpLeq:
		bound, ok := upperBound(test)
		if !ok {
			return false
		}
		c := lhs.Compare(bound)
		if test.Cmp == ast.CmpLt {
			return c < 0
		}
		return c <= 0
	case ast.CmpGt, ast.CmpGeq:
		bound, ok := lowerBound(test)
		if !ok {
			return false
		}
		c := lhs.Compare(bound)
		if test.Cmp == ast.CmpGt {
			return c > 0
		}
		return c >= 0
	case ast.CmpIn:
		if test.Values != nil {
			return test.Values.Contains(lhs)
		}
		return lhs.Equal(test.RHS)
	default:
		return false
	}
}

// upperBound and lowerBound resolve the value lt/leq/gt/geq compares
// against: a value set's maximum/minimum, or the leaf's plain RHS when no
// set was given.
func upperBound(test *ast.MatchTest) (ast.MatchValue, bool) {
	if test.Values != nil {
		return test.Values.Max()
	}
	return test.RHS, true
}

func lowerBound(test *ast.MatchTest) (ast.MatchValue, bool) {
	if test.Values != nil {
		return test.Values.Min()
	}
	return test.RHS, true
}

// matchEquals handles both a regex-backed string test and a plain value (or
// value-set) equality test, since a leaf can carry either depending on how
// finishStringRHS/finishValueRHS compiled it.
func matchEquals(lhs ast.MatchValue, test *ast.MatchTest) bool {
	if test.Regex != nil {
		return test.Regex.MatchString(lhs.Str)
	}
	if test.Values != nil {
		return test.Values.Contains(lhs)
	}
	return lhs.Equal(test.RHS)
}

// evaluateRegisterSet reports whether any register named in test.Regs
// belongs to the selected instruction set: the union of reads and writes
// for KindRegs, or just one side for KindReads/KindWrites.
func evaluateRegisterSet(test *ast.MatchTest, instr decoder.Instruction) bool {
	var universe map[reg.Register]bool
	switch test.Kind {
	case ast.KindReads:
		universe = instr.ReadRegisters()
	case ast.KindWrites:
		universe = instr.WriteRegisters()
	default:
		universe = instr.ReadRegisters()
		for r := range instr.WriteRegisters() {
			universe[r] = true
		}
	}
	if len(test.Regs) == 0 {
		return false
	}
	for r := range test.Regs {
		if universe[r] {
			return true
		}
	}
	return false
}
