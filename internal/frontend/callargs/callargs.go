// Package callargs assembles the concrete per-site argument payload for a
// call action: resolving operand-field projections against a decoded
// instruction, symbols against an already-loaded target ELF, and user-csv
// lookups against the record a match test surfaced.
package callargs

import (
	"fmt"

	"github.com/e9rw/e9rw/internal/frontend/ast"
	"github.com/e9rw/e9rw/internal/frontend/decoder"
	"github.com/e9rw/e9rw/internal/frontend/elfx"
	"github.com/e9rw/e9rw/internal/frontend/reg"
)

// MaxArgNo bounds the metadata array's capacity, per spec.md §4.H.
const MaxArgNo = 8

// Value is one resolved argument slot in the metadata array sent to the
// backend.
type Value struct {
	Kind ast.ArgKind

	// Integer holds a resolved 64-bit payload: an address, an immediate, a
	// register-literal enum value, an operand size, etc.
	Integer int64

	// Pointer, when true, marks Integer as the backend-understood sentinel
	// "pointer to this field of operand k" rather than a materialized
	// value; the backend resolves the actual address at patch time.
	Pointer bool

	// OperandIndex records which operand a pointer argument targets, for
	// the backend sentinel's payload.
	OperandIndex int
	Field        ast.Field

	// MemOp carries the literal <seg:disp(base,index,scale)> descriptor for
	// ArgMem8/16/32/64, resolved entirely from rule text rather than a
	// matched instruction's operands; nil for every other kind.
	MemOp *MemoryOperandValue
}

// MemoryOperandValue is the resolved payload of a mem8/16/32/64 call
// argument literal: an effective-address descriptor the backend computes a
// pointer from at patch time, sized per the keyword used.
type MemoryOperandValue struct {
	Size  int // 1, 2, 4, or 8 bytes
	Seg   reg.Register
	Disp  int64
	Base  reg.Register
	Index reg.Register
	Scale int64
}

// SymbolResolver resolves a symbol name against an already-loaded target
// ELF, returning its load-time virtual address.
type SymbolResolver func(elfPath, symbol string) (uint64, bool)

// Builder assembles argument metadata for one action's call site.
type Builder struct {
	ResolveSymbol SymbolResolver
	Random        func() int64
}

// Build resolves action's argument list against instr (which supplies the
// instruction and next-instruction addresses) and the matched record
// surfaced during evaluation (nil if the action's match had no CSV leaf).
func (b *Builder) Build(action *ast.Action, instr decoder.Instruction, csvRecord []string) ([]Value, error) {
	if len(action.Args) > MaxArgNo {
		return nil, fmt.Errorf("call action %q has %d arguments, exceeds MAX_ARGNO=%d", action.Name, len(action.Args), MaxArgNo)
	}
	values := make([]Value, 0, len(action.Args))
	for _, arg := range action.Args {
		v, err := b.resolve(action, arg, instr, csvRecord)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func (b *Builder) resolve(action *ast.Action, arg ast.Argument, instr decoder.Instruction, csvRecord []string) (Value, error) {
	v := Value{Kind: arg.Kind}

	switch arg.Kind {
	case ast.ArgAddr:
		v.Integer = int64(instr.Address)
	case ast.ArgOffset:
		v.Integer = int64(instr.Offset)
	case ast.ArgNext:
		v.Integer = int64(instr.Next())
	case ast.ArgInstr:
		v.Pointer = true // pointer to the raw instruction bytes
	case ast.ArgSize:
		v.Integer = int64(instr.Size)
	case ast.ArgAsm:
		v.Pointer = true // pointer to the rendered assembly-text buffer
	case ast.ArgAsmLen:
		v.Integer = int64(len(instr.AsmText))
	case ast.ArgAsmSize:
		v.Integer = int64(instr.Size)
	case ast.ArgTarget:
		if target, ok := instr.Target(); ok {
			v.Integer = int64(target)
		} else {
			v.Integer = 0
		}
	case ast.ArgState:
		v.Pointer = true // pointer to the backend's saved-register state block
	case ast.ArgRandom:
		if b.Random != nil {
			v.Integer = b.Random()
		}
	case ast.ArgStaticAddr:
		v.Integer = int64(instr.Address)
	case ast.ArgTrampoline:
		v.Pointer = true // pointer to the trampoline's own entry
	case ast.ArgID:
		v.Integer = int64(instr.Offset) // stable per-instruction identity
	case ast.ArgIntegerLiteral:
		v.Integer = arg.IntegerValue
	case ast.ArgRegisterLiteral:
		r, ok := reg.Lookup(arg.Name)
		if !ok {
			return v, fmt.Errorf("unknown register literal %q", arg.Name)
		}
		v.Integer = int64(r)
	case ast.ArgSymbol:
		addr, err := b.resolveSymbol(action, arg.Name)
		if err != nil {
			return v, err
		}
		v.Integer = int64(addr)
	case ast.ArgUserCSV:
		val, err := csvColumn(csvRecord, arg.Name)
		if err != nil {
			return v, err
		}
		v.Integer = val
	case ast.ArgOp, ast.ArgSrc, ast.ArgDst, ast.ArgImm, ast.ArgReg, ast.ArgMem:
		return b.resolveOperandArg(arg, instr)
	case ast.ArgMem8, ast.ArgMem16, ast.ArgMem32, ast.ArgMem64:
		return b.resolveMemoryOperandLiteral(arg)
	default:
		return v, fmt.Errorf("call argument kind %v not resolvable", arg.Kind)
	}
	return v, nil
}

func (b *Builder) resolveOperandArg(arg ast.Argument, instr decoder.Instruction) (Value, error) {
	v := Value{Kind: arg.Kind, OperandIndex: arg.MemoryOperandIndex, Field: arg.Field}
	if arg.MemoryOperandIndex < 0 || arg.MemoryOperandIndex >= len(instr.Operands) {
		return v, fmt.Errorf("operand index %d out of range (%d operands)", arg.MemoryOperandIndex, len(instr.Operands))
	}
	op := instr.Operands[arg.MemoryOperandIndex]

	if arg.PassByPointer {
		if arg.Field != ast.FieldBase && arg.Field != ast.FieldIndex {
			return v, fmt.Errorf("'&' is only valid on .base or .index operand projections")
		}
		v.Pointer = true
		return v, nil
	}

	switch arg.Field {
	case ast.FieldNone:
		switch op.Kind {
		case decoder.OperandImm:
			v.Integer = op.Imm
		case decoder.OperandReg:
			v.Integer = int64(op.Reg)
		case decoder.OperandMem:
			v.Pointer = true
		}
	case ast.FieldBase:
		v.Integer = int64(op.Base)
	case ast.FieldIndex:
		v.Integer = int64(op.Index)
	case ast.FieldSeg:
		v.Integer = int64(op.Segment)
	case ast.FieldScale:
		v.Integer = int64(op.Scale)
	case ast.FieldDispl:
		v.Integer = op.Displacement
	case ast.FieldSize:
		v.Integer = int64(op.Size)
	case ast.FieldType:
		v.Integer = int64(op.Kind)
	case ast.FieldAccess:
		v.Integer = int64(op.Access)
	}
	return v, nil
}

// resolveMemoryOperandLiteral resolves a mem8/16/32/64 call argument's
// standalone <seg:disp(base,index,scale)> literal, parsed once at rule
// compile time and carried unchanged through to the backend.
func (b *Builder) resolveMemoryOperandLiteral(arg ast.Argument) (Value, error) {
	if arg.MemoryOperand == nil {
		return Value{}, fmt.Errorf("%v argument requires a <seg:disp(base,index,scale)> literal", arg.Kind)
	}
	size, err := memOperandSize(arg.Kind)
	if err != nil {
		return Value{}, err
	}
	m := arg.MemoryOperand
	return Value{
		Kind:    arg.Kind,
		Pointer: true,
		MemOp: &MemoryOperandValue{
			Size:  size,
			Seg:   m.Seg,
			Disp:  m.Disp,
			Base:  m.Base,
			Index: m.Index,
			Scale: m.Scale,
		},
	}, nil
}

func memOperandSize(kind ast.ArgKind) (int, error) {
	switch kind {
	case ast.ArgMem8:
		return 1, nil
	case ast.ArgMem16:
		return 2, nil
	case ast.ArgMem32:
		return 4, nil
	case ast.ArgMem64:
		return 8, nil
	default:
		return 0, fmt.Errorf("%v is not a sized memory-operand argument", kind)
	}
}

func (b *Builder) resolveSymbol(action *ast.Action, name string) (uint64, error) {
	if b.ResolveSymbol == nil {
		return 0, fmt.Errorf("symbol %q referenced but no symbol resolver configured", name)
	}
	addr, ok := b.ResolveSymbol(action.ELFFilePath, name)
	if !ok {
		return 0, fmt.Errorf("symbol %q not found in %q", name, action.ELFFilePath)
	}
	return addr, nil
}

func csvColumn(record []string, columnSpec string) (int64, error) {
	if record == nil {
		return 0, fmt.Errorf("user-csv argument referenced but no CSV record was surfaced during matching")
	}
	idx, err := parseColumnIndex(columnSpec, len(record))
	if err != nil {
		return 0, err
	}
	var v int64
	if _, err := fmt.Sscanf(record[idx], "%d", &v); err != nil {
		return 0, fmt.Errorf("user-csv column %d (%q) is not an integer: %w", idx, record[idx], err)
	}
	return v, nil
}

func parseColumnIndex(spec string, recordLen int) (int, error) {
	if spec == "" {
		return 0, nil
	}
	var idx int
	if _, err := fmt.Sscanf(spec, "%d", &idx); err != nil {
		return 0, fmt.Errorf("invalid user-csv column %q: %w", spec, err)
	}
	if idx < 0 || idx >= recordLen {
		return 0, fmt.Errorf("user-csv column %d out of range (record has %d columns)", idx, recordLen)
	}
	return idx, nil
}

// LoadedTarget pairs an opened ELF file referenced by a call action's @path
// clause with the load base assigned to it; it does no loading itself.
type LoadedTarget struct {
	Reader     *elfx.Reader
	LoadBase   uint64
}

// minLoadBase is the address above which injected-code ELF files are
// mapped, keeping them clear of typical PIE/non-PIE program addresses.
const minLoadBase = 0x70000000
const pageSize = 0x1000

// AssignLoadBase rounds candidate up to the next page boundary at or above
// minLoadBase.
func AssignLoadBase(candidate uint64) uint64 {
	if candidate < minLoadBase {
		candidate = minLoadBase
	}
	if rem := candidate % pageSize; rem != 0 {
		candidate += pageSize - rem
	}
	return candidate
}
