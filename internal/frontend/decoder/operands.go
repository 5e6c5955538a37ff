package decoder

import "golang.org/x/arch/x86/x86asm"

// extractOperands walks raw.Args (a fixed [4]x86asm.Arg slate, nil-padded)
// and produces the Operand slate the match engine's op[N] tests read,
// trimming the trailing nils the way syscall_decoder.go trims Args before
// storing them on DecodedInstruction.
func extractOperands(raw x86asm.Inst) []Operand {
	class := classifyAccess(raw)
	var operands []Operand
	for i, arg := range raw.Args {
		if arg == nil {
			break
		}
		operands = append(operands, buildOperand(raw, arg, i, class))
	}
	return operands
}

func buildOperand(raw x86asm.Inst, arg x86asm.Arg, index int, class accessClass) Operand {
	op := Operand{Access: accessFor(class, index, len(raw.Args))}

	switch v := arg.(type) {
	case x86asm.Reg:
		op.Kind = OperandReg
		op.Reg = v
		op.Size = regByteSize(v)
	case x86asm.Imm:
		op.Kind = OperandImm
		op.Imm = int64(v)
		op.Size = dataByteSize(raw)
		op.Access = AccessRead
	case x86asm.Mem:
		op.Kind = OperandMem
		op.Segment = v.Segment
		op.Base = v.Base
		op.Index = v.Index
		op.Scale = int(v.Scale)
		op.Displacement = v.Disp
		op.Size = memoryOperandSize(raw, class)
	case x86asm.Rel:
		// Relative branch target: treated as an immediate displacement.
		op.Kind = OperandImm
		op.Imm = int64(v)
		op.Size = dataByteSize(raw)
		op.Access = AccessRead
	default:
		op.Kind = OperandImm
	}
	return op
}

// accessFor assigns read/write flags per operand position following
// spec.md §4.E's table. Two-operand instructions in Intel-order decode as
// Args[0]=dst, Args[1]=src; x86asm follows that convention.
func accessFor(class accessClass, index, argCount int) Access {
	switch class {
	case classMoveLike:
		if index == 0 {
			return AccessWrite
		}
		return AccessRead
	case classALU:
		if index == 0 {
			return AccessRead | AccessWrite
		}
		return AccessRead
	case classCompareOnly:
		return AccessRead
	case classNoAccess:
		return 0
	case classCallTarget:
		if index == 0 {
			return AccessRead
		}
		return 0
	case classReturn:
		return 0
	default:
		return AccessRead | AccessWrite
	}
}

// dataByteSize returns the operand-size attribute in bytes; x86asm reports
// it in bits via Inst.DataSize (16/32/64), defaulting to 4 when unset.
func dataByteSize(raw x86asm.Inst) int {
	if raw.DataSize == 0 {
		return 4
	}
	return raw.DataSize / 8
}

// memoryOperandSize returns the TRUE access width of a memory operand in
// bytes (1/2/4/8), not the constant width the original C tool's MEM8-style
// argument macros collapsed every memory access to. LEA never touches
// memory so it reports zero regardless of its addressing-mode width.
func memoryOperandSize(raw x86asm.Inst, class accessClass) int {
	if class == classNoAccess {
		return 0
	}
	if raw.MemBytes != 0 {
		return raw.MemBytes
	}
	return dataByteSize(raw)
}

// regByteSize returns the width in bytes of a general-purpose or segment
// register, derived from x86asm's contiguous per-size register ranges the
// same way reg.FromX86Asm classifies them.
func regByteSize(r x86asm.Reg) int {
	switch {
	case r >= x86asm.AL && r <= x86asm.R15B:
		return 1
	case r >= x86asm.AX && r <= x86asm.R15W:
		return 2
	case r >= x86asm.EAX && r <= x86asm.R15L:
		return 4
	case r >= x86asm.RAX && r <= x86asm.R15:
		return 8
	case r == x86asm.IP || r == x86asm.EIP:
		return 4
	case r == x86asm.RIP:
		return 8
	case r >= x86asm.ES && r <= x86asm.GS:
		return 2
	case r >= x86asm.X0 && r <= x86asm.X15:
		return 16
	case r >= x86asm.Y0 && r <= x86asm.Y15:
		return 32
	default:
		return 8
	}
}

// registerAccess flattens the per-operand access into whole-register
// read/write sets, keyed by x86asm.Reg cast to int so callers need not
// import x86asm just to test set membership.
func registerAccess(raw x86asm.Inst) (reads, writes map[int]bool) {
	reads = map[int]bool{}
	writes = map[int]bool{}
	class := classifyAccess(raw)

	for i, arg := range raw.Args {
		if arg == nil {
			break
		}
		access := accessFor(class, i, len(raw.Args))
		addRegisterAccess(reads, writes, arg, access)
	}

	switch {
	case isCallOp(raw.Op):
		writes[int(x86asm.RSP)] = true
	case isReturnOp(raw.Op):
		reads[int(x86asm.RSP)] = true
		writes[int(x86asm.RSP)] = true
	}
	return reads, writes
}

func addRegisterAccess(reads, writes map[int]bool, arg x86asm.Arg, access Access) {
	switch v := arg.(type) {
	case x86asm.Reg:
		if access&AccessRead != 0 {
			reads[int(v)] = true
		}
		if access&AccessWrite != 0 {
			writes[int(v)] = true
		}
	case x86asm.Mem:
		if v.Base != 0 {
			reads[int(v.Base)] = true
		}
		if v.Index != 0 {
			reads[int(v.Index)] = true
		}
		if v.Segment != 0 {
			reads[int(v.Segment)] = true
		}
	}
}
