package decoder

import "golang.org/x/arch/x86/x86asm"

// isCallOp, isJumpOp, and isReturnOp classify instruction groups the way
// syscall_decoder.go's IsControlFlowInstruction does: a plain switch over
// x86asm.Op, since x86asm carries no group metadata of its own.
func isCallOp(op x86asm.Op) bool {
	switch op {
	case x86asm.CALL, x86asm.LCALL:
		return true
	default:
		return false
	}
}

func isJumpOp(op x86asm.Op) bool {
	switch op {
	case x86asm.JMP, x86asm.LJMP,
		x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JCXZ, x86asm.JECXZ, x86asm.JRCXZ,
		x86asm.JE, x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE, x86asm.JNE,
		x86asm.JNO, x86asm.JNP, x86asm.JNS, x86asm.JO, x86asm.JP, x86asm.JS:
		return true
	default:
		return false
	}
}

func isReturnOp(op x86asm.Op) bool {
	switch op {
	case x86asm.RET, x86asm.LRET:
		return true
	default:
		return false
	}
}

// isConditionalJump reports whether op is one of the Jcc forms, as opposed
// to the unconditional JMP/LJMP.
func isConditionalJump(op x86asm.Op) bool {
	return isJumpOp(op) && op != x86asm.JMP && op != x86asm.LJMP
}

// accessClass buckets an opcode into a coarse read/write shape per spec.md
// §4.E's operand access table, since x86asm exposes no per-operand access
// flags (unlike Capstone, which the original tool's matcher targeted). The
// classification is deliberately conservative: opcodes not recognized fall
// through to read+write on every operand.
type accessClass int

const (
	classConservative accessClass = iota // read+write on every operand
	classMoveLike                        // dst: write, src: read
	classALU                             // dst: read+write, src: read
	classCompareOnly                     // all operands: read
	classNoAccess                        // lea/nop-family: no data access despite operands
	classCallTarget                      // call/jmp: target operand read only
	classReturn                          // no operands carry data access
)

func classifyAccess(raw x86asm.Inst) accessClass {
	switch raw.Op {
	case x86asm.MOV, x86asm.MOVZX, x86asm.MOVSX, x86asm.MOVSXD,
		x86asm.MOVSS, x86asm.MOVSD, x86asm.MOVAPS, x86asm.MOVAPD,
		x86asm.MOVUPS, x86asm.MOVUPD, x86asm.MOVQ, x86asm.MOVD:
		return classMoveLike
	case x86asm.ADD, x86asm.SUB, x86asm.AND, x86asm.OR, x86asm.XOR,
		x86asm.ADC, x86asm.SBB, x86asm.SHL, x86asm.SHR, x86asm.SAR,
		x86asm.ROL, x86asm.ROR, x86asm.IMUL, x86asm.INC, x86asm.DEC,
		x86asm.NEG, x86asm.NOT, x86asm.XADD:
		return classALU
	case x86asm.CMP, x86asm.TEST:
		return classCompareOnly
	case x86asm.LEA, x86asm.NOP:
		// LEA computes an address; it never touches memory. NOP has no
		// data access despite occasionally decoding with operands.
		return classNoAccess
	case x86asm.CALL, x86asm.LCALL, x86asm.JMP, x86asm.LJMP:
		return classCallTarget
	case x86asm.RET, x86asm.LRET:
		return classReturn
	default:
		if isConditionalJump(raw.Op) {
			return classCallTarget
		}
		return classConservative
	}
}
