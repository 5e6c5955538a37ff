package decoder

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/e9rw/e9rw/internal/frontend/reg"
)

// Register returns the operand's register in the frontend's own Register
// enum, valid only when Kind == OperandReg.
func (o Operand) Register() reg.Register {
	return reg.FromX86Asm(o.Reg)
}

// BaseRegister, IndexRegister, and SegmentRegister project a memory
// operand's sub-registers, valid only when Kind == OperandMem. A zero
// x86asm.Reg (no base/index/segment present) maps to reg.None.
func (o Operand) BaseRegister() reg.Register    { return reg.FromX86Asm(o.Base) }
func (o Operand) IndexRegister() reg.Register   { return reg.FromX86Asm(o.Index) }
func (o Operand) SegmentRegister() reg.Register { return reg.FromX86Asm(o.Segment) }

// ReadRegisters and WriteRegisters translate the raw x86asm register-value
// sets into the frontend Register enum, for the "R1,R2 in reads/writes"
// match tests.
func (i Instruction) ReadRegisters() map[reg.Register]bool {
	return translateRegisterSet(i.Reads)
}

func (i Instruction) WriteRegisters() map[reg.Register]bool {
	return translateRegisterSet(i.Writes)
}

func translateRegisterSet(raw map[int]bool) map[reg.Register]bool {
	out := make(map[reg.Register]bool, len(raw))
	for v := range raw {
		if r := reg.FromX86Asm(x86asm.Reg(v)); r != reg.None {
			out[r] = true
		}
	}
	return out
}

// Target returns the absolute virtual address a call/jump instruction
// branches to when its sole operand is a PC-relative immediate, and
// whether one could be determined. Indirect call/jmp (register or memory
// target) reports ok=false; the match engine falls back to treating
// "target" as undefined for those, per spec.md's "known at rewrite time
// only for direct branches" note.
func (i Instruction) Target() (addr uint64, ok bool) {
	if !i.IsCall && !i.IsJump {
		return 0, false
	}
	if len(i.Operands) != 1 || i.Operands[0].Kind != OperandImm {
		return 0, false
	}
	return uint64(int64(i.Address) + int64(i.Size) + i.Operands[0].Imm), true
}

// Next returns the address immediately following this instruction.
func (i Instruction) Next() uint64 {
	return i.Address + uint64(i.Size)
}
