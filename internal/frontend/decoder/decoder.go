// Package decoder wraps golang.org/x/arch/x86/x86asm into the fact shapes
// the match engine needs: a pull-based instruction iterator, operand
// structure, instruction groups, and register access sets. x86asm (unlike
// Capstone, which the original e9tool's matcher was built against) has no
// built-in notion of instruction groups or per-operand access flags, so
// this package derives them the way the teacher's elfanalyzer derives
// syscall/control-flow facts: a switch over x86asm.Op.
package decoder

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

const bitMode = 64

// ErrDesync indicates the bytes at the cursor did not decode to a valid
// instruction (the original tool's "data" skip/resync condition).
var ErrDesync = errors.New("decoder desync: invalid instruction bytes")

// Instruction is a decoded instruction together with the derived facts the
// match engine and call-argument builder need.
type Instruction struct {
	Offset  uint64 // offset from the text section base
	Address uint64 // virtual address
	Size    int
	Bytes   []byte
	Mnemonic string
	AsmText  string // full instruction text as x86asm renders it (Intel operand order), lowercased

	Inst x86asm.Inst

	IsCall   bool
	IsJump   bool
	IsReturn bool

	Operands []Operand
	Reads    map[int]bool // x86asm register enum values read
	Writes   map[int]bool // x86asm register enum values written
}

// OperandKind mirrors ast.OperandType without importing the ast package,
// keeping decoder a leaf dependency of ast/match rather than the reverse.
type OperandKind int

const (
	OperandImm OperandKind = iota + 1
	OperandReg
	OperandMem
)

// Access is a read/write bitmask, mirroring ast.Access.
type Access uint

const (
	AccessRead  Access = 0x01
	AccessWrite Access = 0x02
)

// Operand is one decoded operand slot with its derived type/size/access and,
// for memory operands, structure.
type Operand struct {
	Kind   OperandKind
	Size   int // bytes; true width, not the original tool's collapsed-to-1 bug
	Access Access

	// Reg is populated when Kind == OperandReg.
	Reg x86asm.Reg
	// Imm is populated when Kind == OperandImm.
	Imm int64

	// Mem fields, populated when Kind == OperandMem.
	Segment      x86asm.Reg
	Base         x86asm.Reg
	Index        x86asm.Reg
	Scale        int
	Displacement int64
}

// Decoder decodes a byte stream into Instructions with Address/Offset
// computed against a fixed base, restartable by calling Reset.
type Decoder struct {
	code       []byte
	textOffset uint64 // offset of code[0] within the text section
	baseVA     uint64 // virtual address of code[0]
	pos        int
}

// New returns a Decoder over code, where code[0] is at file offset
// textOffset within the text section and virtual address baseVA.
func New(code []byte, textOffset, baseVA uint64) *Decoder {
	return &Decoder{code: code, textOffset: textOffset, baseVA: baseVA}
}

// Reset restarts the iterator at the given (offset-from-base) position, the
// "coroutine-like iteration ... restartable by resetting (code-ptr, size,
// address)" behavior spec.md §9 calls for.
func (d *Decoder) Reset(posFromBase int) {
	d.pos = posFromBase
}

// Pos returns the current position relative to the decoder's base.
func (d *Decoder) Pos() int { return d.pos }

// TextOffset returns the file offset of this decoder's base position.
func (d *Decoder) TextOffset() uint64 { return d.textOffset }

// BaseVA returns the virtual address of this decoder's base position.
func (d *Decoder) BaseVA() uint64 { return d.baseVA }

// AddressForOffset converts an absolute file offset (as recorded on a
// pipeline Location) to the virtual address this decoder would assign it,
// without decoding anything.
func (d *Decoder) AddressForOffset(offset uint64) uint64 {
	return d.baseVA + (offset - d.textOffset)
}

// DecodeAt repositions the cursor to the given absolute file offset and
// decodes exactly one instruction there, leaving the cursor just past it.
func (d *Decoder) DecodeAt(offset uint64) (Instruction, error) {
	d.Reset(int(offset - d.textOffset))
	return d.Next()
}

// Done reports whether the cursor has reached the end of the code buffer.
func (d *Decoder) Done() bool { return d.pos >= len(d.code) }

// Next decodes the instruction at the current cursor and advances past it.
// On desync (x86asm fails to decode), it returns ErrDesync without
// advancing; the caller decides whether to skip bytes and resynchronize.
func (d *Decoder) Next() (Instruction, error) {
	if d.Done() {
		return Instruction{}, fmt.Errorf("decoder: read past end of code at offset %d", d.pos)
	}
	raw, err := x86asm.Decode(d.code[d.pos:], bitMode)
	if err != nil {
		return Instruction{}, fmt.Errorf("%w: %v", ErrDesync, err)
	}
	instr := buildInstruction(raw, d.code[d.pos:d.pos+raw.Len], d.textOffset+uint64(d.pos), d.baseVA+uint64(d.pos))
	d.pos += raw.Len
	return instr, nil
}

// SkipOne advances the cursor by one byte, used to resynchronize after a
// desync when --sync permits it.
func (d *Decoder) SkipOne() {
	if !d.Done() {
		d.pos++
	}
}

func buildInstruction(raw x86asm.Inst, rawBytes []byte, offset, address uint64) Instruction {
	instr := Instruction{
		Offset:   offset,
		Address:  address,
		Size:     raw.Len,
		Bytes:    append([]byte(nil), rawBytes...),
		Mnemonic: mnemonicOf(raw),
		AsmText:  strings.ToLower(raw.String()),
		Inst:     raw,
	}
	instr.IsCall = isCallOp(raw.Op)
	instr.IsJump = isJumpOp(raw.Op)
	instr.IsReturn = isReturnOp(raw.Op)
	instr.Operands = extractOperands(raw)
	instr.Reads, instr.Writes = registerAccess(raw)
	return instr
}

// mnemonicOf renders just the opcode name as x86asm.Op.String() spells it
// (uppercase, e.g. "MOV"); the match engine lowercases it before comparing.
func mnemonicOf(raw x86asm.Inst) string {
	return raw.Op.String()
}
