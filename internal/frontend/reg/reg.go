// Package reg implements the closed x86-64 register namespace used by the
// match engine, independent of the underlying decoder's own register
// numbering. Rule text refers to registers by name (e.g. "rax", "edi"); the
// decoder facade canonicalizes whatever register ids the decoder produces
// into this enum so that comparisons, register sets, and the Register case
// of MatchValue never leak decoder-specific values.
package reg

import (
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Register is a closed enum over the x86-64 register namespace.
type Register int

// None is the zero value, used where a memory operand field (segment, base,
// index) is absent.
const None Register = 0

const (
	_ Register = iota // reserve 0 for None

	// 64-bit general purpose
	RAX
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	// 32-bit general purpose
	EAX
	ECX
	EDX
	EBX
	ESP
	EBP
	ESI
	EDI
	R8D
	R9D
	R10D
	R11D
	R12D
	R13D
	R14D
	R15D

	// 16-bit general purpose
	AX
	CX
	DX
	BX
	SP
	BP
	SI
	DI
	R8W
	R9W
	R10W
	R11W
	R12W
	R13W
	R14W
	R15W

	// 8-bit general purpose (low byte)
	AL
	CL
	DL
	BL
	SPL
	BPL
	SIL
	DIL
	R8B
	R9B
	R10B
	R11B
	R12B
	R13B
	R14B
	R15B

	// 8-bit general purpose (legacy high byte; no REX prefix)
	AH
	CH
	DH
	BH

	// Segment registers
	ES
	CS
	SS
	DS
	FS
	GS

	// Instruction pointer
	RIP

	// x87 floating point stack
	ST0
	ST1
	ST2
	ST3
	ST4
	ST5
	ST6
	ST7
)

var names = map[Register]string{
	None: "",
	RAX:  "rax", RCX: "rcx", RDX: "rdx", RBX: "rbx",
	RSP: "rsp", RBP: "rbp", RSI: "rsi", RDI: "rdi",
	R8: "r8", R9: "r9", R10: "r10", R11: "r11",
	R12: "r12", R13: "r13", R14: "r14", R15: "r15",

	EAX: "eax", ECX: "ecx", EDX: "edx", EBX: "ebx",
	ESP: "esp", EBP: "ebp", ESI: "esi", EDI: "edi",
	R8D: "r8d", R9D: "r9d", R10D: "r10d", R11D: "r11d",
	R12D: "r12d", R13D: "r13d", R14D: "r14d", R15D: "r15d",

	AX: "ax", CX: "cx", DX: "dx", BX: "bx",
	SP: "sp", BP: "bp", SI: "si", DI: "di",
	R8W: "r8w", R9W: "r9w", R10W: "r10w", R11W: "r11w",
	R12W: "r12w", R13W: "r13w", R14W: "r14w", R15W: "r15w",

	AL: "al", CL: "cl", DL: "dl", BL: "bl",
	SPL: "spl", BPL: "bpl", SIL: "sil", DIL: "dil",
	R8B: "r8b", R9B: "r9b", R10B: "r10b", R11B: "r11b",
	R12B: "r12b", R13B: "r13b", R14B: "r14b", R15B: "r15b",

	AH: "ah", CH: "ch", DH: "dh", BH: "bh",

	ES: "es", CS: "cs", SS: "ss", DS: "ds", FS: "fs", GS: "gs",

	RIP: "rip",

	ST0: "st0", ST1: "st1", ST2: "st2", ST3: "st3",
	ST4: "st4", ST5: "st5", ST6: "st6", ST7: "st7",
}

var byName map[string]Register

func init() {
	byName = make(map[string]Register, len(names))
	for r, n := range names {
		if n != "" {
			byName[n] = r
		}
	}
	// st(0) spelling, also accepted by rule text.
	for i := 0; i <= 7; i++ {
		byName[strAppendParen("st", i)] = ST0 + Register(i)
	}
}

func strAppendParen(base string, i int) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteByte('(')
	b.WriteByte(byte('0' + i))
	b.WriteByte(')')
	return b.String()
}

// String renders the register name the way rule text spells it.
func (r Register) String() string {
	if n, ok := names[r]; ok && n != "" {
		return n
	}
	return "invalid-register"
}

// Lookup resolves a register literal (lowercased) parsed from rule text.
// The comparison is case-insensitive, matching the lexer's identifier
// case-folding for reserved words.
func Lookup(name string) (Register, bool) {
	r, ok := byName[strings.ToLower(name)]
	return r, ok
}

// FromX86Asm canonicalizes a golang.org/x/arch/x86/x86asm register id into
// our closed enum. Registers the decoder can produce that have no home in
// this enum (vector/mask/control/debug/test registers) canonicalize to None;
// the frontend only ever needs GP, segment, RIP, and x87-stack registers for
// its match/operand facts.
func FromX86Asm(r x86asm.Reg) Register {
	switch r {
	case x86asm.RAX:
		return RAX
	case x86asm.RCX:
		return RCX
	case x86asm.RDX:
		return RDX
	case x86asm.RBX:
		return RBX
	case x86asm.RSP:
		return RSP
	case x86asm.RBP:
		return RBP
	case x86asm.RSI:
		return RSI
	case x86asm.RDI:
		return RDI
	case x86asm.R8:
		return R8
	case x86asm.R9:
		return R9
	case x86asm.R10:
		return R10
	case x86asm.R11:
		return R11
	case x86asm.R12:
		return R12
	case x86asm.R13:
		return R13
	case x86asm.R14:
		return R14
	case x86asm.R15:
		return R15

	case x86asm.EAX:
		return EAX
	case x86asm.ECX:
		return ECX
	case x86asm.EDX:
		return EDX
	case x86asm.EBX:
		return EBX
	case x86asm.ESP:
		return ESP
	case x86asm.EBP:
		return EBP
	case x86asm.ESI:
		return ESI
	case x86asm.EDI:
		return EDI
	case x86asm.R8L:
		return R8D
	case x86asm.R9L:
		return R9D
	case x86asm.R10L:
		return R10D
	case x86asm.R11L:
		return R11D
	case x86asm.R12L:
		return R12D
	case x86asm.R13L:
		return R13D
	case x86asm.R14L:
		return R14D
	case x86asm.R15L:
		return R15D

	case x86asm.AX:
		return AX
	case x86asm.CX:
		return CX
	case x86asm.DX:
		return DX
	case x86asm.BX:
		return BX
	case x86asm.SP:
		return SP
	case x86asm.BP:
		return BP
	case x86asm.SI:
		return SI
	case x86asm.DI:
		return DI
	case x86asm.R8W:
		return R8W
	case x86asm.R9W:
		return R9W
	case x86asm.R10W:
		return R10W
	case x86asm.R11W:
		return R11W
	case x86asm.R12W:
		return R12W
	case x86asm.R13W:
		return R13W
	case x86asm.R14W:
		return R14W
	case x86asm.R15W:
		return R15W

	case x86asm.AL:
		return AL
	case x86asm.CL:
		return CL
	case x86asm.DL:
		return DL
	case x86asm.BL:
		return BL
	case x86asm.SPB:
		return SPL
	case x86asm.BPB:
		return BPL
	case x86asm.SIB:
		return SIL
	case x86asm.DIB:
		return DIL
	case x86asm.R8B:
		return R8B
	case x86asm.R9B:
		return R9B
	case x86asm.R10B:
		return R10B
	case x86asm.R11B:
		return R11B
	case x86asm.R12B:
		return R12B
	case x86asm.R13B:
		return R13B
	case x86asm.R14B:
		return R14B
	case x86asm.R15B:
		return R15B

	case x86asm.AH:
		return AH
	case x86asm.CH:
		return CH
	case x86asm.DH:
		return DH
	case x86asm.BH:
		return BH

	case x86asm.ES:
		return ES
	case x86asm.CS:
		return CS
	case x86asm.SS:
		return SS
	case x86asm.DS:
		return DS
	case x86asm.FS:
		return FS
	case x86asm.GS:
		return GS

	case x86asm.IP, x86asm.EIP, x86asm.RIP:
		return RIP

	case x86asm.F0:
		return ST0
	case x86asm.F1:
		return ST1
	case x86asm.F2:
		return ST2
	case x86asm.F3:
		return ST3
	case x86asm.F4:
		return ST4
	case x86asm.F5:
		return ST5
	case x86asm.F6:
		return ST6
	case x86asm.F7:
		return ST7

	default:
		return None
	}
}
