package ast

import "github.com/e9rw/e9rw/internal/frontend/reg"

// ActionKind enumerates what happens at a matched instruction: a call into
// injected/existing code, a process exit, a no-op passthru, a plugin
// callback, a debug print, or a trap.
type ActionKind int

const (
	ActionInvalid ActionKind = iota
	ActionCall
	ActionExit
	ActionPassthru
	ActionPlugin
	ActionPrint
	ActionTrap
)

// CallPosition enumerates where a call action's trampoline runs relative to
// the matched instruction.
type CallPosition int

const (
	PositionBefore CallPosition = iota
	PositionAfter
	PositionReplace
	PositionConditional
	PositionConditionalJump
)

// ArgKind enumerates the recognised call-argument keywords.
type ArgKind int

const (
	ArgInvalid ArgKind = iota
	ArgAddr
	ArgBase
	ArgDst
	ArgID
	ArgImm
	ArgInstr
	ArgMem
	ArgMem8
	ArgMem16
	ArgMem32
	ArgMem64
	ArgNext
	ArgOffset
	ArgOp
	ArgRandom
	ArgReg
	ArgSize
	ArgState
	ArgStaticAddr
	ArgSrc
	ArgTarget
	ArgTrampoline
	ArgRegisterLiteral
	ArgIntegerLiteral
	ArgSymbol
	ArgUserCSV
	ArgAsm
	ArgAsmLen
	ArgAsmSize
)

// Argument describes one call-argument slot of a call action, in the order
// it will be passed to the injected function.
type Argument struct {
	Kind ArgKind

	// Field selects an operand-family Kind's sub-property, reusing the same
	// Field enum the match tests use (e.g. ArgOp with FieldBase).
	Field Field

	// PassByPointer requests the argument's address rather than its value
	// be passed (the "&" prefix in rule text).
	PassByPointer bool

	// Duplicate marks a second-or-later Argument of the same Kind within one
	// action's argument list; the backend uses this to skip redundant
	// recomputation of an already-materialized value.
	Duplicate bool

	// IntegerValue holds the literal payload for ArgIntegerLiteral.
	IntegerValue int64

	// MemoryOperandIndex selects which operand ArgOp/ArgSrc/ArgDst/ArgImm/
	// ArgReg/ArgMem read from, 0-based.
	MemoryOperandIndex int

	// Name holds the register name for ArgRegisterLiteral, the symbol name
	// for ArgSymbol, or the column of the surfaced CSV record for ArgUserCSV.
	Name string

	// MemoryOperand holds the literal <seg:disp(base,index,scale)> payload
	// for ArgMem8/16/32/64, set by the memory-operand literal grammar
	// rather than derived from a matched instruction's operand.
	MemoryOperand *MemoryOperand
}

// MemoryOperand is a standalone literal memory reference a call action can
// pass in place of reading an operand off the matched instruction, e.g.
// "mem32<fs:8(rax,rcx,4)>".
type MemoryOperand struct {
	Seg   reg.Register
	Disp  int64
	Base  reg.Register
	Index reg.Register
	Scale int64
}

// Action is a compiled rule: a match expression paired with the action to
// take on matched instructions.
type Action struct {
	// Descriptor is the original rule text this Action was compiled from,
	// kept for diagnostics.
	Descriptor string

	Match *MatchExpr
	Kind  ActionKind

	// Name is a call action's target function symbol name (the same value
	// as EntrySymbol); other action kinds leave it empty.
	Name string

	// ELFFilePath and EntrySymbol locate the injected code for a call
	// action that references an external ELF file.
	ELFFilePath string
	EntrySymbol string

	// PluginBasename names the plugin providing this action's behaviour,
	// when Kind == ActionPlugin.
	PluginBasename string

	Args []Argument

	// Clean requests the trampoline preserve all caller-saved state
	// ("clean" call); Naked (Clean == false) trusts the callee's ABI usage.
	Clean bool

	Position CallPosition

	// ExitStatus is the process exit code for an ActionExit action, 0..255.
	ExitStatus int
}
