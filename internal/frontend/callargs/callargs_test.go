package callargs

import (
	"testing"

	"github.com/e9rw/e9rw/internal/frontend/ast"
	"github.com/e9rw/e9rw/internal/frontend/decoder"
	"github.com/e9rw/e9rw/internal/frontend/reg"
)

func decodeFirst(t *testing.T, code []byte) decoder.Instruction {
	t.Helper()
	d := decoder.New(code, 0x10, 0x401010)
	instr, err := d.Next()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return instr
}

func TestBuild_AddrAndOffset(t *testing.T) {
	instr := decodeFirst(t, []byte{0x89, 0xd8}) // mov eax, ebx
	action := &ast.Action{Args: []ast.Argument{{Kind: ast.ArgAddr}, {Kind: ast.ArgOffset}}}
	b := &Builder{}
	values, err := b.Build(action, instr, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if values[0].Integer != int64(instr.Address) {
		t.Errorf("addr = %d, want %d", values[0].Integer, instr.Address)
	}
	if values[1].Integer != int64(instr.Offset) {
		t.Errorf("offset = %d, want %d", values[1].Integer, instr.Offset)
	}
}

func TestBuild_OperandPointerProjection(t *testing.T) {
	instr := decodeFirst(t, []byte{0x89, 0xd8}) // mov eax, ebx
	action := &ast.Action{Args: []ast.Argument{
		{Kind: ast.ArgOp, MemoryOperandIndex: 0, Field: ast.FieldBase, PassByPointer: true},
	}}
	b := &Builder{}
	values, err := b.Build(action, instr, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !values[0].Pointer {
		t.Errorf("expected a pointer-sentinel value for &op[0].base")
	}
}

func TestBuild_RejectsPointerOnDisallowedField(t *testing.T) {
	instr := decodeFirst(t, []byte{0x89, 0xd8})
	action := &ast.Action{Args: []ast.Argument{
		{Kind: ast.ArgOp, MemoryOperandIndex: 0, Field: ast.FieldType, PassByPointer: true},
	}}
	b := &Builder{}
	if _, err := b.Build(action, instr, nil); err == nil {
		t.Errorf("expected an error for &op[0].type")
	}
}

func TestBuild_ExceedsMaxArgNo(t *testing.T) {
	instr := decodeFirst(t, []byte{0x90})
	var args []ast.Argument
	for i := 0; i <= MaxArgNo; i++ {
		args = append(args, ast.Argument{Kind: ast.ArgAddr})
	}
	action := &ast.Action{Args: args}
	b := &Builder{}
	if _, err := b.Build(action, instr, nil); err == nil {
		t.Errorf("expected an error for exceeding MAX_ARGNO")
	}
}

func TestBuild_UserCSVColumn(t *testing.T) {
	instr := decodeFirst(t, []byte{0x90})
	action := &ast.Action{Args: []ast.Argument{{Kind: ast.ArgUserCSV, Name: "1"}}}
	b := &Builder{}
	values, err := b.Build(action, instr, []string{"7", "99"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if values[0].Integer != 99 {
		t.Errorf("user-csv column 1 = %d, want 99", values[0].Integer)
	}
}

func TestBuild_SymbolResolution(t *testing.T) {
	instr := decodeFirst(t, []byte{0x90})
	action := &ast.Action{ELFFilePath: "libhook.so", Args: []ast.Argument{{Kind: ast.ArgSymbol, Name: "hook_entry"}}}
	b := &Builder{ResolveSymbol: func(path, name string) (uint64, bool) {
		if path == "libhook.so" && name == "hook_entry" {
			return 0x70001000, true
		}
		return 0, false
	}}
	values, err := b.Build(action, instr, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if values[0].Integer != 0x70001000 {
		t.Errorf("resolved symbol = %#x, want 0x70001000", values[0].Integer)
	}
}

func TestBuild_MemoryOperandLiteral(t *testing.T) {
	instr := decodeFirst(t, []byte{0x90}) // nop, irrelevant: the literal is rule-text only
	rax, _ := reg.Lookup("rax")
	rcx, _ := reg.Lookup("rcx")
	fs, _ := reg.Lookup("fs")
	action := &ast.Action{Args: []ast.Argument{
		{Kind: ast.ArgMem32, MemoryOperand: &ast.MemoryOperand{Seg: fs, Disp: 8, Base: rax, Index: rcx, Scale: 4}},
	}}
	b := &Builder{}
	values, err := b.Build(action, instr, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !values[0].Pointer {
		t.Errorf("expected a pointer-sentinel value for a mem32 literal")
	}
	mem := values[0].MemOp
	if mem == nil {
		t.Fatalf("expected a non-nil MemOp payload")
	}
	if mem.Size != 4 || mem.Seg != fs || mem.Disp != 8 || mem.Base != rax || mem.Index != rcx || mem.Scale != 4 {
		t.Errorf("unexpected resolved memory operand: %+v", mem)
	}
}

func TestBuild_MemoryOperandLiteralMissingIsAnError(t *testing.T) {
	instr := decodeFirst(t, []byte{0x90})
	action := &ast.Action{Args: []ast.Argument{{Kind: ast.ArgMem64}}}
	b := &Builder{}
	if _, err := b.Build(action, instr, nil); err == nil {
		t.Errorf("expected an error when a mem64 argument has no literal")
	}
}

func TestAssignLoadBase(t *testing.T) {
	if got := AssignLoadBase(0); got != minLoadBase {
		t.Errorf("AssignLoadBase(0) = %#x, want %#x", got, minLoadBase)
	}
	if got := AssignLoadBase(minLoadBase + 1); got != minLoadBase+pageSize {
		t.Errorf("AssignLoadBase(minLoadBase+1) = %#x, want %#x", got, minLoadBase+pageSize)
	}
}
