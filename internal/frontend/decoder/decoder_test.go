package decoder

import (
	"testing"

	"github.com/e9rw/e9rw/internal/frontend/reg"
)

func decodeOne(t *testing.T, code []byte) Instruction {
	t.Helper()
	d := New(code, 0x1000, 0x400000)
	instr, err := d.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	return instr
}

func TestDecode_MovRegReg(t *testing.T) {
	// mov eax, ebx
	instr := decodeOne(t, []byte{0x89, 0xd8})
	if instr.Mnemonic != "MOV" {
		t.Errorf("Mnemonic = %q, want MOV", instr.Mnemonic)
	}
	if len(instr.Operands) != 2 {
		t.Fatalf("expected 2 operands, got %d: %+v", len(instr.Operands), instr.Operands)
	}
	dst, src := instr.Operands[0], instr.Operands[1]
	if dst.Kind != OperandReg || dst.Access != AccessWrite {
		t.Errorf("dst = %+v, want write-only reg", dst)
	}
	if src.Kind != OperandReg || src.Access != AccessRead {
		t.Errorf("src = %+v, want read-only reg", src)
	}
	if dst.Register() != reg.EAX {
		t.Errorf("dst register = %v, want EAX", dst.Register())
	}
	if src.Register() != reg.EBX {
		t.Errorf("src register = %v, want EBX", src.Register())
	}
}

func TestDecode_CmpIsReadOnly(t *testing.T) {
	// cmp eax, ebx
	instr := decodeOne(t, []byte{0x39, 0xd8})
	for _, op := range instr.Operands {
		if op.Access != AccessRead {
			t.Errorf("cmp operand %+v should be read-only", op)
		}
	}
}

func TestDecode_LeaHasNoMemoryAccess(t *testing.T) {
	// lea rax, [rbx]
	instr := decodeOne(t, []byte{0x48, 0x8d, 0x03})
	if instr.Mnemonic != "LEA" {
		t.Fatalf("Mnemonic = %q, want LEA", instr.Mnemonic)
	}
	mem := instr.Operands[1]
	if mem.Kind != OperandMem {
		t.Fatalf("operand 1 = %+v, want memory operand", mem)
	}
	if mem.Size != 0 {
		t.Errorf("lea memory operand size = %d, want 0 (no data access)", mem.Size)
	}
	if mem.Access != 0 {
		t.Errorf("lea memory operand access = %v, want none", mem.Access)
	}
}

func TestDecode_Ret(t *testing.T) {
	instr := decodeOne(t, []byte{0xc3})
	if !instr.IsReturn {
		t.Errorf("expected IsReturn=true for ret")
	}
	if !instr.WriteRegisters()[reg.RSP] {
		t.Errorf("ret should write RSP")
	}
}

func TestDecode_CallTargetResolvesRelative(t *testing.T) {
	// call rel32 = 0 (calls the instruction immediately following itself)
	instr := decodeOne(t, []byte{0xe8, 0x00, 0x00, 0x00, 0x00})
	if !instr.IsCall {
		t.Fatalf("expected IsCall=true")
	}
	target, ok := instr.Target()
	if !ok {
		t.Fatalf("expected a resolvable target")
	}
	want := instr.Address + uint64(instr.Size)
	if target != want {
		t.Errorf("Target() = %#x, want %#x", target, want)
	}
	if instr.Next() != want {
		t.Errorf("Next() = %#x, want %#x", instr.Next(), want)
	}
}

func TestDecoder_DesyncDoesNotAdvance(t *testing.T) {
	d := New([]byte{0x0f, 0xff}, 0, 0) // 0x0f 0xff is not a valid opcode
	_, err := d.Next()
	if err == nil {
		t.Fatalf("expected a desync error")
	}
	if d.Pos() != 0 {
		t.Errorf("Pos() = %d after desync, want 0 (no advance)", d.Pos())
	}
	d.SkipOne()
	if d.Pos() != 1 {
		t.Errorf("Pos() after SkipOne = %d, want 1", d.Pos())
	}
}

func TestDecoder_ResetRestarts(t *testing.T) {
	d := New([]byte{0x90, 0xc3}, 0, 0x1000)
	if _, err := d.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	d.Reset(0)
	if d.Pos() != 0 {
		t.Errorf("Pos() after Reset = %d, want 0", d.Pos())
	}
	instr, err := d.Next()
	if err != nil {
		t.Fatalf("Next after reset: %v", err)
	}
	if instr.Mnemonic != "NOP" {
		t.Errorf("Mnemonic = %q, want NOP", instr.Mnemonic)
	}
}
