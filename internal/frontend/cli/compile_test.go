package cli

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e9rw/e9rw/internal/frontend/ast"
	"github.com/e9rw/e9rw/internal/frontend/elfx"
	"github.com/e9rw/e9rw/internal/frontend/parser"
)

// buildMinimalELF64 assembles a minimal valid little-endian ELF64 binary
// with one .text section, following the same layout elfx's own fixture
// builder uses, so Compile's trap-resolution path has a real elfx.Reader to
// exercise without shipping a toolchain-produced binary blob.
func buildMinimalELF64(t *testing.T, textBytes []byte, textVaddr uint64) string {
	t.Helper()
	const ehdrSize, shdrSize = 64, 64

	shstrtab := []byte{0x00}
	nameOff := func(name string) uint32 {
		off := uint32(len(shstrtab))
		shstrtab = append(shstrtab, []byte(name)...)
		shstrtab = append(shstrtab, 0x00)
		return off
	}
	textName := nameOff(".text")
	shstrtabName := nameOff(".shstrtab")

	textOff := uint64(ehdrSize)
	textSize := uint64(len(textBytes))
	shstrtabOff := textOff + textSize
	shstrtabOffAligned := (shstrtabOff + 7) &^ 7
	pad := int(shstrtabOffAligned - shstrtabOff)
	shOff := shstrtabOffAligned + uint64(len(shstrtab))
	shOffAligned := (shOff + 7) &^ 7
	shPad := int(shOffAligned - shOff)

	var buf bytes.Buffer
	buf.Write([]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0})
	buf.Write(make([]byte, 8))
	le := binary.LittleEndian
	w16 := func(v uint16) { _ = binary.Write(&buf, le, v) }
	w32 := func(v uint32) { _ = binary.Write(&buf, le, v) }
	w64 := func(v uint64) { _ = binary.Write(&buf, le, v) }

	w16(2)               // e_type = ET_EXEC
	w16(62)               // e_machine = EM_X86_64
	w32(1)                 // e_version
	w64(textVaddr)         // e_entry
	w64(0)                 // e_phoff
	w64(shOffAligned)      // e_shoff
	w32(0)                 // e_flags
	w16(ehdrSize)          // e_ehsize
	w16(0)                 // e_phentsize
	w16(0)                 // e_phnum
	w16(shdrSize)          // e_shentsize
	w16(3)                 // e_shnum
	w16(2)                 // e_shstrndx

	buf.Write(textBytes)
	buf.Write(make([]byte, pad))
	buf.Write(shstrtab)
	buf.Write(make([]byte, shPad))

	writeShdr := func(name, typ uint32, flags, addr, offset, size uint64, link, info uint32, align, entsize uint64) {
		w32(name)
		w32(typ)
		w64(flags)
		w64(addr)
		w64(offset)
		w64(size)
		w32(link)
		w32(info)
		w64(align)
		w64(entsize)
	}
	writeShdr(0, 0, 0, 0, 0, 0, 0, 0, 0, 0)
	writeShdr(textName, 1, 0x6, textVaddr, textOff, textSize, 0, 0, 16, 0)
	writeShdr(shstrtabName, 3, 0, 0, shstrtabOffAligned, uint64(len(shstrtab)), 0, 0, 1, 0)

	path := filepath.Join(t.TempDir(), "fixture.elf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func openFixture(t *testing.T) *elfx.Reader {
	t.Helper()
	path := buildMinimalELF64(t, []byte{0x90, 0xc3}, 0x400000)
	r, err := elfx.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestCompile_ExplicitRules(t *testing.T) {
	cfg := &Config{Rules: []RuleSpec{{Matches: []string{"asm=/ret.*/"}, Action: "trap"}}}
	actions, err := Compile(cfg, openFixture(t), parser.Options{})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, ast.ActionTrap, actions[0].Kind)
}

func TestCompile_TrapAddressAppendedAfterExplicitRules(t *testing.T) {
	cfg := &Config{
		Rules:     []RuleSpec{{Matches: []string{"asm=/ret.*/"}, Action: "trap"}},
		TrapAddrs: []string{"0x400001"},
	}
	actions, err := Compile(cfg, openFixture(t), parser.Options{})
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.NotContains(t, actions[0].Descriptor, "--trap")
	assert.Contains(t, actions[1].Descriptor, "--trap 0x400001")
}

func TestCompile_TrapAllSynthesizesAlwaysTrue(t *testing.T) {
	cfg := &Config{TrapAll: true}
	actions, err := Compile(cfg, openFixture(t), parser.Options{})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "--trap-all", actions[0].Descriptor)
	assert.Equal(t, ast.KindTrue, actions[0].Match.Test.Kind)
}

func TestCompile_RejectsUnresolvableTrapAddress(t *testing.T) {
	cfg := &Config{TrapAddrs: []string{"no_such_symbol"}}
	_, err := Compile(cfg, openFixture(t), parser.Options{})
	assert.Error(t, err)
}
