// Package rpc emits the line-delimited message stream a rewrite-backend
// process consumes: one verb per line, fields tab-separated and integers
// hex-encoded, following the wire format spec.md §6 documents. There is no
// protobuf or JSON schema on this side of the pipe — the frontend's job is
// just to speak the protocol correctly, ordered and flushed at line
// boundaries, matching the line-oriented style the teacher's own
// stdout/stderr streaming favors.
package rpc

import (
	"bufio"
	"fmt"
	"io"
)

// Mode identifies whether the target binary is an executable or a shared
// object, per spec.md §6's binary(mode, path) verb.
type Mode string

const (
	ModeExe Mode = "exe"
	ModeDSO Mode = "dso"
)

// Format identifies the requested output artifact shape.
type Format string

const (
	FormatBinary  Format = "binary"
	FormatJSON    Format = "json"
	FormatPatch   Format = "patch"
	FormatPatchGz Format = "patch.gz"
	FormatPatchBz Format = "patch.bz2"
	FormatPatchXz Format = "patch.xz"
)

// Writer emits backend protocol messages over w, flushing after every line
// so the backend never blocks waiting on a partially-buffered message.
type Writer struct {
	w       *bufio.Writer
	closer  io.Closer
	binarySent bool
	emitSent   bool
}

// NewWriter wraps w. If w also implements io.Closer, Close closes it too.
func NewWriter(w io.Writer) *Writer {
	closer, _ := w.(io.Closer)
	return &Writer{w: bufio.NewWriter(w), closer: closer}
}

func (rw *Writer) writeLine(format string, args ...interface{}) error {
	line := fmt.Sprintf(format, args...)
	if _, err := rw.w.WriteString(line); err != nil {
		return fmt.Errorf("rpc: write %q: %w", line, err)
	}
	if err := rw.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("rpc: write newline: %w", err)
	}
	return rw.w.Flush()
}

// Binary sends the mandatory first message identifying the target binary.
// Per spec.md §8 property 4, it must be the first message after options
// and must be sent exactly once.
func (rw *Writer) Binary(mode Mode, path string) error {
	if rw.binarySent {
		return fmt.Errorf("rpc: binary message already sent")
	}
	rw.binarySent = true
	return rw.writeLine("binary\t%s\t%s", mode, path)
}

// Option forwards an opaque backend option verbatim.
func (rw *Writer) Option(args ...string) error {
	line := "option"
	for _, a := range args {
		line += "\t" + a
	}
	return rw.writeLine("%s", line)
}

// TrampolineKind enumerates the trampoline flavors registered in the
// preamble.
type TrampolineKind string

const (
	TrampolinePrint    TrampolineKind = "print"
	TrampolinePassthru TrampolineKind = "passthru"
	TrampolineTrap     TrampolineKind = "trap"
	TrampolineExit     TrampolineKind = "exit"
	TrampolineCall     TrampolineKind = "call"
	TrampolineELFFile  TrampolineKind = "elf"
)

// Trampoline registers a trampoline definition by synthetic name, kind, and
// an opaque payload (exit status, or the clean/naked+position+symbol+path
// tuple the pipeline synthesizes for a call trampoline).
func (rw *Writer) Trampoline(kind TrampolineKind, name string, payload ...string) error {
	line := fmt.Sprintf("trampoline\t%s\t%s", kind, name)
	for _, p := range payload {
		line += "\t" + p
	}
	return rw.writeLine("%s", line)
}

// Instruction defines an instruction to the backend, establishing its
// identifier for later patch references. Per spec.md §5's ordering
// invariant, this must be sent before any patch message that references an
// instruction within its short-jump window.
func (rw *Writer) Instruction(addr, size, offset uint64) error {
	return rw.writeLine("instruction\t%#x\t%#x\t%#x", addr, size, offset)
}

// Patch emits a patch referencing a previously-registered trampoline name,
// the target instruction's offset, and its resolved argument metadata
// (already rendered to strings by the caller, one token per argument).
func (rw *Writer) Patch(name string, offset uint64, metadata []string) error {
	line := fmt.Sprintf("patch\t%s\t%#x", name, offset)
	for _, m := range metadata {
		line += "\t" + m
	}
	return rw.writeLine("%s", line)
}

// Emit sends the final message requesting the backend produce output and
// exit. Per spec.md §8 property 4, it must be the last message on the
// stream.
func (rw *Writer) Emit(output string, format Format) error {
	if rw.emitSent {
		return fmt.Errorf("rpc: emit message already sent")
	}
	rw.emitSent = true
	return rw.writeLine("emit\t%s\t%s", output, format)
}

// Close flushes any buffered output and closes the underlying writer if it
// supports closing.
func (rw *Writer) Close() error {
	if err := rw.w.Flush(); err != nil {
		return err
	}
	if rw.closer != nil {
		return rw.closer.Close()
	}
	return nil
}
