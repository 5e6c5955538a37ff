package rpc

import "fmt"

// OptLevel holds the fixed backend-option tuple a `-O` CLI level maps to,
// per spec.md §6's optimization-level table.
type OptLevel struct {
	JumpElim     int
	JumpElimSize int
	Peephole     bool
	OrderTramp   bool
	ScratchStack bool
	MemGran      int
}

var optLevels = map[string]OptLevel{
	"0": {JumpElim: 0, JumpElimSize: 0, Peephole: false, OrderTramp: false, ScratchStack: false, MemGran: 64},
	"1": {JumpElim: 0, JumpElimSize: 0, Peephole: true, OrderTramp: false, ScratchStack: true, MemGran: 128},
	"2": {JumpElim: 32, JumpElimSize: 64, Peephole: true, OrderTramp: true, ScratchStack: true, MemGran: 128},
	"3": {JumpElim: 64, JumpElimSize: 512, Peephole: true, OrderTramp: true, ScratchStack: true, MemGran: 4096},
	"s": {JumpElim: 0, JumpElimSize: 0, Peephole: true, OrderTramp: true, ScratchStack: true, MemGran: 4096},
}

// LookupOptLevel resolves a `-O{0,1,2,3,s}` level string.
func LookupOptLevel(level string) (OptLevel, error) {
	l, ok := optLevels[level]
	if !ok {
		return OptLevel{}, fmt.Errorf("unrecognized optimization level %q, want one of 0,1,2,3,s", level)
	}
	return l, nil
}

// Options renders the level as the sequence of `option` verb argument lists
// the backend expects.
func (l OptLevel) Options() [][]string {
	return [][]string{
		{"jump-elim", fmt.Sprintf("%d", l.JumpElim)},
		{"jump-elim-size", fmt.Sprintf("%d", l.JumpElimSize)},
		{"peephole", boolFlag(l.Peephole)},
		{"order-trampolines", boolFlag(l.OrderTramp)},
		{"scratch-stack", boolFlag(l.ScratchStack)},
		{"mem-granularity", fmt.Sprintf("%d", l.MemGran)},
	}
}

func boolFlag(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
