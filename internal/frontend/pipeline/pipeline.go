// Package pipeline orchestrates the two-pass rewrite: decode, match,
// record; optionally re-decode for plugin notification; then walk
// Locations in reverse emitting instruction definitions and patches to the
// backend, per spec.md §4.I.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/e9rw/e9rw/internal/frontend/ast"
	"github.com/e9rw/e9rw/internal/frontend/callargs"
	"github.com/e9rw/e9rw/internal/frontend/decoder"
	"github.com/e9rw/e9rw/internal/frontend/match"
	"github.com/e9rw/e9rw/internal/frontend/plugin"
	"github.com/e9rw/e9rw/internal/frontend/rpc"
)

// shortJumpWindow is the reachability window a short (rel8) jump can
// bridge: |ΔVA| <= INT8_MAX + 2 + 15, per spec.md §4.I step 5 and §8
// property 3.
const shortJumpWindow = 127 + 2 + 15

// ErrIncompleteCoverage indicates the decoder did not reach the end of the
// text section during the first pass, per spec.md §4.I's failure semantics.
var ErrIncompleteCoverage = errors.New("pipeline: decoder did not reach the end of the text section")

// Options configures one rewrite run.
type Options struct {
	Actions        []*ast.Action
	Plugins        *plugin.Registry
	Writer         *rpc.Writer
	Args           *callargs.Builder
	SyncLimit      int // option_sync: instructions to skip after a desync before resuming matching
	RandomFunc     func() int64
	Mode           rpc.Mode
	BinaryPath     string
	OutputPath     string
	OutputFormat   rpc.Format
	OptLevel       rpc.OptLevel
}

// Pipeline runs the disassembly/match/emit sequence over one decoder.
type Pipeline struct {
	opts      Options
	locations []Location
}

// New returns a Pipeline configured by opts.
func New(opts Options) *Pipeline {
	return &Pipeline{opts: opts}
}

// Run executes preflight, the trampoline preamble, both disassembly
// passes, reverse emission, and finalization against d, which must be
// positioned at the start of the region to rewrite.
func (p *Pipeline) Run(d *decoder.Decoder) error {
	if err := p.preflight(); err != nil {
		return err
	}
	if err := p.trampolinePreamble(); err != nil {
		return err
	}
	if err := p.firstPass(d); err != nil {
		return err
	}
	if p.opts.Plugins != nil && p.opts.Plugins.AnyNotifies() {
		if err := p.secondPass(d); err != nil {
			return err
		}
	}
	if err := p.reverseEmission(d); err != nil {
		return err
	}
	return p.finalize()
}

func (p *Pipeline) preflight() error {
	if len(p.opts.Actions) > 1024 {
		return fmt.Errorf("limit-error: %d actions exceeds the 1024-action limit", len(p.opts.Actions))
	}
	if p.opts.Writer == nil {
		return errors.New("pipeline: no backend writer configured")
	}
	if err := p.opts.Writer.Binary(p.opts.Mode, p.opts.BinaryPath); err != nil {
		return err
	}
	for _, opt := range p.opts.OptLevel.Options() {
		if err := p.opts.Writer.Option(opt...); err != nil {
			return err
		}
	}
	if p.opts.Plugins != nil {
		for _, pl := range p.opts.Plugins.All() {
			if err := pl.RunInit(); err != nil {
				return fmt.Errorf("plugin-error: %w", err)
			}
		}
	}
	return nil
}

// trampolinePreamble registers one trampoline definition per distinct
// action kind/identity present in the rule set, per spec.md §4.I step 2.
func (p *Pipeline) trampolinePreamble() error {
	seenExit := map[int]bool{}
	seenCall := map[string]bool{}
	seenELF := map[string]bool{}
	var sawPrint, sawPassthru, sawTrap bool

	for _, action := range p.opts.Actions {
		switch action.Kind {
		case ast.ActionPrint:
			sawPrint = true
		case ast.ActionPassthru:
			sawPassthru = true
		case ast.ActionTrap:
			sawTrap = true
		case ast.ActionExit:
			if !seenExit[action.ExitStatus] {
				seenExit[action.ExitStatus] = true
				if err := p.opts.Writer.Trampoline(rpc.TrampolineExit, exitTrampolineName(action.ExitStatus), fmt.Sprintf("%d", action.ExitStatus)); err != nil {
					return err
				}
			}
		case ast.ActionCall:
			name := CallTrampolineName(action)
			if !seenCall[name] {
				seenCall[name] = true
				if err := p.opts.Writer.Trampoline(rpc.TrampolineCall, name, cleanFlag(action.Clean), positionName(action.Position), action.EntrySymbol, action.ELFFilePath); err != nil {
					return err
				}
			}
			if action.ELFFilePath != "" && !seenELF[action.ELFFilePath] {
				seenELF[action.ELFFilePath] = true
				if err := p.opts.Writer.Trampoline(rpc.TrampolineELFFile, action.ELFFilePath); err != nil {
					return err
				}
			}
		}
	}

	if sawPrint {
		if err := p.opts.Writer.Trampoline(rpc.TrampolinePrint, "print"); err != nil {
			return err
		}
	}
	if sawPassthru {
		if err := p.opts.Writer.Trampoline(rpc.TrampolinePassthru, "passthru"); err != nil {
			return err
		}
	}
	if sawTrap {
		if err := p.opts.Writer.Trampoline(rpc.TrampolineTrap, "trap"); err != nil {
			return err
		}
	}
	return nil
}

func exitTrampolineName(status int) string {
	return fmt.Sprintf("exit_%d", status)
}

// CallTrampolineName synthesizes the identifier spec.md §4.I calls "a
// synthetic name combining clean/naked, call-position, target symbol, and
// ELF path".
func CallTrampolineName(action *ast.Action) string {
	return fmt.Sprintf("call_%s_%s_%s_%s", cleanFlag(action.Clean), positionName(action.Position), action.EntrySymbol, action.ELFFilePath)
}

func cleanFlag(clean bool) string {
	if clean {
		return "clean"
	}
	return "naked"
}

func positionName(pos ast.CallPosition) string {
	switch pos {
	case ast.PositionBefore:
		return "before"
	case ast.PositionAfter:
		return "after"
	case ast.PositionReplace:
		return "replace"
	case ast.PositionConditional:
		return "conditional"
	case ast.PositionConditionalJump:
		return "conditional_jump"
	default:
		return "before"
	}
}

// firstPass linearly decodes the text region, matching (or, if any plugin
// wants notification, just recording) each instruction, per spec.md §4.I
// step 3.
func (p *Pipeline) firstPass(d *decoder.Decoder) error {
	needsNotify := p.opts.Plugins != nil && p.opts.Plugins.AnyNotifies()
	desyncSkipsRemaining := 0

	for !d.Done() {
		instr, err := d.Next()
		if err != nil {
			if !errors.Is(err, decoder.ErrDesync) {
				return err
			}
			if p.opts.SyncLimit <= 0 {
				return fmt.Errorf("decoder-error: %w", err)
			}
			desyncSkipsRemaining = p.opts.SyncLimit
			d.SkipOne()
			continue
		}

		if desyncSkipsRemaining > 0 {
			desyncSkipsRemaining--
			continue
		}

		loc := Location{Offset: instr.Offset, Size: instr.Size, Action: -1}
		if needsNotify {
			for _, pl := range p.opts.Plugins.All() {
				pl.NotifyInstr(plugin.Instr{Offset: instr.Offset, Address: instr.Address, Size: instr.Size, Bytes: instr.Bytes, Asm: instr.AsmText})
			}
		} else {
			idx, record, err := p.selectAction(instr)
			if err != nil {
				return err
			}
			loc.Patch = idx >= 0
			loc.Action = idx
			loc.CSVRecord = record
		}
		p.locations = append(p.locations, loc)
	}
	return nil
}

// secondPass re-decodes every recorded Location and re-evaluates the
// action table now that plugins have observed the full instruction stream,
// per spec.md §4.I step 4.
func (p *Pipeline) secondPass(d *decoder.Decoder) error {
	for i := range p.locations {
		instr, err := d.DecodeAt(p.locations[i].Offset)
		if err != nil {
			return err
		}
		idx, record, err := p.selectAction(instr)
		if err != nil {
			return err
		}
		p.locations[i].Patch = idx >= 0
		p.locations[i].Action = idx
		p.locations[i].CSVRecord = record
	}
	return nil
}

// selectAction evaluates the action table in declaration order and returns
// the first index whose match succeeds, or -1, per spec.md §8 property 1.
func (p *Pipeline) selectAction(instr decoder.Instruction) (int, []string, error) {
	fact := match.Fact{Instr: instr, RandomFunc: p.opts.RandomFunc}
	for i, action := range p.opts.Actions {
		ok, surfaced, err := match.EvaluateSurfaced(action.Match, fact)
		if err != nil {
			return -1, nil, fmt.Errorf("semantic-error: %w", err)
		}
		if ok {
			return i, firstRecord(surfaced), nil
		}
	}
	return -1, nil, nil
}

func firstRecord(surfaced map[string][]string) []string {
	for _, rec := range surfaced {
		return rec
	}
	return nil
}

