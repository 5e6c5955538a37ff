package pipeline

import (
	"fmt"

	"github.com/e9rw/e9rw/internal/frontend/ast"
	"github.com/e9rw/e9rw/internal/frontend/callargs"
	"github.com/e9rw/e9rw/internal/frontend/decoder"
	"github.com/e9rw/e9rw/internal/frontend/plugin"
)

// reverseEmission walks Locations from last to first; for each patched one
// it first defines every neighbor within the short-jump reachability
// window (idempotently), then emits the patch itself, per spec.md §4.I
// step 5 and the ordering invariant in §5.
func (p *Pipeline) reverseEmission(d *decoder.Decoder) error {
	for i := len(p.locations) - 1; i >= 0; i-- {
		loc := &p.locations[i]
		if !loc.Patch {
			continue
		}
		instr, err := d.DecodeAt(loc.Offset)
		if err != nil {
			return fmt.Errorf("decoder-error: re-decode at reverse emission: %w", err)
		}

		if err := p.defineWindow(d, i, instr.Address, +1); err != nil {
			return err
		}
		if err := p.defineWindow(d, i, instr.Address, -1); err != nil {
			return err
		}
		if err := p.define(d, i, instr); err != nil {
			return err
		}
		if err := p.emitPatch(instr, loc); err != nil {
			return err
		}
		loc.Patched = true
	}
	return nil
}

// defineWindow walks Locations from i in direction dir, sending an
// instruction-definition message for each one within the short-jump
// window, stopping as soon as a neighbor falls outside it.
func (p *Pipeline) defineWindow(d *decoder.Decoder, i int, centerVA int64, dir int) error {
	for j := i + dir; j >= 0 && j < len(p.locations); j += dir {
		neighborVA := int64(d.AddressForOffset(p.locations[j].Offset))
		delta := neighborVA - centerVA
		if delta < 0 {
			delta = -delta
		}
		if delta > shortJumpWindow {
			break
		}
		instr, err := d.DecodeAt(p.locations[j].Offset)
		if err != nil {
			return fmt.Errorf("decoder-error: re-decode neighbor at reverse emission: %w", err)
		}
		if err := p.define(d, j, instr); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) define(d *decoder.Decoder, idx int, instr decoder.Instruction) error {
	loc := &p.locations[idx]
	if loc.Emitted {
		return nil
	}
	if err := p.opts.Writer.Instruction(instr.Address, uint64(instr.Size), instr.Offset); err != nil {
		return fmt.Errorf("io-error: %w", err)
	}
	loc.Emitted = true
	return nil
}

func (p *Pipeline) emitPatch(instr decoder.Instruction, loc *Location) error {
	action := p.opts.Actions[loc.Action]

	if action.Kind == ast.ActionPlugin {
		return p.emitPluginPatch(action, instr)
	}

	name := builtinTrampolineName(action)
	var metadata []string
	if action.Kind == ast.ActionCall {
		values, err := p.opts.Args.Build(action, instr, loc.CSVRecord)
		if err != nil {
			return fmt.Errorf("semantic-error: %w", err)
		}
		metadata = renderMetadata(values)
	}
	if err := p.opts.Writer.Patch(name, instr.Offset, metadata); err != nil {
		return fmt.Errorf("io-error: %w", err)
	}
	return nil
}

func (p *Pipeline) emitPluginPatch(action *ast.Action, instr decoder.Instruction) error {
	if p.opts.Plugins == nil {
		return fmt.Errorf("plugin-error: action references plugin %q but no registry is configured", action.PluginBasename)
	}
	pl, err := p.opts.Plugins.Open(action.PluginBasename)
	if err != nil {
		return fmt.Errorf("plugin-error: %w", err)
	}
	if err := pl.RunPatch(plugin.Instr{Offset: instr.Offset, Address: instr.Address, Size: instr.Size, Bytes: instr.Bytes, Asm: instr.AsmText}); err != nil {
		return fmt.Errorf("plugin-error: %w", err)
	}
	return nil
}

func builtinTrampolineName(action *ast.Action) string {
	switch action.Kind {
	case ast.ActionPrint:
		return "print"
	case ast.ActionPassthru:
		return "passthru"
	case ast.ActionTrap:
		return "trap"
	case ast.ActionExit:
		return exitTrampolineName(action.ExitStatus)
	case ast.ActionCall:
		return CallTrampolineName(action)
	default:
		return ""
	}
}

func renderMetadata(values []callargs.Value) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if v.Pointer {
			out[i] = fmt.Sprintf("&op[%d].%d", v.OperandIndex, v.Field)
			continue
		}
		out[i] = fmt.Sprintf("%#x", v.Integer)
	}
	return out
}

// finalize invokes each plugin's fini callback and sends the closing emit
// message, per spec.md §4.I step 6.
func (p *Pipeline) finalize() error {
	if p.opts.Plugins != nil {
		for _, pl := range p.opts.Plugins.All() {
			pl.RunFini()
		}
	}
	if err := p.opts.Writer.Emit(p.opts.OutputPath, p.opts.OutputFormat); err != nil {
		return fmt.Errorf("io-error: %w", err)
	}
	return p.opts.Writer.Close()
}
