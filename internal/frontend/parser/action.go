package parser

import (
	"fmt"
	"strings"

	"github.com/e9rw/e9rw/internal/frontend/ast"
	"github.com/e9rw/e9rw/internal/frontend/lexer"
	"github.com/e9rw/e9rw/internal/frontend/reg"
)

// ParseAction parses an action descriptor: trap, passthru, print,
// exit(status), plugin("name").patch(), or a call action, per spec.md
// §4.A's action grammar.
func ParseAction(src string, opts Options) (*ast.Action, error) {
	p, err := newParser(src, opts, ModeAction)
	if err != nil {
		return nil, err
	}
	action, err := p.parseActionDescriptor()
	if err != nil {
		return nil, err
	}
	if p.cur.Kind != lexer.TokenEOF {
		return nil, p.errorf("end of action descriptor")
	}
	action.Descriptor = src
	return action, nil
}

func (p *parser) parseActionDescriptor() (*ast.Action, error) {
	switch {
	case p.isIdent("trap"):
		p.advance() //nolint:errcheck // advance() only fails on lexer scan errors, impossible after a consumed ident
		return &ast.Action{Kind: ast.ActionTrap}, nil
	case p.isIdent("passthru"):
		p.advance() //nolint:errcheck
		return &ast.Action{Kind: ast.ActionPassthru}, nil
	case p.isIdent("print"):
		p.advance() //nolint:errcheck
		return &ast.Action{Kind: ast.ActionPrint}, nil
	case p.isIdent("exit"):
		return p.parseExitAction()
	case p.isIdent("plugin"):
		return p.parsePluginAction()
	case p.isIdent("call"):
		return p.parseCallAction()
	default:
		return nil, p.errorf("trap, passthru, print, exit, plugin, or call")
	}
}

func (p *parser) parseExitAction() (*ast.Action, error) {
	if err := p.advance(); err != nil { // consume 'exit'
		return nil, err
	}
	if _, err := p.expect(lexer.TokenLParen, "'(' after exit"); err != nil {
		return nil, err
	}
	status, err := p.expect(lexer.TokenInt, "an exit status 0..255")
	if err != nil {
		return nil, err
	}
	if status.Int < 0 || status.Int > 255 {
		return nil, p.errorf("an exit status in range 0..255")
	}
	if _, err := p.expect(lexer.TokenRParen, "')'"); err != nil {
		return nil, err
	}
	return &ast.Action{Kind: ast.ActionExit, ExitStatus: int(status.Int)}, nil
}

func (p *parser) parsePluginAction() (*ast.Action, error) {
	if err := p.advance(); err != nil { // consume 'plugin'
		return nil, err
	}
	if _, err := p.expect(lexer.TokenLParen, "'(' after plugin"); err != nil {
		return nil, err
	}
	name, err := p.expect(lexer.TokenString, "a plugin basename string")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenRParen, "')'"); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenDot, "'.patch()'"); err != nil {
		return nil, err
	}
	if !p.isIdent("patch") {
		return nil, p.errorf("'patch'")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenLParen, "'('"); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenRParen, "')'"); err != nil {
		return nil, err
	}

	action := &ast.Action{Kind: ast.ActionPlugin, PluginBasename: name.Text}
	if p.opts.OpenPlugin != nil {
		if _, err := p.opts.OpenPlugin(name.Text); err != nil {
			return nil, fmt.Errorf("open plugin %q: %w", name.Text, err)
		}
	}
	return action, nil
}

var callAttrKeywords = map[string]func(*ast.Action){
	"before":      func(a *ast.Action) { a.Position = ast.PositionBefore },
	"after":       func(a *ast.Action) { a.Position = ast.PositionAfter },
	"replace":     func(a *ast.Action) { a.Position = ast.PositionReplace },
	"conditional": func(a *ast.Action) { a.Position = ast.PositionConditional },
	"clean":       func(a *ast.Action) { a.Clean = true },
	"naked":       func(a *ast.Action) { a.Clean = false },
}

func (p *parser) parseCallAction() (*ast.Action, error) {
	if err := p.advance(); err != nil { // consume 'call'
		return nil, err
	}
	action := &ast.Action{Kind: ast.ActionCall, Clean: true, Position: ast.PositionBefore}

	if p.cur.Kind == lexer.TokenLBracket {
		if err := p.parseCallAttrs(action); err != nil {
			return nil, err
		}
	}

	sym, err := p.expect(lexer.TokenIdent, "a call target symbol name")
	if err != nil {
		return nil, err
	}
	action.Name = sym.Text
	action.EntrySymbol = sym.Text

	if _, err := p.expect(lexer.TokenLParen, "'(' after call target"); err != nil {
		return nil, err
	}
	if p.cur.Kind != lexer.TokenRParen {
		args, err := p.parseCallArgs()
		if err != nil {
			return nil, err
		}
		action.Args = args
	}
	if _, err := p.expect(lexer.TokenRParen, "')'"); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenAt, "'@' followed by the ELF file path"); err != nil {
		return nil, err
	}
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	action.ELFFilePath = path
	return action, nil
}

// parsePath consumes a bare, unquoted filesystem path: a run of identifier
// and dot tokens ended by any other token, since file paths (e.g.
// libhook.so) are not legal single identifiers.
func (p *parser) parsePath() (string, error) {
	var b strings.Builder
	for {
		switch p.cur.Kind {
		case lexer.TokenIdent, lexer.TokenDot:
			b.WriteString(p.cur.Text)
			if err := p.advance(); err != nil {
				return "", err
			}
		default:
			if b.Len() == 0 {
				return "", p.errorf("a file path")
			}
			return b.String(), nil
		}
	}
}

func (p *parser) parseCallAttrs(action *ast.Action) error {
	if err := p.advance(); err != nil { // consume '['
		return err
	}
	for {
		if p.cur.Kind != lexer.TokenIdent {
			return p.errorf("a call attribute keyword")
		}
		name := strings.ToLower(p.cur.Text)
		if err := p.advance(); err != nil {
			return err
		}
		if name == "conditional" && p.cur.Kind == lexer.TokenDot {
			if err := p.advance(); err != nil {
				return err
			}
			if !p.isIdent("jump") {
				return p.errorf("'jump' after 'conditional.'")
			}
			if err := p.advance(); err != nil {
				return err
			}
			action.Position = ast.PositionConditionalJump
		} else {
			apply, ok := callAttrKeywords[name]
			if !ok {
				return p.errorf("before, after, replace, conditional, conditional.jump, clean, or naked")
			}
			apply(action)
		}
		if p.cur.Kind == lexer.TokenComma {
			if err := p.advance(); err != nil {
				return err
			}
			continue
		}
		break
	}
	_, err := p.expect(lexer.TokenRBracket, "']'")
	return err
}

var callArgKeywords = map[string]ast.ArgKind{
	"addr": ast.ArgAddr, "base": ast.ArgBase, "dst": ast.ArgDst, "id": ast.ArgID,
	"imm": ast.ArgImm, "instr": ast.ArgInstr, "mem": ast.ArgMem,
	"mem8": ast.ArgMem8, "mem16": ast.ArgMem16, "mem32": ast.ArgMem32, "mem64": ast.ArgMem64,
	"next": ast.ArgNext, "offset": ast.ArgOffset, "op": ast.ArgOp, "random": ast.ArgRandom,
	"reg": ast.ArgReg, "size": ast.ArgSize, "state": ast.ArgState,
	"static_addr": ast.ArgStaticAddr, "src": ast.ArgSrc, "target": ast.ArgTarget,
	"trampoline": ast.ArgTrampoline, "asm": ast.ArgAsm, "asm_len": ast.ArgAsmLen,
	"asm_size": ast.ArgAsmSize,
}

// operandProjectionArgs accept an operand index and field; pass-by-pointer
// on these is restricted to .base/.index per spec.md §4.A.
var operandProjectionArgs = map[ast.ArgKind]bool{
	ast.ArgOp: true, ast.ArgSrc: true, ast.ArgDst: true,
	ast.ArgImm: true, ast.ArgReg: true, ast.ArgMem: true,
}

// memSizeArgs are the literal-memory-operand keywords: each takes a
// standalone "<seg:disp(base,index,scale)>" descriptor rather than
// projecting off the matched instruction's operands.
var memSizeArgs = map[ast.ArgKind]bool{
	ast.ArgMem8: true, ast.ArgMem16: true, ast.ArgMem32: true, ast.ArgMem64: true,
}

func (p *parser) parseCallArgs() ([]ast.Argument, error) {
	var args []ast.Argument
	seen := map[ast.ArgKind]bool{}
	for {
		arg, err := p.parseCallArg()
		if err != nil {
			return nil, err
		}
		arg.Duplicate = seen[arg.Kind]
		seen[arg.Kind] = true
		args = append(args, arg)
		if p.cur.Kind == lexer.TokenComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return args, nil
}

func (p *parser) parseCallArg() (ast.Argument, error) {
	var arg ast.Argument
	if p.cur.Kind == lexer.TokenAmp {
		arg.PassByPointer = true
		if err := p.advance(); err != nil {
			return arg, err
		}
	}

	switch {
	case p.cur.Kind == lexer.TokenInt:
		arg.Kind = ast.ArgIntegerLiteral
		arg.IntegerValue = p.cur.Int
		return arg, p.advance()

	case p.cur.Kind == lexer.TokenString:
		arg.Kind = ast.ArgUserCSV
		arg.Name = p.cur.Text
		return arg, p.advance()

	case p.cur.Kind == lexer.TokenIdent:
		name := strings.ToLower(p.cur.Text)
		if kind, ok := callArgKeywords[name]; ok {
			if err := p.advance(); err != nil {
				return arg, err
			}
			arg.Kind = kind
			if memSizeArgs[kind] {
				memop, err := p.parseMemoryOperandLiteral()
				if err != nil {
					return arg, err
				}
				arg.MemoryOperand = memop
				return arg, nil
			}
			if operandProjectionArgs[kind] {
				if err := p.parseArgProjection(&arg); err != nil {
					return arg, err
				}
			}
			if arg.PassByPointer && operandProjectionArgs[kind] &&
				arg.Field != ast.FieldBase && arg.Field != ast.FieldIndex {
				return arg, p.errorf("'&' is only valid on .base or .index operand projections")
			}
			return arg, nil
		}
		arg.Kind = ast.ArgSymbol
		arg.Name = p.cur.Text
		return arg, p.advance()

	default:
		return arg, p.errorf("a call argument")
	}
}

// parseMemoryOperandLiteral parses a standalone "<[seg:]disp(base,index,scale)>"
// memory-operand descriptor following a mem8/16/32/64 keyword: every piece
// past the '<' is optional, following the original matcher's parseMemOp.
func (p *parser) parseMemoryOperandLiteral() (*ast.MemoryOperand, error) {
	prevMode := p.mode
	p.mode = ModeMemoryOperand
	defer func() { p.mode = prevMode }()

	if _, err := p.expect(lexer.TokenLt, "'<'"); err != nil {
		return nil, err
	}

	memop := &ast.MemoryOperand{Scale: 1}

	if p.cur.Kind == lexer.TokenIdent {
		r, ok := reg.Lookup(p.cur.Text)
		if !ok {
			return nil, p.errorf("a segment register")
		}
		memop.Seg = r
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenColon, "':' after segment register"); err != nil {
			return nil, err
		}
	}

	if p.cur.Kind == lexer.TokenInt {
		memop.Disp = p.cur.Int
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	if p.cur.Kind == lexer.TokenLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}

		if p.cur.Kind != lexer.TokenComma && p.cur.Kind != lexer.TokenRParen {
			r, ok := reg.Lookup(p.cur.Text)
			if p.cur.Kind != lexer.TokenIdent || !ok {
				return nil, p.errorf("a base register")
			}
			memop.Base = r
			if err := p.advance(); err != nil {
				return nil, err
			}
		}

		if p.cur.Kind != lexer.TokenRParen {
			if _, err := p.expect(lexer.TokenComma, "','"); err != nil {
				return nil, err
			}

			if p.cur.Kind != lexer.TokenComma && p.cur.Kind != lexer.TokenRParen {
				r, ok := reg.Lookup(p.cur.Text)
				if p.cur.Kind != lexer.TokenIdent || !ok {
					return nil, p.errorf("an index register")
				}
				memop.Index = r
				if err := p.advance(); err != nil {
					return nil, err
				}
			}

			if p.cur.Kind != lexer.TokenRParen {
				if _, err := p.expect(lexer.TokenComma, "','"); err != nil {
					return nil, err
				}
				scale, err := p.expect(lexer.TokenInt, "a scale integer")
				if err != nil {
					return nil, err
				}
				memop.Scale = scale.Int
			}
		}

		if _, err := p.expect(lexer.TokenRParen, "')'"); err != nil {
			return nil, err
		}
	}

	if _, err := p.expect(lexer.TokenGt, "'>'"); err != nil {
		return nil, err
	}
	return memop, nil
}

func (p *parser) parseArgProjection(arg *ast.Argument) error {
	if p.cur.Kind == lexer.TokenLBracket {
		if err := p.advance(); err != nil {
			return err
		}
		idx, err := p.expect(lexer.TokenInt, "an operand index 0..7")
		if err != nil {
			return err
		}
		if idx.Int < 0 || idx.Int > 7 {
			return p.errorf("an operand index in range 0..7")
		}
		arg.MemoryOperandIndex = int(idx.Int)
		if _, err := p.expect(lexer.TokenRBracket, "']'"); err != nil {
			return err
		}
	}
	if p.cur.Kind == lexer.TokenDot {
		if err := p.advance(); err != nil {
			return err
		}
		if p.cur.Kind != lexer.TokenIdent {
			return p.errorf("a field name")
		}
		field, ok := fieldKeywords[strings.ToLower(p.cur.Text)]
		if !ok {
			return p.errorf("a field name")
		}
		arg.Field = field
		if err := p.advance(); err != nil {
			return err
		}
	}
	return nil
}
