package cli

import (
	"fmt"

	"github.com/e9rw/e9rw/internal/frontend/ast"
	"github.com/e9rw/e9rw/internal/frontend/elfx"
	"github.com/e9rw/e9rw/internal/frontend/parser"
	"github.com/e9rw/e9rw/internal/frontend/rulesfile"
)

// Compile turns cfg's rules, rules-file, and trap/trap-all shorthands into
// the ordered action table the pipeline evaluates. Synthesized --trap /
// --trap-all actions are appended after the user's explicit rules so
// explicit rules keep first-match priority; a user who wrote something more
// specific for an address still wins over the blanket trap.
func Compile(cfg *Config, target *elfx.Reader, opts parser.Options) ([]*ast.Action, error) {
	doc := &rulesfile.Document{}
	for _, r := range cfg.Rules {
		doc.Rule = append(doc.Rule, rulesfile.Rule{Match: r.Matches, Action: r.Action})
	}
	actions, err := rulesfile.Compile(doc, opts)
	if err != nil {
		return nil, fmt.Errorf("parse-error: %w", err)
	}

	if cfg.RulesFile != "" {
		fileDoc, err := rulesfile.Load(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		fileActions, err := rulesfile.Compile(fileDoc, opts)
		if err != nil {
			return nil, fmt.Errorf("parse-error: %s: %w", cfg.RulesFile, err)
		}
		actions = append(actions, fileActions...)
	}

	trapActions, err := synthesizeTraps(cfg, target)
	if err != nil {
		return nil, err
	}
	actions = append(actions, trapActions...)

	return actions, nil
}

func synthesizeTraps(cfg *Config, target *elfx.Reader) ([]*ast.Action, error) {
	var actions []*ast.Action
	for _, spec := range cfg.TrapAddrs {
		addr, err := target.ResolveAddress(spec)
		if err != nil {
			return nil, fmt.Errorf("semantic-error: --trap %q: %w", spec, err)
		}
		match := ast.Leaf(&ast.MatchTest{
			Kind: ast.KindAddress,
			Cmp:  ast.CmpEq,
			RHS:  ast.Integer(int64(addr)),
		})
		actions = append(actions, &ast.Action{
			Descriptor: fmt.Sprintf("--trap %s", spec),
			Match:      match,
			Kind:       ast.ActionTrap,
		})
	}
	if cfg.TrapAll {
		actions = append(actions, &ast.Action{
			Descriptor: "--trap-all",
			Match:      ast.Leaf(&ast.MatchTest{Kind: ast.KindTrue, Cmp: ast.CmpNeqZero}),
			Kind:       ast.ActionTrap,
		})
	}
	return actions, nil
}
