// Package rulesfile loads batches of match/action rules from a TOML
// document, an alternative to specifying every -M/-A pair on the command
// line. It is a supplemented feature: e9tool itself only takes rules from
// argv, but a config-driven batch mode is the natural idiomatic-Go way to
// avoid an unbounded argv for large rule sets, and go-toml/v2 is already
// part of the corpus's configuration-loading stack.
package rulesfile

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/e9rw/e9rw/internal/frontend/ast"
	"github.com/e9rw/e9rw/internal/frontend/parser"
)

// Document is the TOML shape: a top-level table of options plus a list of
// [[rule]] tables, each pairing one or more match expressions with one
// action descriptor, evaluated in file order (matching the CLI's -M...-A
// pairing semantics).
type Document struct {
	Option []string `toml:"option"`
	Rule   []Rule   `toml:"rule"`
}

// Rule is one [[rule]] table entry.
type Rule struct {
	Match  []string `toml:"match"`
	Action string   `toml:"action"`
}

// Load parses path as a rules TOML document.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("io-error: read rules file %q: %w", path, err)
	}
	var doc Document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse-error: parse rules file %q: %w", path, err)
	}
	return &doc, nil
}

// Compile parses every rule's match expressions (ANDed together when a
// rule lists more than one, matching -M...-M...-A) and action descriptor
// using opts, returning the compiled action table in file order.
func Compile(doc *Document, opts parser.Options) ([]*ast.Action, error) {
	actions := make([]*ast.Action, 0, len(doc.Rule))
	for i, rule := range doc.Rule {
		if len(rule.Match) == 0 {
			return nil, fmt.Errorf("parse-error: rule %d has no match expression", i)
		}
		expr, err := parser.ParseMatchExpr(rule.Match[0], opts)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		for _, extra := range rule.Match[1:] {
			more, err := parser.ParseMatchExpr(extra, opts)
			if err != nil {
				return nil, fmt.Errorf("rule %d: %w", i, err)
			}
			expr = ast.And(expr, more)
		}

		action, err := parser.ParseAction(rule.Action, opts)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		action.Match = expr
		actions = append(actions, action)
	}
	return actions, nil
}
