// Package cli parses and validates the frontend's command-line surface,
// following the structuring the teacher's internal/runner/cli package uses
// for option parsing and validation: a Config value produced by ParseFlags,
// validated separately from parsing, and consumed by the rest of the
// program rather than read back out of the flag package's globals.
package cli

import (
	"flag"
	"fmt"
	"strings"
)

// RuleSpec is one -M...-M -A pairing collected in command-line order: the
// match clauses (ANDed) that precede the -A that terminates them.
type RuleSpec struct {
	Matches []string
	Action  string
}

// Config holds every option in spec.md §6's CLI surface plus the
// rules-file/trap synthesis supplements.
type Config struct {
	Rules     []RuleSpec
	RulesFile string

	TrapAddrs []string
	TrapAll   bool

	Backend      string
	Compression  int
	Debug        bool
	Start        string
	End          string
	Executable   bool
	Shared       bool
	Format       string
	NoWarnings   bool
	Options      []string
	Output       string
	StaticLoader bool
	Sync         int
	Syntax       string
	OptLevel     string
	Help         bool

	InputFile string
}

// defaults matches spec.md §6's stated defaults.
func defaults() *Config {
	return &Config{
		Backend:     "e9patch",
		Compression: 9,
		Format:      "binary",
		Output:      "a.out",
		Syntax:      "ATT",
		OptLevel:    "1",
	}
}

var validFormats = map[string]bool{
	"binary": true, "json": true, "patch": true,
	"patch.gz": true, "patch.bz2": true, "patch.xz": true,
}

var validSyntax = map[string]bool{"ATT": true, "intel": true}

var validOptLevels = map[string]bool{"0": true, "1": true, "2": true, "3": true, "s": true}

// ParseFlags parses args (excluding the program name) into a Config,
// building the flag set fresh each call rather than mutating the package
// global flag.CommandLine, so repeated calls (as in tests) never leak state
// across each other.
func ParseFlags(args []string) (*Config, error) {
	cfg := defaults()
	fs := flag.NewFlagSet("e9rw", flag.ContinueOnError)

	var pendingMatches []string

	matchFn := func(s string) error {
		pendingMatches = append(pendingMatches, s)
		return nil
	}
	actionFn := func(s string) error {
		if len(pendingMatches) == 0 {
			return fmt.Errorf("-A/--action %q has no preceding -M/--match", s)
		}
		cfg.Rules = append(cfg.Rules, RuleSpec{Matches: pendingMatches, Action: s})
		pendingMatches = nil
		return nil
	}
	fs.Func("M", "match expression, one or more before each -A", matchFn)
	fs.Func("match", "match expression, one or more before each -A", matchFn)
	fs.Func("A", "action for the preceding -M clause(s)", actionFn)
	fs.Func("action", "action for the preceding -M clause(s)", actionFn)

	trapFn := func(s string) error {
		cfg.TrapAddrs = append(cfg.TrapAddrs, s)
		return nil
	}
	fs.Func("trap", "synthesize a trap action at the given address (repeatable)", trapFn)
	fs.BoolVar(&cfg.TrapAll, "trap-all", false, "synthesize a trap action at every instruction")

	optionFn := func(s string) error {
		cfg.Options = append(cfg.Options, s)
		return nil
	}
	fs.Func("option", "opaque backend option (repeatable)", optionFn)

	fs.StringVar(&cfg.RulesFile, "rules-file", "", "load batch rules from a TOML file")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "path to the rewrite backend executable")
	fs.IntVar(&cfg.Compression, "c", cfg.Compression, "compression level 0..9")
	fs.IntVar(&cfg.Compression, "compression", cfg.Compression, "compression level 0..9")
	fs.BoolVar(&cfg.Debug, "debug", false, "enable coloured interactive diagnostics")
	fs.StringVar(&cfg.Start, "start", "", "text-region start address or symbol")
	fs.StringVar(&cfg.End, "end", "", "text-region end address or symbol")
	fs.BoolVar(&cfg.Executable, "executable", false, "target is an executable")
	fs.BoolVar(&cfg.Shared, "shared", false, "target is a shared object")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "output format")
	fs.BoolVar(&cfg.Help, "h", false, "show usage")
	fs.BoolVar(&cfg.Help, "help", false, "show usage")
	fs.BoolVar(&cfg.NoWarnings, "no-warnings", false, "suppress warning diagnostics")
	fs.StringVar(&cfg.Output, "o", cfg.Output, "output path")
	fs.StringVar(&cfg.Output, "output", cfg.Output, "output path")
	fs.BoolVar(&cfg.StaticLoader, "s", false, "use the static loader")
	fs.BoolVar(&cfg.StaticLoader, "static-loader", false, "use the static loader")
	fs.IntVar(&cfg.Sync, "sync", 0, "desync recovery instruction budget, 0..1000")
	fs.StringVar(&cfg.Syntax, "syntax", cfg.Syntax, "assembly syntax: ATT or intel")

	for _, level := range []string{"0", "1", "2", "3", "s"} {
		level := level
		fs.BoolFunc("O"+level, "optimization level "+level, func(string) error {
			cfg.OptLevel = level
			return nil
		})
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.Help {
		return cfg, nil
	}
	if len(pendingMatches) > 0 {
		return nil, fmt.Errorf("dangling -M/--match clause(s) with no terminating -A/--action: %s", strings.Join(pendingMatches, ", "))
	}

	rest := fs.Args()
	if len(rest) != 1 {
		return nil, fmt.Errorf("expected exactly one input file, got %d", len(rest))
	}
	cfg.InputFile = rest[0]

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Compression < 0 || cfg.Compression > 9 {
		return fmt.Errorf("--compression must be 0..9, got %d", cfg.Compression)
	}
	if cfg.Sync < 0 || cfg.Sync > 1000 {
		return fmt.Errorf("--sync must be 0..1000, got %d", cfg.Sync)
	}
	if !validFormats[cfg.Format] {
		return fmt.Errorf("--format %q is not one of binary, json, patch, patch.gz, patch.bz2, patch.xz", cfg.Format)
	}
	if !validSyntax[cfg.Syntax] {
		return fmt.Errorf("--syntax %q is not one of ATT, intel", cfg.Syntax)
	}
	if !validOptLevels[cfg.OptLevel] {
		return fmt.Errorf("optimization level %q is not one of 0,1,2,3,s", cfg.OptLevel)
	}
	return nil
}

// Usage returns the help text printed for --help/-h.
func Usage() string {
	var b strings.Builder
	b.WriteString("usage: e9rw [options] input-file\n\n")
	b.WriteString("  -M, --match EXPR       match expression (one or more before each -A)\n")
	b.WriteString("  -A, --action DESC      action for the preceding -M clause(s)\n")
	b.WriteString("  --rules-file PATH      load batch rules from a TOML file\n")
	b.WriteString("  --trap ADDR            synthesize a trap action at ADDR (repeatable)\n")
	b.WriteString("  --trap-all             synthesize a trap action at every instruction\n")
	b.WriteString("  --backend PATH         rewrite backend executable\n")
	b.WriteString("  -c, --compression N    compression level 0..9 (default 9)\n")
	b.WriteString("  --debug                coloured interactive diagnostics\n")
	b.WriteString("  --start, --end ADDR    narrow the rewritten text region\n")
	b.WriteString("  --executable, --shared override the target-mode heuristic\n")
	b.WriteString("  --format FMT           binary|json|patch[.gz|.bz2|.xz] (default binary)\n")
	b.WriteString("  --no-warnings          suppress warning diagnostics\n")
	b.WriteString("  --option OPT           opaque backend option (repeatable)\n")
	b.WriteString("  -o, --output PATH      output path (default a.out)\n")
	b.WriteString("  -s, --static-loader    use the static loader\n")
	b.WriteString("  --sync N               desync recovery budget, 0..1000\n")
	b.WriteString("  --syntax ATT|intel     assembly syntax (default ATT)\n")
	b.WriteString("  -O0|-O1|-O2|-O3|-Os    optimization level (default -O1)\n")
	b.WriteString("  -h, --help             show this message\n")
	return b.String()
}
