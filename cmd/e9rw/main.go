// Command e9rw compiles match/action rules against an x86-64 ELF binary and
// drives a separate patch backend through the rewrite pipeline, following
// the same "parse flags, wire collaborators, run, map errors to an exit
// code" shape as the teacher's cmd/runner/main.go.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/e9rw/e9rw/internal/frontend/ast"
	"github.com/e9rw/e9rw/internal/frontend/callargs"
	"github.com/e9rw/e9rw/internal/frontend/cli"
	"github.com/e9rw/e9rw/internal/frontend/csvidx"
	"github.com/e9rw/e9rw/internal/frontend/decoder"
	"github.com/e9rw/e9rw/internal/frontend/elfx"
	"github.com/e9rw/e9rw/internal/frontend/parser"
	"github.com/e9rw/e9rw/internal/frontend/pipeline"
	"github.com/e9rw/e9rw/internal/frontend/plugin"
	"github.com/e9rw/e9rw/internal/frontend/rpc"
	"github.com/e9rw/e9rw/internal/logging"
	rwerrors "github.com/e9rw/e9rw/internal/runner/errors"
	"github.com/e9rw/e9rw/internal/terminal"
)

func main() {
	cfg, err := cli.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, cli.Usage())
		os.Exit(2)
	}
	if cfg.Help {
		fmt.Print(cli.Usage())
		return
	}

	setupLogging(cfg)

	if err := run(cfg); err != nil {
		classified := classify(err)
		rwerrors.LogClassifiedError(classified)
		os.Exit(exitCode(classified))
	}
}

// setupLogging wires slog the way the teacher's runner wires it: a
// non-interactive text handler always attached, plus a coloured
// InteractiveHandler layered on top when stderr is a terminal and --debug
// is set.
func setupLogging(cfg *cli.Config) {
	caps := terminal.NewCapabilities(os.Stderr)
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	handlers := []slog.Handler{}
	textHandler, err := logging.NewConditionalTextHandler(logging.ConditionalTextHandlerOptions{
		Capabilities:       caps,
		Writer:             os.Stderr,
		TextHandlerOptions: &slog.HandlerOptions{Level: level},
	})
	if err == nil {
		handlers = append(handlers, textHandler)
	}

	if cfg.Debug && caps.IsInteractive() {
		interactive, err := logging.NewInteractiveHandler(logging.InteractiveHandlerOptions{
			Level:        level,
			Writer:       os.Stderr,
			Capabilities: caps,
			Formatter:    logging.NewDefaultMessageFormatter(),
			LineTracker:  logging.NewDefaultLogLineTracker(),
		})
		if err == nil {
			handlers = append(handlers, interactive)
		}
	}

	if len(handlers) == 0 {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return
	}
	slog.SetDefault(slog.New(logging.NewMultiHandler(handlers...)))
}

func run(cfg *cli.Config) error {
	target, err := elfx.Open(cfg.InputFile)
	if err != nil {
		return fmt.Errorf("elf-error: %w", err)
	}
	defer target.Close()

	textOffset, textVA, textSize := target.TextBounds()
	code, err := target.TextBytes()
	if err != nil {
		return fmt.Errorf("elf-error: %w", err)
	}

	startOff, endOff, err := narrowRegion(cfg, target, textOffset, textVA, textSize)
	if err != nil {
		return err
	}
	code = code[startOff:endOff]
	textOffset += startOff
	textVA += startOff

	registry := plugin.NewRegistry()
	loader := csvidx.NewLoader(filepath.Dir(cfg.InputFile))
	warn := func(msg string) {
		if !cfg.NoWarnings {
			slog.Warn(msg)
		}
	}
	opts := parser.Options{
		LoadCSV: loader.Build,
		OpenPlugin: func(basename string) (ast.PluginHandle, error) {
			p, err := registry.Open(basename)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		ResolveSymbol: target.ResolveSymbolic,
		Warn:          warn,
	}

	slog.Info(logging.RuleCompileStartTemplate)
	actions, err := cli.Compile(cfg, target, opts)
	if err != nil {
		slog.Error(logging.RuleCompileFailedTemplate, "error", err)
		return err
	}
	slog.Info(logging.RuleCompileDoneTemplate, "count", len(actions))

	optLevel, err := rpc.LookupOptLevel(cfg.OptLevel)
	if err != nil {
		return fmt.Errorf("parse-error: %w", err)
	}

	backendCmd, backendStdin, err := spawnBackend(cfg.Backend)
	if err != nil {
		return fmt.Errorf("io-error: %w", err)
	}
	writer := rpc.NewWriter(backendStdin)

	elfCache := map[string]*callargs.LoadedTarget{}
	nextLoadBase := uint64(0)
	rng := rand.New(rand.NewSource(0xe9e9e9e9))
	builder := &callargs.Builder{
		Random: rng.Int63,
		ResolveSymbol: func(elfPath, symbol string) (uint64, bool) {
			loaded, ok := elfCache[elfPath]
			if !ok {
				reader, err := elfx.Open(elfPath)
				if err != nil {
					return 0, false
				}
				nextLoadBase = callargs.AssignLoadBase(nextLoadBase)
				loaded = &callargs.LoadedTarget{Reader: reader, LoadBase: nextLoadBase}
				elfCache[elfPath] = loaded
				nextLoadBase += 0x1000
			}
			addr, ok := loaded.Reader.LookupSymbol(symbol)
			if !ok {
				return 0, false
			}
			return loaded.LoadBase + addr, true
		},
	}

	pipe := pipeline.New(pipeline.Options{
		Actions:      actions,
		Plugins:      registry,
		Writer:       writer,
		Args:         builder,
		SyncLimit:    cfg.Sync,
		RandomFunc:   builder.Random,
		Mode:         rpc.Mode(elfx.DetectMode(cfg.Executable, cfg.Shared, filepath.Base(cfg.Output))),
		BinaryPath:   cfg.InputFile,
		OutputPath:   cfg.Output,
		OutputFormat: rpc.Format(cfg.Format),
		OptLevel:     optLevel,
	})

	slog.Info(logging.PassOneStartTemplate)
	d := decoder.New(code, textOffset, textVA)
	if err := pipe.Run(d); err != nil {
		_ = backendStdin.Close()
		_ = backendCmd.Wait()
		return err
	}
	slog.Info(logging.EmissionDoneTemplate)

	if err := backendCmd.Wait(); err != nil {
		return fmt.Errorf("io-error: backend exited: %w", err)
	}
	return nil
}

// narrowRegion resolves --start/--end to file offsets within the text
// section, defaulting to the full section when unset.
func narrowRegion(cfg *cli.Config, target *elfx.Reader, textOffset, textVA, textSize uint64) (start, end uint64, err error) {
	start, end = 0, textSize
	if cfg.Start != "" {
		addr, err := target.ResolveAddress(cfg.Start)
		if err != nil {
			return 0, 0, fmt.Errorf("semantic-error: --start %q: %w", cfg.Start, err)
		}
		start = addr - textVA
	}
	if cfg.End != "" {
		addr, err := target.ResolveAddress(cfg.End)
		if err != nil {
			return 0, 0, fmt.Errorf("semantic-error: --end %q: %w", cfg.End, err)
		}
		end = addr - textVA
	}
	if start > end || end > textSize {
		return 0, 0, fmt.Errorf("semantic-error: --start/--end region [%#x,%#x) outside .text (size %#x)", start, end, textSize)
	}
	return start, end, nil
}

// spawnBackend starts the patch backend and returns its stdin pipe for the
// rpc.Writer to speak the line protocol over.
func spawnBackend(path string) (*exec.Cmd, io.WriteCloser, error) {
	cmd := exec.Command(path)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	return cmd, stdin, nil
}

// classify maps an error returned from run into the frontend's taxonomy by
// the "type-error:" prefix every fallible phase attaches to its errors, per
// spec.md §7's "single human-readable message keyed on the parse mode or
// pipeline phase" policy.
func classify(err error) *rwerrors.ClassifiedError {
	msg := err.Error()
	prefixes := []struct {
		prefix string
		typ    rwerrors.ErrorType
	}{
		{"parse-error:", rwerrors.ErrorTypeParse},
		{"io-error:", rwerrors.ErrorTypeIO},
		{"elf-error:", rwerrors.ErrorTypeELF},
		{"decoder-error:", rwerrors.ErrorTypeDecoder},
		{"semantic-error:", rwerrors.ErrorTypeSemantic},
		{"plugin-error:", rwerrors.ErrorTypePlugin},
		{"limit-error:", rwerrors.ErrorTypeLimit},
	}
	for _, p := range prefixes {
		if strings.HasPrefix(msg, p.prefix) {
			return rwerrors.Fatal(p.typ, msg, "pipeline", err)
		}
	}
	return rwerrors.Fatal(rwerrors.ErrorTypeIO, msg, "pipeline", err)
}

// exitCode maps a classified error's type to a process exit status: every
// fatal error is non-zero, with the taxonomy split across small distinct
// codes so scripts driving e9rw can distinguish a bad rule from a backend
// failure without parsing stderr.
func exitCode(ce *rwerrors.ClassifiedError) int {
	switch ce.Type {
	case rwerrors.ErrorTypeParse:
		return 2
	case rwerrors.ErrorTypeIO:
		return 3
	case rwerrors.ErrorTypeELF:
		return 4
	case rwerrors.ErrorTypeDecoder:
		return 5
	case rwerrors.ErrorTypeSemantic:
		return 6
	case rwerrors.ErrorTypePlugin:
		return 7
	case rwerrors.ErrorTypeLimit:
		return 8
	default:
		return 1
	}
}
