// Package plugin implements the frontend's plugin ABI: dynamically loaded
// shared objects exposing up to five versioned entry points that observe
// and advise instruction selection. Loading uses the standard library's
// plugin.Open the way a Go program consumes any Go-plugin shared object;
// canonical-path de-duplication is grounded on the teacher's safefileio
// preference for resolving symlinks before treating two paths as distinct
// resources.
package plugin

import (
	"errors"
	"fmt"
	"path/filepath"
	goplugin "plugin"

	"golang.org/x/sys/unix"

	"github.com/e9rw/e9rw/internal/frontend/ast"
)

// ErrNoEntryPoints indicates a shared object exports none of the five
// recognised plugin symbols.
var ErrNoEntryPoints = errors.New("plugin exports no e9rw entry points")

// Instr is the read-only instruction snapshot passed to plugin callbacks.
// It intentionally does not expose the full decoder facts a match test can
// see: plugins observe and advise, they do not re-run the match engine.
type Instr struct {
	Offset  uint64
	Address uint64
	Size    int
	Bytes   []byte
	Asm     string
}

// InitFunc is called once before disassembly begins and returns an opaque
// context the plugin owns for the lifetime of the run.
type InitFunc func() (interface{}, error)

// InstrFunc is called once per instruction during the first pass, only if
// this plugin (or another) requested notification.
type InstrFunc func(instr Instr, ctx interface{})

// MatchFunc is called before each `plugin`-kind leaf test referencing this
// plugin and returns the integer the leaf test compares against.
type MatchFunc func(instr Instr, ctx interface{}) (int64, error)

// PatchFunc is invoked in place of the built-in patch-message construction
// for a `plugin`-kind action.
type PatchFunc func(instr Instr, ctx interface{}) error

// FiniFunc is called once after emission completes.
type FiniFunc func(ctx interface{})

// Plugin is a loaded shared object and the subset of its five entry points
// that it actually exports; nil fields mean "not exported" per spec.md's
// "absence is none, not a null pointer" note.
type Plugin struct {
	path string

	InitFn  InitFunc
	InstrFn InstrFunc
	MatchFn MatchFunc
	PatchFn PatchFunc
	FiniFn  FiniFunc

	context interface{}
	result  int64
}

// Path returns the plugin's canonical file path. Implements ast.PluginHandle.
func (p *Plugin) Path() string { return p.path }

// Notifies reports whether this plugin subscribed to per-instruction
// notification, which forces the pipeline into its second disassembly pass.
func (p *Plugin) Notifies() bool { return p.InstrFn != nil }

// RunInit invokes InitFn if present and stores the returned context.
func (p *Plugin) RunInit() error {
	if p.InitFn == nil {
		return nil
	}
	ctx, err := p.InitFn()
	if err != nil {
		return fmt.Errorf("plugin %s: init: %w", p.path, err)
	}
	p.context = ctx
	return nil
}

// RunFini invokes FiniFn if present.
func (p *Plugin) RunFini() {
	if p.FiniFn != nil {
		p.FiniFn(p.context)
	}
}

// NotifyInstr invokes InstrFn if present.
func (p *Plugin) NotifyInstr(instr Instr) {
	if p.InstrFn != nil {
		p.InstrFn(instr, p.context)
	}
}

// Match invokes MatchFn, caching the result on the receiver so later reads
// within the same instruction see the same value. Implements
// ast.PluginHandle.
func (p *Plugin) Match(input ast.PluginMatchInput) (int64, error) {
	if p.MatchFn == nil {
		return p.result, nil
	}
	v, err := p.MatchFn(Instr{Offset: input.Offset, Address: input.Address}, p.context)
	if err != nil {
		return 0, fmt.Errorf("plugin %s: match: %w", p.path, err)
	}
	p.result = v
	return v, nil
}

// RunPatch invokes PatchFn for a plugin-kind action.
func (p *Plugin) RunPatch(instr Instr) error {
	if p.PatchFn == nil {
		return nil
	}
	if err := p.PatchFn(instr, p.context); err != nil {
		return fmt.Errorf("plugin %s: patch: %w", p.path, err)
	}
	return nil
}

// Registry de-duplicates plugins by canonical file path, matching spec.md
// 4.G's "resolution: by file path (canonicalized); duplicates are
// coalesced" rule. It also records deterministic insertion order for the
// scheduling guarantee in spec.md §5.
type Registry struct {
	byPath map[string]*Plugin
	order  []*Plugin
}

// NewRegistry returns an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{byPath: make(map[string]*Plugin)}
}

// Open loads (or returns the already-loaded) plugin at basename, resolving
// a missing ".so" suffix and canonicalizing the path so that two rules
// referencing the same plugin via different relative paths share one
// instance.
func (r *Registry) Open(basename string) (*Plugin, error) {
	filename := basename
	if filepath.Ext(filename) != ".so" {
		filename += ".so"
	}
	path, err := canonicalPath(filename)
	if err != nil {
		return nil, fmt.Errorf("resolve plugin path %q: %w", basename, err)
	}
	if p, ok := r.byPath[path]; ok {
		return p, nil
	}

	handle, err := goplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load plugin %q: %w", path, err)
	}

	p := &Plugin{path: path}
	p.InitFn, _ = lookupInit(handle)
	p.InstrFn, _ = lookupInstr(handle)
	p.MatchFn, _ = lookupMatch(handle)
	p.PatchFn, _ = lookupPatch(handle)
	p.FiniFn, _ = lookupFini(handle)

	if p.InitFn == nil && p.InstrFn == nil && p.MatchFn == nil && p.PatchFn == nil && p.FiniFn == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoEntryPoints, path)
	}

	r.byPath[path] = p
	r.order = append(r.order, p)
	return p, nil
}

// All returns every loaded plugin in deterministic insertion order.
func (r *Registry) All() []*Plugin { return r.order }

// AnyNotifies reports whether any loaded plugin subscribed to
// per-instruction notification, which the pipeline uses to decide whether a
// second disassembly pass is required.
func (r *Registry) AnyNotifies() bool {
	for _, p := range r.order {
		if p.Notifies() {
			return true
		}
	}
	return false
}

func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := unix.Readlink(abs)
	if err != nil {
		// Not a symlink, or unreadable as one: use the absolute path as-is.
		return filepath.Clean(abs), nil
	}
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(abs), resolved)
	}
	return filepath.Clean(resolved), nil
}
