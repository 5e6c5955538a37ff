package plugin

import (
	"fmt"
	goplugin "plugin"
)

// The versioned symbol names a plugin shared object exports: the original
// ABI's e9_plugin_*_v1 entry points spelled as exported Go identifiers. A
// plugin exporting only the original lower-case names is not recognised.
const (
	symInit  = "E9PluginInitV1"
	symInstr = "E9PluginInstrV1"
	symMatch = "E9PluginMatchV1"
	symPatch = "E9PluginPatchV1"
	symFini  = "E9PluginFiniV1"
)

func lookupInit(h *goplugin.Plugin) (InitFunc, error) {
	sym, err := h.Lookup(symInit)
	if err != nil {
		return nil, nil //nolint:nilerr // absent symbol is a valid "not exported" state
	}
	f, ok := sym.(func() (interface{}, error))
	if !ok {
		return nil, fmt.Errorf("plugin symbol %s has unexpected type %T", symInit, sym)
	}
	return f, nil
}

func lookupInstr(h *goplugin.Plugin) (InstrFunc, error) {
	sym, err := h.Lookup(symInstr)
	if err != nil {
		return nil, nil //nolint:nilerr
	}
	f, ok := sym.(func(Instr, interface{}))
	if !ok {
		return nil, fmt.Errorf("plugin symbol %s has unexpected type %T", symInstr, sym)
	}
	return f, nil
}

func lookupMatch(h *goplugin.Plugin) (MatchFunc, error) {
	sym, err := h.Lookup(symMatch)
	if err != nil {
		return nil, nil //nolint:nilerr
	}
	f, ok := sym.(func(Instr, interface{}) (int64, error))
	if !ok {
		return nil, fmt.Errorf("plugin symbol %s has unexpected type %T", symMatch, sym)
	}
	return f, nil
}

func lookupPatch(h *goplugin.Plugin) (PatchFunc, error) {
	sym, err := h.Lookup(symPatch)
	if err != nil {
		return nil, nil //nolint:nilerr
	}
	f, ok := sym.(func(Instr, interface{}) error)
	if !ok {
		return nil, fmt.Errorf("plugin symbol %s has unexpected type %T", symPatch, sym)
	}
	return f, nil
}

func lookupFini(h *goplugin.Plugin) (FiniFunc, error) {
	sym, err := h.Lookup(symFini)
	if err != nil {
		return nil, nil //nolint:nilerr
	}
	f, ok := sym.(func(interface{}))
	if !ok {
		return nil, fmt.Errorf("plugin symbol %s has unexpected type %T", symFini, sym)
	}
	return f, nil
}
