package elfx

import (
	"fmt"
	"strconv"
	"strings"
)

// ResolveAddress parses a --start/--end/&name style address specifier: a
// "0x"-prefixed hex literal, a bare decimal literal, or a symbol name looked
// up in the reader's symbol table. This mirrors the original tool's
// positionToAddr fallback (absolute hex vs. symbol lookup).
func (r *Reader) ResolveAddress(spec string) (uint64, error) {
	if addr, ok := parseAddrLiteral(spec); ok {
		return addr, nil
	}
	addr, ok := r.LookupSymbol(spec)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrSymbolNotFound, spec)
	}
	return addr, nil
}

func parseAddrLiteral(spec string) (uint64, bool) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return 0, false
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		return v, err == nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	return v, err == nil
}

// ResolveSymbolic resolves a "&name" style symbolic reference used inside
// match-test right-hand sides. An undefined name is not an error here: the
// caller warns and binds to 0, per spec.md's parse-time symbolic-address
// policy.
func (r *Reader) ResolveSymbolic(name string) (addr uint64, defined bool) {
	addr, ok := r.LookupSymbol(name)
	return addr, ok
}
