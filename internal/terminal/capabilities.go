// Package terminal detects whether the process is attached to an
// interactive terminal and whether colored output should be produced.
package terminal

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// Capabilities reports what the output stream supports.
type Capabilities interface {
	IsInteractive() bool
	SupportsColor() bool
}

// DefaultCapabilities detects capabilities of a given file descriptor,
// honoring the NO_COLOR and CLICOLOR_FORCE conventions before falling
// back to auto-detection.
type DefaultCapabilities struct {
	fd uintptr
}

// NewCapabilities returns capabilities for the given file (typically os.Stderr).
func NewCapabilities(f *os.File) Capabilities {
	return &DefaultCapabilities{fd: f.Fd()}
}

// IsInteractive reports whether the underlying descriptor is a terminal.
func (c *DefaultCapabilities) IsInteractive() bool {
	return term.IsTerminal(int(c.fd))
}

// SupportsColor applies, in priority order: CLICOLOR_FORCE, NO_COLOR, then
// terminal auto-detection.
func (c *DefaultCapabilities) SupportsColor() bool {
	if isTruthy(os.Getenv("CLICOLOR_FORCE")) {
		return true
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return c.IsInteractive()
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
