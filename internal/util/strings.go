package util

import "strings"

// DefaultString returns the fallback value if v is empty or consists entirely
// of whitespace; otherwise it returns v unchanged.
func DefaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// EmptyDash returns "-" if s is empty or consists entirely of whitespace;
// otherwise it returns s unchanged. Used by the CLI and TUI tables so that
// optional fields (product, model, error) render a visible placeholder.
func EmptyDash(s string) string {
	return DefaultString(s, "-")
}

// NormalizeAddr returns the provided address if it is non-empty (after
// trimming whitespace), or the fallback value if the address is empty or
// whitespace-only. Used to fill in the default bind address for forward
// specs, the same way the host forwarder itself defaults to loopback.
func NormalizeAddr(addr, fallback string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fallback
	}
	return addr
}
