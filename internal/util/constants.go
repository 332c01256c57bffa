// Package util provides common utility functions and constants used across
// the devfwd application. This package is intentionally kept dependency-free
// (no imports from other internal/* packages) to serve as a shared foundation
// without introducing circular dependencies.
package util

import "time"

const (
	// HandshakeTimeout is the default wait budget for a single decisive
	// line from a spawned forwarder process. It applies per expected line,
	// not per session: a session forwarding N pairs may block for up to
	// (2+N) * HandshakeTimeout before giving up.
	// Used by: internal/forwarder (Options defaulting) and
	//          internal/appconfig (config.yaml default).
	HandshakeTimeout = 30 * time.Second

	// ProbeTimeout is the maximum time allowed for a single TCP health
	// probe against a forwarded host port. Mapped ports are local binds,
	// so a healthy forwarder accepts well under this bound.
	// Used by: internal/sessions (Snapshot).
	ProbeTimeout = 500 * time.Millisecond

	// DefaultRefreshSeconds is the fallback interval for the TUI
	// dashboard's periodic session status refresh, used when config.yaml
	// carries an invalid or missing refresh_seconds value.
	DefaultRefreshSeconds = 3
)
