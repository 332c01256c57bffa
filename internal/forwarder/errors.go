package forwarder

import (
	"fmt"
	"strings"
	"time"

	"devfwd/internal/model"
)

// Stage names the startup step an error belongs to.
type Stage string

const (
	StageControlTunnel   Stage = "control-tunnel"
	StageDeviceForwarder Stage = "device-forwarder"
	StageHostForwarder   Stage = "host-forwarder"
)

// SpawnError means the underlying process could not be started at all.
// Fatal to session startup; never retried.
type SpawnError struct {
	Stage Stage
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Stage, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// HandshakeError means a forwarder process explicitly reported a failure
// line. For host-side failures Pair carries the rejected port pair.
type HandshakeError struct {
	Stage   Stage
	Message string
	Pair    model.PortPair
}

func (e *HandshakeError) Error() string {
	if e.Stage == StageHostForwarder {
		return fmt.Sprintf("%s refused port pair %s", e.Stage, e.Pair)
	}
	return fmt.Sprintf("%s failed to start: %s", e.Stage, e.Message)
}

// StreamEndError means a process's output ended before a decisive status
// line was seen. Context holds the lines read up to that point.
type StreamEndError struct {
	Stage   Stage
	Context []string
}

func (e *StreamEndError) Error() string {
	msg := fmt.Sprintf("unexpected end of %s output", e.Stage)
	if len(e.Context) > 0 {
		msg += ": " + strings.Join(e.Context, " | ")
	}
	return msg
}

// TimeoutError means no decisive status line arrived within the per-line
// wait budget.
type TimeoutError struct {
	Stage Stage
	Wait  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s status", e.Wait, e.Stage)
}
