package model

import (
	"fmt"
	"time"
)

// PortPair requests one reverse forward: connections to DevicePort on the
// device are relayed back to HostPort on the host. DevicePort 0 asks the
// device forwarder to pick a free port; the assigned value is reported in
// the host forwarder's acknowledgement line.
type PortPair struct {
	DevicePort int `json:"device_port" yaml:"device_port"`
	HostPort   int `json:"host_port" yaml:"host_port"`
}

// Spec renders the pair in the device:host:bindAddr form the host
// forwarder accepts on its command line.
func (p PortPair) Spec(bindAddr string) string {
	return fmt.Sprintf("%d:%d:%s", p.DevicePort, p.HostPort, bindAddr)
}

func (p PortPair) String() string {
	return fmt.Sprintf("%d:%d", p.DevicePort, p.HostPort)
}

// DeviceEntry is one row parsed from `adb devices -l`.
type DeviceEntry struct {
	Serial  string `json:"serial"`
	State   string `json:"state"` // device, offline, unauthorized, ...
	Product string `json:"product,omitempty"`
	ModelID string `json:"model,omitempty"`
}

// Online reports whether the device is usable for shell commands.
func (d DeviceEntry) Online() bool { return d.State == "device" }

// SessionState tracks the forwarding session handshake. Transitions are
// strictly forward; any failure moves to SessionFailed, which tears down
// every live process handle and settles in SessionClosed.
type SessionState string

const (
	SessionInitializing     SessionState = "initializing"
	SessionAwaitingDevice   SessionState = "awaiting-device-ack"
	SessionAwaitingHostAcks SessionState = "awaiting-host-acks"
	SessionActive           SessionState = "active"
	SessionFailed           SessionState = "failed"
	SessionClosed           SessionState = "closed"
)

// SessionRuntime is the registry's view of one forwarding session.
type SessionRuntime struct {
	Serial    string       `json:"serial"`
	Pairs     []PortPair   `json:"pairs"`
	Mapping   map[int]int  `json:"mapping,omitempty"` // hostPort -> devicePort
	State     SessionState `json:"state"`
	StartedAt time.Time    `json:"-"`
	UptimeSec int64        `json:"uptime_seconds"`
	LatencyMS int64        `json:"latency_ms"`
	LastError string       `json:"last_error,omitempty"`
}
