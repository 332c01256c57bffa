// Package forwarder establishes reverse TCP port forwards between the host
// and a device.
//
// A session spawns three cooperating processes: an adb-level control
// tunnel (local TCP port to an abstract socket on the device), the device
// forwarder binary on the device, and the host forwarder binary on the
// host. Both forwarder binaries report startup status as text lines; the
// session drives a strict state machine over those lines and guarantees
// that every spawned process is torn down on any failure path.
package forwarder

import (
	"fmt"
	"log/slog"
	"os/exec"
	"path"
	"strings"
	"sync"
	"time"

	"devfwd/internal/adb"
	"devfwd/internal/expect"
	"devfwd/internal/model"
	"devfwd/internal/util"
)

// DeviceShell is the slice of device capability the session needs. It is
// satisfied by *adb.Device and by fakes in tests.
type DeviceShell interface {
	Serial() string
	PushIfNeeded(localPath, remotePath string) error
	RunShell(cmd string) (string, error)
	ProcessesUsingPort(port int) ([]adb.PortOwner, error)
}

// Options carries everything a session needs. There are no package-level
// tunables: paths, socket names, and timeouts all arrive here, defaulted
// from application config by the caller.
type Options struct {
	// Pairs is the requested forwarding set. A DevicePort of 0 requests a
	// dynamically assigned device port.
	Pairs []model.PortPair
	// ToolWrapper optionally prefixes the device forwarder command line
	// (instrumentation wrappers and the like).
	ToolWrapper string
	// BindAddr is the host address forwarded connections are delivered to.
	BindAddr string
	// HostBinary is the host forwarder executable.
	HostBinary string
	// DeviceBinary is the local device forwarder executable pushed to the
	// device before spawning.
	DeviceBinary string
	// DeviceBinaryPath is the device forwarder's path on the device.
	DeviceBinaryPath string
	// ControlSocket is the abstract socket name used for control traffic.
	ControlSocket string
	// HandshakeTimeout bounds the wait for each expected status line.
	HandshakeTimeout time.Duration
	// KillStaleHost also terminates leftover host forwarder processes (by
	// name, best effort) before spawning. Off by default so tests and
	// embedders do not kill unrelated processes.
	KillStaleHost bool
	// AllocatePort hands out the local control port. Defaults to asking
	// the kernel for a free port.
	AllocatePort func() (int, error)
}

func (o Options) withDefaults() Options {
	o.BindAddr = util.NormalizeAddr(o.BindAddr, "127.0.0.1")
	o.HostBinary = util.DefaultString(o.HostBinary, "host_forwarder")
	o.DeviceBinaryPath = util.DefaultString(o.DeviceBinaryPath, "/data/local/tmp/device_forwarder")
	o.ControlSocket = util.DefaultString(o.ControlSocket, "devfwd_control")
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = util.HandshakeTimeout
	}
	if o.AllocatePort == nil {
		o.AllocatePort = util.AllocatePort
	}
	return o
}

// Session is one established set of reverse forwards. All methods must be
// called from the goroutine that owns the session; state transitions are
// single-threaded by design and the struct carries no lock.
type Session struct {
	opts    Options
	state   model.SessionState
	table   *PortMap
	handles []expect.Process
	kill    sync.Once
}

// Open establishes the forwards described by opts and returns an active
// session, or a typed error (SpawnError, HandshakeError, StreamEndError,
// TimeoutError). On error no spawned process is left behind and no partial
// mapping is exposed.
func Open(shell DeviceShell, spawner expect.Spawner, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	if len(opts.Pairs) == 0 {
		return nil, fmt.Errorf("no port pairs requested")
	}
	for _, p := range opts.Pairs {
		if err := util.ValidateDevicePort(p.DevicePort); err != nil {
			return nil, fmt.Errorf("device port: %w", err)
		}
		if err := util.ValidatePort(p.HostPort); err != nil {
			return nil, fmt.Errorf("host port: %w", err)
		}
	}

	s := &Session{opts: opts, state: model.SessionInitializing, table: NewPortMap()}

	if opts.DeviceBinary != "" {
		if err := shell.PushIfNeeded(opts.DeviceBinary, opts.DeviceBinaryPath); err != nil {
			return nil, fmt.Errorf("push device forwarder: %w", err)
		}
	}

	specs := make([]string, 0, len(opts.Pairs))
	for _, p := range opts.Pairs {
		specs = append(specs, p.Spec(opts.BindAddr))
	}
	slog.Info("forwarding ports", "serial", shell.Serial(), "specs", strings.Join(specs, " "))

	// Reclaim explicitly requested device ports held by stale forwarders
	// from earlier runs. Best effort: anything that goes wrong here is
	// logged and startup proceeds.
	s.reclaimStalePorts(shell)
	if opts.KillStaleHost {
		killHostForwarders(opts.HostBinary)
	}

	controlPort, err := opts.AllocatePort()
	if err != nil {
		return s.fail(&SpawnError{Stage: StageControlTunnel, Err: err})
	}

	control, err := spawner.Spawn("adb", adb.ForwardArgs(shell.Serial(), controlPort, opts.ControlSocket)...)
	if err != nil {
		return s.fail(&SpawnError{Stage: StageControlTunnel, Err: err})
	}
	s.handles = append(s.handles, control)

	s.state = model.SessionAwaitingDevice
	deviceCmd := strings.TrimSpace(fmt.Sprintf("%s %s -D --ctl_sock=%s",
		opts.ToolWrapper, opts.DeviceBinaryPath, opts.ControlSocket))
	device, err := spawner.Spawn("adb", adb.ShellArgs(shell.Serial(), deviceCmd)...)
	if err != nil {
		return s.fail(&SpawnError{Stage: StageDeviceForwarder, Err: err})
	}
	s.handles = append(s.handles, device)

	if err := s.awaitDeviceReady(device); err != nil {
		return s.fail(err)
	}

	s.state = model.SessionAwaitingHostAcks
	host, err := spawner.Spawn(opts.HostBinary,
		fmt.Sprintf("--ctl_port=%d", controlPort), strings.Join(specs, " "))
	if err != nil {
		return s.fail(&SpawnError{Stage: StageHostForwarder, Err: err})
	}
	s.handles = append(s.handles, host)

	if err := s.awaitHostAcks(host); err != nil {
		return s.fail(err)
	}

	s.state = model.SessionActive
	return s, nil
}

// awaitDeviceReady blocks until the device forwarder announces readiness,
// reports an error, closes its output, or exceeds the wait budget. The
// budget is an absolute deadline: non-decisive chatter spends it rather
// than resetting it.
func (s *Session) awaitDeviceReady(proc expect.Process) error {
	var context []string
	deadline := time.Now().Add(s.opts.HandshakeTimeout)
	for {
		wait := time.Until(deadline)
		if wait <= 0 {
			return &TimeoutError{Stage: StageDeviceForwarder, Wait: s.opts.HandshakeTimeout}
		}
		line, err := proc.ReadLine(wait)
		switch err {
		case nil:
		case expect.ErrClosed:
			return &StreamEndError{Stage: StageDeviceForwarder, Context: context}
		default:
			return &TimeoutError{Stage: StageDeviceForwarder, Wait: s.opts.HandshakeTimeout}
		}
		outcome, decisive := ParseDeviceLine(line)
		if !decisive {
			context = appendContext(context, line)
			continue
		}
		if !outcome.Ready {
			return &HandshakeError{Stage: StageDeviceForwarder, Message: outcome.Message}
		}
		return nil
	}
}

// awaitHostAcks consumes one acknowledgement per requested pair, in
// request order, recording each successful mapping. Each expected
// acknowledgement gets its own absolute deadline.
func (s *Session) awaitHostAcks(proc expect.Process) error {
	var context []string
	for range s.opts.Pairs {
		deadline := time.Now().Add(s.opts.HandshakeTimeout)
		for {
			wait := time.Until(deadline)
			if wait <= 0 {
				return &TimeoutError{Stage: StageHostForwarder, Wait: s.opts.HandshakeTimeout}
			}
			line, err := proc.ReadLine(wait)
			switch err {
			case nil:
			case expect.ErrClosed:
				return &StreamEndError{Stage: StageHostForwarder, Context: context}
			default:
				return &TimeoutError{Stage: StageHostForwarder, Wait: s.opts.HandshakeTimeout}
			}
			ack, decisive := ParseHostLine(line)
			if !decisive {
				context = appendContext(context, line)
				continue
			}
			if !ack.OK {
				return &HandshakeError{
					Stage: StageHostForwarder,
					Pair:  model.PortPair{DevicePort: ack.DevicePort, HostPort: ack.HostPort},
				}
			}
			if err := s.table.Record(ack.HostPort, ack.DevicePort); err != nil {
				return &HandshakeError{Stage: StageHostForwarder, Message: err.Error()}
			}
			slog.Info("forwarding established", "device_port", ack.DevicePort, "host_port", ack.HostPort)
			break
		}
	}
	return nil
}

// reclaimStalePorts kills prior device forwarder processes holding any
// explicitly requested device port. Processes with a different name are
// left alone and logged; dynamically assigned ports are not checked.
func (s *Session) reclaimStalePorts(shell DeviceShell) {
	binName := path.Base(s.opts.DeviceBinaryPath)
	for _, p := range s.opts.Pairs {
		if p.DevicePort == 0 {
			continue
		}
		owners, err := shell.ProcessesUsingPort(p.DevicePort)
		if err != nil {
			slog.Warn("could not query device port owners", "port", p.DevicePort, "error", err)
			continue
		}
		for _, owner := range owners {
			if owner.Name != binName {
				slog.Warn("not killing process using device port",
					"pid", owner.PID, "name", owner.Name, "port", p.DevicePort)
				continue
			}
			slog.Warn("killing stale device forwarder", "pid", owner.PID, "port", p.DevicePort)
			if _, err := shell.RunShell(fmt.Sprintf("kill %d", owner.PID)); err != nil {
				slog.Warn("failed to kill stale device forwarder", "pid", owner.PID, "error", err)
			}
		}
	}
}

// killHostForwarders terminates leftover host forwarder processes by name.
func killHostForwarders(hostBinary string) {
	name := path.Base(hostBinary)
	if err := exec.Command("killall", name).Run(); err != nil {
		slog.Debug("no stale host forwarders killed", "name", name, "error", err)
	}
}

// fail moves the session to the failed state, tears down every spawned
// process exactly once, and settles in closed.
func (s *Session) fail(err error) (*Session, error) {
	s.state = model.SessionFailed
	s.killAll()
	s.state = model.SessionClosed
	return nil, err
}

func (s *Session) killAll() {
	s.kill.Do(func() {
		for _, h := range s.handles {
			h.Terminate()
		}
	})
}

// DevicePort returns the device port bound to hostPort. Valid only while
// the session is active; otherwise reports not found.
func (s *Session) DevicePort(hostPort int) (int, bool) {
	if s.state != model.SessionActive {
		return 0, false
	}
	return s.table.DevicePort(hostPort)
}

// Mapping returns a copy of the hostPort -> devicePort table, or nil if
// the session is not active.
func (s *Session) Mapping() map[int]int {
	if s.state != model.SessionActive {
		return nil
	}
	return s.table.Snapshot()
}

// State returns the session's current lifecycle state.
func (s *Session) State() model.SessionState { return s.state }

// Close terminates all session processes. Idempotent and never fails;
// termination errors are swallowed.
func (s *Session) Close() {
	s.killAll()
	s.state = model.SessionClosed
}

// appendContext keeps a bounded tail of unrecognized output lines so
// stream-end errors can show what the process actually printed.
func appendContext(context []string, line string) []string {
	const keep = 20
	if strings.TrimSpace(line) == "" {
		return context
	}
	context = append(context, line)
	if len(context) > keep {
		context = context[len(context)-keep:]
	}
	return context
}
