// Package sessions coordinates forwarding sessions across devices and
// tracks their runtime state.
package sessions

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"devfwd/internal/appconfig"
	"devfwd/internal/model"
	"devfwd/internal/util"
)

// ForwardSession is the live-session surface the manager owns after a
// successful open. Satisfied by *forwarder.Session.
type ForwardSession interface {
	DevicePort(hostPort int) (int, bool)
	Mapping() map[int]int
	Close()
}

// Opener abstracts session establishment for testing.
type Opener interface {
	OpenSession(serial string, pairs []model.PortPair) (ForwardSession, error)
}

// Manager supervises at most one forwarding session per device serial.
// Sessions never share process handles or mapping tables; the manager's
// lock only guards its own bookkeeping.
type Manager struct {
	mu      sync.Mutex
	opener  Opener
	runtime map[string]model.SessionRuntime
	live    map[string]ForwardSession
}

// NewManager creates a new session manager.
func NewManager(opener Opener) *Manager {
	return &Manager{
		opener:  opener,
		runtime: make(map[string]model.SessionRuntime),
		live:    make(map[string]ForwardSession),
	}
}

// Start establishes forwards for the given serial. A device with a live
// session is rejected; it must be stopped first.
func (m *Manager) Start(serial string, pairs []model.PortPair) (model.SessionRuntime, error) {
	for _, p := range pairs {
		if err := util.ValidateDevicePort(p.DevicePort); err != nil {
			return model.SessionRuntime{}, fmt.Errorf("invalid device port: %w", err)
		}
		if err := util.ValidatePort(p.HostPort); err != nil {
			return model.SessionRuntime{}, fmt.Errorf("invalid host port: %w", err)
		}
	}

	m.mu.Lock()
	if _, ok := m.live[serial]; ok {
		m.mu.Unlock()
		return model.SessionRuntime{}, fmt.Errorf("session already active for %s; stop it first", serial)
	}
	rt := model.SessionRuntime{
		Serial:    serial,
		Pairs:     pairs,
		State:     model.SessionInitializing,
		StartedAt: time.Now(),
	}
	m.runtime[serial] = rt
	m.mu.Unlock()

	// The handshake blocks for up to (2+N) timeouts; the lock is not held
	// so other devices can start concurrently.
	sess, err := m.opener.OpenSession(serial, pairs)

	m.mu.Lock()
	if err != nil {
		rt.State = model.SessionClosed
		rt.LastError = err.Error()
		m.runtime[serial] = rt
		m.mu.Unlock()
		m.persistLogged()
		return rt, err
	}
	rt.State = model.SessionActive
	rt.Mapping = sess.Mapping()
	m.runtime[serial] = rt
	m.live[serial] = sess
	m.mu.Unlock()

	m.persistLogged()
	return rt, nil
}

// Stop tears down the session for a serial.
func (m *Manager) Stop(serial string) error {
	m.mu.Lock()
	rt, ok := m.runtime[serial]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("no session for %s", serial)
	}
	sess := m.live[serial]
	delete(m.live, serial)
	rt.State = model.SessionClosed
	rt.Mapping = nil
	m.runtime[serial] = rt
	m.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
	m.persistLogged()
	return nil
}

// StopAll stops every live session.
func (m *Manager) StopAll() {
	m.mu.Lock()
	serials := make([]string, 0, len(m.live))
	for serial := range m.live {
		serials = append(serials, serial)
	}
	m.mu.Unlock()

	for _, serial := range serials {
		_ = m.Stop(serial)
	}
}

// Get retrieves a session's current runtime state.
func (m *Manager) Get(serial string) (model.SessionRuntime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.runtime[serial]
	if !ok {
		return model.SessionRuntime{}, fmt.Errorf("not found")
	}
	if !rt.StartedAt.IsZero() {
		rt.UptimeSec = int64(time.Since(rt.StartedAt).Seconds())
	}
	return rt, nil
}

// DevicePort resolves the device port bound to a host port for a serial's
// live session.
func (m *Manager) DevicePort(serial string, hostPort int) (int, bool) {
	m.mu.Lock()
	sess := m.live[serial]
	m.mu.Unlock()
	if sess == nil {
		return 0, false
	}
	return sess.DevicePort(hostPort)
}

// HasLive reports whether a serial has a live session.
func (m *Manager) HasLive(serial string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live[serial]
	return ok
}

// Snapshot returns a read-only view of all sessions with current uptime
// and a TCP latency probe against each active session's first mapped host
// port. Probes run concurrently and are bounded so the caller never hangs.
func (m *Manager) Snapshot() []model.SessionRuntime {
	m.mu.Lock()
	out := make([]model.SessionRuntime, 0, len(m.runtime))
	for _, rt := range m.runtime {
		if !rt.StartedAt.IsZero() {
			rt.UptimeSec = int64(time.Since(rt.StartedAt).Seconds())
		}
		out = append(out, rt)
	}
	m.mu.Unlock()

	type probeResult struct {
		index     int
		latencyMS int64
		err       error
	}

	results := make(chan probeResult, len(out))
	expected := 0
	for i, rt := range out {
		port := firstHostPort(rt)
		if rt.State != model.SessionActive || port == 0 {
			continue
		}
		expected++
		go func(idx, port int) {
			start := time.Now()
			conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), util.ProbeTimeout)
			if err != nil {
				results <- probeResult{index: idx, err: err}
				return
			}
			_ = conn.Close()
			results <- probeResult{index: idx, latencyMS: time.Since(start).Milliseconds()}
		}(i, port)
	}

	timeout := time.After(util.ProbeTimeout + 100*time.Millisecond)
	for collected := 0; collected < expected; collected++ {
		select {
		case result := <-results:
			if result.err != nil {
				slog.Debug("session probe failed", "serial", out[result.index].Serial, "error", result.err)
			} else {
				out[result.index].LatencyMS = result.latencyMS
			}
		case <-timeout:
			slog.Warn("session probe timeout", "collected", collected, "expected", expected)
			return out
		}
	}
	return out
}

func firstHostPort(rt model.SessionRuntime) int {
	best := 0
	for hostPort := range rt.Mapping {
		if best == 0 || hostPort < best {
			best = hostPort
		}
	}
	return best
}

// LoadRuntime restores session records from disk. Live process handles do
// not survive a restart, so anything recorded as active is downgraded to
// closed with an explanatory error.
func (m *Manager) LoadRuntime() error {
	path, err := appconfig.RuntimeFilePath()
	if err != nil {
		return err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var arr []model.SessionRuntime
	if err := json.Unmarshal(b, &arr); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rt := range arr {
		if rt.State != model.SessionClosed {
			rt.State = model.SessionClosed
			rt.Mapping = nil
			rt.LastError = "session did not survive restart"
		}
		m.runtime[rt.Serial] = rt
	}
	return nil
}

func (m *Manager) persistLogged() {
	if err := m.persist(); err != nil {
		slog.Warn("failed to persist session runtime", "error", err)
	}
}

func (m *Manager) persist() error {
	path, err := appconfig.RuntimeFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	m.mu.Lock()
	arr := make([]model.SessionRuntime, 0, len(m.runtime))
	for _, rt := range m.runtime {
		if !rt.StartedAt.IsZero() {
			rt.UptimeSec = int64(time.Since(rt.StartedAt).Seconds())
		}
		arr = append(arr, rt)
	}
	m.mu.Unlock()
	b, err := json.MarshalIndent(arr, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
