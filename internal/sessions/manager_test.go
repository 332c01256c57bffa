package sessions

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"devfwd/internal/appconfig"
	"devfwd/internal/model"
)

// fakeSession is a trivially-closeable ForwardSession.
type fakeSession struct {
	mapping map[int]int
	closed  int
}

func (s *fakeSession) DevicePort(hostPort int) (int, bool) {
	dp, ok := s.mapping[hostPort]
	return dp, ok
}

func (s *fakeSession) Mapping() map[int]int { return s.mapping }

func (s *fakeSession) Close() { s.closed++ }

// fakeOpener hands out fakeSessions, or fails.
type fakeOpener struct {
	err      error
	sessions []*fakeSession
}

func (o *fakeOpener) OpenSession(serial string, pairs []model.PortPair) (ForwardSession, error) {
	if o.err != nil {
		return nil, o.err
	}
	mapping := make(map[int]int, len(pairs))
	for i, p := range pairs {
		dp := p.DevicePort
		if dp == 0 {
			dp = 9000 + i
		}
		mapping[p.HostPort] = dp
	}
	s := &fakeSession{mapping: mapping}
	o.sessions = append(o.sessions, s)
	return s, nil
}

func newTestManager(t *testing.T, opener Opener) *Manager {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return NewManager(opener)
}

func TestStartAndStop(t *testing.T) {
	opener := &fakeOpener{}
	m := newTestManager(t, opener)

	rt, err := m.Start("emulator-5554", []model.PortPair{{DevicePort: 0, HostPort: 8080}})
	if err != nil {
		t.Fatal(err)
	}
	if rt.State != model.SessionActive {
		t.Fatalf("state = %s, want active", rt.State)
	}
	if dp, ok := m.DevicePort("emulator-5554", 8080); !ok || dp != 9000 {
		t.Fatalf("DevicePort = %d,%v, want 9000,true", dp, ok)
	}
	if !m.HasLive("emulator-5554") {
		t.Fatal("expected live session after start")
	}

	if err := m.Stop("emulator-5554"); err != nil {
		t.Fatal(err)
	}
	if m.HasLive("emulator-5554") {
		t.Fatal("session still live after stop")
	}
	if opener.sessions[0].closed != 1 {
		t.Fatalf("session closed %d times, want 1", opener.sessions[0].closed)
	}
	got, err := m.Get("emulator-5554")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != model.SessionClosed || got.Mapping != nil {
		t.Fatalf("runtime after stop: %+v", got)
	}
}

func TestStartRejectsSecondSessionForSerial(t *testing.T) {
	m := newTestManager(t, &fakeOpener{})
	if _, err := m.Start("A", []model.PortPair{{HostPort: 8080}}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Start("A", []model.PortPair{{HostPort: 8081}}); err == nil {
		t.Fatal("expected second start on the same serial to be rejected")
	}
	// A different device is fine.
	if _, err := m.Start("B", []model.PortPair{{HostPort: 8082}}); err != nil {
		t.Fatal(err)
	}
}

func TestStartRejectsInvalidPorts(t *testing.T) {
	m := newTestManager(t, &fakeOpener{})
	if _, err := m.Start("A", []model.PortPair{{DevicePort: -1, HostPort: 8080}}); err == nil {
		t.Fatal("negative device port must be rejected")
	}
	if _, err := m.Start("A", []model.PortPair{{DevicePort: 9000, HostPort: 0}}); err == nil {
		t.Fatal("zero host port must be rejected")
	}
	if m.HasLive("A") {
		t.Fatal("no session should exist after validation failure")
	}
}

func TestStartRecordsOpenerFailure(t *testing.T) {
	opener := &fakeOpener{err: errors.New("device forwarder did not start")}
	m := newTestManager(t, opener)

	rt, err := m.Start("A", []model.PortPair{{HostPort: 8080}})
	if err == nil {
		t.Fatal("expected start to fail")
	}
	if rt.State != model.SessionClosed {
		t.Fatalf("state = %s, want closed", rt.State)
	}
	if rt.LastError == "" {
		t.Fatal("failure reason must be recorded")
	}
	if m.HasLive("A") {
		t.Fatal("failed session must not be live")
	}
	// The serial is free for another attempt.
	opener.err = nil
	if _, err := m.Start("A", []model.PortPair{{HostPort: 8080}}); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestStopAll(t *testing.T) {
	opener := &fakeOpener{}
	m := newTestManager(t, opener)
	for _, serial := range []string{"A", "B", "C"} {
		if _, err := m.Start(serial, []model.PortPair{{HostPort: 8080}}); err != nil {
			t.Fatal(err)
		}
	}

	m.StopAll()

	for _, serial := range []string{"A", "B", "C"} {
		if m.HasLive(serial) {
			t.Fatalf("%s still live after StopAll", serial)
		}
	}
	for _, s := range opener.sessions {
		if s.closed != 1 {
			t.Fatalf("session closed %d times, want 1", s.closed)
		}
	}
}

func TestSnapshotReportsUptime(t *testing.T) {
	m := newTestManager(t, &fakeOpener{})
	if _, err := m.Start("A", []model.PortPair{{HostPort: 8080}}); err != nil {
		t.Fatal(err)
	}

	snap := m.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot has %d entries, want 1", len(snap))
	}
	if snap[0].UptimeSec < 0 {
		t.Fatalf("negative uptime: %d", snap[0].UptimeSec)
	}
}

func TestLoadRuntimeDowngradesStaleActiveSessions(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path, err := appconfig.RuntimeFilePath()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	stale := `[
  {"serial":"A","state":"active","mapping":{"8080":9000},"started_at":"2026-08-30T10:00:00Z"},
  {"serial":"B","state":"closed","started_at":"2026-08-30T09:00:00Z"}
]`
	if err := os.WriteFile(path, []byte(stale), 0o600); err != nil {
		t.Fatal(err)
	}

	m := NewManager(&fakeOpener{})
	if err := m.LoadRuntime(); err != nil {
		t.Fatal(err)
	}

	a, err := m.Get("A")
	if err != nil {
		t.Fatal(err)
	}
	if a.State != model.SessionClosed {
		t.Fatalf("state = %s, want closed", a.State)
	}
	if a.Mapping != nil {
		t.Fatal("stale mapping must be dropped")
	}
	if a.LastError == "" {
		t.Fatal("downgrade reason must be recorded")
	}
	b, err := m.Get("B")
	if err != nil {
		t.Fatal(err)
	}
	if b.State != model.SessionClosed || b.LastError != "" {
		t.Fatalf("closed entry altered by load: %+v", b)
	}
	if m.HasLive("A") {
		t.Fatal("restored sessions are never live")
	}
}

func TestLoadRuntimeMissingFileIsFine(t *testing.T) {
	m := newTestManager(t, &fakeOpener{})
	if err := m.LoadRuntime(); err != nil {
		t.Fatal(err)
	}
}

func TestGetComputesUptime(t *testing.T) {
	m := newTestManager(t, &fakeOpener{})
	if _, err := m.Start("A", []model.PortPair{{HostPort: 8080}}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	rt, err := m.Get("A")
	if err != nil {
		t.Fatal(err)
	}
	if rt.UptimeSec < 0 {
		t.Fatalf("negative uptime: %d", rt.UptimeSec)
	}
}
