// Package expect provides line-oriented handles to spawned processes.
//
// The forwarder binaries report startup status as free-form text on their
// standard output, and they only line-buffer that output when attached to a
// terminal. Handles therefore run the child under a pseudo-terminal (via
// creack/pty) and pump its output line by line into a channel, so callers
// get a simple blocking ReadLine with a timeout instead of dealing with
// partial reads and buffering themselves.
package expect

import (
	"bufio"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned by ReadLine when no complete line arrived
	// within the wait budget. The process is still running; the caller
	// decides whether to keep waiting or tear it down.
	ErrTimeout = errors.New("timed out waiting for output line")

	// ErrClosed is returned by ReadLine once the process's output stream
	// has ended and all buffered lines have been consumed.
	ErrClosed = errors.New("output stream closed")
)

// Process is the read/terminate surface the session layer consumes.
// Implementations must make Terminate idempotent and safe to call on an
// already-dead process.
type Process interface {
	ReadLine(timeout time.Duration) (string, error)
	Terminate()
}

// Spawner abstracts process creation so session logic can be tested with
// scripted fakes instead of real child processes.
type Spawner interface {
	Spawn(name string, args ...string) (Process, error)
}

// Handle is a live child process with line-buffered output access.
type Handle struct {
	cmd   *exec.Cmd
	tty   *os.File
	lines chan string
	done  chan struct{}
	kill  sync.Once
}

// lineBuffer bounds how many lines can pile up between the pump goroutine
// and the reader before the pump blocks. Handshake output is a handful of
// lines, so this is never hit in practice.
const lineBuffer = 64

// PTYSpawner spawns real processes under a pseudo-terminal.
type PTYSpawner struct{}

// Spawn implements Spawner.
func (PTYSpawner) Spawn(name string, args ...string) (Process, error) {
	return Spawn(name, args...)
}

// ptyStart is swapped out in tests that need to simulate pty failures.
var ptyStart = startPTY

// Spawn launches the command under a pty and starts the line pump.
func Spawn(name string, args ...string) (*Handle, error) {
	cmd := exec.Command(name, args...)
	tty, err := ptyStart(cmd)
	if err != nil {
		return nil, err
	}
	h := &Handle{
		cmd:   cmd,
		tty:   tty,
		lines: make(chan string, lineBuffer),
		done:  make(chan struct{}),
	}
	go h.pump()
	return h, nil
}

// pump reads the pty master until it errors out (child exit or Terminate
// closing the master), then closes the line channel and reaps the child.
// The send races against done so a chatty child whose reader has gone
// away cannot wedge the pump on a full channel and leave a zombie.
func (h *Handle) pump() {
	sc := bufio.NewScanner(h.tty)
scan:
	for sc.Scan() {
		// The pty layer turns "\n" into "\r\n"; strip the carriage return
		// so pattern matching sees the line as the child wrote it.
		select {
		case h.lines <- strings.TrimRight(sc.Text(), "\r"):
		case <-h.done:
			break scan
		}
	}
	close(h.lines)
	_ = h.cmd.Wait()
}

// ReadLine returns the next output line, blocking up to timeout.
func (h *Handle) ReadLine(timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case line, ok := <-h.lines:
		if !ok {
			return "", ErrClosed
		}
		return line, nil
	case <-timer.C:
		return "", ErrTimeout
	}
}

// Terminate kills the child and releases the pty. Safe to call multiple
// times and after the child has already exited; termination errors are
// swallowed because teardown is best effort.
func (h *Handle) Terminate() {
	h.kill.Do(func() {
		close(h.done)
		if h.cmd.Process != nil {
			_ = h.cmd.Process.Kill()
		}
		_ = h.tty.Close()
	})
}

// PID returns the child's process id, or 0 before the child started.
func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}
