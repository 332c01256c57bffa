// Package adb provides device operations by shelling out to the system
// "adb" binary.
//
// This package is responsible for talking to devices — it does NOT speak
// the adb wire protocol itself. Instead, it invokes the platform tools
// binary on PATH, which means it automatically inherits the user's adb
// server state, device authorizations, and transport configuration without
// reimplementing any of that logic.
//
// There are two layers:
//
//   - Client: serial-independent operations (listing attached devices,
//     checking the binary is installed).
//
//   - Device: operations against one device identified by serial (shell
//     commands with timeout/retry, file push, port-owner queries,
//     screenshots, interactive shells).
//
// Security note: all adb arguments are passed via exec.Command's argv (not
// via shell interpolation on the host side). Shell commands executed on the
// device go through `adb shell` and are composed from validated numeric
// ports and configured paths only.
package adb

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/creack/pty"

	"devfwd/internal/model"
)

const (
	// DefaultCommandTimeout bounds a single adb invocation.
	DefaultCommandTimeout = 30 * time.Second
	// DefaultRetries is how many times a failed adb invocation is retried
	// before the error is surfaced.
	DefaultRetries = 3
)

// PortOwner is one process found listening on a device port.
type PortOwner struct {
	PID  int
	Name string
}

// EnsureADBBinary checks that the "adb" binary is available on the system
// PATH. Call early during startup to fail with a clear message instead of
// a confusing exec error later.
func EnsureADBBinary() error {
	if _, err := exec.LookPath("adb"); err != nil {
		return fmt.Errorf("adb binary not found in PATH")
	}
	return nil
}

// Client manages serial-independent adb operations.
//
// Client is stateless and safe for concurrent use — each method call
// creates an independent exec.Cmd.
type Client struct{}

// New creates a new adb client.
func New() *Client { return &Client{} }

// AttachedDevices lists devices known to the adb server.
func (c *Client) AttachedDevices() ([]model.DeviceEntry, error) {
	out, err := runADB(context.Background(), DefaultCommandTimeout, "devices", "-l")
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return parseDevices(out), nil
}

// Device binds adb operations to one serial with a per-attempt timeout and
// bounded retries for flaky transports (devices drop off USB briefly,
// adbd restarts, etc.).
type Device struct {
	serial  string
	timeout time.Duration
	retries int
}

// NewDevice returns a Device for the given serial with default timeout
// and retry behavior.
func (c *Client) NewDevice(serial string) *Device {
	return &Device{serial: serial, timeout: DefaultCommandTimeout, retries: DefaultRetries}
}

// Serial returns the device serial number.
func (d *Device) Serial() string { return d.serial }

// RunShell executes a shell command on the device and returns its combined
// output with trailing whitespace trimmed.
func (d *Device) RunShell(cmd string) (string, error) {
	out, err := d.run("shell", cmd)
	if err != nil {
		return "", fmt.Errorf("adb shell %q: %w", cmd, err)
	}
	return strings.TrimRight(out, "\r\n \t"), nil
}

// PushIfNeeded pushes localPath to remotePath unless the remote file
// already has the same md5. The device binary rarely changes between
// sessions, so this skips a multi-megabyte transfer on most starts.
func (d *Device) PushIfNeeded(localPath, remotePath string) error {
	localSum, err := fileMD5(localPath)
	if err != nil {
		return fmt.Errorf("hash %s: %w", localPath, err)
	}
	if remote, err := d.RunShell("md5sum " + remotePath); err == nil {
		if sum := firstField(remote); sum == localSum {
			slog.Debug("push skipped, checksums match", "serial", d.serial, "remote", remotePath)
			return nil
		}
	}
	if _, err := d.run("push", localPath, remotePath); err != nil {
		return fmt.Errorf("push %s: %w", localPath, err)
	}
	if _, err := d.RunShell("chmod 755 " + remotePath); err != nil {
		return err
	}
	return nil
}

// ProcessesUsingPort returns the processes listening on the given device
// TCP port, parsed from netstat output on the device.
func (d *Device) ProcessesUsingPort(port int) ([]PortOwner, error) {
	out, err := d.RunShell("netstat -tlnp")
	if err != nil {
		return nil, err
	}
	return parsePortOwners(out, port), nil
}

// Screenshot captures the device display to localPath as a PNG. The image
// is staged on the device, pulled, then removed.
func (d *Device) Screenshot(localPath string) error {
	const remote = "/data/local/tmp/devfwd_screenshot.png"
	if _, err := d.RunShell("screencap -p " + remote); err != nil {
		return fmt.Errorf("screencap: %w", err)
	}
	defer func() {
		if _, err := d.RunShell("rm -f " + remote); err != nil {
			slog.Warn("failed to remove staged screenshot", "serial", d.serial, "error", err)
		}
	}()
	if _, err := d.run("pull", remote, localPath); err != nil {
		return fmt.Errorf("pull screenshot: %w", err)
	}
	return nil
}

// RunInteractive opens an interactive device shell in a pseudo-terminal,
// wiring the user's stdin/stdout to it. Blocks until the shell exits.
// If the context is cancelled while the session is active, the adb
// process is killed.
func (d *Device) RunInteractive(ctx context.Context) error {
	cmd := exec.Command("adb", "-s", d.serial, "shell")
	f, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	defer f.Close()

	go func() {
		_, _ = io.Copy(f, os.Stdin)
	}()
	_, _ = io.Copy(os.Stdout, f)

	if ctx.Err() != nil {
		_ = cmd.Process.Kill()
	}
	return cmd.Wait()
}

// ShellCommand returns the exec.Cmd for an interactive shell on this
// device, for callers that manage the terminal themselves (the TUI hands
// it to tea.ExecProcess).
func (d *Device) ShellCommand() *exec.Cmd {
	return exec.Command("adb", "-s", d.serial, "shell")
}

// ForwardArgs composes the adb argv that tunnels a local TCP port to an
// abstract unix socket on the device. Kept separate from process creation
// so argument composition is unit-testable (and so the session layer can
// spawn the tunnel through its own process handle).
func ForwardArgs(serial string, localPort int, socketName string) []string {
	return []string{
		"-s", serial,
		"forward",
		fmt.Sprintf("tcp:%d", localPort),
		"localabstract:" + socketName,
	}
}

// ShellArgs composes the adb argv that runs a shell command on the device.
func ShellArgs(serial, command string) []string {
	return []string{"-s", serial, "shell", command}
}

// run invokes adb against this serial, retrying transient failures.
func (d *Device) run(args ...string) (string, error) {
	argv := append([]string{"-s", d.serial}, args...)
	var lastErr error
	attempts := d.retries + 1
	for i := 0; i < attempts; i++ {
		out, err := runADB(context.Background(), d.timeout, argv...)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if i < attempts-1 {
			slog.Debug("adb command failed, retrying", "serial", d.serial, "attempt", i+1, "error", err)
		}
	}
	return "", fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

func runADB(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "adb", args...).CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("adb %s timed out after %s", strings.Join(args, " "), timeout)
		}
		return "", fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// parseDevices interprets `adb devices -l` output. The first line is a
// banner; each remaining non-empty line is "<serial> <state> [k:v ...]".
func parseDevices(out string) []model.DeviceEntry {
	var entries []model.DeviceEntry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		e := model.DeviceEntry{Serial: fields[0], State: fields[1]}
		for _, kv := range fields[2:] {
			if v, ok := strings.CutPrefix(kv, "product:"); ok {
				e.Product = v
			}
			if v, ok := strings.CutPrefix(kv, "model:"); ok {
				e.ModelID = v
			}
		}
		entries = append(entries, e)
	}
	return entries
}

// parsePortOwners extracts the pid/name column from netstat lines whose
// local address column ends with the given port.
func parsePortOwners(out string, port int) []PortOwner {
	suffix := ":" + strconv.Itoa(port)
	var owners []PortOwner
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 7 || !strings.HasPrefix(fields[0], "tcp") {
			continue
		}
		if !strings.HasSuffix(fields[3], suffix) {
			continue
		}
		pidName := fields[len(fields)-1]
		pidStr, name, ok := strings.Cut(pidName, "/")
		if !ok {
			continue
		}
		pid, err := strconv.Atoi(pidStr)
		if err != nil {
			continue
		}
		owners = append(owners, PortOwner{PID: pid, Name: name})
	}
	return owners
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
