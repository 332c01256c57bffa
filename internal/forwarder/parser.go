package forwarder

import (
	"regexp"
	"strconv"
)

// The forwarder binaries speak a small line-oriented status protocol on
// their standard output. The grammar lives here, decoupled from any
// process I/O, so the session state machine can be driven with canned
// lines in tests.

var (
	deviceReadyRe = regexp.MustCompile(`Starting Device Forwarder\.`)
	deviceErrorRe = regexp.MustCompile(`:ERROR:(.*)$`)
	hostReadyRe   = regexp.MustCompile(`Forwarding device port (\d+) to host (\d+):`)
	hostFailRe    = regexp.MustCompile(`Couldn't start forwarder server for port spec: (\d+):(\d+)`)
)

// DeviceOutcome is the decisive result of the device forwarder's startup
// line: either it announced readiness or it reported an error message.
type DeviceOutcome struct {
	Ready   bool
	Message string // error text when Ready is false
}

// ParseDeviceLine classifies one line of device forwarder output. The
// second return value is false for lines that are neither a readiness
// announcement nor an error (callers keep waiting for a decisive line).
func ParseDeviceLine(line string) (DeviceOutcome, bool) {
	if deviceReadyRe.MatchString(line) {
		return DeviceOutcome{Ready: true}, true
	}
	if m := deviceErrorRe.FindStringSubmatch(line); m != nil {
		return DeviceOutcome{Message: m[1]}, true
	}
	return DeviceOutcome{}, false
}

// HostAck is one per-pair acknowledgement from the host forwarder. On
// success DevicePort carries the actual device port, which for dynamic
// requests (device port 0) is the port the device forwarder picked.
type HostAck struct {
	OK         bool
	DevicePort int
	HostPort   int
}

// ParseHostLine classifies one line of host forwarder output. The second
// return value is false for lines that are not an acknowledgement.
func ParseHostLine(line string) (HostAck, bool) {
	if m := hostReadyRe.FindStringSubmatch(line); m != nil {
		return HostAck{OK: true, DevicePort: atoi(m[1]), HostPort: atoi(m[2])}, true
	}
	if m := hostFailRe.FindStringSubmatch(line); m != nil {
		return HostAck{DevicePort: atoi(m[1]), HostPort: atoi(m[2])}, true
	}
	return HostAck{}, false
}

// atoi is safe here: the regexps only capture digit runs.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
