package forwarder

import "testing"

// The grammar tests feed canned lines straight into the parser, with no
// processes involved — the parser is deliberately decoupled from I/O so
// these can enumerate the protocol's edge cases cheaply.

func TestParseDeviceLine(t *testing.T) {
	cases := []struct {
		name     string
		line     string
		decisive bool
		ready    bool
		message  string
	}{
		{name: "ready", line: "Starting Device Forwarder.", decisive: true, ready: true},
		{name: "ready with prefix", line: "[0101/120000:INFO] Starting Device Forwarder.", decisive: true, ready: true},
		{name: "error", line: "device_forwarder:ERROR:cannot bind control socket", decisive: true, message: "cannot bind control socket"},
		{name: "noise", line: "loading configuration", decisive: false},
		{name: "empty", line: "", decisive: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome, decisive := ParseDeviceLine(tc.line)
			if decisive != tc.decisive {
				t.Fatalf("decisive = %v, want %v", decisive, tc.decisive)
			}
			if !decisive {
				return
			}
			if outcome.Ready != tc.ready {
				t.Fatalf("ready = %v, want %v", outcome.Ready, tc.ready)
			}
			if outcome.Message != tc.message {
				t.Fatalf("message = %q, want %q", outcome.Message, tc.message)
			}
		})
	}
}

func TestParseHostLine(t *testing.T) {
	ack, decisive := ParseHostLine("Forwarding device port 9001 to host 8080:")
	if !decisive || !ack.OK {
		t.Fatalf("expected successful ack, got decisive=%v ack=%+v", decisive, ack)
	}
	if ack.DevicePort != 9001 || ack.HostPort != 8080 {
		t.Fatalf("unexpected ports: %+v", ack)
	}

	ack, decisive = ParseHostLine("Couldn't start forwarder server for port spec: 9000:8081")
	if !decisive || ack.OK {
		t.Fatalf("expected failure ack, got decisive=%v ack=%+v", decisive, ack)
	}
	if ack.DevicePort != 9000 || ack.HostPort != 8081 {
		t.Fatalf("unexpected ports: %+v", ack)
	}

	if _, decisive := ParseHostLine("listening on control port"); decisive {
		t.Fatal("noise line should not be decisive")
	}
}

func TestPortMapRejectsDuplicateHostPort(t *testing.T) {
	pm := NewPortMap()
	if err := pm.Record(8080, 9001); err != nil {
		t.Fatal(err)
	}
	if err := pm.Record(8080, 9002); err == nil {
		t.Fatal("expected duplicate host port to be rejected")
	}
	if dp, ok := pm.DevicePort(8080); !ok || dp != 9001 {
		t.Fatalf("mapping changed by rejected record: %d %v", dp, ok)
	}
}
