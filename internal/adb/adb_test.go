package adb

import (
	"reflect"
	"testing"
)

func TestParseDevices(t *testing.T) {
	out := `List of devices attached
emulator-5554          device product:sdk_gphone64 model:sdk_gphone64_x86_64 device:emu64x transport_id:1
0A3B1C2D               unauthorized transport_id:2
* daemon started successfully *

R5CT31ABCDE            offline usb:1-4 product:beyond1q model:SM_G973F
`
	got := parseDevices(out)
	if len(got) != 3 {
		t.Fatalf("parsed %d entries, want 3: %+v", len(got), got)
	}
	first := got[0]
	if first.Serial != "emulator-5554" || first.State != "device" {
		t.Fatalf("unexpected first entry: %+v", first)
	}
	if first.Product != "sdk_gphone64" || first.ModelID != "sdk_gphone64_x86_64" {
		t.Fatalf("product/model not extracted: %+v", first)
	}
	if !first.Online() {
		t.Fatal("state 'device' should be online")
	}
	if got[1].State != "unauthorized" || got[1].Online() {
		t.Fatalf("unexpected second entry: %+v", got[1])
	}
	if got[2].ModelID != "SM_G973F" {
		t.Fatalf("unexpected third entry: %+v", got[2])
	}
}

func TestParseDevicesEmptyOutput(t *testing.T) {
	if got := parseDevices("List of devices attached\n\n"); len(got) != 0 {
		t.Fatalf("expected no entries, got %+v", got)
	}
}

func TestParsePortOwners(t *testing.T) {
	out := `Active Internet connections (only servers)
Proto Recv-Q Send-Q Local Address           Foreign Address         State       PID/Program name
tcp        0      0 0.0.0.0:9000            0.0.0.0:*               LISTEN      1234/device_forwarder
tcp        0      0 127.0.0.1:9000          0.0.0.0:*               LISTEN      5678/com.example.app
tcp        0      0 0.0.0.0:9001            0.0.0.0:*               LISTEN      4321/other
tcp6       0      0 :::5555                 :::*                    LISTEN      -
udp        0      0 0.0.0.0:9000            0.0.0.0:*                           999/dnsmasq
`
	got := parsePortOwners(out, 9000)
	want := []PortOwner{
		{PID: 1234, Name: "device_forwarder"},
		{PID: 5678, Name: "com.example.app"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("owners = %+v, want %+v", got, want)
	}

	if got := parsePortOwners(out, 5555); len(got) != 0 {
		t.Fatalf("lines without pid/name must be skipped, got %+v", got)
	}
}

func TestForwardArgs(t *testing.T) {
	got := ForwardArgs("emulator-5554", 7000, "devfwd_control")
	want := []string{"-s", "emulator-5554", "forward", "tcp:7000", "localabstract:devfwd_control"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
}

func TestShellArgs(t *testing.T) {
	got := ShellArgs("0A3B1C2D", "/data/local/tmp/device_forwarder -D")
	want := []string{"-s", "0A3B1C2D", "shell", "/data/local/tmp/device_forwarder -D"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
}

func TestFirstField(t *testing.T) {
	if got := firstField("abc123  /data/local/tmp/device_forwarder"); got != "abc123" {
		t.Fatalf("firstField = %q", got)
	}
	if got := firstField("   "); got != "" {
		t.Fatalf("firstField on blank input = %q", got)
	}
}
