package util

import (
	"fmt"
	"net"
)

const (
	MinPort = 1
	MaxPort = 65535
)

// ValidatePort checks if port is in valid range (1-65535).
func ValidatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("port %d out of range (must be %d-%d)", port, MinPort, MaxPort)
	}
	return nil
}

// ValidateDevicePort is ValidatePort but additionally accepts 0, which in a
// forward request means "let the device forwarder pick a free port".
func ValidateDevicePort(port int) error {
	if port == 0 {
		return nil
	}
	return ValidatePort(port)
}

// AllocatePort asks the kernel for a free local TCP port by binding to
// port 0 and immediately releasing the listener. The returned port stays
// free only until something else binds it, which is fine for handing a
// control port to a process we spawn right away.
func AllocatePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("allocate local port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
