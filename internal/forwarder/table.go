package forwarder

import "fmt"

// PortMap records which device port each host port was bound to. It is
// built up while host acknowledgements arrive and never mutated once the
// session is active.
type PortMap struct {
	m map[int]int // hostPort -> devicePort
}

// NewPortMap returns an empty mapping table.
func NewPortMap() *PortMap {
	return &PortMap{m: make(map[int]int)}
}

// Record inserts one entry. A duplicate host port indicates the handshake
// protocol was violated (exactly one acknowledgement is expected per
// requested pair), so it is reported rather than silently overwritten.
func (p *PortMap) Record(hostPort, devicePort int) error {
	if prev, ok := p.m[hostPort]; ok {
		return fmt.Errorf("host port %d already mapped to device port %d", hostPort, prev)
	}
	p.m[hostPort] = devicePort
	return nil
}

// DevicePort returns the device port mapped to hostPort.
func (p *PortMap) DevicePort(hostPort int) (int, bool) {
	dp, ok := p.m[hostPort]
	return dp, ok
}

// Len returns the number of recorded entries.
func (p *PortMap) Len() int { return len(p.m) }

// Snapshot returns a copy of the mapping for display.
func (p *PortMap) Snapshot() map[int]int {
	out := make(map[int]int, len(p.m))
	for h, d := range p.m {
		out[h] = d
	}
	return out
}
