package sessions

import (
	"devfwd/internal/adb"
	"devfwd/internal/appconfig"
	"devfwd/internal/expect"
	"devfwd/internal/forwarder"
	"devfwd/internal/model"
	"time"
)

// ADBOpener opens real forwarding sessions against adb-attached devices,
// with forwarder options taken from application config.
type ADBOpener struct {
	Client      *adb.Client
	Config      appconfig.ForwarderConfig
	ToolWrapper string
}

// NewADBOpener builds an opener from forwarder config.
func NewADBOpener(cfg appconfig.ForwarderConfig) *ADBOpener {
	return &ADBOpener{Client: adb.New(), Config: cfg}
}

// OpenSession implements Opener.
func (o *ADBOpener) OpenSession(serial string, pairs []model.PortPair) (ForwardSession, error) {
	dev := o.Client.NewDevice(serial)
	sess, err := forwarder.Open(dev, expect.PTYSpawner{}, forwarder.Options{
		Pairs:            pairs,
		ToolWrapper:      o.ToolWrapper,
		BindAddr:         o.Config.BindAddr,
		HostBinary:       o.Config.HostBinary,
		DeviceBinary:     o.Config.DeviceBinary,
		DeviceBinaryPath: o.Config.DeviceBinaryPath,
		ControlSocket:    o.Config.ControlSocket,
		HandshakeTimeout: time.Duration(o.Config.HandshakeTimeoutSeconds) * time.Second,
		KillStaleHost:    true,
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}
