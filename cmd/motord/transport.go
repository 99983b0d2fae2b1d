// cmd/motord/transport.go
package main

import (
	"context"
	"errors"
	"io"

	"github.com/tarm/serial"

	"motorcode-go/services/bridge"
)

// registerSerialTransport adds the host-side "serial" transport: a tarm
// port named by the bridge config's serial section, 8N1 at the configured
// baud.
func registerSerialTransport() {
	bridge.RegisterTransport("serial", func(tc bridge.TransportConfig) (bridge.Transport, error) {
		if tc.Serial == nil || tc.Serial.Port == "" {
			return nil, errors.New("serial transport requires a port")
		}
		cfg := &serial.Config{Name: tc.Serial.Port, Baud: tc.Serial.Baud}
		if cfg.Baud == 0 {
			cfg.Baud = 115200
		}
		return &serialTransport{cfg: cfg}, nil
	})
}

type serialTransport struct {
	cfg *serial.Config
}

// Open dials on every call so the bridge's retry loop reopens the device
// after an unplug.
func (t *serialTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	return serial.OpenPort(t.cfg)
}

func (t *serialTransport) String() string { return "serial:" + t.cfg.Name }
