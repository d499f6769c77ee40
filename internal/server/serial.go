package server

import (
	"context"
	"fmt"

	serial "go.bug.st/serial"
)

// SerialConfig selects the device for the serial bridge.
type SerialConfig struct {
	Device   string
	BaudRate int
}

// OpenSerial opens a serial device (e.g. /dev/ttyUSB0) in 8N1 mode.
func OpenSerial(cfg SerialConfig) (serial.Port, error) {
	baud := cfg.BaudRate
	if baud <= 0 {
		baud = 115200
	}
	p, err := serial.Open(cfg.Device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Device, err)
	}
	return p, nil
}

// ServeSerial bridges the line protocol onto a serial device. The device is
// one more session: it sends commands and receives telemetry like a TCP
// client.
func (s *Server) ServeSerial(ctx context.Context, cfg SerialConfig) error {
	port, err := OpenSerial(cfg)
	if err != nil {
		return err
	}
	s.log.Info("serial bridge open", "device", cfg.Device, "baud", cfg.BaudRate)
	s.ServeConn(ctx, "serial:"+cfg.Device, port)
	return nil
}
