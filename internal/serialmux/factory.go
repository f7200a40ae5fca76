package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// NewRealSerialMux opens the serial port at path with the given line settings
// and wraps it in a SerialMux.
func NewRealSerialMux(path string, opts PortOptions, muxOpts ...Option) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}

	return NewSerialMux[serial.Port](port, muxOpts...), nil
}
