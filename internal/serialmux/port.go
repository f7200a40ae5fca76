package serialmux

import (
	"io"
	"time"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter is implemented by ports whose reads can be bounded.
// A read that times out returns 0, nil.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}
