package serialmux

import (
	"io"
	"time"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real sniffer hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter extends SerialPorter with timeout capabilities.
// This is an optional interface that serial ports may implement.
type TimeoutSerialPorter interface {
	SerialPorter
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}

// SerialPortFactory defines an interface for creating serial ports.
// This abstraction enables dependency injection of serial port creation.
type SerialPortFactory interface {
	// Open opens a serial port at the specified path with the given options.
	Open(path string, opts PortOptions) (SerialPorter, error)
}

// SerialPortOpener is a function type for opening serial ports.
// This allows for easier testing by replacing the opener function.
type SerialPortOpener func(path string, opts PortOptions) (SerialPorter, error)
