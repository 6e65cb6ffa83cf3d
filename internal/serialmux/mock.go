package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

// MockSerialPort implements SerialPorter for testing and dev mode. Reads
// replay a recorded byte stream through a pipe; writes are discarded. Close
// tears the pipe down so the replay goroutine exits.
type MockSerialPort struct {
	r *io.PipeReader
}

func (m *MockSerialPort) Read(p []byte) (n int, err error)  { return m.r.Read(p) }
func (m *MockSerialPort) Write(p []byte) (n int, err error) { return len(p), nil }
func (m *MockSerialPort) Close() error                      { return m.r.Close() }

// NewMockSerialMux creates a SerialMux instance backed by a mock serial port
// that replays the given raw sniffer byte stream at a steady cadence, looping
// until the mux is closed. Used by dev mode when no hardware is attached.
func NewMockSerialMux(stream []byte) *SerialMux[*MockSerialPort] {
	r, w := io.Pipe()

	go func() {
		defer w.Close()
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			// Fails with io.ErrClosedPipe once the reader side is closed.
			if _, err := w.Write(stream); err != nil {
				return
			}
		}
	}()

	return NewSerialMux(&MockSerialPort{r: r})
}

// TestableSerialPort implements SerialPorter with configurable behaviour for
// testing. It provides control over reads, writes, errors, and latency.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadLatency adds a delay to each Read call
	ReadLatency time.Duration

	// ReadError is returned by Read once the buffer is drained, if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// WriteCalls records the number of Write calls
	WriteCalls int

	// BlockOnEmpty causes Read to wait for more data instead of returning
	// io.EOF when the buffer is drained
	BlockOnEmpty bool

	readCond *sync.Cond
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

// Append adds bytes for subsequent Read calls and wakes blocked readers.
func (t *TestableSerialPort) Append(p []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(p)
	t.readCond.Broadcast()
}

// Read reads from the read buffer, optionally simulating latency and errors.
func (t *TestableSerialPort) Read(p []byte) (n int, err error) {
	if t.ReadLatency > 0 {
		time.Sleep(t.ReadLatency)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++

	for t.ReadBuffer.Len() == 0 {
		if t.Closed {
			return 0, errors.New("serial port closed")
		}
		if t.ReadError != nil {
			return 0, t.ReadError
		}
		if !t.BlockOnEmpty {
			return 0, io.EOF
		}
		t.readCond.Wait()
	}

	return t.ReadBuffer.Read(p)
}

// Write appends to the write buffer unless an error is configured.
func (t *TestableSerialPort) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++
	if t.WriteError != nil {
		return 0, t.WriteError
	}
	return t.WriteBuffer.Write(p)
}

// Close marks the port closed and wakes any blocked readers.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	t.readCond.Broadcast()
	return t.CloseError
}
