package serialmux

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// TestableSerialPort implements TimeoutSerialPorter with configurable behaviour
// for testing. An empty read returns 0, nil the way a real port does when its
// read timeout expires.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// Writes records each Write call's payload
	Writes [][]byte

	// ReadLatency adds a delay to each Read call
	ReadLatency time.Duration

	// WriteLatency adds a delay to each Write call
	WriteLatency time.Duration

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// ShortWrite makes the next Write report one byte fewer than requested
	ShortWrite bool

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// chunks queued by AddReadChunk, delivered one per Read
	chunks [][]byte
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	return &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
}

// Read returns the next queued chunk, or buffered data, or 0, nil when empty.
func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	t.ReadCalls++
	latency := t.ReadLatency
	t.mu.Unlock()

	if latency > 0 {
		time.Sleep(latency)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}
	if len(t.chunks) > 0 {
		n := copy(p, t.chunks[0])
		if n < len(t.chunks[0]) {
			t.chunks[0] = t.chunks[0][n:]
		} else {
			t.chunks = t.chunks[1:]
		}
		return n, nil
	}
	if t.ReadBuffer.Len() == 0 {
		return 0, nil
	}
	return t.ReadBuffer.Read(p)
}

// Write writes to the write buffer, optionally simulating latency and errors.
func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	latency := t.WriteLatency
	t.mu.Unlock()

	if latency > 0 {
		time.Sleep(latency)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	if t.ShortWrite && len(p) > 0 {
		t.ShortWrite = false
		p = p[:len(p)-1]
	}
	t.Writes = append(t.Writes, bytes.Clone(p))
	return t.WriteBuffer.Write(p)
}

// Close marks the port as closed.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	return t.CloseError
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadTimeout = timeout
	return nil
}

// AddReadData appends data to the stream returned by subsequent reads.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
}

// AddReadChunk queues data to be delivered by a single Read call, so tests
// can reproduce how the board's bytes are split across deliveries.
func (t *TestableSerialPort) AddReadChunk(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chunks = append(t.chunks, bytes.Clone(data))
}

// GetWrittenData returns all data written to the port.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return bytes.Clone(t.WriteBuffer.Bytes())
}

// WriteCount returns the number of successful writes.
func (t *TestableSerialPort) WriteCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Writes)
}

// WrittenFrames returns a copy of each successful write.
func (t *TestableSerialPort) WrittenFrames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.Writes))
	for i, w := range t.Writes {
		out[i] = bytes.Clone(w)
	}
	return out
}

// Reset clears all buffers and resets state.
func (t *TestableSerialPort) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Reset()
	t.WriteBuffer.Reset()
	t.Writes = nil
	t.chunks = nil
	t.ReadCalls = 0
	t.Closed = false
	t.ReadError = nil
	t.WriteError = nil
	t.ShortWrite = false
	t.CloseError = nil
	t.ReadLatency = 0
	t.WriteLatency = 0
}
