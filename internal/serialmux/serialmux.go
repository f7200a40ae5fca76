// Package serialmux owns the serial link to the board. A single reader loop
// polls the port with a bounded read timeout, writes from any goroutine are
// serialised, and debug subscribers can tail every chunk that is read.
package serialmux

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/anygrow.bridge/internal/monitoring"
	"github.com/banshee-data/anygrow.bridge/internal/protocol"
	"github.com/banshee-data/anygrow.bridge/internal/timeutil"
)

var (
	ErrWriteFailed = errors.New("failed to write to serial port")
	ErrClosed      = errors.New("serial port closed")
)

const (
	// DefaultReadTimeout bounds each blocking read on the port.
	DefaultReadTimeout = 100 * time.Millisecond
	// DefaultIdleSleep is slept after a read that returned no bytes.
	DefaultIdleSleep = 10 * time.Millisecond

	readBufferSize       = 256
	subscriberBufferSize = 32
)

// SerialMux multiplexes a single serial port: one reader loop hands every
// chunk to a callback and to debug subscribers, while Write may be called
// concurrently from the poller and the command router.
type SerialMux[T SerialPorter] struct {
	port        T
	clock       timeutil.Clock
	readTimeout time.Duration
	idleSleep   time.Duration

	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// SerialMuxInterface is the link surface used by the bridge and the HTTP server.
type SerialMuxInterface interface {
	// Subscribe returns a channel receiving every chunk read from the port,
	// rendered as comma separated tokens. Slow subscribers miss chunks.
	Subscribe() (string, chan string)
	// Unsubscribe closes and removes a subscriber channel.
	Unsubscribe(string)
	// Write sends a complete frame to the port.
	Write([]byte) error
	// Monitor runs the reader loop until ctx is cancelled or the port fails.
	Monitor(ctx context.Context, onChunk func([]byte)) error
	// Close closes all subscriber channels and the port.
	Close() error
	// AttachAdminRoutes attaches the serial debug endpoints under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// Option configures a SerialMux.
type Option func(*muxOptions)

type muxOptions struct {
	clock       timeutil.Clock
	readTimeout time.Duration
	idleSleep   time.Duration
}

// WithClock replaces the clock used for idle sleeps.
func WithClock(c timeutil.Clock) Option {
	return func(o *muxOptions) { o.clock = c }
}

// WithReadTimeout sets the per-read timeout applied to ports that support one.
func WithReadTimeout(d time.Duration) Option {
	return func(o *muxOptions) { o.readTimeout = d }
}

// WithIdleSleep sets the pause after an empty read. Values <= 0 keep the default.
func WithIdleSleep(d time.Duration) Option {
	return func(o *muxOptions) { o.idleSleep = d }
}

// NewSerialMux creates a SerialMux over an already opened port.
func NewSerialMux[T SerialPorter](port T, opts ...Option) *SerialMux[T] {
	o := muxOptions{
		clock:       timeutil.RealClock{},
		readTimeout: DefaultReadTimeout,
		idleSleep:   DefaultIdleSleep,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.idleSleep <= 0 {
		o.idleSleep = DefaultIdleSleep
	}
	return &SerialMux[T]{
		port:        port,
		clock:       o.clock,
		readTimeout: o.readTimeout,
		idleSleep:   o.idleSleep,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBufferSize)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Write sends frame to the port. Concurrent writers never interleave bytes.
func (s *SerialMux[T]) Write(frame []byte) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if s.isClosing() {
		return ErrClosed
	}
	n, err := s.port.Write(frame)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if n != len(frame) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrWriteFailed, n, len(frame))
	}
	return nil
}

// Monitor reads from the port until ctx is cancelled, the mux is closed or the
// port reports end of stream. Each non-empty read is passed to onChunk on the
// calling goroutine; an empty read is followed by a short idle sleep.
func (s *SerialMux[T]) Monitor(ctx context.Context, onChunk func([]byte)) error {
	if tp, ok := any(s.port).(TimeoutSerialPorter); ok && s.readTimeout > 0 {
		if err := tp.SetReadTimeout(s.readTimeout); err != nil {
			return fmt.Errorf("failed to set read timeout: %w", err)
		}
	}

	buf := make([]byte, readBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.isClosing() {
			return nil
		}

		n, err := s.port.Read(buf)
		if n > 0 {
			chunk := bytes.Clone(buf[:n])
			if onChunk != nil {
				onChunk(chunk)
			}
			s.publish(protocol.RenderTokens(chunk))
		}
		if err != nil {
			if errors.Is(err, io.EOF) || s.isClosing() {
				return nil
			}
			return fmt.Errorf("serial read: %w", err)
		}
		if n == 0 {
			s.clock.Sleep(s.idleSleep)
		}
	}
}

func (s *SerialMux[T]) publish(line string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
			// if the channel is full skip so as not to block the reader
		}
	}
}

func (s *SerialMux[T]) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

// Close closes every subscriber channel and the port. Subsequent calls are no-ops.
func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	if s.closing {
		s.closingMu.Unlock()
		return nil
	}
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()

	monitoring.Logf("closing serial port")
	return s.port.Close()
}
