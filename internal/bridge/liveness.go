package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/anygrow.bridge/internal/monitoring"
	"github.com/banshee-data/anygrow.bridge/internal/protocol"
	"github.com/banshee-data/anygrow.bridge/internal/timeutil"
)

const (
	DefaultPollInterval   = time.Second
	DefaultMaxMissedPolls = 5
)

// State is the poll cycle state.
type State int

const (
	Idle State = iota
	AwaitingResponse
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingResponse:
		return "awaiting_response"
	}
	return "unknown"
}

// FrameWriter is the write side of the serial link.
type FrameWriter interface {
	Write(frame []byte) error
}

// LivenessScheduler polls the board once per tick and recovers on its own
// when replies stop arriving.
//
// On a tick in Idle it writes a sensor request and waits. Every tick spent
// waiting counts as a miss; once misses exceed the limit the scheduler drops
// back to Idle so the following tick polls again. Reset, called for each
// decoded reading or consumer acknowledgement, returns it to Idle at once.
type LivenessScheduler struct {
	link      FrameWriter
	clock     timeutil.Clock
	interval  time.Duration
	maxMisses int

	mu         sync.Mutex
	state      State
	misses     int
	requests   uint64
	recoveries uint64
}

func NewLivenessScheduler(link FrameWriter, clock timeutil.Clock, interval time.Duration, maxMisses int) *LivenessScheduler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxMisses <= 0 {
		maxMisses = DefaultMaxMissedPolls
	}
	return &LivenessScheduler{link: link, clock: clock, interval: interval, maxMisses: maxMisses}
}

// Tick runs one scheduler step.
func (l *LivenessScheduler) Tick() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == Idle {
		if err := l.link.Write(protocol.SensorRequestFrame()); err != nil {
			monitoring.Logf("liveness: sensor request failed: %v", err)
			return
		}
		l.state = AwaitingResponse
		l.misses = 0
		l.requests++
		return
	}

	l.misses++
	if l.misses > l.maxMisses {
		monitoring.Logf("liveness: no reply after %d polls, forcing idle", l.misses)
		l.state = Idle
		l.misses = 0
		l.recoveries++
	}
}

// Reset returns the scheduler to Idle with no misses.
func (l *LivenessScheduler) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = Idle
	l.misses = 0
}

// State returns the current state and miss count.
func (l *LivenessScheduler) State() (State, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state, l.misses
}

// Stats returns the number of requests written and forced recoveries.
func (l *LivenessScheduler) Stats() (requests, recoveries uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.requests, l.recoveries
}

// Run polls immediately and then ticks every interval until ctx is
// cancelled. Ticks run one at a time on the calling goroutine.
func (l *LivenessScheduler) Run(ctx context.Context) {
	l.Tick()

	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			l.Tick()
		}
	}
}
