// Package bridge ties the serial link to its consumers: it decodes chunks
// read from the board, fans frames and alarms out, stores readings, keeps the
// board polled and turns consumer messages into commands.
package bridge

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/anygrow.bridge/internal/alarm"
	"github.com/banshee-data/anygrow.bridge/internal/monitoring"
	"github.com/banshee-data/anygrow.bridge/internal/protocol"
	"github.com/banshee-data/anygrow.bridge/internal/timeutil"
)

// Consumer message prefixes.
const (
	// FramePrefix marks a reassembled frame sent to consumers. The spelling
	// is part of the wire contract with existing consumers.
	FramePrefix = "serial_recive:"
	AckPrefix   = "comm_state:"
	WritePrefix = "serial_write:"
)

// Store persists readings and fired alarms.
type Store interface {
	RecordReading(protocol.SensorReading) error
	RecordAlarm(channel, direction string, value float64) error
}

// Publisher fans text out to attached consumers.
type Publisher interface {
	Publish(text string) int
	Count() int
}

// Link is the serial link as seen by the bridge.
type Link interface {
	FrameWriter
	Monitor(ctx context.Context, onChunk func([]byte)) error
}

// Config wires a Bridge. Store, Publisher and Alarms may be nil.
type Config struct {
	Link           Link
	Store          Store
	Publisher      Publisher
	Alarms         *alarm.Evaluator
	Clock          timeutil.Clock
	PollInterval   time.Duration
	MaxMissedPolls int
}

type Bridge struct {
	link     Link
	store    Store
	pub      Publisher
	alarms   *alarm.Evaluator
	clock    timeutil.Clock
	decoder  *protocol.FrameDecoder
	liveness *LivenessScheduler
	router   *CommandRouter

	mu        sync.RWMutex
	latest    *protocol.SensorReading
	frames    uint64
	readings  uint64
	dropped   uint64
	storeErrs uint64
}

func New(cfg Config) *Bridge {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Bridge{
		link:     cfg.Link,
		store:    cfg.Store,
		pub:      cfg.Publisher,
		alarms:   cfg.Alarms,
		clock:    clock,
		decoder:  protocol.NewFrameDecoder(clock.Now),
		liveness: NewLivenessScheduler(cfg.Link, clock, cfg.PollInterval, cfg.MaxMissedPolls),
		router:   NewCommandRouter(cfg.Link),
	}
}

// Liveness returns the poll scheduler.
func (b *Bridge) Liveness() *LivenessScheduler { return b.liveness }

// Router returns the LED command router.
func (b *Bridge) Router() *CommandRouter { return b.router }

// Alarms returns the alarm evaluator, which may be nil.
func (b *Bridge) Alarms() *alarm.Evaluator { return b.alarms }

// Run polls the board and reads the link until ctx is cancelled or the link
// fails. The reader loop runs on the calling goroutine and owns the decoder.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.liveness.Run(ctx)
	}()

	err := b.link.Monitor(ctx, b.HandleChunk)
	cancel()
	wg.Wait()
	return err
}

// HandleChunk feeds one delivery from the link through the decoder. It must
// only be called from the reader loop.
func (b *Bridge) HandleChunk(p []byte) {
	res, err := b.decoder.FeedBytes(p)
	if err != nil {
		monitoring.Logf("discarding frame: %v", err)
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
		return
	}
	if !res.Complete() {
		return
	}

	b.mu.Lock()
	b.frames++
	b.mu.Unlock()
	b.publish(FramePrefix + res.Frame)

	if res.Reading != nil {
		b.handleReading(*res.Reading)
	}
}

func (b *Bridge) handleReading(r protocol.SensorReading) {
	b.liveness.Reset()

	b.mu.Lock()
	b.latest = &r
	b.readings++
	b.mu.Unlock()

	if b.store != nil {
		if err := b.store.RecordReading(r); err != nil {
			monitoring.Logf("failed to store reading: %v", err)
			b.mu.Lock()
			b.storeErrs++
			b.mu.Unlock()
		}
	}

	if b.alarms == nil {
		return
	}
	for _, ev := range b.alarms.Evaluate(r) {
		monitoring.Logf("alarm: %s %s at %v (range %v..%v)", ev.Channel, ev.Direction, ev.Value, ev.Threshold.Min, ev.Threshold.Max)
		b.publish(ev.Message())
		if b.store != nil {
			if err := b.store.RecordAlarm(string(ev.Channel), string(ev.Direction), ev.Value); err != nil {
				monitoring.Logf("failed to store alarm: %v", err)
			}
		}
	}
}

func (b *Bridge) publish(text string) {
	if b.pub != nil {
		b.pub.Publish(text)
	}
}

// HandleConsumerMessage handles one text message from a consumer.
// Acknowledgements reset the poll cycle and serial_write commands are routed
// to the board; nothing is reported back to the consumer.
func (b *Bridge) HandleConsumerMessage(consumerID, text string) {
	switch {
	case strings.HasPrefix(text, AckPrefix):
		b.liveness.Reset()
	case strings.HasPrefix(text, WritePrefix):
		// Route logs unknown modes itself
		if err := b.router.Route(strings.TrimPrefix(text, WritePrefix)); err != nil {
			monitoring.Logf("command from %s not sent: %v", consumerID, err)
		}
	default:
		monitoring.Logf("ignoring message from %s: %q", consumerID, text)
	}
}
