// Package hub fans decoded serial traffic out to network consumers and
// collects the messages they send back.
package hub

import (
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/banshee-data/anygrow.bridge/internal/monitoring"
)

var (
	ErrConsumerClosed = errors.New("consumer closed")
	ErrSendBufferFull = errors.New("consumer send buffer full")
)

// Consumer is one attached receiver of published text. Send must not block.
type Consumer interface {
	ID() string
	Send(text string) error
}

// Broadcaster maintains the set of attached consumers. Attach and Detach are
// safe while a Publish is in progress; a publish delivers to the consumers
// attached when it started.
type Broadcaster struct {
	mu        sync.RWMutex
	consumers map[string]Consumer
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{consumers: make(map[string]Consumer)}
}

// Attach adds c, replacing any consumer with the same ID.
func (b *Broadcaster) Attach(c Consumer) {
	b.mu.Lock()
	b.consumers[c.ID()] = c
	n := len(b.consumers)
	b.mu.Unlock()
	monitoring.Logf("consumer %s attached (%d total)", c.ID(), n)
}

// Detach removes the consumer with c's ID. It reports whether one was attached.
func (b *Broadcaster) Detach(c Consumer) bool {
	b.mu.Lock()
	_, ok := b.consumers[c.ID()]
	delete(b.consumers, c.ID())
	n := len(b.consumers)
	b.mu.Unlock()
	if ok {
		monitoring.Logf("consumer %s detached (%d total)", c.ID(), n)
	}
	return ok
}

// Publish sends text to every attached consumer and returns how many accepted
// it. A consumer whose Send fails is detached; the others are unaffected.
func (b *Broadcaster) Publish(text string) int {
	delivered := 0
	for _, c := range b.snapshot() {
		if err := c.Send(text); err != nil {
			monitoring.Logf("dropping consumer %s: %v", c.ID(), err)
			b.Detach(c)
			continue
		}
		delivered++
	}
	return delivered
}

// Count returns the number of attached consumers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.consumers)
}

// IDs returns the attached consumer IDs in sorted order.
func (b *Broadcaster) IDs() []string {
	b.mu.RLock()
	ids := make([]string, 0, len(b.consumers))
	for id := range b.consumers {
		ids = append(ids, id)
	}
	b.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// CloseAll detaches every consumer, closing those that implement io.Closer.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	consumers := b.consumers
	b.consumers = make(map[string]Consumer)
	b.mu.Unlock()

	for _, c := range consumers {
		if cl, ok := c.(io.Closer); ok {
			if err := cl.Close(); err != nil {
				monitoring.Logf("closing consumer %s: %v", c.ID(), err)
			}
		}
	}
}

func (b *Broadcaster) snapshot() []Consumer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Consumer, 0, len(b.consumers))
	for _, c := range b.consumers {
		out = append(out, c)
	}
	return out
}
