package serialmux

import (
	"context"
	"net/http"
	"sync"

	"tailscale.com/tsweb"
)

// DisabledSerialMux is the inert link used when the board is absent
// (--disable-serial, or the port failed to open). Writes are accepted and
// discarded, Monitor blocks until cancelled, and subscriber channels are
// tracked so they close deterministically on Unsubscribe or Close.
type DisabledSerialMux struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closing     bool
	reason      string
}

// NewDisabledSerialMux returns an inert link. reason is shown on the debug page.
func NewDisabledSerialMux(reason string) *DisabledSerialMux {
	return &DisabledSerialMux{
		subscribers: make(map[string]chan string),
		reason:      reason,
	}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		// already closing: hand back a closed channel so callers don't block
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *DisabledSerialMux) Write([]byte) error { return nil }

func (d *DisabledSerialMux) Monitor(ctx context.Context, _ func([]byte)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KV("Serial link", "disabled: "+d.reason)
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "serial disabled", http.StatusServiceUnavailable)
	})
}
