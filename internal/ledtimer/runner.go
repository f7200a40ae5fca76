package ledtimer

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/anygrow.bridge/internal/monitoring"
	"github.com/banshee-data/anygrow.bridge/internal/protocol"
	"github.com/banshee-data/anygrow.bridge/internal/timeutil"
)

// DefaultInterval is how often the schedule is checked.
const DefaultInterval = 10 * time.Second

// ModeRouter sends an LED mode to the board.
type ModeRouter interface {
	Route(modeText string) error
}

// Runner applies a Profile periodically, routing a mode only when it differs
// from the last one it successfully sent.
type Runner struct {
	router   ModeRouter
	clock    timeutil.Clock
	interval time.Duration

	mu      sync.Mutex
	profile *Profile
	loc     *time.Location
	last    protocol.Mode
}

func NewRunner(p *Profile, router ModeRouter, clock timeutil.Clock, interval time.Duration) *Runner {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Runner{router: router, clock: clock, interval: interval, profile: p.Clone(), loc: time.Local}
}

// Check evaluates the profile now. It returns the desired mode and whether a
// command was sent.
func (r *Runner) Check() (protocol.Mode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := r.profile.DesiredMode(r.clock.Now().In(r.loc))
	if want == r.last {
		return want, false
	}
	if err := r.router.Route(string(want)); err != nil {
		monitoring.Logf("led timer: failed to switch to %s: %v", want, err)
		return want, false
	}
	monitoring.Logf("led timer: switched %s -> %s", displayMode(r.last), want)
	r.last = want
	return want, true
}

func displayMode(m protocol.Mode) string {
	if m == "" {
		return "(unknown)"
	}
	return string(m)
}

// Run checks immediately and then on every interval until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.Check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			r.Check()
		}
	}
}

// SetProfile replaces the schedule. The next check applies it.
func (r *Runner) SetProfile(p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profile = p.Clone()
	return nil
}

// SetLocation sets the timezone segment times are read in. The default is
// the host's local time.
func (r *Runner) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loc = loc
}

// Profile returns a copy of the current schedule.
func (r *Runner) Profile() *Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.profile.Clone()
}

// LastMode returns the last mode successfully sent, or "" if none.
func (r *Runner) LastMode() protocol.Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
