// Package ledtimer switches the LED according to a daily schedule of up to
// three segments.
package ledtimer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/anygrow.bridge/internal/protocol"
)

// MaxSegments is the number of segments a profile may hold.
const MaxSegments = 3

const clockLayout = "15:04"

var ErrTooManySegments = errors.New("too many timer segments")

// Segment switches the LED to Mode from Start until End, both "HH:MM" local
// time. Start is inclusive and End exclusive; Start == End covers the whole
// day and Start > End wraps past midnight.
type Segment struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Mode  string `json:"mode"`
}

// Profile is a named daily schedule.
type Profile struct {
	Name     string    `json:"name"`
	Enabled  bool      `json:"enabled"`
	Segments []Segment `json:"segments"`
}

type parsedSegment struct {
	start, end time.Duration
	mode       protocol.Mode
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse(clockLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (s Segment) parse() (parsedSegment, error) {
	start, err := parseClock(s.Start)
	if err != nil {
		return parsedSegment{}, err
	}
	end, err := parseClock(s.End)
	if err != nil {
		return parsedSegment{}, err
	}
	mode, err := protocol.ParseMode(s.Mode)
	if err != nil {
		return parsedSegment{}, err
	}
	if mode == protocol.ModeOff {
		return parsedSegment{}, fmt.Errorf("segment mode must be On or Mood, got %q", s.Mode)
	}
	return parsedSegment{start: start, end: end, mode: mode}, nil
}

func (p parsedSegment) contains(tod time.Duration) bool {
	switch {
	case p.start == p.end:
		return true
	case p.start < p.end:
		return tod >= p.start && tod < p.end
	default:
		return tod >= p.start || tod < p.end
	}
}

// Validate checks segment count, times and modes.
func (p *Profile) Validate() error {
	if p == nil {
		return nil
	}
	if len(p.Segments) > MaxSegments {
		return fmt.Errorf("%w: %d, max %d", ErrTooManySegments, len(p.Segments), MaxSegments)
	}
	for i, s := range p.Segments {
		if _, err := s.parse(); err != nil {
			return fmt.Errorf("segment %d: %w", i+1, err)
		}
	}
	return nil
}

// DesiredMode returns the LED mode the profile asks for at t's local time of
// day: the mode of the first segment containing t, or Off when the profile is
// absent, disabled or has no matching segment. Invalid segments are skipped.
func (p *Profile) DesiredMode(t time.Time) protocol.Mode {
	if p == nil || !p.Enabled {
		return protocol.ModeOff
	}
	tod := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
	for _, s := range p.Segments {
		ps, err := s.parse()
		if err != nil {
			continue
		}
		if ps.contains(tod) {
			return ps.mode
		}
	}
	return protocol.ModeOff
}

// Clone returns a deep copy of p.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Segments = append([]Segment(nil), p.Segments...)
	return &c
}
