package ledtimer

import (
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/anygrow.bridge/internal/protocol"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 4, 1, hour, minute, 0, 0, time.UTC)
}

func TestDesiredMode(t *testing.T) {
	profile := &Profile{
		Name:    "veg",
		Enabled: true,
		Segments: []Segment{
			{Start: "06:00", End: "18:00", Mode: "On"},
			{Start: "22:00", End: "02:00", Mode: "mood"},
		},
	}

	tests := []struct {
		t    time.Time
		want protocol.Mode
	}{
		{at(5, 59), protocol.ModeOff},
		{at(6, 0), protocol.ModeOn},
		{at(12, 30), protocol.ModeOn},
		{at(17, 59), protocol.ModeOn},
		{at(18, 0), protocol.ModeOff},
		{at(21, 59), protocol.ModeOff},
		{at(22, 0), protocol.ModeMood},
		{at(23, 59), protocol.ModeMood},
		{at(0, 0), protocol.ModeMood},
		{at(1, 59), protocol.ModeMood},
		{at(2, 0), protocol.ModeOff},
	}
	for _, tt := range tests {
		if got := profile.DesiredMode(tt.t); got != tt.want {
			t.Errorf("DesiredMode(%s) = %s, want %s", tt.t.Format("15:04"), got, tt.want)
		}
	}
}

func TestDesiredMode_AllDaySegment(t *testing.T) {
	p := &Profile{Enabled: true, Segments: []Segment{{Start: "07:00", End: "07:00", Mode: "Mood"}}}
	for _, h := range []int{0, 7, 13, 23} {
		if got := p.DesiredMode(at(h, 0)); got != protocol.ModeMood {
			t.Errorf("hour %d: got %s, want Mood", h, got)
		}
	}
}

func TestDesiredMode_FirstMatchWins(t *testing.T) {
	p := &Profile{Enabled: true, Segments: []Segment{
		{Start: "08:00", End: "12:00", Mode: "Mood"},
		{Start: "00:00", End: "00:00", Mode: "On"},
	}}
	if got := p.DesiredMode(at(9, 0)); got != protocol.ModeMood {
		t.Errorf("got %s, want Mood", got)
	}
	if got := p.DesiredMode(at(13, 0)); got != protocol.ModeOn {
		t.Errorf("got %s, want On", got)
	}
}

func TestDesiredMode_OffCases(t *testing.T) {
	var nilProfile *Profile
	if got := nilProfile.DesiredMode(at(12, 0)); got != protocol.ModeOff {
		t.Errorf("nil profile: got %s", got)
	}
	disabled := &Profile{Enabled: false, Segments: []Segment{{Start: "00:00", End: "00:00", Mode: "On"}}}
	if got := disabled.DesiredMode(at(12, 0)); got != protocol.ModeOff {
		t.Errorf("disabled profile: got %s", got)
	}
	broken := &Profile{Enabled: true, Segments: []Segment{{Start: "25:00", End: "02:00", Mode: "On"}}}
	if got := broken.DesiredMode(at(1, 0)); got != protocol.ModeOff {
		t.Errorf("invalid segment should be skipped: got %s", got)
	}
}

func TestValidate(t *testing.T) {
	good := &Profile{Enabled: true, Segments: []Segment{{Start: "06:00", End: "18:00", Mode: "On"}}}
	if err := good.Validate(); err != nil {
		t.Errorf("valid profile rejected: %v", err)
	}
	var nilProfile *Profile
	if err := nilProfile.Validate(); err != nil {
		t.Errorf("nil profile rejected: %v", err)
	}

	tooMany := &Profile{Segments: make([]Segment, 4)}
	if err := tooMany.Validate(); !errors.Is(err, ErrTooManySegments) {
		t.Errorf("expected ErrTooManySegments, got %v", err)
	}

	for _, s := range []Segment{
		{Start: "6am", End: "18:00", Mode: "On"},
		{Start: "06:00", End: "24:00", Mode: "On"},
		{Start: "06:00", End: "18:00", Mode: "Off"},
		{Start: "06:00", End: "18:00", Mode: "Strobe"},
	} {
		p := &Profile{Segments: []Segment{s}}
		if err := p.Validate(); err == nil {
			t.Errorf("segment %+v should be rejected", s)
		}
	}
}

func TestClone(t *testing.T) {
	p := &Profile{Name: "a", Segments: []Segment{{Start: "01:00", End: "02:00", Mode: "On"}}}
	c := p.Clone()
	c.Segments[0].Mode = "Mood"
	if p.Segments[0].Mode != "On" {
		t.Error("Clone shares segments with the original")
	}
	var nilProfile *Profile
	if nilProfile.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}
