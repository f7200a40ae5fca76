// Package alarm compares readings with per-channel thresholds and emits an
// event the first time a channel leaves its range.
package alarm

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/anygrow.bridge/internal/protocol"
)

// MessagePrefix marks alarm deliveries to consumers.
const MessagePrefix = "alarm:"

// Channel names one of the board's measurements.
type Channel string

const (
	Temperature  Channel = "temperature"
	Humidity     Channel = "humidity"
	CO2          Channel = "co2"
	Illumination Channel = "illumination"
)

// Channels lists every channel in evaluation order.
var Channels = []Channel{Temperature, Humidity, CO2, Illumination}

// Direction says which side of the range a value fell on.
type Direction string

const (
	Low  Direction = "low"
	High Direction = "high"
)

// Threshold is an inclusive acceptable range.
type Threshold struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (t Threshold) contains(v float64) bool { return v >= t.Min && v <= t.Max }

// Thresholds holds one range per channel.
type Thresholds struct {
	Temperature  Threshold `json:"temperature"`
	Humidity     Threshold `json:"humidity"`
	CO2          Threshold `json:"co2"`
	Illumination Threshold `json:"illumination"`
}

// DefaultThresholds returns ranges suited to a small indoor grow cabinet.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Temperature:  Threshold{Min: 18, Max: 28},
		Humidity:     Threshold{Min: 40, Max: 70},
		CO2:          Threshold{Min: 400, Max: 1000},
		Illumination: Threshold{Min: 100, Max: 5000},
	}
}

// For returns the threshold of c.
func (t Thresholds) For(c Channel) Threshold {
	switch c {
	case Temperature:
		return t.Temperature
	case Humidity:
		return t.Humidity
	case CO2:
		return t.CO2
	default:
		return t.Illumination
	}
}

// Validate checks that every range is ordered.
func (t Thresholds) Validate() error {
	for _, c := range Channels {
		th := t.For(c)
		if th.Min > th.Max {
			return fmt.Errorf("%s threshold min %v exceeds max %v", c, th.Min, th.Max)
		}
	}
	return nil
}

// Event is one fired alarm.
type Event struct {
	Channel   Channel   `json:"channel"`
	Direction Direction `json:"direction"`
	Value     float64   `json:"value"`
	Threshold Threshold `json:"threshold"`
	Time      time.Time `json:"time"`
}

// Message renders e for consumers as alarm:<channel>:<low|high>:<value>.
func (e Event) Message() string {
	return MessagePrefix + string(e.Channel) + ":" + string(e.Direction) + ":" + strconv.FormatFloat(e.Value, 'f', -1, 64)
}

// Evaluator tracks which channels have already fired.
//
// A channel is armed once it fires and does not fire again while armed.
// With rearm on recovery, the flag clears as soon as the channel reads
// back inside its range; Reset clears every flag regardless.
type Evaluator struct {
	mu              sync.Mutex
	thresholds      Thresholds
	armed           map[Channel]bool
	rearmOnRecovery bool
}

func NewEvaluator(th Thresholds, rearmOnRecovery bool) *Evaluator {
	return &Evaluator{
		thresholds:      th,
		armed:           make(map[Channel]bool),
		rearmOnRecovery: rearmOnRecovery,
	}
}

// Evaluate checks r against the thresholds and returns newly fired events.
// CO2 is skipped entirely when it carries the no-data marker.
func (e *Evaluator) Evaluate(r protocol.SensorReading) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	var events []Event
	for _, c := range Channels {
		if c == CO2 && !r.CO2Valid() {
			continue
		}
		v := value(r, c)
		th := e.thresholds.For(c)
		if th.contains(v) {
			if e.rearmOnRecovery {
				delete(e.armed, c)
			}
			continue
		}
		if e.armed[c] {
			continue
		}
		e.armed[c] = true
		dir := High
		if v < th.Min {
			dir = Low
		}
		events = append(events, Event{Channel: c, Direction: dir, Value: v, Threshold: th, Time: r.Timestamp})
	}
	return events
}

func value(r protocol.SensorReading, c Channel) float64 {
	switch c {
	case Temperature:
		return r.TemperatureC
	case Humidity:
		return r.HumidityPct
	case CO2:
		return r.CO2ppm
	default:
		return r.IlluminationLux
	}
}

// Reset clears every armed flag.
func (e *Evaluator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.armed = make(map[Channel]bool)
}

// Armed returns the channels that have fired and not been cleared, sorted.
func (e *Evaluator) Armed() []Channel {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Channel, 0, len(e.armed))
	for c := range e.armed {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetThresholds replaces the thresholds. Armed flags are kept.
func (e *Evaluator) SetThresholds(th Thresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.thresholds = th
	return nil
}

// Thresholds returns the current thresholds.
func (e *Evaluator) Thresholds() Thresholds {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.thresholds
}
