package bridge

import (
	"time"

	"github.com/banshee-data/anygrow.bridge/internal/alarm"
	"github.com/banshee-data/anygrow.bridge/internal/protocol"
)

// CurrentValues is the latest reading for display. CO2 is nil when the
// sensor reported its no-data marker.
type CurrentValues struct {
	Timestamp    time.Time `json:"timestamp"`
	Temperature  float64   `json:"temperature"`
	Humidity     float64   `json:"humidity"`
	CO2          *float64  `json:"co2,omitempty"`
	Illumination float64   `json:"illumination"`
}

func currentValues(r protocol.SensorReading) *CurrentValues {
	cv := &CurrentValues{
		Timestamp:    r.Timestamp,
		Temperature:  r.TemperatureC,
		Humidity:     r.HumidityPct,
		Illumination: r.IlluminationLux,
	}
	if r.CO2Valid() {
		co2 := r.CO2ppm
		cv.CO2 = &co2
	}
	return cv
}

// Status is a point-in-time view of the bridge.
type Status struct {
	Liveness    string          `json:"liveness"`
	MissedPolls int             `json:"missed_polls"`
	Requests    uint64          `json:"requests"`
	Recoveries  uint64          `json:"recoveries"`
	Frames      uint64          `json:"frames"`
	Readings    uint64          `json:"readings"`
	Dropped     uint64          `json:"dropped_frames"`
	StoreErrors uint64          `json:"store_errors"`
	Consumers   int             `json:"consumers"`
	Current     *CurrentValues  `json:"current,omitempty"`
	Alarms      []alarm.Channel `json:"armed_alarms"`
}

// Current returns the latest reading for display, or nil before the first one.
func (b *Bridge) Current() *CurrentValues {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.latest == nil {
		return nil
	}
	return currentValues(*b.latest)
}

// Status returns counters, the poll state and the current values.
func (b *Bridge) Status() Status {
	state, misses := b.liveness.State()
	requests, recoveries := b.liveness.Stats()

	b.mu.RLock()
	s := Status{
		Liveness:    state.String(),
		MissedPolls: misses,
		Requests:    requests,
		Recoveries:  recoveries,
		Frames:      b.frames,
		Readings:    b.readings,
		Dropped:     b.dropped,
		StoreErrors: b.storeErrs,
	}
	if b.latest != nil {
		s.Current = currentValues(*b.latest)
	}
	b.mu.RUnlock()

	if b.pub != nil {
		s.Consumers = b.pub.Count()
	}
	s.Alarms = []alarm.Channel{}
	if b.alarms != nil {
		s.Alarms = b.alarms.Armed()
	}
	return s
}
