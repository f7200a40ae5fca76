package protocol

import (
	"fmt"
	"time"
)

// CO2Ceiling is the board's "no data" marker: CO2 values at or above it are
// stored as received but treated as absent for display and alarms.
const CO2Ceiling = 6000

// SensorReading is one decoded sensor packet.
type SensorReading struct {
	Timestamp       time.Time `json:"timestamp"`
	TemperatureC    float64   `json:"temperature"`
	HumidityPct     float64   `json:"humidity"`
	CO2ppm          float64   `json:"co2"`
	IlluminationLux float64   `json:"illumination"`
}

// CO2Valid reports whether the CO2 channel carries a real measurement.
func (r SensorReading) CO2Valid() bool {
	return r.CO2ppm < CO2Ceiling
}

func (r SensorReading) String() string {
	co2 := "n/a"
	if r.CO2Valid() {
		co2 = fmt.Sprintf("%.0fppm", r.CO2ppm)
	}
	return fmt.Sprintf("temp=%.1fC hum=%.1f%% co2=%s lux=%.0f", r.TemperatureC, r.HumidityPct, co2, r.IlluminationLux)
}
