package db

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/anygrow.bridge/internal/protocol"
)

// ChannelSummary describes one channel over a window of readings.
type ChannelSummary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
}

// Summary holds per-channel statistics. CO2 values at or above the sensor's
// no-data ceiling are excluded.
type Summary struct {
	Temperature  ChannelSummary `json:"temperature"`
	Humidity     ChannelSummary `json:"humidity"`
	CO2          ChannelSummary `json:"co2"`
	Illumination ChannelSummary `json:"illumination"`
}

// Summarise computes a Summary over rows.
func Summarise(rows []StoredReading) Summary {
	acc := newSummaryAccumulator(len(rows))
	for _, r := range rows {
		acc.add(r)
	}
	return acc.summary()
}

// WindowSummary computes a Summary over every row of the last hoursBack
// hours, with no row limit. It returns the number of rows read. hoursBack is
// clamped to [MinQueryHours, MaxQueryHours].
func (db *DB) WindowSummary(hoursBack int) (Summary, int, error) {
	hoursBack = clamp(hoursBack, MinQueryHours, MaxQueryHours)

	db.mu.RLock()
	defer db.mu.RUnlock()

	cutoff := db.clock.Now().Add(-time.Duration(hoursBack) * time.Hour).UnixMilli()
	rows, err := db.Query(
		`SELECT temperature, humidity, co2, illumination FROM sensor_data WHERE ts_millis >= ?`,
		cutoff,
	)
	if err != nil {
		return Summary{}, 0, err
	}
	defer rows.Close()

	acc := newSummaryAccumulator(0)
	n := 0
	for rows.Next() {
		var r StoredReading
		if err := rows.Scan(&r.Temperature, &r.Humidity, &r.CO2, &r.Illumination); err != nil {
			return Summary{}, 0, err
		}
		acc.add(r)
		n++
	}
	if err := rows.Err(); err != nil {
		return Summary{}, 0, err
	}
	return acc.summary(), n, nil
}

type summaryAccumulator struct {
	temp, hum, co2, lux []float64
}

func newSummaryAccumulator(n int) *summaryAccumulator {
	return &summaryAccumulator{
		temp: make([]float64, 0, n),
		hum:  make([]float64, 0, n),
		co2:  make([]float64, 0, n),
		lux:  make([]float64, 0, n),
	}
}

func (a *summaryAccumulator) add(r StoredReading) {
	a.temp = append(a.temp, r.Temperature)
	a.hum = append(a.hum, r.Humidity)
	if r.CO2 < protocol.CO2Ceiling {
		a.co2 = append(a.co2, r.CO2)
	}
	a.lux = append(a.lux, r.Illumination)
}

func (a *summaryAccumulator) summary() Summary {
	return Summary{
		Temperature:  summariseChannel(a.temp),
		Humidity:     summariseChannel(a.hum),
		CO2:          summariseChannel(a.co2),
		Illumination: summariseChannel(a.lux),
	}
}

func summariseChannel(x []float64) ChannelSummary {
	if len(x) == 0 {
		return ChannelSummary{}
	}
	s := ChannelSummary{
		Count: len(x),
		Min:   floats.Min(x),
		Max:   floats.Max(x),
	}
	if len(x) == 1 {
		s.Mean = x[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(x, nil)
	return s
}
