package db

import (
	"fmt"
	"time"

	"github.com/banshee-data/anygrow.bridge/internal/monitoring"
	"github.com/banshee-data/anygrow.bridge/internal/protocol"
)

const (
	MinQueryHours = 1
	MaxQueryHours = 168
	MinQueryLimit = 1
	MaxQueryLimit = 20000

	// tsTextLayout is the human readable local timestamp stored next to ts_millis.
	tsTextLayout = "2006-01-02T15:04:05"
)

// StoredReading is one row of the sensor time series.
type StoredReading struct {
	TsMillis     int64   `json:"tsMillis"`
	TsText       string  `json:"tsText"`
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	CO2          float64 `json:"co2"`
	Illumination float64 `json:"illumination"`
}

// Time returns the row's timestamp.
func (r StoredReading) Time() time.Time { return time.UnixMilli(r.TsMillis) }

// ClampQuery bounds a query window to [1,168] hours and [1,20000] rows.
func ClampQuery(hoursBack, limit int) (int, int) {
	return clamp(hoursBack, MinQueryHours, MaxQueryHours), clamp(limit, MinQueryLimit, MaxQueryLimit)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RecordReading stores r stamped with the current time and then deletes
// every row older than the retention horizon. A failed prune is logged and
// does not undo the insert.
func (db *DB) RecordReading(r protocol.SensorReading) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := db.clock.Now()
	if _, err := db.Exec(
		`INSERT INTO sensor_data (ts_millis, ts_text, temperature, humidity, co2, illumination)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		now.UnixMilli(), now.Local().Format(tsTextLayout),
		r.TemperatureC, r.HumidityPct, r.CO2ppm, r.IlluminationLux,
	); err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}

	cutoff := now.Add(-db.retention).UnixMilli()
	if _, err := db.Exec(`DELETE FROM sensor_data WHERE ts_millis < ?`, cutoff); err != nil {
		monitoring.Logf("prune readings: %v", err)
	}
	return nil
}

// Readings returns up to limit rows from the last hoursBack hours, oldest
// first. Both arguments are clamped with ClampQuery.
func (db *DB) Readings(hoursBack, limit int) ([]StoredReading, error) {
	hoursBack, limit = ClampQuery(hoursBack, limit)

	db.mu.RLock()
	defer db.mu.RUnlock()

	cutoff := db.clock.Now().Add(-time.Duration(hoursBack) * time.Hour).UnixMilli()
	rows, err := db.Query(
		`SELECT ts_millis, ts_text, temperature, humidity, co2, illumination
		 FROM sensor_data WHERE ts_millis >= ? ORDER BY ts_millis ASC, id ASC LIMIT ?`,
		cutoff, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := []StoredReading{}
	for rows.Next() {
		var r StoredReading
		if err := rows.Scan(&r.TsMillis, &r.TsText, &r.Temperature, &r.Humidity, &r.CO2, &r.Illumination); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return readings, nil
}

// CountReadings returns the number of stored rows.
func (db *DB) CountReadings() (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sensor_data`).Scan(&n)
	return n, err
}
