package db

import (
	"fmt"
	"time"

	"github.com/banshee-data/anygrow.bridge/internal/monitoring"
)

// AlarmRecord is one fired alarm.
type AlarmRecord struct {
	TsMillis  int64   `json:"tsMillis"`
	Channel   string  `json:"channel"`
	Direction string  `json:"direction"`
	Value     float64 `json:"value"`
}

// RecordAlarm stores a fired alarm and prunes alarm history older than the
// retention horizon. A failed prune is logged and does not undo the insert.
func (db *DB) RecordAlarm(channel, direction string, value float64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := db.clock.Now()
	if _, err := db.Exec(
		`INSERT INTO alarm_events (ts_millis, channel, direction, value) VALUES (?, ?, ?, ?)`,
		now.UnixMilli(), channel, direction, value,
	); err != nil {
		return fmt.Errorf("insert alarm: %w", err)
	}
	if _, err := db.Exec(`DELETE FROM alarm_events WHERE ts_millis < ?`, now.Add(-db.retention).UnixMilli()); err != nil {
		monitoring.Logf("prune alarms: %v", err)
	}
	return nil
}

// RecentAlarms returns alarms from the last hoursBack hours, newest first.
func (db *DB) RecentAlarms(hoursBack, limit int) ([]AlarmRecord, error) {
	hoursBack, limit = ClampQuery(hoursBack, limit)

	db.mu.RLock()
	defer db.mu.RUnlock()

	cutoff := db.clock.Now().Add(-time.Duration(hoursBack) * time.Hour).UnixMilli()
	rows, err := db.Query(
		`SELECT ts_millis, channel, direction, value FROM alarm_events
		 WHERE ts_millis >= ? ORDER BY ts_millis DESC, id DESC LIMIT ?`,
		cutoff, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alarms := []AlarmRecord{}
	for rows.Next() {
		var a AlarmRecord
		if err := rows.Scan(&a.TsMillis, &a.Channel, &a.Direction, &a.Value); err != nil {
			return nil, err
		}
		alarms = append(alarms, a)
	}
	return alarms, rows.Err()
}
