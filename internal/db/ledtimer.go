package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/anygrow.bridge/internal/ledtimer"
)

// LEDTimerProfile returns the saved LED timer profile, or nil if none has
// been saved.
func (db *DB) LEDTimerProfile() (*ledtimer.Profile, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var raw string
	err := db.QueryRow(`SELECT profile_json FROM led_timer_profile WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query led timer profile: %w", err)
	}

	var p ledtimer.Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode led timer profile: %w", err)
	}
	return &p, nil
}

// SaveLEDTimerProfile replaces the saved LED timer profile.
func (db *DB) SaveLEDTimerProfile(p *ledtimer.Profile) error {
	if p == nil {
		return errors.New("nil led timer profile")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode led timer profile: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	_, err = db.Exec(
		`INSERT INTO led_timer_profile (id, profile_json, updated_millis) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET profile_json = excluded.profile_json, updated_millis = excluded.updated_millis`,
		string(raw), db.clock.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save led timer profile: %w", err)
	}
	return nil
}
