package units

import (
	"fmt"
	"time"
)

// IsTimezoneValid checks if the given timezone is valid by attempting to load it from the tz database
func IsTimezoneValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// LoadLocation returns the location named tz. An empty name or "Local"
// means the host's local time.
func LoadLocation(tz string) (*time.Location, error) {
	if tz == "" || tz == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", tz, err)
	}
	return loc, nil
}
