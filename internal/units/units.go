// Package units provides temperature unit handling and timezone validation
// for values the board reports.
package units

import "strings"

// Temperature unit constants
const (
	Celsius    = "celsius"
	Fahrenheit = "fahrenheit"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Celsius, Fahrenheit}

// Normalise maps short and mixed-case spellings ("C", "f") onto a unit
// constant. Unknown values are returned lower-cased and unchanged.
func Normalise(unit string) string {
	switch u := strings.ToLower(strings.TrimSpace(unit)); u {
	case "c", "degc":
		return Celsius
	case "f", "degf":
		return Fahrenheit
	default:
		return u
	}
}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if Normalise(unit) == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertTemperature converts a temperature from degrees Celsius, as the
// board reports it, to the target units.
func ConvertTemperature(celsius float64, targetUnits string) float64 {
	switch Normalise(targetUnits) {
	case Fahrenheit:
		return celsius*9/5 + 32
	default:
		return celsius
	}
}
