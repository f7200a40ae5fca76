// Package testutil provides shared test fixtures for the sensor protocol.
//
// Frames are built the way the board sends them: every digit travels as its
// ASCII byte, so the rendered token for digit d is "3d".
package testutil

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// SensorTokens builds the 30 tokens of a sensor packet with the given mode
// code at token[1]. temp and hum are tenths (333 -> 33.3); co2 and lux are
// whole units.
func SensorTokens(mode string, temp, hum, co2, lux int) []string {
	tokens := make([]string, 30)
	for i := range tokens {
		tokens[i] = "00"
	}
	tokens[0] = "02"
	tokens[1] = mode
	putDigits(tokens, 10, fmt.Sprintf("%03d", temp))
	putDigits(tokens, 14, fmt.Sprintf("%03d", hum))
	putDigits(tokens, 18, fmt.Sprintf("%04d", co2))
	putDigits(tokens, 23, fmt.Sprintf("%04d", lux))
	tokens[27] = "03"
	tokens[28] = "ff"
	tokens[29] = "ff"
	return tokens
}

func putDigits(tokens []string, at int, digits string) {
	for i, d := range digits {
		tokens[at+i] = "3" + string(d)
	}
}

// SensorFrame renders a sensor packet with mode "02".
func SensorFrame(temp, hum, co2, lux int) string {
	return strings.Join(SensorTokens("02", temp, hum, co2, lux), ",")
}

// FrameWithMode renders a packet carrying an arbitrary mode code.
func FrameWithMode(mode string) string {
	return strings.Join(SensorTokens(mode, 250, 500, 800, 1200), ",")
}

// FrameBytes converts a rendered frame back into the octets on the wire.
func FrameBytes(frame string) []byte {
	b, err := hex.DecodeString(strings.ReplaceAll(frame, ",", ""))
	if err != nil {
		panic(fmt.Sprintf("invalid frame fixture %q: %v", frame, err))
	}
	return b
}
