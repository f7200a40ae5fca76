package protocol

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// Command frames are fixed templates understood by the board. They are
// written to the serial link verbatim.
var (
	sensorRequestFrame = mustDecodeHex("0202FF53FF00FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF03")
	ledOffFrame        = mustDecodeHex("0201FF4CFF00FF00FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF03")
	ledOnFrame         = mustDecodeHex("0201FF4CFF00FF01FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF03")
	ledMoodFrame       = mustDecodeHex("0201FF4CFF00FF02FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF03")
)

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("invalid frame constant %q: %v", s, err))
	}
	return b
}

// SensorRequestFrame returns the frame that asks the board for one sensor
// packet. The returned slice is a copy and may be modified by the caller.
func SensorRequestFrame() []byte {
	return bytes.Clone(sensorRequestFrame)
}

// Mode is an LED actuator mode.
type Mode string

const (
	ModeOff  Mode = "Off"
	ModeOn   Mode = "On"
	ModeMood Mode = "Mood"
)

// ParseMode normalises s case-insensitively to one of the known modes.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return ModeOff, nil
	case "on":
		return ModeOn, nil
	case "mood":
		return ModeMood, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Frame returns a copy of the command frame for m, or nil for an unknown mode.
func (m Mode) Frame() []byte {
	switch m {
	case ModeOff:
		return bytes.Clone(ledOffFrame)
	case ModeOn:
		return bytes.Clone(ledOnFrame)
	case ModeMood:
		return bytes.Clone(ledMoodFrame)
	}
	return nil
}
