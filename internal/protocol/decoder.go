package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// Separator joins the two-character tokens of a rendered frame.
	Separator = ","
	// Terminator is the rendered sentinel pair (0xFF, 0xFF) that ends a frame.
	Terminator = "ff,ff"
	// FrameTokens is the exact token count of a sensor packet.
	FrameTokens = 30
	// SensorModeCode is the token[1] value that marks a sensor packet.
	SensorModeCode = "02"
	// MaxPendingTokens bounds unterminated input; past it the buffer is dropped.
	MaxPendingTokens = 4 * FrameTokens
)

// channel token ranges, inclusive
type tokenRange struct{ first, last int }

var (
	temperatureRange  = tokenRange{10, 12}
	humidityRange     = tokenRange{14, 16}
	co2Range          = tokenRange{18, 21}
	illuminationRange = tokenRange{23, 26}
)

// RenderTokens renders raw octets as lowercase two-character hex tokens
// joined by Separator, e.g. []byte{0x02, 0xff} -> "02,ff".
func RenderTokens(p []byte) string {
	var sb strings.Builder
	sb.Grow(len(p) * 3)
	for i, b := range p {
		if i > 0 {
			sb.WriteString(Separator)
		}
		fmt.Fprintf(&sb, "%02x", b)
	}
	return sb.String()
}

// Result is the outcome of one Feed call. Frame is empty until a terminated
// frame with the right token count has been assembled; Reading is set only
// when that frame is a sensor packet.
type Result struct {
	Frame   string
	Reading *SensorReading
}

// Complete reports whether a frame was assembled.
func (r Result) Complete() bool { return r.Frame != "" }

// FrameDecoder accumulates arbitrarily chunked input until a terminated
// frame is present and decodes it. It is not safe for concurrent use; the
// serial reader loop owns it.
type FrameDecoder struct {
	buf strings.Builder
	now func() time.Time
}

// NewFrameDecoder returns a decoder stamping readings with now (time.Now if nil).
func NewFrameDecoder(now func() time.Time) *FrameDecoder {
	if now == nil {
		now = time.Now
	}
	return &FrameDecoder{now: now}
}

// Feed appends rendered text verbatim to the accumulation buffer.
func (d *FrameDecoder) Feed(text string) (Result, error) {
	d.buf.WriteString(text)
	return d.process()
}

// FeedBytes renders raw octets and appends them to the buffer, inserting a
// separator between deliveries so tokens never fuse across chunks.
func (d *FrameDecoder) FeedBytes(p []byte) (Result, error) {
	if len(p) == 0 {
		return Result{}, nil
	}
	if d.buf.Len() > 0 && !strings.HasSuffix(d.buf.String(), Separator) {
		d.buf.WriteString(Separator)
	}
	d.buf.WriteString(RenderTokens(p))
	return d.process()
}

// Pending returns the buffered, not yet terminated input.
func (d *FrameDecoder) Pending() string {
	return d.buf.String()
}

// Reset discards any buffered input.
func (d *FrameDecoder) Reset() {
	d.buf.Reset()
}

func (d *FrameDecoder) process() (Result, error) {
	text := d.buf.String()
	if !strings.Contains(text, Terminator) {
		if n := strings.Count(text, Separator) + 1; n > MaxPendingTokens {
			d.buf.Reset()
			return Result{}, fmt.Errorf("%w: %d tokens without terminator", ErrOverflow, n)
		}
		return Result{}, nil
	}
	d.buf.Reset()

	tokens := strings.Split(text, Separator)
	if len(tokens) != FrameTokens {
		return Result{}, fmt.Errorf("%w: got %d, want %d", ErrTokenCount, len(tokens), FrameTokens)
	}

	res := Result{Frame: text}
	if tokens[1] == SensorModeCode {
		res.Reading = &SensorReading{
			Timestamp:       d.now(),
			TemperatureC:    float64(decodeDigits(tokens, temperatureRange)) / 10,
			HumidityPct:     float64(decodeDigits(tokens, humidityRange)) / 10,
			CO2ppm:          float64(decodeDigits(tokens, co2Range)),
			IlluminationLux: float64(decodeDigits(tokens, illuminationRange)),
		}
	}
	return res, nil
}

// decodeDigits recovers a channel value. Each token reads as the decimal
// number 30+d; the recovered digits are concatenated in range order and the
// result is parsed as one decimal integer. Unparsable tokens contribute "0";
// an unparsable concatenation yields 0.
func decodeDigits(tokens []string, r tokenRange) int {
	var sb strings.Builder
	for i := r.first; i <= r.last; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(tokens[i]))
		if err != nil {
			sb.WriteString("0")
			continue
		}
		sb.WriteString(strconv.Itoa(v - 30))
	}
	n, err := strconv.Atoi(sb.String())
	if err != nil {
		return 0
	}
	return n
}
