package serialmux

import (
	"bytes"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/anygrow.bridge/internal/protocol"
)

// SimulatedPort is a stand-in for the board used with --simulate. It answers
// every sensor request with a sensor packet, delivered in two reads, and
// remembers the last LED mode written to it.
type SimulatedPort struct {
	mu          sync.Mutex
	pending     [][]byte
	readTimeout time.Duration
	closed      bool
	mode        protocol.Mode
	now         func() time.Time
}

// NewSimulatedPort returns a simulated board whose readings drift with now.
func NewSimulatedPort(now func() time.Time) *SimulatedPort {
	if now == nil {
		now = time.Now
	}
	return &SimulatedPort{now: now, mode: protocol.ModeOff, readTimeout: DefaultReadTimeout}
}

// NewSimulatedSerialMux wraps a SimulatedPort in a SerialMux.
func NewSimulatedSerialMux(opts ...Option) *SerialMux[*SimulatedPort] {
	return NewSerialMux(NewSimulatedPort(nil), opts...)
}

func (p *SimulatedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	if len(p.pending) == 0 {
		wait := p.readTimeout
		p.mu.Unlock()
		time.Sleep(wait)
		return 0, nil
	}
	defer p.mu.Unlock()
	n := copy(b, p.pending[0])
	if n < len(p.pending[0]) {
		p.pending[0] = p.pending[0][n:]
	} else {
		p.pending = p.pending[1:]
	}
	return n, nil
}

func (p *SimulatedPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	if bytes.Equal(b, protocol.SensorRequestFrame()) {
		packet := encodeSensorPacket(simulatedReading(p.now()))
		p.pending = append(p.pending, packet[:13], packet[13:])
		return len(b), nil
	}
	for _, m := range []protocol.Mode{protocol.ModeOff, protocol.ModeOn, protocol.ModeMood} {
		if bytes.Equal(b, m.Frame()) {
			p.mode = m
		}
	}
	return len(b), nil
}

func (p *SimulatedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// SetReadTimeout implements TimeoutSerialPorter.
func (p *SimulatedPort) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readTimeout = d
	return nil
}

// Mode returns the last LED mode written to the board.
func (p *SimulatedPort) Mode() protocol.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// simulatedReading follows a slow daily cycle so charts have something to show.
func simulatedReading(t time.Time) protocol.SensorReading {
	day := float64(t.Hour()*3600+t.Minute()*60+t.Second()) / 86400
	phase := math.Sin(2 * math.Pi * day)
	return protocol.SensorReading{
		TemperatureC:    23 + 3*phase,
		HumidityPct:     55 - 8*phase,
		CO2ppm:          650 + 150*phase,
		IlluminationLux: math.Max(0, 2500*phase),
	}
}

// encodeSensorPacket lays r out the way the board does: every digit is sent
// as its ASCII byte within the fixed channel positions.
func encodeSensorPacket(r protocol.SensorReading) []byte {
	packet := make([]byte, protocol.FrameTokens)
	packet[0] = 0x02
	packet[1] = 0x02
	putASCIIDigits(packet[10:13], int(math.Round(r.TemperatureC*10)))
	putASCIIDigits(packet[14:17], int(math.Round(r.HumidityPct*10)))
	putASCIIDigits(packet[18:22], int(math.Round(r.CO2ppm)))
	putASCIIDigits(packet[23:27], int(math.Round(r.IlluminationLux)))
	packet[27] = 0x03
	packet[28] = 0xff
	packet[29] = 0xff
	return packet
}

func putASCIIDigits(dst []byte, v int) {
	if v < 0 {
		v = 0
	}
	digits := fmt.Sprintf("%0*d", len(dst), v)
	copy(dst, digits[len(digits)-len(dst):])
}
