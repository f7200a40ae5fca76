package serialmux

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/anygrow.bridge/internal/protocol"
)

func TestEncodeSensorPacket_RoundTripsThroughDecoder(t *testing.T) {
	r := protocol.SensorReading{TemperatureC: 24.6, HumidityPct: 51.2, CO2ppm: 733, IlluminationLux: 1800}
	packet := encodeSensorPacket(r)
	require.Len(t, packet, protocol.FrameTokens)

	dec := protocol.NewFrameDecoder(nil)
	res, err := dec.FeedBytes(packet)
	require.NoError(t, err)
	require.NotNil(t, res.Reading)
	assert.InDelta(t, 24.6, res.Reading.TemperatureC, 1e-9)
	assert.InDelta(t, 51.2, res.Reading.HumidityPct, 1e-9)
	assert.InDelta(t, 733, res.Reading.CO2ppm, 1e-9)
	assert.InDelta(t, 1800, res.Reading.IlluminationLux, 1e-9)
}

func TestPutASCIIDigits(t *testing.T) {
	dst := make([]byte, 4)
	putASCIIDigits(dst, 42)
	assert.Equal(t, []byte("0042"), dst)
	putASCIIDigits(dst, 123456)
	assert.Equal(t, []byte("3456"), dst)
	putASCIIDigits(dst, -5)
	assert.Equal(t, []byte("0000"), dst)
}

func TestSimulatedPort(t *testing.T) {
	noon := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	port := NewSimulatedPort(func() time.Time { return noon })
	require.NoError(t, port.SetReadTimeout(time.Millisecond))

	n, err := port.Read(make([]byte, 8))
	require.NoError(t, err)
	assert.Zero(t, n, "no reply before a request")

	_, err = port.Write(protocol.ModeMood.Frame())
	require.NoError(t, err)
	assert.Equal(t, protocol.ModeMood, port.Mode())

	mux := NewSerialMux(port, WithIdleSleep(time.Millisecond))
	dec := protocol.NewFrameDecoder(func() time.Time { return noon })
	readings := make(chan protocol.SensorReading, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx, func(b []byte) {
		if res, err := dec.FeedBytes(b); err == nil && res.Reading != nil {
			readings <- *res.Reading
		}
	})

	require.NoError(t, mux.Write(protocol.SensorRequestFrame()))
	select {
	case r := <-readings:
		assert.True(t, r.CO2Valid())
		assert.Greater(t, r.TemperatureC, 0.0)
	case <-time.After(2 * time.Second):
		t.Fatal("simulated board did not answer")
	}

	require.NoError(t, mux.Close())
	_, err = port.Write(protocol.SensorRequestFrame())
	assert.ErrorIs(t, err, ErrClosed)
}
