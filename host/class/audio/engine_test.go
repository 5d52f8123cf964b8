package audio

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softuac/host/hal"
	"github.com/ardnew/softuac/host/hal/sim"
	"github.com/ardnew/softuac/pkg"
)

const waitFor = 2 * time.Second

// prepare selects s16 stereo at rate and allocates a ring.
func prepare(t *testing.T, s *Stream, rate uint32, frames, notifications int) *Ring {
	t.Helper()
	require.NoError(t, s.SetFormat(context.Background(), rate, 2, EncodingS16))
	r, err := s.GetBuffer(frames, notifications)
	require.NoError(t, err)
	return r
}

// advance completes n transfers in order, waiting for each replacement.
func advance(t *testing.T, bus *fakeBus, n int) {
	t.Helper()
	for range n {
		before := bus.submissions()
		bus.finishOK(t)
		require.Eventually(t, func() bool { return bus.submissions() == before+1 },
			waitFor, time.Millisecond)
	}
}

func waitState(t *testing.T, s *Stream, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want },
		waitFor, time.Millisecond, "waiting for %s", want)
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestStream_StartStop(t *testing.T) {
	rec := &recorder{}
	bus, s := attachFake(t, speakerBlob(), WithNotifier(rec))
	ctx := context.Background()

	assert.Equal(t, DirectionRender, s.Direction())
	assert.Equal(t, uint8(1), s.Interface())
	assert.Equal(t, uint8(0), bus.alt(1), "idle alternate selected at attach")

	prepare(t, s, 48000, 480, 0)
	assert.Equal(t, uint8(1), bus.alt(1))

	require.NoError(t, s.Start(ctx))
	assert.Equal(t, StateStarting, s.State())
	require.Equal(t, 2, bus.inFlight())
	first := bus.peek(t)
	assert.Equal(t, uint64(103), first.Frame)
	assert.Len(t, first.Data, 192)

	advance(t, bus, 1)
	waitState(t, s, StateStarted)
	require.Eventually(t, func() bool {
		started, _, _, _ := rec.counts()
		return started == 1
	}, waitFor, time.Millisecond)
	assert.Equal(t, 2, bus.inFlight())
	assert.Equal(t, 192, s.Position())

	require.NoError(t, s.Stop())
	assert.Equal(t, StateStopping, s.State())
	bus.finishOK(t)
	bus.finishOK(t)

	waitState(t, s, StateStopped)
	require.Eventually(t, func() bool {
		_, _, stopped, _ := rec.counts()
		return stopped == 1
	}, waitFor, time.Millisecond)
	assert.Equal(t, uint8(0), bus.alt(1))
	assert.Equal(t, 3, bus.submissions())

	// The stream restarts on the same ring.
	require.NoError(t, s.Start(ctx))
	assert.Equal(t, 0, s.Position())
	assert.Equal(t, uint8(1), bus.alt(1))
}

func TestStream_StateRules(t *testing.T) {
	_, s := attachFake(t, speakerBlob(44100, 48000))
	ctx := context.Background()

	assert.ErrorIs(t, s.Start(ctx), ErrNoFormat)
	_, err := s.GetBuffer(64, 1)
	assert.ErrorIs(t, err, ErrNoFormat)
	assert.ErrorIs(t, s.Stop(), pkg.ErrInvalidState)
	assert.ErrorIs(t, s.SetFormat(ctx, 32000, 2, EncodingS16), ErrFormatNotFound)

	require.NoError(t, s.SetFormat(ctx, 48000, 2, EncodingS16))
	assert.ErrorIs(t, s.Start(ctx), ErrNoBuffer)
	_, err = s.GetBuffer(0, 1)
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)

	_, err = s.GetBuffer(64, 1)
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))

	assert.ErrorIs(t, s.Start(ctx), pkg.ErrInvalidState)
	assert.ErrorIs(t, s.SetFormat(ctx, 44100, 2, EncodingS16), pkg.ErrInvalidState)
	_, err = s.GetBuffer(64, 1)
	assert.ErrorIs(t, err, pkg.ErrInvalidState)
	assert.ErrorIs(t, s.Stop(), pkg.ErrInvalidState, "stop is only accepted once started")
}

func TestStream_SetFormatReleasesRing(t *testing.T) {
	_, s := attachFake(t, speakerBlob(44100, 48000))
	ctx := context.Background()

	prepare(t, s, 48000, 64, 0)
	require.NoError(t, s.SetFormat(ctx, 44100, 2, EncodingS16))
	assert.ErrorIs(t, s.Start(ctx), ErrNoBuffer)
}

// speakerAlternate is speakerBlob with the endpoint packet size and
// interval overridden.
func speakerAlternate(maxPacket uint16, interval uint8) []byte {
	return sim.NewDescriptorBuilder().
		InputTerminal(1, sim.TerminalUSBStreaming, 2, 0x0003).
		OutputTerminal(3, sim.TerminalSpeaker, 1).
		Idle(1, 0).
		Alternate(1, 1, sim.Format{
			TerminalLink:  1,
			FormatTag:     sim.FormatPCM,
			Channels:      2,
			SubframeSize:  2,
			BitResolution: 16,
			Rates:         []uint32{48000},
			Endpoint:      0x01,
			MaxPacketSize: maxPacket,
			Interval:      interval,
		}).
		Bytes()
}

func TestStream_SetFormatSlowInterval(t *testing.T) {
	for _, interval := range []uint8{14, 16} {
		bus, s := attachFake(t, speakerAlternate(0, interval))
		bus.speed = hal.SpeedHigh

		err := s.SetFormat(context.Background(), 48000, 2, EncodingS16)
		assert.ErrorIs(t, err, pkg.ErrInvalidParameter, "interval %d", interval)
		assert.Zero(t, bus.alt(1), "interval %d", interval)
		assert.ErrorIs(t, s.Start(context.Background()), ErrNoFormat)
	}
}

func TestStream_SetFormatOversizePacket(t *testing.T) {
	bus, s := attachFake(t, speakerAlternate(100, 1))
	ctx := context.Background()

	err := s.SetFormat(ctx, 48000, 2, EncodingS16)
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
	assert.Zero(t, bus.alt(1))
	assert.ErrorIs(t, s.Start(ctx), ErrNoFormat)
	_, err = s.GetBuffer(64, 1)
	assert.ErrorIs(t, err, ErrNoFormat)

	bus, s = attachFake(t, speakerAlternate(192, 1))
	require.NoError(t, s.SetFormat(ctx, 48000, 2, EncodingS16))
	assert.Equal(t, uint8(1), bus.alt(1))
}

func TestStream_StartSubmitFailure(t *testing.T) {
	bus, s := attachFake(t, speakerBlob())
	prepare(t, s, 48000, 64, 0)

	bus.mu.Lock()
	bus.submitErr = pkg.ErrNoResources
	bus.mu.Unlock()

	assert.ErrorIs(t, s.Start(context.Background()), pkg.ErrNoResources)
	assert.Equal(t, StateStopped, s.State())
}

// =============================================================================
// Data Movement Tests
// =============================================================================

func TestStream_RenderWrap(t *testing.T) {
	bus, s := attachFake(t, speakerBlob())
	ring := prepare(t, s, 48000, 60, 0)
	require.Equal(t, 240, ring.Size())

	data := make([]byte, ring.Size())
	for i := range data {
		data[i] = byte(i)
	}
	ring.WriteAt(data, 0)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, data[:192], bus.peek(t).Data)

	advance(t, bus, 1)
	want := append(append([]byte(nil), data[192:]...), data[:144]...)
	assert.Equal(t, want, bus.peek(t).Data)

	advance(t, bus, 1)
	want = append(append([]byte(nil), data[144:]...), data[:96]...)
	assert.Equal(t, want, bus.peek(t).Data)
	assert.Equal(t, 144, s.Position())
}

func TestStream_Capture(t *testing.T) {
	bus, s := attachFake(t, microphoneBlob())
	require.Equal(t, DirectionCapture, s.Direction())
	ring := prepare(t, s, 48000, 120, 0)

	fill := make([]byte, ring.Size())
	for i := range fill {
		fill[i] = 0xFF
	}
	ring.WriteAt(fill, 0)

	require.NoError(t, s.Start(context.Background()))

	xfer := bus.peek(t)
	for i := range xfer.Data {
		xfer.Data[i] = 0xAA
	}
	bus.finish(t, len(xfer.Data), nil)
	require.Eventually(t, func() bool { return s.Position() == 192 }, waitFor, time.Millisecond)

	// A failed transfer leaves silence in its place.
	bus.finish(t, 0, pkg.ErrOverrun)
	require.Eventually(t, func() bool { return s.Position() == 384 }, waitFor, time.Millisecond)

	got := make([]byte, ring.Size())
	ring.ReadAt(got, 0)
	assert.Equal(t, bytesOf(0xAA, 192), got[:192])
	assert.Equal(t, bytesOf(0x00, 192), got[192:384])
	assert.Equal(t, bytesOf(0xFF, 96), got[384:])
}

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestStream_PositionNotify(t *testing.T) {
	rec := &recorder{}
	bus, s := attachFake(t, speakerBlob(), WithNotifier(rec))
	ring := prepare(t, s, 48000, 240, 2)
	require.Equal(t, 480, ring.NotifyInterval())

	require.NoError(t, s.Start(context.Background()))
	advance(t, bus, 5)

	require.Eventually(t, func() bool { return len(rec.notified()) == 2 }, waitFor, time.Millisecond)
	assert.Equal(t, []uint32{576, 0}, rec.notified())
}

func TestStream_FIFODepth(t *testing.T) {
	_, s := attachFake(t, speakerBlob(44100))
	assert.Zero(t, s.FIFODepth())
	prepare(t, s, 44100, 64, 0)
	assert.Equal(t, 2*176+4, s.FIFODepth())

	fn, err := Attach(context.Background(), newFakeBus(),
		DeviceInfo{Descriptors: speakerBlob(44100)}, DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { fn.Close() })
	render := fn.Streams()[0]
	prepare(t, render, 44100, 64, 0)
	assert.Equal(t, 8*176+4, render.FIFODepth())

	_, capture := attachFake(t, microphoneBlob())
	prepare(t, capture, 48000, 64, 0)
	assert.Equal(t, 2*192, capture.FIFODepth())
}

// =============================================================================
// Removal Tests
// =============================================================================

func TestStream_UnplugWhileRunning(t *testing.T) {
	rec := &recorder{}
	bus, s := attachFake(t, speakerBlob(), WithNotifier(rec))
	prepare(t, s, 48000, 64, 0)
	require.NoError(t, s.Start(context.Background()))

	bus.finishGone(t)
	bus.finishGone(t)
	require.Eventually(t, func() bool {
		_, _, _, unplugged := rec.counts()
		return unplugged == 1
	}, waitFor, time.Millisecond)
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, 2, bus.submissions(), "no transfer replaced after removal")

	assert.ErrorIs(t, s.Start(context.Background()), pkg.ErrNoDevice)
	s.detach()
	_, _, stopped, unplugged := rec.counts()
	assert.Equal(t, 1, unplugged)
	assert.Zero(t, stopped)
}

func TestDevice_DetachIdle(t *testing.T) {
	rec := &recorder{}
	fn, err := Attach(context.Background(), newFakeBus(),
		DeviceInfo{Descriptors: speakerBlob()}, testConfig(), WithNotifier(rec))
	require.NoError(t, err)
	t.Cleanup(func() { fn.Close() })

	fn.Detach()
	fn.Detach()
	_, _, _, unplugged := rec.counts()
	assert.Equal(t, 1, unplugged)

	s := fn.Streams()[0]
	assert.ErrorIs(t, s.SetFormat(context.Background(), 48000, 2, EncodingS16), pkg.ErrNoDevice)
}

func TestStream_Close(t *testing.T) {
	bus, s := attachFake(t, speakerBlob())
	prepare(t, s, 48000, 64, 0)
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), ErrTornDown)
	assert.ErrorIs(t, s.Start(context.Background()), ErrTornDown)
	_, err := s.FormatPages()
	assert.ErrorIs(t, err, ErrTornDown)

	// Late completions are absorbed without a worker.
	bus.finishOK(t)
	bus.finishOK(t)
}

// =============================================================================
// Gain Tests
// =============================================================================

func gainBlob() []byte {
	return sim.NewDescriptorBuilder().
		InputTerminal(1, sim.TerminalUSBStreaming, 2, 0x0003).
		FeatureUnit(2, 1, 1, sim.ControlMute|sim.ControlVolume, 0, 0).
		OutputTerminal(3, sim.TerminalSpeaker, 2).
		Idle(1, 0).
		Alternate(1, 1, pcm16(1, 0x01, 48000)).
		Bytes()
}

func TestStream_Gain(t *testing.T) {
	blob := gainBlob()
	bus := newSimBus(t, blob)
	fn, err := Attach(context.Background(), bus, DeviceInfo{Descriptors: blob}, testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { fn.Close() })
	s, ok := fn.StreamFor(DirectionRender)
	require.True(t, ok)
	assert.Equal(t, []uint8{3, 2, 1}, s.Path().IDs())

	g, err := s.Gain()
	require.NoError(t, err)
	assert.True(t, g.HasGain)
	assert.True(t, g.HasMute)
	assert.False(t, g.HasAGC)
	assert.Equal(t, -50.0, g.Min)
	assert.Equal(t, 0.0, g.Max)
	assert.Equal(t, 1.0, g.Step)

	ctx := context.Background()
	gain := -6.0
	res, err := s.SetGain(ctx, GainRequest{Gain: &gain})
	require.NoError(t, err)
	assert.Equal(t, GainResult{Gain: true}, res)
	v, _ := bus.hal.Control(2, sim.SelectorVolume, 0)
	assert.Equal(t, int16(-1536), v)

	loud := 3.0
	_, err = s.SetGain(ctx, GainRequest{Gain: &loud})
	assert.ErrorIs(t, err, ErrGainOutOfRange)
	v, _ = bus.hal.Control(2, sim.SelectorVolume, 0)
	assert.Equal(t, int16(-1536), v)

	mute, agc := true, true
	res, err = s.SetGain(ctx, GainRequest{Mute: &mute, AGC: &agc})
	require.NoError(t, err)
	assert.Equal(t, GainResult{Mute: true}, res)
	m, _ := bus.hal.Control(2, sim.SelectorMute, 0)
	assert.Equal(t, int16(1), m)
}

func TestStream_GainWithoutUnit(t *testing.T) {
	_, s := attachFake(t, speakerBlob())
	gain, mute := -6.0, true
	res, err := s.SetGain(context.Background(), GainRequest{Gain: &gain, Mute: &mute})
	require.NoError(t, err)
	assert.Equal(t, GainResult{}, res)

	g, err := s.Gain()
	require.NoError(t, err)
	assert.False(t, g.HasGain)
}

// =============================================================================
// Identity and Metrics Tests
// =============================================================================

func TestStream_UniqueID(t *testing.T) {
	info := DeviceInfo{Descriptors: speakerBlob(), Product: "Speaker", SerialNumber: "A1"}
	attach := func(info DeviceInfo) *Stream {
		fn, err := Attach(context.Background(), newFakeBus(), info, testConfig())
		require.NoError(t, err)
		t.Cleanup(func() { fn.Close() })
		return fn.Streams()[0]
	}

	a, b := attach(info), attach(info)
	assert.Equal(t, a.UniqueID(), b.UniqueID())
	assert.Equal(t, "Speaker", a.Product())

	info.SerialNumber = "A2"
	assert.NotEqual(t, a.UniqueID(), attach(info).UniqueID())
}

func TestStream_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewStreamMetrics(reg)
	require.NoError(t, err)
	again, err := NewStreamMetrics(reg)
	require.NoError(t, err)
	require.NotNil(t, again)

	bus, s := attachFake(t, speakerBlob(), WithMetrics(m))
	prepare(t, s, 48000, 64, 0)
	require.NoError(t, s.Start(context.Background()))
	advance(t, bus, 2)
	require.Eventually(t, func() bool {
		return counter(t, reg, "softuac_stream_bytes_total") == 2*192
	}, waitFor, time.Millisecond)
	assert.Equal(t, 2.0, counter(t, reg, "softuac_stream_transfers_total"))
	assert.Equal(t, float64(StateStarted), counter(t, reg, "softuac_stream_state"))
}

// counter sums every sample of a gathered counter or gauge family.
func counter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var sum float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			sum += m.GetCounter().GetValue() + m.GetGauge().GetValue()
		}
	}
	return sum
}
