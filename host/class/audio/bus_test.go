package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ardnew/softuac/host"
	"github.com/ardnew/softuac/host/hal"
	"github.com/ardnew/softuac/host/hal/sim"
	"github.com/ardnew/softuac/pkg"
)

// =============================================================================
// Simulated Bus
// =============================================================================

// simBus drives a simulated device through a transfer manager, the way
// host.Device does for enumerated hardware.
type simBus struct {
	hal *sim.HostHAL
	tm  *host.TransferManager
}

func newSimBus(t *testing.T, blob []byte, opts ...sim.Option) *simBus {
	t.Helper()
	h := sim.NewHostHAL(sim.Device{
		VendorID:      0x1209,
		ProductID:     0xA0D1,
		Manufacturer:  "softuac",
		Product:       "Sim Audio",
		SerialNumber:  "0001",
		Configuration: blob,
	}, opts...)
	require.NoError(t, h.Init(context.Background()))
	require.NoError(t, h.Start())

	tm := host.NewTransferManager(h, 1)
	require.NoError(t, tm.Start(context.Background()))
	t.Cleanup(func() {
		tm.Stop()
		h.Close()
	})
	return &simBus{hal: h, tm: tm}
}

func (b *simBus) ControlTransfer(ctx context.Context, setup *hal.SetupPacket, data []byte) (int, error) {
	return b.hal.ControlTransfer(ctx, 1, setup, data)
}

func (b *simBus) ClearEndpointHalt(ctx context.Context, endpoint uint8) error {
	return b.hal.ClearHalt(ctx, 1, endpoint)
}

func (b *simBus) SetInterface(ctx context.Context, iface, alt uint8) error {
	return b.hal.SetInterface(ctx, 1, iface, alt)
}

func (b *simBus) Speed() hal.Speed {
	return hal.SpeedFull
}

func (b *simBus) CurrentFrame(ctx context.Context) (uint64, error) {
	return b.hal.CurrentFrame(ctx, 1)
}

func (b *simBus) SubmitIsochronous(t *host.Transfer) error {
	t.Address = 1
	t.Type = hal.TransferIsochronous
	_, err := b.tm.Submit(t)
	return err
}

// =============================================================================
// Scripted Bus
// =============================================================================

// fakeBus accepts every control request and holds isochronous transfers
// until the test completes them, so stream state can be stepped
// deterministically.
type fakeBus struct {
	mu        sync.Mutex
	speed     hal.Speed
	frame     uint64
	pending   []*host.Transfer
	submitted int
	submitErr error
	alts      map[uint8]uint8
	setups    []hal.SetupPacket
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		speed: hal.SpeedFull,
		frame: 100,
		alts:  make(map[uint8]uint8),
	}
}

func (b *fakeBus) ControlTransfer(ctx context.Context, setup *hal.SetupPacket, data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setups = append(b.setups, *setup)
	return len(data), nil
}

func (b *fakeBus) ClearEndpointHalt(ctx context.Context, endpoint uint8) error {
	return nil
}

func (b *fakeBus) SetInterface(ctx context.Context, iface, alt uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alts[iface] = alt
	return nil
}

func (b *fakeBus) Speed() hal.Speed {
	return b.speed
}

func (b *fakeBus) CurrentFrame(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frame, nil
}

func (b *fakeBus) SubmitIsochronous(t *host.Transfer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.submitErr != nil {
		return b.submitErr
	}
	b.pending = append(b.pending, t)
	b.submitted++
	return nil
}

func (b *fakeBus) alt(iface uint8) uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.alts[iface]
}

func (b *fakeBus) inFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *fakeBus) submissions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submitted
}

// peek returns the oldest pending transfer without completing it.
func (b *fakeBus) peek(t *testing.T) *host.Transfer {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.pending, "no transfer in flight")
	return b.pending[0]
}

// finish completes the oldest pending transfer.
func (b *fakeBus) finish(t *testing.T, n int, err error) *host.Transfer {
	t.Helper()
	b.mu.Lock()
	require.NotEmpty(t, b.pending, "no transfer in flight")
	xfer := b.pending[0]
	b.pending = b.pending[1:]
	b.mu.Unlock()

	xfer.Completed = time.Now()
	xfer.Callback(xfer, n, err)
	return xfer
}

// finishOK completes the oldest pending transfer with its full length.
func (b *fakeBus) finishOK(t *testing.T) *host.Transfer {
	t.Helper()
	return b.finish(t, len(b.peek(t).Data), nil)
}

// finishGone completes the oldest pending transfer as if the device had
// been removed.
func (b *fakeBus) finishGone(t *testing.T) *host.Transfer {
	t.Helper()
	return b.finish(t, 0, pkg.ErrNoDevice)
}

// =============================================================================
// Notification Recorder
// =============================================================================

type recorder struct {
	mu        sync.Mutex
	started   []time.Time
	positions []uint32
	stopped   int
	unplugged int
}

func (r *recorder) StreamStarted(start time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, start)
}

func (r *recorder) PositionNotify(position uint32, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = append(r.positions, position)
}

func (r *recorder) StreamStopped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
}

func (r *recorder) Unplugged() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unplugged++
}

func (r *recorder) counts() (started, positions, stopped, unplugged int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started), len(r.positions), r.stopped, r.unplugged
}

func (r *recorder) notified() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint32(nil), r.positions...)
}

// =============================================================================
// Descriptor Fixtures
// =============================================================================

// speakerBlob is a host-to-pin function with no feature unit: a single
// alternate at one rate plus an idle alternate.
func speakerBlob(rates ...uint32) []byte {
	if len(rates) == 0 {
		rates = []uint32{48000}
	}
	return sim.NewDescriptorBuilder().
		InputTerminal(1, sim.TerminalUSBStreaming, 2, 0x0003).
		OutputTerminal(3, sim.TerminalSpeaker, 1).
		Idle(1, 0).
		Alternate(1, 1, sim.Format{
			TerminalLink:      1,
			FormatTag:         sim.FormatPCM,
			Channels:          2,
			SubframeSize:      2,
			BitResolution:     16,
			Rates:             rates,
			Endpoint:          0x01,
			SampleRateControl: true,
		}).
		Bytes()
}

// microphoneBlob is a pin-to-host function with no feature unit.
func microphoneBlob() []byte {
	return sim.NewDescriptorBuilder().
		InputTerminal(1, sim.TerminalMicrophone, 2, 0x0003).
		OutputTerminal(2, sim.TerminalUSBStreaming, 1).
		Idle(1, 0).
		Alternate(1, 1, sim.Format{
			TerminalLink:  2,
			FormatTag:     sim.FormatPCM,
			Channels:      2,
			SubframeSize:  2,
			BitResolution: 16,
			Rates:         []uint32{48000},
			Endpoint:      0x81,
		}).
		Bytes()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TransferPoolSize = 2
	return cfg
}

func attachFake(t *testing.T, blob []byte, opts ...StreamOption) (*fakeBus, *Stream) {
	t.Helper()
	bus := newFakeBus()
	fn, err := Attach(context.Background(), bus, DeviceInfo{Descriptors: blob}, testConfig(), opts...)
	require.NoError(t, err)
	require.Len(t, fn.Streams(), 1)
	s := fn.Streams()[0]
	t.Cleanup(func() { s.Close() })
	return bus, s
}
