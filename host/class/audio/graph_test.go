package audio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softuac/host/hal/sim"
)

func resolve(t *testing.T, b *sim.DescriptorBuilder) (*simBus, *Graph, []*Path) {
	t.Helper()
	blob := b.Bytes()
	bus := newSimBus(t, blob)
	g := NewGraph(bus, blob, DefaultConfig())
	return bus, g, g.ResolvePaths(context.Background())
}

// =============================================================================
// Decode Tests
// =============================================================================

func TestNewGraph_Decode(t *testing.T) {
	blob := sim.NewDescriptorBuilder().
		ControlInterface(3).
		InputTerminal(1, sim.TerminalUSBStreaming, 2, 0x0003).
		MixerUnit(2, 2, 1, 1).
		SelectorUnit(3, 2, 1).
		FeatureUnit(4, 3, 1, sim.ControlMute, 0, 0).
		ProcessingUnit(5, 0x0001, 2, 4).
		ExtensionUnit(6, 0xBEEF, 2, 5).
		OutputTerminal(7, sim.TerminalSpeaker, 6).
		Bytes()

	g := NewGraph(nil, blob, DefaultConfig())
	iface, ok := g.ControlInterface()
	require.True(t, ok)
	assert.Equal(t, uint8(3), iface)

	nodes := g.Nodes()
	require.Len(t, nodes, 7)
	kinds := []Kind{KindInputTerminal, KindMixer, KindSelector, KindFeature,
		KindProcessing, KindExtension, KindOutputTerminal}
	for i, n := range nodes {
		assert.Equal(t, uint8(i+1), n.ID())
		assert.Equal(t, kinds[i], n.Kind(), "node %d", n.ID())
	}

	it := nodes[0].(*InputTerminal)
	assert.True(t, it.HostFacing())
	assert.Equal(t, uint8(2), it.Channels)
	assert.Zero(t, it.SourceCount())

	mu := nodes[1].(*MixerUnit)
	assert.Equal(t, 2, mu.SourceCount())
	assert.Equal(t, uint8(1), mu.SourceID(1))
	assert.Equal(t, uint8(2), mu.Channels)

	su := nodes[2].(*SelectorUnit)
	assert.Equal(t, []uint8{su.SourceID(0), su.SourceID(1)}, []uint8{2, 1})

	fu := nodes[3].(*FeatureUnit)
	assert.Equal(t, 2, fu.Channels())
	assert.Equal(t, uint8(3), fu.SourceID(0))

	pu := nodes[4].(*ProcessingUnit)
	assert.Equal(t, uint16(0x0001), pu.Code)
	assert.Equal(t, []byte{0}, pu.Controls)

	xu := nodes[5].(*ExtensionUnit)
	assert.Equal(t, uint16(0xBEEF), xu.Code)
	assert.Equal(t, uint8(5), xu.SourceID(0))

	ot := nodes[6].(*OutputTerminal)
	assert.False(t, ot.HostFacing())
	assert.Equal(t, uint8(6), ot.SourceID(0))
}

func TestNewGraph_MalformedRecords(t *testing.T) {
	blob := sim.NewDescriptorBuilder().
		InputTerminal(1, sim.TerminalUSBStreaming, 2, 0).
		// Feature unit whose bitmap area does not divide by bControlSize.
		RawUnit([]byte{10, 0x24, 0x06, 2, 1, 2, 0x03, 0x00, 0x00, 0}).
		// Feature unit with bControlSize zero.
		RawUnit([]byte{8, 0x24, 0x06, 3, 1, 0, 0x03, 0}).
		// Selector declaring more pins than it carries.
		RawUnit([]byte{7, 0x24, 0x05, 4, 3, 1, 0}).
		// Input terminal too short for its fixed layout.
		RawUnit([]byte{8, 0x24, 0x02, 5, 0x01, 0x01, 0, 2}).
		// Unknown subtype.
		RawUnit([]byte{4, 0x24, 0x0F, 6}).
		// Duplicate id; the first record wins.
		OutputTerminal(1, sim.TerminalSpeaker, 1).
		OutputTerminal(7, sim.TerminalSpeaker, 1).
		Bytes()

	g := NewGraph(nil, blob, DefaultConfig())
	var ids []uint8
	for _, n := range g.Nodes() {
		ids = append(ids, n.ID())
	}
	assert.Equal(t, []uint8{1, 7}, ids)

	n, ok := g.Node(1)
	require.True(t, ok)
	assert.Equal(t, KindInputTerminal, n.Kind())
}

func TestNewGraph_NoControlInterface(t *testing.T) {
	g := NewGraph(nil, []byte{9, 0x02, 9, 0, 0, 1, 0, 0x80, 50}, DefaultConfig())
	_, ok := g.ControlInterface()
	assert.False(t, ok)
	assert.Empty(t, g.Nodes())
	assert.Empty(t, g.ResolvePaths(context.Background()))
}

// =============================================================================
// Resolution Tests
// =============================================================================

func TestResolvePaths_FeatureUnitScenario(t *testing.T) {
	b := sim.NewDescriptorBuilder().
		OutputTerminal(1, sim.TerminalUSBStreaming, 2).
		FeatureUnit(2, 3, 1, sim.ControlMute|sim.ControlVolume, 0, 0).
		InputTerminal(3, sim.TerminalMicrophone, 2, 0x0003)
	blob := b.Bytes()
	bus := newSimBus(t, blob)
	bus.hal.SetControlRange(2, sim.SelectorVolume, 0, -80*256, 0, 128, 0)

	g := NewGraph(bus, blob, DefaultConfig())
	paths := g.ResolvePaths(context.Background())
	require.Len(t, paths, 1)

	p := paths[0]
	assert.Equal(t, []uint8{1, 2, 3}, p.IDs())
	assert.Equal(t, DirectionCapture, p.Direction())
	assert.Equal(t, uint8(1), p.HostTerminal())
	assert.True(t, p.HasGain())
	assert.True(t, g.InUse(2))
	assert.False(t, g.InUse(1))
	assert.False(t, g.InUse(3))

	fu := p.GainUnit()
	require.NotNil(t, fu)
	lo, hi, step := fu.GainRange()
	assert.Equal(t, -80.0, lo)
	assert.Equal(t, 0.0, hi)
	assert.Equal(t, 0.5, step)

	require.NoError(t, fu.SetGain(context.Background(), -3.3))
	assert.Equal(t, -3.5, fu.Gain())
	v, ok := bus.hal.Control(2, sim.SelectorVolume, 0)
	require.True(t, ok)
	assert.Equal(t, int16(-896), v)
}

func TestResolvePaths_SingleCommit(t *testing.T) {
	_, g, paths := resolve(t, sim.NewDescriptorBuilder().
		InputTerminal(1, sim.TerminalUSBStreaming, 2, 0).
		FeatureUnit(2, 1, 1, 0, 0, 0).
		OutputTerminal(3, sim.TerminalSpeaker, 2).
		OutputTerminal(4, sim.TerminalHeadphones, 2))

	require.Len(t, paths, 1)
	assert.Equal(t, []uint8{3, 2, 1}, paths[0].IDs())
	assert.Equal(t, DirectionRender, paths[0].Direction())
	assert.Equal(t, uint8(1), paths[0].HostTerminal())
	assert.True(t, g.InUse(2))

	// Resolving again never claims the shared unit twice.
	again := g.ResolvePaths(context.Background())
	assert.Len(t, again, 1)
}

func TestResolvePaths_TerminalRoles(t *testing.T) {
	tests := []struct {
		name  string
		in    uint16
		out   uint16
		paths int
	}{
		{"Render", sim.TerminalUSBStreaming, sim.TerminalSpeaker, 1},
		{"Capture", sim.TerminalMicrophone, sim.TerminalUSBStreaming, 1},
		{"BothHostFacing", sim.TerminalUSBStreaming, sim.TerminalUSBStreaming, 0},
		{"NeitherHostFacing", sim.TerminalMicrophone, sim.TerminalSpeaker, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, paths := resolve(t, sim.NewDescriptorBuilder().
				InputTerminal(1, tt.in, 2, 0).
				OutputTerminal(2, tt.out, 1))
			assert.Len(t, paths, tt.paths)
		})
	}
}

func TestResolvePaths_Cycle(t *testing.T) {
	bus, g, paths := resolve(t, sim.NewDescriptorBuilder().
		InputTerminal(1, sim.TerminalMicrophone, 2, 0).
		SelectorUnit(5, 6, 1).
		FeatureUnit(6, 5, 1, sim.ControlMute, 0, 0).
		OutputTerminal(10, sim.TerminalUSBStreaming, 5))

	require.Len(t, paths, 1)
	assert.Equal(t, []uint8{10, 5, 1}, paths[0].IDs())
	assert.Nil(t, paths[0].GainUnit())
	assert.False(t, g.InUse(6))

	// The selector routes the branch used; the unit left in the cycle is
	// muted.
	pin, ok := bus.hal.Control(5, 0, 0)
	require.True(t, ok)
	assert.Equal(t, int16(2), pin)
	mute, ok := bus.hal.Control(6, sim.SelectorMute, 0)
	require.True(t, ok)
	assert.Equal(t, int16(1), mute)
}

func TestResolvePaths_PureCycle(t *testing.T) {
	_, _, paths := resolve(t, sim.NewDescriptorBuilder().
		SelectorUnit(5, 6).
		FeatureUnit(6, 5, 1, 0, 0).
		OutputTerminal(10, sim.TerminalUSBStreaming, 5))
	assert.Empty(t, paths)
}

func TestResolvePaths_DanglingSource(t *testing.T) {
	_, _, paths := resolve(t, sim.NewDescriptorBuilder().
		InputTerminal(1, sim.TerminalMicrophone, 2, 0).
		OutputTerminal(10, sim.TerminalUSBStreaming, 99).
		OutputTerminal(11, sim.TerminalUSBStreaming, 1))

	require.Len(t, paths, 1)
	assert.Equal(t, []uint8{11, 1}, paths[0].IDs())
}

func TestResolvePaths_ProbeFailureFallsBack(t *testing.T) {
	bus, g, paths := resolve(t, sim.NewDescriptorBuilder().
		InputTerminal(1, sim.TerminalUSBStreaming, 2, 0).
		FeatureUnit(2, 1, 1, 0, sim.ControlMute, sim.ControlVolume).
		InputTerminal(3, sim.TerminalUSBStreaming, 2, 0).
		SelectorUnit(4, 2, 3).
		OutputTerminal(5, sim.TerminalSpeaker, 4))

	require.Len(t, paths, 1)
	assert.Equal(t, []uint8{5, 4, 3}, paths[0].IDs())
	assert.Nil(t, paths[0].GainUnit())
	assert.False(t, g.InUse(2))

	pin, ok := bus.hal.Control(4, 0, 0)
	require.True(t, ok)
	assert.Equal(t, int16(2), pin)
}

func TestResolvePaths_ProcessingChain(t *testing.T) {
	_, g, paths := resolve(t, sim.NewDescriptorBuilder().
		InputTerminal(1, sim.TerminalUSBStreaming, 2, 0).
		MixerUnit(6, 2, 1).
		ExtensionUnit(8, 0x1234, 2, 6).
		ProcessingUnit(7, 0x0002, 2, 8).
		OutputTerminal(9, sim.TerminalSpeaker, 7))

	require.Len(t, paths, 1)
	assert.Equal(t, []uint8{9, 7, 8, 6, 1}, paths[0].IDs())
	assert.Equal(t, 5, paths[0].Len())
	for _, id := range []uint8{6, 7, 8} {
		assert.True(t, g.InUse(id), "node %d", id)
		assert.True(t, paths[0].Contains(id))
	}
}

func TestResolvePaths_AscendingOutputTerminals(t *testing.T) {
	_, _, paths := resolve(t, sim.NewDescriptorBuilder().
		InputTerminal(1, sim.TerminalUSBStreaming, 2, 0).
		InputTerminal(2, sim.TerminalMicrophone, 1, 0).
		OutputTerminal(20, sim.TerminalUSBStreaming, 2).
		OutputTerminal(10, sim.TerminalSpeaker, 1))

	require.Len(t, paths, 2)
	assert.Equal(t, uint8(10), paths[0].OutputTerminal())
	assert.Equal(t, DirectionRender, paths[0].Direction())
	assert.Equal(t, uint8(20), paths[1].OutputTerminal())
	assert.Equal(t, DirectionCapture, paths[1].Direction())
}
