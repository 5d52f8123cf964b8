// Package sim provides a simulated USB Audio Class 1.0 device behind the
// [hal.HostHAL] interface.
//
// The simulation answers the standard requests used by enumeration, keeps
// per-unit control state for feature and selector units found in its
// configuration, stores endpoint sampling frequencies, and services
// isochronous transfers at the bus frame they were scheduled for. OUT
// endpoints collect the PCM bytes they receive; IN endpoints produce bytes
// from a [SourceFunc].
//
// [DescriptorBuilder] assembles the configuration blob:
//
//	blob := sim.NewDescriptorBuilder().
//	    InputTerminal(1, sim.TerminalUSBStreaming, 2, 0x0003).
//	    FeatureUnit(2, 1, 1, sim.ControlMute|sim.ControlVolume, 0, 0).
//	    OutputTerminal(3, sim.TerminalSpeaker, 2).
//	    Idle(1, 0).
//	    Alternate(1, 1, sim.Format{
//	        TerminalLink: 1, FormatTag: sim.FormatPCM,
//	        Channels: 2, SubframeSize: 2, BitResolution: 16,
//	        Rates: []uint32{48000}, Endpoint: 0x01,
//	    }).
//	    Bytes()
//
//	h := sim.NewHostHAL(sim.Device{Product: "Speaker", Configuration: blob})
//
// [HostHAL.Unplug] simulates a surprise removal: waiting isochronous
// transfers complete with pkg.ErrNoDevice.
package sim
