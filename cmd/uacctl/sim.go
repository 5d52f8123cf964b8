package main

import (
	"encoding/binary"
	"math"

	"github.com/ardnew/softuac/host/hal/sim"
)

// Headset layout: interface 1 renders through IT1 -> FU2 -> OT3, interface
// 2 captures through IT4 -> FU5 -> OT6.
const (
	headsetRenderEndpoint  = 0x01
	headsetCaptureEndpoint = 0x82
)

// headsetDescriptors builds the configuration descriptor of the simulated
// headset.
func headsetDescriptors(cfg deviceConfig) []byte {
	return sim.NewDescriptorBuilder().
		InputTerminal(1, sim.TerminalUSBStreaming, 2, 0x0003).
		FeatureUnit(2, 1, 1, sim.ControlMute|sim.ControlVolume, 0, 0).
		OutputTerminal(3, sim.TerminalHeadphones, 2).
		InputTerminal(4, sim.TerminalMicrophone, 2, 0x0003).
		FeatureUnit(5, 4, 1, sim.ControlMute|sim.ControlVolume|sim.ControlAGC, 0, 0).
		OutputTerminal(6, sim.TerminalUSBStreaming, 5).
		Idle(1, 0).
		Alternate(1, 1, sim.Format{
			TerminalLink:      1,
			FormatTag:         sim.FormatPCM,
			Channels:          2,
			SubframeSize:      2,
			BitResolution:     16,
			Rates:             cfg.RenderRates,
			Endpoint:          headsetRenderEndpoint,
			SampleRateControl: len(cfg.RenderRates) > 1,
		}).
		Idle(2, 0).
		Alternate(2, 1, sim.Format{
			TerminalLink:  6,
			FormatTag:     sim.FormatPCM,
			Channels:      2,
			SubframeSize:  2,
			BitResolution: 16,
			Rates:         []uint32{cfg.CaptureRate},
			Endpoint:      headsetCaptureEndpoint,
		}).
		Bytes()
}

// newHeadset creates the simulated host controller with the headset
// attached. The microphone produces a sine tone.
func newHeadset(cfg deviceConfig) *sim.HostHAL {
	var opts []sim.Option
	if cfg.Tick > 0 {
		opts = append(opts, sim.WithTickDuration(cfg.Tick))
	}
	h := sim.NewHostHAL(sim.Device{
		VendorID:      cfg.VendorID,
		ProductID:     cfg.ProductID,
		Manufacturer:  cfg.Manufacturer,
		Product:       cfg.Product,
		SerialNumber:  cfg.SerialNumber,
		Configuration: headsetDescriptors(cfg),
	}, opts...)
	h.SetSource(headsetCaptureEndpoint, toneSource(cfg.ToneHz, cfg.CaptureRate))
	return h
}

// toneSource returns a source producing a stereo 16-bit sine at hz. The
// phase carries across frames.
func toneSource(hz float64, rate uint32) sim.SourceFunc {
	const amplitude = 0.5 * math.MaxInt16
	var n uint64
	step := 2 * math.Pi * hz / float64(rate)
	return func(_ uint64, buf []byte) int {
		frames := len(buf) / 4
		for i := range frames {
			v := int16(amplitude * math.Sin(step*float64(n)))
			binary.LittleEndian.PutUint16(buf[4*i:], uint16(v))
			binary.LittleEndian.PutUint16(buf[4*i+2:], uint16(v))
			n++
		}
		return frames * 4
	}
}
