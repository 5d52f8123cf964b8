// Package audio implements the core of a USB Audio Class 1.0 host driver.
//
// An audio function is described by the class-specific records of its
// configuration descriptor. The package decodes them into four layers:
//
//   - [Cursor] walks the descriptor blob record by record and never reads
//     past a record's declared length.
//   - [Graph] holds the units and terminals of the audio control interface
//     and resolves [Path] chains between the host-facing terminal and a
//     physical pin.
//   - [Catalog] maps the alternate settings of a streaming interface to the
//     [FormatRange] values a client can select.
//   - [Stream] moves samples between a client [Ring] and fixed-size
//     isochronous transfers, tracks the ring position and reports progress
//     through a [Notifier].
//
// # Attaching
//
// [AttachDevice] claims the audio interfaces of an enumerated
// [host.Device] and builds every layer:
//
//	dev, _ := h.WaitDevice(ctx)
//	fn, err := audio.AttachDevice(ctx, dev, audio.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	s, _ := fn.StreamFor(audio.DirectionRender)
//
// # Streaming
//
// A stream is configured while stopped, then started:
//
//	s.SetFormat(ctx, 48000, 2, audio.EncodingS16)
//	ring, _ := s.GetBuffer(4800, 4)
//	s.Start(ctx)
//
// Each bus service interval carries rate/tickRate frames; the remainder
// accumulates and adds one frame whenever it reaches a whole interval, so a
// 44.1 kHz stream at full speed alternates 44 and 45 frame transfers. Render
// streams copy from the ring when a transfer is queued; capture streams
// copy into the ring when it completes, writing silence for failed
// transfers.
//
// # Gain
//
// The first Feature Unit of a path is its gain unit. Volume is expressed in
// decibels; the device works in 1/256 dB ticks on a fixed grid. Units
// without a mute control emulate it by sending the most negative gain.
package audio
