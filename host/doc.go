// Package host implements a pure-Go USB 2.0 host stack sized for class
// drivers that stream isochronous audio.
//
// It is platform-agnostic and interacts with hardware via the [hal.HostHAL]
// interface defined in the github.com/ardnew/softuac/host/hal package.
//
// # Architecture
//
// The host stack is organized into several layers:
//
//   - Host manages the USB host controller and connected devices
//   - Device represents a connected USB device with its descriptors
//   - TransferManager executes asynchronous control and isochronous transfers
//   - Enumeration performs device discovery and configuration
//
// # Descriptors
//
// Enumeration reads the complete configuration descriptor, however long
// wTotalLength says it is. [Device.RawDescriptors] returns it unmodified so
// class drivers can walk their class-specific records. Standard interface
// and endpoint descriptors are also indexed, one entry per alternate
// setting.
//
// # Isochronous Scheduling
//
// Each isochronous transfer names the bus frame it is scheduled for
// ([Transfer.Frame]). The transfer manager runs one ordered queue per
// endpoint, so completions on an endpoint are delivered in the order the
// transfers were submitted. [Transfer.Completed] records when the frame was
// serviced.
//
// # Example
//
//	h := host.New(hal)
//	h.Start(ctx)
//
//	dev, err := h.WaitDevice(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := dev.SetInterface(ctx, 1, 1); err != nil {
//	    log.Fatal(err)
//	}
//	frame, _ := dev.CurrentFrame(ctx)
//	dev.SubmitIsochronous(&host.Transfer{
//	    Endpoint: 0x01,
//	    Frame:    frame + 3,
//	    Data:     pcm,
//	    Callback: func(t *host.Transfer, n int, err error) { ... },
//	})
//
// A simulated audio device HAL is available in
// [github.com/ardnew/softuac/host/hal/sim].
package host
