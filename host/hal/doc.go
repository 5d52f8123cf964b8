// Package hal defines the Hardware Abstraction Layer interface for the
// softuac host stack.
//
// The HAL is the bus transport underneath the USB audio class driver. It
// enumerates and claims interfaces, performs raw control transfers, queues
// frame-scheduled isochronous transfers and clears stalled endpoints. The
// host stack and class driver implement all protocol logic; the HAL only
// moves bytes.
//
// # Interface Overview
//
// The [HostHAL] interface defines the contract for host-side operations:
//   - Initialization and port management
//   - Control transfers for enumeration and class requests
//   - Isochronous transfers pinned to a bus frame number
//   - Alternate setting selection and endpoint halt recovery
//   - Device connection and disconnection events
//
// # Frames
//
// Isochronous scheduling is expressed in bus ticks. A full-speed bus has
// 1000 frames per second; a high-speed bus has 8000 microframes per second
// (see [Speed.TicksPerSecond]). [HostHAL.CurrentFrame] reports the tick
// currently on the wire, so a caller scheduling a transfer must pick a frame
// strictly after it.
//
// A simulated HAL that emulates a USB audio device is available in
// [github.com/ardnew/softuac/host/hal/sim].
package hal
