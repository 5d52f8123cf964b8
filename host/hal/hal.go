package hal

import (
	"context"
)

// Speed represents the USB connection speed.
type Speed uint8

// USB speed constants (USB 2.0 Specification).
const (
	SpeedUnknown Speed = iota // Not connected or unknown
	SpeedLow                  // Low Speed (1.5 Mbit/s)
	SpeedFull                 // Full Speed (12 Mbit/s)
	SpeedHigh                 // High Speed (480 Mbit/s)
)

// String returns a human-readable speed name.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "Low Speed"
	case SpeedFull:
		return "Full Speed"
	case SpeedHigh:
		return "High Speed"
	default:
		return "Unknown"
	}
}

// TicksPerSecond returns the number of bus ticks per second: 1 ms frames
// below high speed, 125 µs microframes at high speed. Frame numbers returned
// by [HostHAL.CurrentFrame] count in these units.
func (s Speed) TicksPerSecond() int {
	if s == SpeedHigh {
		return 8000
	}
	return 1000
}

// PortStatus represents the status of a host port.
type PortStatus struct {
	Connected     bool  // Device is connected
	Enabled       bool  // Port is enabled
	Suspended     bool  // Port is suspended
	OverCurrent   bool  // Over-current condition detected
	Reset         bool  // Port is being reset
	PowerOn       bool  // Port has power applied
	Speed         Speed // Connected device speed
	ConnectChange bool  // Connection status has changed
}

// SetupPacket represents a USB SETUP packet in the HAL layer.
type SetupPacket struct {
	RequestType uint8  // Request characteristics
	Request     uint8  // Specific request
	Value       uint16 // Request-specific value
	Index       uint16 // Request-specific index
	Length      uint16 // Number of bytes to transfer
}

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = 8

// IsIn reports whether the data stage flows device to host.
func (s *SetupPacket) IsIn() bool {
	return s.RequestType&0x80 != 0
}

// ParseSetupPacket parses raw bytes into a SetupPacket.
// Returns false if data is too short.
func ParseSetupPacket(data []byte, out *SetupPacket) bool {
	if len(data) < SetupPacketSize {
		return false
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = uint16(data[2]) | uint16(data[3])<<8
	out.Index = uint16(data[4]) | uint16(data[5])<<8
	out.Length = uint16(data[6]) | uint16(data[7])<<8
	return true
}

// MarshalTo writes the setup packet to buf.
// Returns the number of bytes written (8), or 0 if buf is too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	buf[2] = byte(s.Value)
	buf[3] = byte(s.Value >> 8)
	buf[4] = byte(s.Index)
	buf[5] = byte(s.Index >> 8)
	buf[6] = byte(s.Length)
	buf[7] = byte(s.Length >> 8)
	return SetupPacketSize
}

// TransferType indicates the type of USB transfer.
type TransferType uint8

// Transfer type constants.
const (
	TransferControl     TransferType = 0 // Control transfer
	TransferIsochronous TransferType = 1 // Isochronous transfer
	TransferBulk        TransferType = 2 // Bulk transfer
	TransferInterrupt   TransferType = 3 // Interrupt transfer
)

// String returns the transfer type name.
func (t TransferType) String() string {
	switch t {
	case TransferControl:
		return "control"
	case TransferIsochronous:
		return "isochronous"
	case TransferBulk:
		return "bulk"
	case TransferInterrupt:
		return "interrupt"
	default:
		return "unknown"
	}
}

// DeviceAddress represents a USB device address (1-127).
type DeviceAddress uint8

// HostHAL defines the Hardware Abstraction Layer interface for the host
// stack.
//
// The HAL exposes the operations a class driver that streams audio needs:
// control transfers, frame-scheduled isochronous transfers, alternate
// setting selection and endpoint halt recovery. Platform vendors implement
// this interface; [github.com/ardnew/softuac/host/hal/sim] provides a
// simulated audio device.
//
// All methods should be safe for concurrent use.
type HostHAL interface {
	// Initialization and Lifecycle

	// Init initializes the USB host controller hardware.
	// The context can be used to cancel initialization.
	Init(ctx context.Context) error

	// Start enables the host controller and applies power to ports.
	Start() error

	// Stop disables the host controller and removes power from ports.
	Stop() error

	// Close releases all resources associated with the HAL.
	Close() error

	// Port Operations

	// NumPorts returns the number of root hub ports.
	NumPorts() int

	// GetPortStatus returns the status of a port (1-indexed).
	GetPortStatus(port int) (PortStatus, error)

	// PortSpeed returns the connection speed of a device on the given port.
	PortSpeed(port int) Speed

	// ResetPort initiates a port reset (1-indexed).
	// After reset completes, the device will be at address 0.
	ResetPort(port int) error

	// Control Transfers

	// ControlTransfer performs a control transfer to a device.
	// For OUT transfers, data contains the data to send.
	// For IN transfers, data is filled with received data.
	// Returns the number of bytes transferred in the data phase.
	// A stalled request returns an error wrapping pkg.ErrStall.
	ControlTransfer(ctx context.Context, addr DeviceAddress, setup *SetupPacket, data []byte) (int, error)

	// Isochronous Transfers

	// IsochronousTransfer performs one isochronous transaction scheduled for
	// the given bus frame (see [Speed.TicksPerSecond]). It returns once the
	// frame has been serviced. For IN endpoints data is filled with received
	// bytes; for OUT endpoints data is sent. A device that has gone away
	// returns an error wrapping pkg.ErrNoDevice.
	IsochronousTransfer(ctx context.Context, addr DeviceAddress, endpoint uint8, frame uint64, data []byte) (int, error)

	// CurrentFrame returns the bus frame number that is currently being
	// serviced for the given device. Frames at or before this number are
	// no longer schedulable.
	CurrentFrame(ctx context.Context, addr DeviceAddress) (uint64, error)

	// Interface and Endpoint Management

	// ClaimInterface claims exclusive access to an interface on a device.
	ClaimInterface(addr DeviceAddress, iface uint8) error

	// ReleaseInterface releases a previously claimed interface.
	ReleaseInterface(addr DeviceAddress, iface uint8) error

	// SetInterface selects an alternate setting of a claimed interface.
	SetInterface(ctx context.Context, addr DeviceAddress, iface, alt uint8) error

	// ClearHalt clears a halt/stall condition on an endpoint. Endpoint 0
	// resets the default control pipe after a stalled request.
	ClearHalt(ctx context.Context, addr DeviceAddress, endpoint uint8) error

	// Connection Events

	// WaitForConnection blocks until a device connects or context is cancelled.
	// Returns the port number (1-indexed) where the device connected.
	WaitForConnection(ctx context.Context) (int, error)

	// WaitForDisconnection blocks until a device disconnects or context is cancelled.
	// Returns the port number (1-indexed) where the device disconnected.
	WaitForDisconnection(ctx context.Context) (int, error)
}
