package pkg

import "errors"

// USB bus and protocol errors.
var (
	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrNAK indicates a NAK response (device busy).
	ErrNAK = errors.New("NAK received")

	// ErrTimeout indicates a transfer timeout.
	ErrTimeout = errors.New("transfer timeout")

	// ErrCancelled indicates a cancelled transfer.
	ErrCancelled = errors.New("transfer cancelled")

	// ErrOverrun indicates a data overrun condition.
	ErrOverrun = errors.New("data overrun")

	// ErrUnderrun indicates a data underrun condition.
	ErrUnderrun = errors.New("data underrun")

	// ErrProtocol indicates a protocol error.
	ErrProtocol = errors.New("protocol error")

	// ErrNoDevice indicates the device is not present. Streaming code treats
	// it as the "device gone" signal.
	ErrNoDevice = errors.New("device not present")

	// ErrNotConfigured indicates the device is not configured.
	ErrNotConfigured = errors.New("device not configured")

	// ErrInvalidEndpoint indicates an invalid endpoint address.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrInvalidState indicates the operation is not allowed in the current state.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidRequest indicates an invalid or unsupported request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrBusy indicates the resource is busy.
	ErrBusy = errors.New("resource busy")

	// ErrBandwidth indicates insufficient bandwidth for isochronous transfer.
	ErrBandwidth = errors.New("insufficient bandwidth")

	// ErrFrameOverrun indicates an isochronous transfer missed its frame.
	ErrFrameOverrun = errors.New("frame overrun")

	// ErrDescriptorTooShort indicates the descriptor data is too short.
	ErrDescriptorTooShort = errors.New("descriptor too short")

	// ErrAlreadyRunning indicates the component is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning indicates the component is not running.
	ErrNotRunning = errors.New("not running")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNoResources indicates insufficient resources (e.g., free transfer slots).
	ErrNoResources = errors.New("no resources available")
)

// TransferStatus represents the completion status of a USB transfer.
type TransferStatus int

// Transfer status values.
const (
	TransferStatusSuccess   TransferStatus = iota // Transfer completed successfully
	TransferStatusError                           // Transfer failed with error
	TransferStatusStall                           // Endpoint stalled
	TransferStatusNAK                             // NAK received
	TransferStatusTimeout                         // Transfer timed out
	TransferStatusCancelled                       // Transfer was cancelled
	TransferStatusOverrun                         // Data overrun
	TransferStatusUnderrun                        // Data underrun
	TransferStatusNoDevice                        // Device went away
)

// String returns a string representation of the transfer status.
func (s TransferStatus) String() string {
	switch s {
	case TransferStatusSuccess:
		return "success"
	case TransferStatusError:
		return "error"
	case TransferStatusStall:
		return "stall"
	case TransferStatusNAK:
		return "nak"
	case TransferStatusTimeout:
		return "timeout"
	case TransferStatusCancelled:
		return "cancelled"
	case TransferStatusOverrun:
		return "overrun"
	case TransferStatusUnderrun:
		return "underrun"
	case TransferStatusNoDevice:
		return "no-device"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the transfer status.
func (s TransferStatus) Error() error {
	switch s {
	case TransferStatusSuccess:
		return nil
	case TransferStatusStall:
		return ErrStall
	case TransferStatusNAK:
		return ErrNAK
	case TransferStatusTimeout:
		return ErrTimeout
	case TransferStatusCancelled:
		return ErrCancelled
	case TransferStatusOverrun:
		return ErrOverrun
	case TransferStatusUnderrun:
		return ErrUnderrun
	case TransferStatusNoDevice:
		return ErrNoDevice
	default:
		return ErrProtocol
	}
}

// StatusOf classifies err into a TransferStatus. It is the inverse of
// [TransferStatus.Error] for the sentinel errors of this package; any other
// non-nil error maps to TransferStatusError.
func StatusOf(err error) TransferStatus {
	switch {
	case err == nil:
		return TransferStatusSuccess
	case errors.Is(err, ErrStall):
		return TransferStatusStall
	case errors.Is(err, ErrNAK):
		return TransferStatusNAK
	case errors.Is(err, ErrTimeout):
		return TransferStatusTimeout
	case errors.Is(err, ErrCancelled):
		return TransferStatusCancelled
	case errors.Is(err, ErrOverrun):
		return TransferStatusOverrun
	case errors.Is(err, ErrUnderrun):
		return TransferStatusUnderrun
	case errors.Is(err, ErrNoDevice):
		return TransferStatusNoDevice
	default:
		return TransferStatusError
	}
}
