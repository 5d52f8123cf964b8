package audio

import "errors"

// Audio class driver errors.
var (
	// ErrFormatNotFound is returned when no catalog entry matches a
	// requested rate, channel count and encoding.
	ErrFormatNotFound = errors.New("audio: format not found")

	// ErrTornDown is returned by every operation on a closed stream.
	ErrTornDown = errors.New("audio: stream torn down")

	// ErrNoBuffer is returned by Start when no ring buffer was requested.
	ErrNoBuffer = errors.New("audio: no ring buffer")

	// ErrNoFormat is returned by Start and GetBuffer before SetFormat.
	ErrNoFormat = errors.New("audio: no format selected")

	// ErrGainOutOfRange is returned when a requested gain lies outside the
	// unit's range.
	ErrGainOutOfRange = errors.New("audio: gain out of range")

	// ErrProbeFailed is returned when a feature unit's controls cannot be
	// modeled or queried.
	ErrProbeFailed = errors.New("audio: feature unit probe failed")
)
