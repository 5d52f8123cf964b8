package audio

import "github.com/ardnew/softuac/host/hal"

// cadence spreads a sample rate over bus service intervals. Each interval
// carries base bytes; the fractional remainder accumulates and adds one
// frame whenever it reaches a whole interval, so no drift builds up.
type cadence struct {
	frameSize int
	tickRate  uint32
	base      int
	rem       uint32
	frac      uint32
}

func newCadence(rate, tickRate uint32, frameSize int) cadence {
	return cadence{
		frameSize: frameSize,
		tickRate:  tickRate,
		base:      int(rate/tickRate) * frameSize,
		rem:       rate % tickRate,
	}
}

// next returns the byte length of the next transfer.
func (c *cadence) next() int {
	c.frac += c.rem
	if c.frac >= c.tickRate {
		c.frac -= c.tickRate
		return c.base + c.frameSize
	}
	return c.base
}

func (c *cadence) reset() {
	c.frac = 0
}

// maxLength returns the longest transfer the cadence produces.
func (c *cadence) maxLength() int {
	if c.rem != 0 {
		return c.base + c.frameSize
	}
	return c.base
}

// serviceInterval returns the number of bus ticks between transfers of an
// isochronous endpoint: 2^(bInterval-1) at high speed, one frame otherwise.
func serviceInterval(speed hal.Speed, interval uint8) uint64 {
	if speed != hal.SpeedHigh || interval <= 1 {
		return 1
	}
	return 1 << min(interval-1, 15)
}

// tickRate returns the number of transfers per second of an isochronous
// endpoint.
func tickRate(speed hal.Speed, interval uint8) uint32 {
	return uint32(speed.TicksPerSecond()) / uint32(serviceInterval(speed, interval))
}
