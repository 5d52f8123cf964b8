package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ardnew/softuac/host/hal"
)

func TestCadence_NoDrift(t *testing.T) {
	tests := []struct {
		rate      uint32
		tickRate  uint32
		frameSize int
	}{
		{44100, 1000, 4},
		{48000, 1000, 4},
		{22050, 1000, 2},
		{11025, 1000, 6},
		{44100, 8000, 4},
		{96000, 8000, 8},
		{88200, 2000, 4},
		{7999, 1000, 1},
	}

	for _, tt := range tests {
		c := newCadence(tt.rate, tt.tickRate, tt.frameSize)
		lo := int(tt.rate/tt.tickRate) * tt.frameSize
		total := 0
		for i := uint32(0); i < tt.tickRate; i++ {
			n := c.next()
			assert.Zero(t, n%tt.frameSize)
			assert.GreaterOrEqual(t, n, lo)
			assert.LessOrEqual(t, n, c.maxLength())
			total += n
		}
		assert.Equal(t, int(tt.rate)*tt.frameSize, total,
			"%d Hz over %d ticks", tt.rate, tt.tickRate)
	}
}

func TestCadence_Pattern(t *testing.T) {
	c := newCadence(44100, 1000, 4)
	assert.Equal(t, 180, c.maxLength())

	var lengths []int
	for range 10 {
		lengths = append(lengths, c.next())
	}
	assert.Equal(t, []int{176, 176, 176, 176, 176, 176, 176, 176, 176, 180}, lengths)

	c.reset()
	assert.Equal(t, 176, c.next())
}

func TestCadence_Integral(t *testing.T) {
	c := newCadence(48000, 1000, 4)
	assert.Equal(t, 192, c.maxLength())
	for range 100 {
		assert.Equal(t, 192, c.next())
	}
}

func TestServiceInterval(t *testing.T) {
	tests := []struct {
		speed    hal.Speed
		interval uint8
		want     uint64
		rate     uint32
	}{
		{hal.SpeedFull, 1, 1, 1000},
		{hal.SpeedFull, 4, 1, 1000},
		{hal.SpeedHigh, 1, 1, 8000},
		{hal.SpeedHigh, 2, 2, 4000},
		{hal.SpeedHigh, 4, 8, 1000},
		{hal.SpeedHigh, 0, 1, 8000},
		{hal.SpeedHigh, 13, 4096, 1},
		{hal.SpeedHigh, 14, 8192, 0},
		{hal.SpeedHigh, 16, 32768, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, serviceInterval(tt.speed, tt.interval), "%v interval %d", tt.speed, tt.interval)
		assert.Equal(t, tt.rate, tickRate(tt.speed, tt.interval), "%v interval %d", tt.speed, tt.interval)
	}
}
