package audio

import (
	"fmt"
	"time"

	"github.com/ardnew/softuac/pkg"
)

// Config configures the audio class driver.
type Config struct {
	// TransferPoolSize is the number of isochronous transfers each stream
	// keeps in flight.
	TransferPoolSize int `yaml:"transfer_pool_size" default:"8"`

	// StartFrameOffset is how many bus ticks past the current one the first
	// transfer of a stream is scheduled for.
	StartFrameOffset int `yaml:"start_frame_offset" default:"3"`

	// ControlTimeout bounds every class control request.
	ControlTimeout time.Duration `yaml:"control_timeout" default:"500ms"`

	// MaxRangesPerPage bounds the number of format ranges per page
	// returned by FormatPages.
	MaxRangesPerPage int `yaml:"max_ranges_per_page" default:"15"`
}

// Configuration limits.
const (
	MaxTransferPoolSize = 32
	MaxStartFrameOffset = 64
)

// DefaultConfig returns the default driver configuration.
func DefaultConfig() Config {
	return Config{
		TransferPoolSize: 8,
		StartFrameOffset: 3,
		ControlTimeout:   500 * time.Millisecond,
		MaxRangesPerPage: 15,
	}
}

// Validate fills zero fields with defaults and checks ranges.
func (c *Config) Validate() error {
	def := DefaultConfig()

	if c.TransferPoolSize == 0 {
		c.TransferPoolSize = def.TransferPoolSize
	}
	if c.TransferPoolSize < 1 || c.TransferPoolSize > MaxTransferPoolSize {
		return fmt.Errorf("%w: transfer_pool_size must be between 1 and %d",
			pkg.ErrInvalidParameter, MaxTransferPoolSize)
	}

	if c.StartFrameOffset == 0 {
		c.StartFrameOffset = def.StartFrameOffset
	}
	if c.StartFrameOffset < 1 || c.StartFrameOffset > MaxStartFrameOffset {
		return fmt.Errorf("%w: start_frame_offset must be between 1 and %d",
			pkg.ErrInvalidParameter, MaxStartFrameOffset)
	}

	if c.ControlTimeout == 0 {
		c.ControlTimeout = def.ControlTimeout
	}
	if c.ControlTimeout < time.Millisecond {
		return fmt.Errorf("%w: control_timeout must be at least 1ms", pkg.ErrInvalidParameter)
	}

	if c.MaxRangesPerPage == 0 {
		c.MaxRangesPerPage = def.MaxRangesPerPage
	}
	if c.MaxRangesPerPage < 1 {
		return fmt.Errorf("%w: max_ranges_per_page must be positive", pkg.ErrInvalidParameter)
	}

	return nil
}
