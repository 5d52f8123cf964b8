package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ardnew/softuac/host/class/audio"
	"github.com/ardnew/softuac/pkg"
	"github.com/ardnew/softuac/pkg/prof"
)

// config is the uacctl configuration file.
type config struct {
	Audio   audio.Config `yaml:"audio"`
	Device  deviceConfig `yaml:"device"`
	Stream  streamConfig `yaml:"stream"`
	Metrics string       `yaml:"metrics"`
	Profile prof.Options `yaml:"profile"`
}

// deviceConfig describes the simulated headset.
type deviceConfig struct {
	VendorID     uint16        `yaml:"vendor_id"`
	ProductID    uint16        `yaml:"product_id"`
	Manufacturer string        `yaml:"manufacturer"`
	Product      string        `yaml:"product"`
	SerialNumber string        `yaml:"serial_number"`
	RenderRates  []uint32      `yaml:"render_rates"`
	CaptureRate  uint32        `yaml:"capture_rate"`
	Tick         time.Duration `yaml:"tick"`
	ToneHz       float64       `yaml:"tone_hz"`
}

// streamConfig sizes the ring shared with a stream.
type streamConfig struct {
	RingFrames    int `yaml:"ring_frames"`
	Notifications int `yaml:"notifications"`
}

func defaultConfig() config {
	return config{
		Audio: audio.DefaultConfig(),
		Device: deviceConfig{
			VendorID:     0x1209,
			ProductID:    0xA0D1,
			Manufacturer: "softuac",
			Product:      "Sim Headset",
			SerialNumber: "0001",
			RenderRates:  []uint32{44100, 48000},
			CaptureRate:  48000,
			ToneHz:       440,
		},
		Stream: streamConfig{
			RingFrames:    4800,
			Notifications: 8,
		},
	}
}

// loadConfig reads a YAML configuration over the defaults. An empty path
// returns the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		if err := decodeConfig(f, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	return cfg, cfg.validate()
}

func decodeConfig(r io.Reader, cfg *config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *config) validate() error {
	if err := c.Audio.Validate(); err != nil {
		return err
	}
	if len(c.Device.RenderRates) == 0 || c.Device.CaptureRate == 0 {
		return fmt.Errorf("%w: device needs render and capture rates", pkg.ErrInvalidParameter)
	}
	if c.Stream.RingFrames < 1 || c.Stream.Notifications < 1 {
		return fmt.Errorf("%w: stream ring_frames and notifications must be positive", pkg.ErrInvalidParameter)
	}
	return nil
}
