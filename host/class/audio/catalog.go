package audio

import (
	"context"
	"fmt"

	"github.com/ardnew/softuac/pkg"
)

// Entry is one activatable format of a streaming interface.
type Entry struct {
	Range           FormatRange
	Alternate       uint8
	Endpoint        uint8
	MaxTransferSize int

	// Interval is the endpoint's bInterval.
	Interval uint8

	// rates is the number of discrete rates the alternate lists; zero for
	// a continuous range.
	rates int
}

// Catalog maps the alternate settings of one streaming interface to the
// format ranges they can stream. It is built once.
type Catalog struct {
	iface   *StreamingInterface
	ctl     *controller
	perPage int
	entries []Entry
	built   bool
}

// NewCatalog returns an unbuilt catalog for si.
func NewCatalog(bus Bus, si *StreamingInterface, cfg Config) *Catalog {
	return &Catalog{
		iface:   si,
		ctl:     &controller{bus: bus, iface: si.Number, timeout: cfg.ControlTimeout},
		perPage: cfg.MaxRangesPerPage,
	}
}

// Build expands every alternate setting into catalog entries: one per
// discrete rate, or one continuous entry. Alternates whose encoding is not
// supported are skipped. Build panics when called twice.
func (c *Catalog) Build() {
	if c.built {
		panic(fmt.Sprintf("audio: catalog of interface %d built twice", c.iface.Number))
	}
	c.built = true

	for _, alt := range c.iface.alternates {
		f := alt.Format
		enc, ok := encodingOf(alt.General.FormatTag, f.BitResolution, f.SubframeSize)
		if !ok {
			pkg.LogWarn(pkg.ComponentFormat, "unsupported encoding skipped",
				"interface", c.iface.Number,
				"alt", alt.Number,
				"tag", alt.General.FormatTag,
				"bits", f.BitResolution,
				"subframe", f.SubframeSize)
			continue
		}
		if f.Channels == 0 {
			pkg.LogWarn(pkg.ComponentFormat, "zero-channel format skipped",
				"interface", c.iface.Number,
				"alt", alt.Number)
			continue
		}

		base := Entry{
			Alternate:       alt.Number,
			Endpoint:        alt.Endpoint.Address,
			MaxTransferSize: alt.Endpoint.MaxTransferSize(),
			Interval:        alt.Endpoint.Interval,
			rates:           len(f.Rates),
		}
		if f.Continuous() {
			e := base
			e.Range = FormatRange{
				Encoding:   enc,
				Channels:   f.Channels,
				MinRate:    f.MinRate,
				MaxRate:    f.MaxRate,
				Continuous: true,
			}
			c.entries = append(c.entries, e)
			continue
		}
		for _, rate := range f.Rates {
			e := base
			e.Range = FormatRange{
				Encoding: enc,
				Channels: f.Channels,
				MinRate:  rate,
				MaxRate:  rate,
			}
			c.entries = append(c.entries, e)
		}
	}

	pkg.LogDebug(pkg.ComponentFormat, "catalog built",
		"interface", c.iface.Number,
		"entries", len(c.entries))
}

// Interface returns the streaming interface the catalog describes.
func (c *Catalog) Interface() *StreamingInterface {
	return c.iface
}

// Entries returns every entry in build order.
func (c *Catalog) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Lookup returns the first entry streaming exactly rate, channels and enc.
// Continuous entries match any rate in their range.
func (c *Catalog) Lookup(rate uint32, channels uint8, enc Encoding) (Entry, error) {
	for _, e := range c.entries {
		if e.Range.Contains(rate, channels, enc) {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s %dch %dHz", ErrFormatNotFound, enc, channels, rate)
}

// FormatPages returns the format ranges split into pages.
func (c *Catalog) FormatPages() [][]FormatRange {
	var pages [][]FormatRange
	for i := 0; i < len(c.entries); i += c.perPage {
		end := min(i+c.perPage, len(c.entries))
		page := make([]FormatRange, 0, end-i)
		for _, e := range c.entries[i:end] {
			page = append(page, e.Range)
		}
		pages = append(pages, page)
	}
	return pages
}

// Activate selects the entry's alternate setting and, unless the alternate
// lists exactly one rate, programs the endpoint sampling frequency.
func (c *Catalog) Activate(ctx context.Context, e Entry, rate uint32) error {
	if rate < e.Range.MinRate || rate > e.Range.MaxRate {
		return fmt.Errorf("activate %dHz outside %s: %w", rate, e.Range, pkg.ErrInvalidParameter)
	}
	if err := c.ctl.setInterface(ctx, e.Alternate); err != nil {
		return err
	}
	if e.rates != 1 {
		if err := c.ctl.setSampleRate(ctx, e.Endpoint, rate); err != nil {
			return err
		}
	}
	pkg.LogDebug(pkg.ComponentFormat, "format activated",
		"interface", c.iface.Number,
		"alt", e.Alternate,
		"rate", rate)
	return nil
}

// SelectIdle selects the zero-bandwidth alternate setting.
func (c *Catalog) SelectIdle(ctx context.Context) error {
	alt, ok := c.iface.Idle()
	if !ok {
		return fmt.Errorf("interface %d idle alternate: %w", c.iface.Number, pkg.ErrNotSupported)
	}
	return c.ctl.setInterface(ctx, alt)
}
