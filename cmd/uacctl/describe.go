package main

import (
	"fmt"
	"log/slog"

	"github.com/ardnew/softuac/host/class/audio"
	"github.com/ardnew/softuac/pkg"
	"github.com/ardnew/softuac/pkg/usbid"
)

// runDescribe logs the device, its unit graph, the committed paths and
// every stream with its formats and gain.
func runDescribe(s *session, names *usbid.Database) error {
	dev := s.dev
	pkg.LogInfo(componentCtl, "device",
		"vid", fmt.Sprintf("%04x", dev.VendorID()),
		"pid", fmt.Sprintf("%04x", dev.ProductID()),
		"vendor", orDefault(names.Vendor(dev.VendorID()), dev.Manufacturer()),
		"product", orDefault(names.Product(dev.VendorID(), dev.ProductID()), dev.Product()),
		"serial", dev.SerialNumber(),
		"speed", dev.Speed().String())

	fn := s.function()
	g := fn.Graph()
	for _, n := range g.Nodes() {
		attrs := []any{
			"id", n.ID(),
			"kind", n.Kind().String(),
			"in_use", g.InUse(n.ID()),
		}
		switch t := n.(type) {
		case *audio.InputTerminal:
			attrs = append(attrs, "terminal", terminalName(names, t.TerminalType), "channels", t.Channels)
		case *audio.OutputTerminal:
			attrs = append(attrs, "terminal", terminalName(names, t.TerminalType))
		}
		sources := make([]uint8, n.SourceCount())
		for i := range sources {
			sources[i] = n.SourceID(i)
		}
		if len(sources) > 0 {
			attrs = append(attrs, "sources", sources)
		}
		pkg.LogInfo(componentCtl, "node", attrs...)
	}

	for _, p := range g.Paths() {
		pkg.LogInfo(componentCtl, "path",
			"direction", p.Direction().String(),
			"nodes", p.IDs(),
			"host_terminal", p.HostTerminal(),
			"gain", p.HasGain())
	}

	for _, st := range fn.Streams() {
		pages, err := st.FormatPages()
		if err != nil {
			return err
		}
		var formats []string
		for _, page := range pages {
			for _, r := range page {
				formats = append(formats, r.String())
			}
		}
		gain, err := st.Gain()
		if err != nil {
			return err
		}
		attrs := []any{
			"interface", st.Interface(),
			"direction", st.Direction().String(),
			"id", st.UniqueID().String(),
			"pages", len(pages),
			"formats", formats,
		}
		if gain.HasGain {
			attrs = append(attrs, slog.Group("gain",
				"db", gain.Gain,
				"min", gain.Min,
				"max", gain.Max,
				"step", gain.Step,
				"muted", gain.Muted))
		}
		if gain.HasAGC {
			attrs = append(attrs, "agc", gain.AGC)
		}
		pkg.LogInfo(componentCtl, "stream", attrs...)
	}
	return nil
}

// terminalName formats a terminal type with its name when known.
func terminalName(names *usbid.Database, terminalType uint16) string {
	if name := names.Terminal(terminalType); name != "" {
		return fmt.Sprintf("%#04x %s", terminalType, name)
	}
	return fmt.Sprintf("%#04x", terminalType)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
