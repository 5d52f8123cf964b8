package audio

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ardnew/softuac/host"
	"github.com/ardnew/softuac/pkg"
)

// streamNamespace scopes the name-based stream identifiers.
var streamNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/ardnew/softuac/audio/stream"))

// DeviceInfo identifies the device an audio function lives on.
type DeviceInfo struct {
	// Descriptors is the full configuration descriptor blob.
	Descriptors []byte

	Manufacturer string
	Product      string
	SerialNumber string
}

// Device is an attached audio function: its graph, committed paths and one
// stream per streaming interface paired with a path.
type Device struct {
	info    DeviceInfo
	graph   *Graph
	ifaces  []*StreamingInterface
	streams []*Stream
}

// Attach decodes an audio function from info.Descriptors, resolves its
// paths and creates a stream for every streaming interface whose terminal
// link and direction match a path. Streams start stopped on their idle
// alternate.
func Attach(ctx context.Context, bus Bus, info DeviceInfo, cfg Config, opts ...StreamOption) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := NewGraph(bus, info.Descriptors, cfg)
	if _, ok := g.ControlInterface(); !ok {
		return nil, fmt.Errorf("attach: no audio control interface: %w", pkg.ErrNotSupported)
	}

	d := &Device{
		info:   info,
		graph:  g,
		ifaces: ParseStreamingInterfaces(info.Descriptors),
	}
	paths := g.ResolvePaths(ctx)

	paired := make(map[*Path]bool)
	for _, si := range d.ifaces {
		p := pairPath(paths, paired, si)
		if p == nil {
			pkg.LogWarn(pkg.ComponentFormat, "streaming interface without path",
				"interface", si.Number,
				"terminal", si.TerminalLink,
				"direction", si.Direction())
			continue
		}
		paired[p] = true

		cat := NewCatalog(bus, si, cfg)
		cat.Build()
		if err := cat.SelectIdle(ctx); err != nil {
			pkg.LogDebug(pkg.ComponentFormat, "idle alternate not selected",
				"interface", si.Number,
				"error", err)
		}

		s := newStream(bus, cfg, cat, p, d.streamID(si.Number), opts...)
		s.manufacturer = info.Manufacturer
		s.product = info.Product
		d.streams = append(d.streams, s)
	}

	pkg.LogInfo(pkg.ComponentStream, "audio function attached",
		"product", info.Product,
		"nodes", len(g.nodes),
		"paths", len(paths),
		"streams", len(d.streams))
	return d, nil
}

// pairPath returns the first unpaired path ending at the interface's
// terminal in the interface's direction.
func pairPath(paths []*Path, paired map[*Path]bool, si *StreamingInterface) *Path {
	if len(si.alternates) == 0 {
		return nil
	}
	for _, p := range paths {
		if !paired[p] && p.HostTerminal() == si.TerminalLink && p.Direction() == si.Direction() {
			return p
		}
	}
	return nil
}

// streamID derives a stream identifier from the descriptor blob, the
// device strings and the streaming interface number.
func (d *Device) streamID(iface uint8) uuid.UUID {
	name := make([]byte, 0, len(d.info.Descriptors)+64)
	name = append(name, d.info.Descriptors...)
	for _, s := range []string{d.info.Manufacturer, d.info.Product, d.info.SerialNumber} {
		name = append(name, 0)
		name = append(name, s...)
	}
	name = append(name, 0, iface)
	return uuid.NewSHA1(streamNamespace, name)
}

// AttachDevice claims the audio interfaces of an enumerated device and
// attaches its audio function.
func AttachDevice(ctx context.Context, dev *host.Device, cfg Config, opts ...StreamOption) (*Device, error) {
	claimed := make(map[uint8]bool)
	for _, iface := range dev.Interfaces() {
		if iface.InterfaceClass != ClassAudio || claimed[iface.InterfaceNumber] {
			continue
		}
		if err := dev.ClaimInterface(iface.InterfaceNumber); err != nil {
			return nil, fmt.Errorf("claim interface %d: %w", iface.InterfaceNumber, err)
		}
		claimed[iface.InterfaceNumber] = true
	}
	if len(claimed) == 0 {
		return nil, fmt.Errorf("attach: no audio interfaces: %w", pkg.ErrNotSupported)
	}

	return Attach(ctx, dev, DeviceInfo{
		Descriptors:  dev.RawDescriptors(),
		Manufacturer: dev.Manufacturer(),
		Product:      dev.Product(),
		SerialNumber: dev.SerialNumber(),
	}, cfg, opts...)
}

// Graph returns the decoded unit and terminal graph.
func (d *Device) Graph() *Graph {
	return d.graph
}

// StreamingInterfaces returns every decoded streaming interface.
func (d *Device) StreamingInterfaces() []*StreamingInterface {
	return append([]*StreamingInterface(nil), d.ifaces...)
}

// Streams returns the streams in streaming interface order.
func (d *Device) Streams() []*Stream {
	return append([]*Stream(nil), d.streams...)
}

// Stream returns the stream of a streaming interface.
func (d *Device) Stream(iface uint8) (*Stream, bool) {
	for _, s := range d.streams {
		if s.Interface() == iface {
			return s, true
		}
	}
	return nil, false
}

// StreamFor returns the first stream with the given direction.
func (d *Device) StreamFor(dir Direction) (*Stream, bool) {
	for _, s := range d.streams {
		if s.Direction() == dir {
			return s, true
		}
	}
	return nil, false
}

// Detach reports removal of the device. Idle streams tear down
// immediately; running streams tear down once their transfers drain.
func (d *Device) Detach() {
	for _, s := range d.streams {
		s.detach()
	}
}

// Close closes every stream.
func (d *Device) Close() error {
	for _, s := range d.streams {
		if err := s.Close(); err != nil && !errors.Is(err, ErrTornDown) {
			return err
		}
	}
	return nil
}
