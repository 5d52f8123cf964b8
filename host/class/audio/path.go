package audio

import "slices"

// Direction is the data direction of a path, seen from the host.
type Direction uint8

// Path directions.
const (
	// DirectionRender moves samples from the host to a pin.
	DirectionRender Direction = iota + 1

	// DirectionCapture moves samples from a pin to the host.
	DirectionCapture
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionRender:
		return "render"
	case DirectionCapture:
		return "capture"
	default:
		return "unknown"
	}
}

// Path is a committed chain of nodes from an Output Terminal (first) to an
// Input Terminal (last). Exactly one of the two terminals faces the host.
type Path struct {
	ids       []uint8
	direction Direction
	gain      *FeatureUnit
}

// IDs returns the node ids of the path in traversal order.
func (p *Path) IDs() []uint8 {
	return slices.Clone(p.ids)
}

// Len returns the number of nodes in the path.
func (p *Path) Len() int {
	return len(p.ids)
}

// Direction returns the data direction of the path.
func (p *Path) Direction() Direction {
	return p.direction
}

// OutputTerminal returns the id of the path's Output Terminal.
func (p *Path) OutputTerminal() uint8 {
	return p.ids[0]
}

// InputTerminal returns the id of the path's Input Terminal.
func (p *Path) InputTerminal() uint8 {
	return p.ids[len(p.ids)-1]
}

// HostTerminal returns the id of the host-facing terminal. Streaming
// interfaces link to it.
func (p *Path) HostTerminal() uint8 {
	if p.direction == DirectionRender {
		return p.InputTerminal()
	}
	return p.OutputTerminal()
}

// GainUnit returns the first Feature Unit of the path, or nil.
func (p *Path) GainUnit() *FeatureUnit {
	return p.gain
}

// HasGain reports whether the path has a controllable volume.
func (p *Path) HasGain() bool {
	return p.gain != nil && p.gain.HasGain()
}

// Contains reports whether the path includes node id.
func (p *Path) Contains(id uint8) bool {
	return slices.Contains(p.ids, id)
}
