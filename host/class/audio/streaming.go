package audio

import (
	"github.com/ardnew/softuac/pkg"
)

// Alternate is one operational alternate setting of a streaming interface.
type Alternate struct {
	Number   uint8
	General  StreamingGeneral
	Format   FormatTypeI
	Endpoint EndpointDescriptor
	Class    StreamingEndpoint
}

// StreamingInterface merges the alternate settings that share an audio
// streaming interface number.
type StreamingInterface struct {
	Number       uint8
	TerminalLink uint8
	Endpoint     uint8

	alternates []Alternate
	idle       uint8
	hasIdle    bool
}

// Alternates returns the operational alternate settings in descriptor
// order.
func (si *StreamingInterface) Alternates() []Alternate {
	return append([]Alternate(nil), si.alternates...)
}

// Idle returns the zero-bandwidth alternate setting, if one was declared.
func (si *StreamingInterface) Idle() (uint8, bool) {
	return si.idle, si.hasIdle
}

// Direction returns the data direction implied by the endpoint.
func (si *StreamingInterface) Direction() Direction {
	if si.Endpoint&0x80 != 0 {
		return DirectionCapture
	}
	return DirectionRender
}

// Streaming-interface decoding stages. Records of an alternate setting are
// accepted in this order.
const (
	stageGeneral = iota
	stageFormat
	stageEndpoint
	stageClassEndpoint
	stageComplete
)

// pending is an alternate setting being decoded.
type pending struct {
	iface     InterfaceDescriptor
	alt       Alternate
	stage     int
	unordered bool
}

// ParseStreamingInterfaces decodes every audio streaming interface of a
// configuration blob. Incomplete or inconsistent alternate settings are
// logged and skipped.
func ParseStreamingInterfaces(blob []byte) []*StreamingInterface {
	var (
		out  []*StreamingInterface
		byID = make(map[uint8]*StreamingInterface)
		cur  *pending
	)

	finish := func() {
		if cur == nil {
			return
		}
		si := byID[cur.iface.Number]
		if si == nil {
			si = &StreamingInterface{Number: cur.iface.Number}
			byID[si.Number] = si
			out = append(out, si)
		}
		si.merge(cur)
		cur = nil
	}

	c := NewCursor(blob)
	for ; c.Valid(); c.Next() {
		h := c.Header()
		switch h.Type {
		case descTypeInterface:
			finish()
			d := As[InterfaceDescriptor](c)
			if d != nil && d.Class == ClassAudio && d.Subclass == SubclassAudioStreaming {
				cur = &pending{iface: *d, alt: Alternate{Number: d.Alternate}}
			}

		case descTypeCSInterface:
			if cur == nil {
				continue
			}
			switch {
			case h.Subtype == asGeneral && cur.stage == stageGeneral:
				if d := As[StreamingGeneral](c); d != nil {
					cur.alt.General = *d
					cur.stage++
				}
			case h.Subtype == asFormatType && cur.stage == stageFormat:
				if d := As[FormatTypeI](c); d != nil && d.FormatType == formatTypeI {
					cur.alt.Format = *d
					cur.stage++
				}
			default:
				cur.unordered = true
			}

		case descTypeEndpoint:
			if cur == nil || cur.stage != stageEndpoint {
				continue
			}
			if d := As[EndpointDescriptor](c); d != nil {
				cur.alt.Endpoint = *d
				cur.stage++
			}

		case descTypeCSEndpoint:
			if cur == nil || cur.stage != stageClassEndpoint {
				continue
			}
			if d := As[StreamingEndpoint](c); d != nil && h.Subtype == epGeneral {
				cur.alt.Class = *d
				cur.stage++
			}
		}
	}
	finish()
	return out
}

func (si *StreamingInterface) merge(p *pending) {
	if p.iface.NumEndpoints == 0 {
		if si.hasIdle {
			pkg.LogWarn(pkg.ComponentFormat, "second idle alternate ignored",
				"interface", si.Number,
				"alt", p.alt.Number)
			return
		}
		si.idle, si.hasIdle = p.alt.Number, true
		return
	}

	if p.stage != stageComplete {
		pkg.LogWarn(pkg.ComponentFormat, "incomplete alternate skipped",
			"interface", si.Number,
			"alt", p.alt.Number,
			"stage", p.stage,
			"unordered", p.unordered)
		return
	}
	if !p.alt.Endpoint.IsIsochronous() {
		pkg.LogWarn(pkg.ComponentFormat, "alternate without isochronous endpoint skipped",
			"interface", si.Number,
			"alt", p.alt.Number)
		return
	}

	if len(si.alternates) == 0 {
		si.TerminalLink = p.alt.General.TerminalLink
		si.Endpoint = p.alt.Endpoint.Address
	} else if p.alt.General.TerminalLink != si.TerminalLink || p.alt.Endpoint.Address != si.Endpoint {
		pkg.LogWarn(pkg.ComponentFormat, "inconsistent alternate skipped",
			"interface", si.Number,
			"alt", p.alt.Number,
			"terminal", p.alt.General.TerminalLink,
			"endpoint", p.alt.Endpoint.Address)
		return
	}
	si.alternates = append(si.alternates, p.alt)
}
