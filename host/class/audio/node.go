package audio

import (
	"encoding/binary"
)

// Kind identifies the type of a unit or terminal.
type Kind uint8

// Node kinds.
const (
	KindInputTerminal Kind = iota + 1
	KindOutputTerminal
	KindMixer
	KindSelector
	KindFeature
	KindProcessing
	KindExtension
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInputTerminal:
		return "input-terminal"
	case KindOutputTerminal:
		return "output-terminal"
	case KindMixer:
		return "mixer"
	case KindSelector:
		return "selector"
	case KindFeature:
		return "feature"
	case KindProcessing:
		return "processing"
	case KindExtension:
		return "extension"
	default:
		return "unknown"
	}
}

// Node is a unit or terminal of an audio function. It is implemented by
// *InputTerminal, *OutputTerminal, *MixerUnit, *SelectorUnit, *FeatureUnit,
// *ProcessingUnit and *ExtensionUnit.
type Node interface {
	ID() uint8
	Kind() Kind

	// SourceCount returns the number of input pins.
	SourceCount() int

	// SourceID returns the id of the node feeding input pin i.
	SourceID(i int) uint8

	node()
}

// sources is the input pin list shared by units.
type sources []uint8

func (s sources) SourceCount() int     { return len(s) }
func (s sources) SourceID(i int) uint8 { return s[i] }

// InputTerminal is where a signal enters the audio function.
type InputTerminal struct {
	id            uint8
	TerminalType  uint16
	AssocTerminal uint8
	Channels      uint8
	ChannelConfig uint16
	NameIndex     uint8
}

func (t *InputTerminal) ID() uint8        { return t.id }
func (*InputTerminal) Kind() Kind         { return KindInputTerminal }
func (*InputTerminal) SourceCount() int   { return 0 }
func (*InputTerminal) SourceID(int) uint8 { panic("audio: input terminal has no sources") }
func (*InputTerminal) node()              {}
func (*InputTerminal) recordSize() int    { return 12 }
func (t *InputTerminal) HostFacing() bool { return t.TerminalType == TerminalUSBStreaming }

func (t *InputTerminal) decode(b []byte) bool {
	t.id = b[3]
	t.TerminalType = binary.LittleEndian.Uint16(b[4:6])
	t.AssocTerminal = b[6]
	t.Channels = b[7]
	t.ChannelConfig = binary.LittleEndian.Uint16(b[8:10])
	t.NameIndex = b[11]
	return true
}

// OutputTerminal is where a signal leaves the audio function.
type OutputTerminal struct {
	id            uint8
	TerminalType  uint16
	AssocTerminal uint8
	Source        uint8
	NameIndex     uint8
}

func (t *OutputTerminal) ID() uint8          { return t.id }
func (*OutputTerminal) Kind() Kind           { return KindOutputTerminal }
func (*OutputTerminal) SourceCount() int     { return 1 }
func (t *OutputTerminal) SourceID(int) uint8 { return t.Source }
func (*OutputTerminal) node()                {}
func (*OutputTerminal) recordSize() int      { return 9 }
func (t *OutputTerminal) HostFacing() bool   { return t.TerminalType == TerminalUSBStreaming }

func (t *OutputTerminal) decode(b []byte) bool {
	t.id = b[3]
	t.TerminalType = binary.LittleEndian.Uint16(b[4:6])
	t.AssocTerminal = b[6]
	t.Source = b[7]
	t.NameIndex = b[8]
	return true
}

// MixerUnit blends its input channels. It is traversed but never
// programmed.
type MixerUnit struct {
	sources
	id            uint8
	Channels      uint8
	ChannelConfig uint16
	Controls      []byte
}

func (u *MixerUnit) ID() uint8     { return u.id }
func (*MixerUnit) Kind() Kind      { return KindMixer }
func (*MixerUnit) node()           {}
func (*MixerUnit) recordSize() int { return 5 }

func (u *MixerUnit) decode(b []byte) bool {
	u.id = b[3]
	p := int(b[4])
	if 10+p > len(b) {
		return false
	}
	u.sources = append(sources(nil), b[5:5+p]...)
	u.Channels = b[5+p]
	u.ChannelConfig = binary.LittleEndian.Uint16(b[6+p : 8+p])
	u.Controls = append([]byte(nil), b[9+p:len(b)-1]...)
	return true
}

// SelectorUnit routes exactly one of its input pins to its output.
type SelectorUnit struct {
	sources
	id uint8
}

func (u *SelectorUnit) ID() uint8     { return u.id }
func (*SelectorUnit) Kind() Kind      { return KindSelector }
func (*SelectorUnit) node()           {}
func (*SelectorUnit) recordSize() int { return 5 }

func (u *SelectorUnit) decode(b []byte) bool {
	u.id = b[3]
	p := int(b[4])
	if 6+p > len(b) {
		return false
	}
	u.sources = append(sources(nil), b[5:5+p]...)
	return true
}

// processing holds the layout shared by processing and extension units.
type processing struct {
	sources
	id            uint8
	Code          uint16
	Channels      uint8
	ChannelConfig uint16
	Controls      []byte
}

func (u *processing) ID() uint8     { return u.id }
func (*processing) node()           {}
func (*processing) recordSize() int { return 7 }

func (u *processing) decode(b []byte) bool {
	u.id = b[3]
	u.Code = binary.LittleEndian.Uint16(b[4:6])
	p := int(b[6])
	if 12+p > len(b) {
		return false
	}
	n := int(b[11+p])
	if 13+p+n > len(b) {
		return false
	}
	u.sources = append(sources(nil), b[7:7+p]...)
	u.Channels = b[7+p]
	u.ChannelConfig = binary.LittleEndian.Uint16(b[8+p : 10+p])
	u.Controls = append([]byte(nil), b[12+p:12+p+n]...)
	return true
}

// ProcessingUnit applies a fixed algorithm identified by Code. It is
// traversed but never programmed.
type ProcessingUnit struct {
	processing
}

func (*ProcessingUnit) Kind() Kind { return KindProcessing }

// ExtensionUnit applies a vendor algorithm identified by Code. It is
// traversed but never programmed.
type ExtensionUnit struct {
	processing
}

func (*ExtensionUnit) Kind() Kind { return KindExtension }

// hostFacing reports whether n is a USB streaming terminal.
func hostFacing(n Node) bool {
	switch t := n.(type) {
	case *InputTerminal:
		return t.HostFacing()
	case *OutputTerminal:
		return t.HostFacing()
	}
	return false
}
