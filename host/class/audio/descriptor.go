package audio

import (
	"encoding/binary"
)

// Header is the common prefix of every descriptor record.
type Header struct {
	Length  uint8
	Type    uint8
	Subtype uint8 // zero for records shorter than 3 bytes
}

// Cursor walks the records of an immutable descriptor blob. Every record it
// exposes has a declared length of at least 2 that fits in the remaining
// bytes; a record that does not ends the walk.
type Cursor struct {
	blob  []byte
	off   int
	valid bool
}

// NewCursor returns a cursor positioned on the first record of blob.
func NewCursor(blob []byte) *Cursor {
	c := &Cursor{blob: blob}
	c.validate()
	return c
}

func (c *Cursor) validate() {
	rem := len(c.blob) - c.off
	if rem < 2 {
		c.valid = false
		return
	}
	length := int(c.blob[c.off])
	c.valid = length >= 2 && length <= rem
}

// Valid reports whether the cursor is positioned on a complete record.
func (c *Cursor) Valid() bool {
	return c.valid
}

// Offset returns the byte offset of the current record.
func (c *Cursor) Offset() int {
	return c.off
}

// Header returns the current record's header, or the zero Header when the
// cursor is exhausted.
func (c *Cursor) Header() Header {
	if !c.valid {
		return Header{}
	}
	h := Header{Length: c.blob[c.off], Type: c.blob[c.off+1]}
	if h.Length >= 3 {
		h.Subtype = c.blob[c.off+2]
	}
	return h
}

// Bytes returns the current record, exactly its declared length, or nil
// when the cursor is exhausted.
func (c *Cursor) Bytes() []byte {
	if !c.valid {
		return nil
	}
	return c.blob[c.off : c.off+int(c.blob[c.off])]
}

// Next advances to the following record. It returns false once no further
// complete record remains.
func (c *Cursor) Next() bool {
	if !c.valid {
		return false
	}
	c.off += int(c.blob[c.off])
	c.validate()
	return c.valid
}

// record is a typed view of one descriptor record. recordSize is the fixed
// head; decode fills the view and reports whether any variable-length tail
// is consistent with the record length.
type record interface {
	recordSize() int
	decode(b []byte) bool
}

// As decodes the cursor's current record as T. It returns nil when the
// cursor is exhausted, the declared length is shorter than T's fixed head,
// or T's variable-length tail does not fit the record.
func As[T any, P interface {
	*T
	record
}](c *Cursor) P {
	b := c.Bytes()
	if b == nil {
		return nil
	}
	p := P(new(T))
	if len(b) < p.recordSize() || !p.decode(b) {
		return nil
	}
	return p
}

// InterfaceDescriptor is a standard interface descriptor.
type InterfaceDescriptor struct {
	Number       uint8
	Alternate    uint8
	NumEndpoints uint8
	Class        uint8
	Subclass     uint8
	Protocol     uint8
	NameIndex    uint8
}

func (*InterfaceDescriptor) recordSize() int { return 9 }

func (d *InterfaceDescriptor) decode(b []byte) bool {
	d.Number = b[2]
	d.Alternate = b[3]
	d.NumEndpoints = b[4]
	d.Class = b[5]
	d.Subclass = b[6]
	d.Protocol = b[7]
	d.NameIndex = b[8]
	return true
}

// EndpointDescriptor is a standard endpoint descriptor. Audio endpoints
// carry bRefresh and bSynchAddress, decoded when present.
type EndpointDescriptor struct {
	Address       uint8
	Attributes    uint8
	MaxPacketSize uint16
	Interval      uint8
	Refresh       uint8
	SynchAddress  uint8
}

func (*EndpointDescriptor) recordSize() int { return 7 }

func (d *EndpointDescriptor) decode(b []byte) bool {
	d.Address = b[2]
	d.Attributes = b[3]
	d.MaxPacketSize = binary.LittleEndian.Uint16(b[4:6])
	d.Interval = b[6]
	if len(b) >= 9 {
		d.Refresh = b[7]
		d.SynchAddress = b[8]
	}
	return true
}

// IsIsochronous reports whether the endpoint is isochronous.
func (d *EndpointDescriptor) IsIsochronous() bool {
	return d.Attributes&0x03 == 0x01
}

// IsIn reports whether the endpoint moves data device to host.
func (d *EndpointDescriptor) IsIn() bool {
	return d.Address&0x80 != 0
}

// MaxTransferSize returns the bytes the endpoint can move per service
// interval, including high-bandwidth additional transactions.
func (d *EndpointDescriptor) MaxTransferSize() int {
	size := int(d.MaxPacketSize & 0x7FF)
	return size * (int((d.MaxPacketSize>>11)&0x3) + 1)
}

// StreamingGeneral is the class-specific AS_GENERAL header of an
// alternate setting.
type StreamingGeneral struct {
	TerminalLink uint8
	Delay        uint8
	FormatTag    uint16
}

func (*StreamingGeneral) recordSize() int { return 7 }

func (d *StreamingGeneral) decode(b []byte) bool {
	d.TerminalLink = b[3]
	d.Delay = b[4]
	d.FormatTag = binary.LittleEndian.Uint16(b[5:7])
	return true
}

// FormatTypeI is a Type I format type descriptor. A zero-length Rates
// slice with MinRate/MaxRate set describes a continuous range.
type FormatTypeI struct {
	FormatType    uint8
	Channels      uint8
	SubframeSize  uint8
	BitResolution uint8
	Rates         []uint32
	MinRate       uint32
	MaxRate       uint32
}

func (*FormatTypeI) recordSize() int { return 8 }

func (d *FormatTypeI) decode(b []byte) bool {
	d.FormatType = b[3]
	d.Channels = b[4]
	d.SubframeSize = b[5]
	d.BitResolution = b[6]
	n := int(b[7])
	if n == 0 {
		if len(b) < 14 {
			return false
		}
		d.MinRate = rate24(b[8:])
		d.MaxRate = rate24(b[11:])
		return true
	}
	if 8+3*n > len(b) {
		return false
	}
	d.Rates = make([]uint32, n)
	for i := range d.Rates {
		d.Rates[i] = rate24(b[8+3*i:])
	}
	return true
}

// Continuous reports whether the descriptor advertises a rate range.
func (d *FormatTypeI) Continuous() bool {
	return len(d.Rates) == 0
}

func rate24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

// StreamingEndpoint is the class-specific isochronous endpoint descriptor.
type StreamingEndpoint struct {
	Attributes     uint8
	LockDelayUnits uint8
	LockDelay      uint16
}

func (*StreamingEndpoint) recordSize() int { return 7 }

func (d *StreamingEndpoint) decode(b []byte) bool {
	d.Attributes = b[3]
	d.LockDelayUnits = b[4]
	d.LockDelay = binary.LittleEndian.Uint16(b[5:7])
	return true
}
