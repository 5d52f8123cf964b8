package sim

import (
	"encoding/binary"
)

// Descriptor type and subtype codes written by [DescriptorBuilder].
const (
	descTypeConfiguration = 0x02
	descTypeString        = 0x03
	descTypeInterface     = 0x04
	descTypeEndpoint      = 0x05
	descTypeCSInterface   = 0x24
	descTypeCSEndpoint    = 0x25

	classAudio             = 0x01
	subclassAudioControl   = 0x01
	subclassAudioStreaming = 0x02

	acHeader         = 0x01
	acInputTerminal  = 0x02
	acOutputTerminal = 0x03
	acMixerUnit      = 0x04
	acSelectorUnit   = 0x05
	acFeatureUnit    = 0x06
	acProcessingUnit = 0x07
	acExtensionUnit  = 0x08

	asGeneral    = 0x01
	asFormatType = 0x02
	epGeneral    = 0x01

	formatTypeI = 0x01
)

// Terminal types used by simulated devices.
const (
	TerminalUSBStreaming  = 0x0101
	TerminalMicrophone    = 0x0201
	TerminalSpeaker       = 0x0301
	TerminalHeadphones    = 0x0302
	TerminalLineConnector = 0x0603
)

// Audio data format tags.
const (
	FormatPCM       = 0x0001
	FormatPCM8      = 0x0002
	FormatIEEEFloat = 0x0003
)

// Feature unit control bits (bmaControls).
const (
	ControlMute   = 1 << 0
	ControlVolume = 1 << 1
	ControlBass   = 1 << 2
	ControlAGC    = 1 << 6
)

// Isochronous endpoint attributes.
const (
	EndpointIsochronous = 0x01
	EndpointAsync       = 0x04
	EndpointAdaptive    = 0x08
	EndpointSync        = 0x0C
)

// Format describes one operational alternate setting of an audio streaming
// interface: an AS_GENERAL header, a Type I format record, an isochronous
// endpoint and its class-specific companion.
type Format struct {
	TerminalLink  uint8
	FormatTag     uint16
	Channels      uint8
	SubframeSize  uint8
	BitResolution uint8

	// Rates lists discrete sample rates. When empty, MinRate and MaxRate
	// describe a continuous range.
	Rates   []uint32
	MinRate uint32
	MaxRate uint32

	Endpoint      uint8
	Attributes    uint8  // 0 selects isochronous adaptive
	MaxPacketSize uint16 // 0 sizes the endpoint for the highest rate
	Interval      uint8  // 0 selects 1

	// SampleRateControl sets the sampling frequency control bit in the
	// class-specific endpoint descriptor.
	SampleRateControl bool
}

// maxRate returns the highest rate the format advertises.
func (f *Format) maxRate() uint32 {
	high := f.MaxRate
	for _, r := range f.Rates {
		high = max(high, r)
	}
	return high
}

type alternate struct {
	iface   uint8
	alt     uint8
	numEPs  uint8
	records [][]byte
}

// DescriptorBuilder assembles a USB Audio Class 1.0 configuration
// descriptor: an audio control interface with its unit and terminal
// records, followed by audio streaming interfaces with their alternate
// settings.
type DescriptorBuilder struct {
	controlIface uint8
	units        [][]byte
	alts         []alternate
}

// NewDescriptorBuilder creates an empty builder. The audio control
// interface is interface 0.
func NewDescriptorBuilder() *DescriptorBuilder {
	return &DescriptorBuilder{}
}

// ControlInterface sets the audio control interface number.
func (b *DescriptorBuilder) ControlInterface(num uint8) *DescriptorBuilder {
	b.controlIface = num
	return b
}

// InputTerminal adds an Input Terminal.
func (b *DescriptorBuilder) InputTerminal(id uint8, terminalType uint16, channels uint8, channelConfig uint16) *DescriptorBuilder {
	rec := make([]byte, 12)
	rec[0] = 12
	rec[1] = descTypeCSInterface
	rec[2] = acInputTerminal
	rec[3] = id
	binary.LittleEndian.PutUint16(rec[4:6], terminalType)
	rec[7] = channels
	binary.LittleEndian.PutUint16(rec[8:10], channelConfig)
	b.units = append(b.units, rec)
	return b
}

// OutputTerminal adds an Output Terminal fed by source.
func (b *DescriptorBuilder) OutputTerminal(id uint8, terminalType uint16, source uint8) *DescriptorBuilder {
	rec := make([]byte, 9)
	rec[0] = 9
	rec[1] = descTypeCSInterface
	rec[2] = acOutputTerminal
	rec[3] = id
	binary.LittleEndian.PutUint16(rec[4:6], terminalType)
	rec[7] = source
	b.units = append(b.units, rec)
	return b
}

// FeatureUnit adds a Feature Unit. controls[0] is the master channel
// bitmap; controls[i] is logical channel i. Each bitmap is written with
// controlSize bytes.
func (b *DescriptorBuilder) FeatureUnit(id, source, controlSize uint8, controls ...uint16) *DescriptorBuilder {
	n := int(controlSize)
	length := 7 + len(controls)*n
	rec := make([]byte, length)
	rec[0] = byte(length)
	rec[1] = descTypeCSInterface
	rec[2] = acFeatureUnit
	rec[3] = id
	rec[4] = source
	rec[5] = controlSize
	for i, c := range controls {
		for j := 0; j < n && j < 2; j++ {
			rec[6+i*n+j] = byte(c >> (8 * j))
		}
	}
	b.units = append(b.units, rec)
	return b
}

// SelectorUnit adds a Selector Unit with the given input pins.
func (b *DescriptorBuilder) SelectorUnit(id uint8, sources ...uint8) *DescriptorBuilder {
	p := len(sources)
	rec := make([]byte, 6+p)
	rec[0] = byte(len(rec))
	rec[1] = descTypeCSInterface
	rec[2] = acSelectorUnit
	rec[3] = id
	rec[4] = byte(p)
	copy(rec[5:], sources)
	b.units = append(b.units, rec)
	return b
}

// MixerUnit adds a Mixer Unit producing channels output channels.
func (b *DescriptorBuilder) MixerUnit(id, channels uint8, sources ...uint8) *DescriptorBuilder {
	p := len(sources)
	bits := (p*int(channels) + 7) / 8
	rec := make([]byte, 10+p+bits)
	rec[0] = byte(len(rec))
	rec[1] = descTypeCSInterface
	rec[2] = acMixerUnit
	rec[3] = id
	rec[4] = byte(p)
	copy(rec[5:], sources)
	rec[5+p] = channels
	b.units = append(b.units, rec)
	return b
}

// ProcessingUnit adds a Processing Unit of the given process type.
func (b *DescriptorBuilder) ProcessingUnit(id uint8, processType uint16, channels uint8, sources ...uint8) *DescriptorBuilder {
	b.units = append(b.units, processingRecord(acProcessingUnit, id, processType, channels, sources))
	return b
}

// ExtensionUnit adds an Extension Unit with the given vendor code.
func (b *DescriptorBuilder) ExtensionUnit(id uint8, code uint16, channels uint8, sources ...uint8) *DescriptorBuilder {
	b.units = append(b.units, processingRecord(acExtensionUnit, id, code, channels, sources))
	return b
}

func processingRecord(subtype, id uint8, code uint16, channels uint8, sources []uint8) []byte {
	p := len(sources)
	rec := make([]byte, 14+p)
	rec[0] = byte(len(rec))
	rec[1] = descTypeCSInterface
	rec[2] = subtype
	rec[3] = id
	binary.LittleEndian.PutUint16(rec[4:6], code)
	rec[6] = byte(p)
	copy(rec[7:], sources)
	rec[7+p] = channels
	rec[11+p] = 1 // bControlSize
	return rec
}

// RawUnit appends an arbitrary record to the audio control interface.
func (b *DescriptorBuilder) RawUnit(record []byte) *DescriptorBuilder {
	b.units = append(b.units, append([]byte(nil), record...))
	return b
}

// Idle adds a zero-bandwidth alternate setting to a streaming interface.
func (b *DescriptorBuilder) Idle(iface, alt uint8) *DescriptorBuilder {
	b.alts = append(b.alts, alternate{iface: iface, alt: alt})
	return b
}

// Alternate adds an operational alternate setting to a streaming interface.
func (b *DescriptorBuilder) Alternate(iface, alt uint8, f Format) *DescriptorBuilder {
	b.alts = append(b.alts, alternate{
		iface:  iface,
		alt:    alt,
		numEPs: 1,
		records: [][]byte{
			generalRecord(f),
			formatRecord(f),
			endpointRecord(f),
			csEndpointRecord(f),
		},
	})
	return b
}

// RawAlternate adds an alternate setting with caller-supplied records
// following the standard interface descriptor.
func (b *DescriptorBuilder) RawAlternate(iface, alt, numEndpoints uint8, records ...[]byte) *DescriptorBuilder {
	b.alts = append(b.alts, alternate{iface: iface, alt: alt, numEPs: numEndpoints, records: records})
	return b
}

func generalRecord(f Format) []byte {
	rec := make([]byte, 7)
	rec[0] = 7
	rec[1] = descTypeCSInterface
	rec[2] = asGeneral
	rec[3] = f.TerminalLink
	rec[4] = 1 // bDelay
	binary.LittleEndian.PutUint16(rec[5:7], f.FormatTag)
	return rec
}

func formatRecord(f Format) []byte {
	n := len(f.Rates)
	body := 3 * n
	if n == 0 {
		body = 6
	}
	rec := make([]byte, 8+body)
	rec[0] = byte(len(rec))
	rec[1] = descTypeCSInterface
	rec[2] = asFormatType
	rec[3] = formatTypeI
	rec[4] = f.Channels
	rec[5] = f.SubframeSize
	rec[6] = f.BitResolution
	rec[7] = byte(n)
	if n == 0 {
		putRate(rec[8:], f.MinRate)
		putRate(rec[11:], f.MaxRate)
	}
	for i, r := range f.Rates {
		putRate(rec[8+3*i:], r)
	}
	return rec
}

func putRate(buf []byte, rate uint32) {
	buf[0] = byte(rate)
	buf[1] = byte(rate >> 8)
	buf[2] = byte(rate >> 16)
}

func endpointRecord(f Format) []byte {
	attr := f.Attributes
	if attr == 0 {
		attr = EndpointIsochronous | EndpointAdaptive
	}
	mps := f.MaxPacketSize
	if mps == 0 {
		frames := (f.maxRate() + 999) / 1000
		mps = uint16(frames * uint32(f.Channels) * uint32(f.SubframeSize))
	}
	interval := f.Interval
	if interval == 0 {
		interval = 1
	}
	rec := make([]byte, 9)
	rec[0] = 9
	rec[1] = descTypeEndpoint
	rec[2] = f.Endpoint
	rec[3] = attr
	binary.LittleEndian.PutUint16(rec[4:6], mps)
	rec[6] = interval
	return rec
}

func csEndpointRecord(f Format) []byte {
	rec := make([]byte, 7)
	rec[0] = 7
	rec[1] = descTypeCSEndpoint
	rec[2] = epGeneral
	if f.SampleRateControl {
		rec[3] = 0x01
	}
	return rec
}

// streamingInterfaces returns the distinct streaming interface numbers in
// order of first appearance.
func (b *DescriptorBuilder) streamingInterfaces() []uint8 {
	var out []uint8
	seen := make(map[uint8]bool)
	for _, a := range b.alts {
		if !seen[a.iface] {
			seen[a.iface] = true
			out = append(out, a.iface)
		}
	}
	return out
}

// Bytes returns the complete configuration descriptor blob.
func (b *DescriptorBuilder) Bytes() []byte {
	ifaces := b.streamingInterfaces()

	unitLen := 0
	for _, u := range b.units {
		unitLen += len(u)
	}
	headerLen := 8 + len(ifaces)

	blob := make([]byte, 9, 256)
	blob = append(blob, interfaceRecord(b.controlIface, 0, 0, subclassAudioControl)...)

	header := make([]byte, headerLen)
	header[0] = byte(headerLen)
	header[1] = descTypeCSInterface
	header[2] = acHeader
	binary.LittleEndian.PutUint16(header[3:5], 0x0100)
	binary.LittleEndian.PutUint16(header[5:7], uint16(headerLen+unitLen))
	header[7] = byte(len(ifaces))
	copy(header[8:], ifaces)
	blob = append(blob, header...)

	for _, u := range b.units {
		blob = append(blob, u...)
	}

	for _, a := range b.alts {
		blob = append(blob, interfaceRecord(a.iface, a.alt, a.numEPs, subclassAudioStreaming)...)
		for _, r := range a.records {
			blob = append(blob, r...)
		}
	}

	blob[0] = 9
	blob[1] = descTypeConfiguration
	binary.LittleEndian.PutUint16(blob[2:4], uint16(len(blob)))
	blob[4] = byte(1 + len(ifaces))
	blob[5] = 1    // bConfigurationValue
	blob[7] = 0x80 // bus powered
	blob[8] = 50   // 100 mA
	return blob
}

func interfaceRecord(num, alt, numEPs, subclass uint8) []byte {
	return []byte{9, descTypeInterface, num, alt, numEPs, classAudio, subclass, 0, 0}
}

// stringDescriptor encodes s as a UTF-16LE string descriptor.
func stringDescriptor(s string) []byte {
	runes := []rune(s)
	length := min(2+len(runes)*2, 254)
	buf := make([]byte, length)
	buf[0] = byte(length)
	buf[1] = descTypeString
	for i := 0; 2+i*2+1 < length; i++ {
		binary.LittleEndian.PutUint16(buf[2+i*2:], uint16(runes[i]))
	}
	return buf
}
