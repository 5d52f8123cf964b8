package audio

import "fmt"

// SampleKind is the numeric representation of one sample.
type SampleKind uint8

// Sample kinds.
const (
	SampleSigned SampleKind = iota + 1
	SampleUnsigned
	SampleFloat
)

// String returns the kind name.
func (k SampleKind) String() string {
	switch k {
	case SampleSigned:
		return "signed"
	case SampleUnsigned:
		return "unsigned"
	case SampleFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Encoding describes how one sample is stored on the wire: its kind, the
// number of significant bits, and the bytes it occupies.
type Encoding struct {
	Kind      SampleKind
	Bits      uint8
	Container uint8
}

// Common encodings.
var (
	EncodingU8     = Encoding{Kind: SampleUnsigned, Bits: 8, Container: 1}
	EncodingS16    = Encoding{Kind: SampleSigned, Bits: 16, Container: 2}
	EncodingS24    = Encoding{Kind: SampleSigned, Bits: 24, Container: 3}
	EncodingS24In4 = Encoding{Kind: SampleSigned, Bits: 24, Container: 4}
	EncodingS32    = Encoding{Kind: SampleSigned, Bits: 32, Container: 4}
	EncodingF32    = Encoding{Kind: SampleFloat, Bits: 32, Container: 4}
)

// String returns a short name such as "s16" or "s24/4".
func (e Encoding) String() string {
	var prefix string
	switch e.Kind {
	case SampleSigned:
		prefix = "s"
	case SampleUnsigned:
		prefix = "u"
	case SampleFloat:
		prefix = "f"
	default:
		prefix = "?"
	}
	if int(e.Bits) == 8*int(e.Container) {
		return fmt.Sprintf("%s%d", prefix, e.Bits)
	}
	return fmt.Sprintf("%s%d/%d", prefix, e.Bits, e.Container)
}

// encodingOf maps a format tag, bit resolution and subframe size to an
// encoding. PCM8 and IEEE float have fixed containers; linear PCM accepts
// exact containers for 8, 16 and 32 bits and packed 3 or 4 byte containers
// for 20 and 24 bits.
func encodingOf(tag uint16, bits, container uint8) (Encoding, bool) {
	switch tag {
	case FormatTagPCM8:
		if container != 1 {
			return Encoding{}, false
		}
		return EncodingU8, true

	case FormatTagIEEEFloat:
		if container != 4 {
			return Encoding{}, false
		}
		return EncodingF32, true

	case FormatTagPCM:
		switch bits {
		case 8, 16, 32:
			if int(container) != int(bits)/8 {
				return Encoding{}, false
			}
		case 20, 24:
			if container != 3 && container != 4 {
				return Encoding{}, false
			}
		default:
			return Encoding{}, false
		}
		return Encoding{Kind: SampleSigned, Bits: bits, Container: container}, true
	}
	return Encoding{}, false
}

// FormatRange is a public description of a format a path can stream.
// Discrete entries have MinRate == MaxRate.
type FormatRange struct {
	Encoding   Encoding
	Channels   uint8
	MinRate    uint32
	MaxRate    uint32
	Continuous bool
}

// FrameSize returns the bytes of one frame: one sample for every channel.
func (r FormatRange) FrameSize() int {
	return int(r.Channels) * int(r.Encoding.Container)
}

// Contains reports whether r can stream at rate with channels channels in
// encoding enc.
func (r FormatRange) Contains(rate uint32, channels uint8, enc Encoding) bool {
	return r.Encoding == enc && r.Channels == channels &&
		rate >= r.MinRate && rate <= r.MaxRate
}

// String returns a human-readable description.
func (r FormatRange) String() string {
	if r.Continuous {
		return fmt.Sprintf("%s %dch %d-%dHz", r.Encoding, r.Channels, r.MinRate, r.MaxRate)
	}
	return fmt.Sprintf("%s %dch %dHz", r.Encoding, r.Channels, r.MinRate)
}
