package audio

// Interface class codes.
const (
	ClassAudio             = 0x01
	SubclassAudioControl   = 0x01
	SubclassAudioStreaming = 0x02
)

// Descriptor types.
const (
	descTypeInterface   = 0x04
	descTypeEndpoint    = 0x05
	descTypeCSInterface = 0x24
	descTypeCSEndpoint  = 0x25
)

// Audio control interface descriptor subtypes.
const (
	acHeader         = 0x01
	acInputTerminal  = 0x02
	acOutputTerminal = 0x03
	acMixerUnit      = 0x04
	acSelectorUnit   = 0x05
	acFeatureUnit    = 0x06
	acProcessingUnit = 0x07
	acExtensionUnit  = 0x08
)

// Audio streaming interface descriptor subtypes.
const (
	asGeneral    = 0x01
	asFormatType = 0x02
)

// Class-specific endpoint descriptor subtype.
const epGeneral = 0x01

// Format type codes.
const (
	formatTypeI = 0x01
)

// Audio data format tags (wFormatTag).
const (
	FormatTagPCM       = 0x0001
	FormatTagPCM8      = 0x0002
	FormatTagIEEEFloat = 0x0003
)

// Terminal types.
const (
	// TerminalUSBStreaming marks the host-facing terminal of a path.
	TerminalUSBStreaming = 0x0101
)

// Class-specific request codes.
const (
	requestSetCur = 0x01
	requestGetCur = 0x81
	requestGetMin = 0x82
	requestGetMax = 0x83
	requestGetRes = 0x84
)

// Feature unit control selectors. Bit (selector-1) of a bmaControls entry
// advertises the control.
const (
	selectorMute   = 0x01
	selectorVolume = 0x02
	selectorAGC    = 0x07
)

// Feature unit control bitmap bits.
const (
	controlBitMute   = 1 << (selectorMute - 1)
	controlBitVolume = 1 << (selectorVolume - 1)
	controlBitAGC    = 1 << (selectorAGC - 1)
)

// Endpoint control selectors.
const (
	selectorSamplingFreq = 0x01
)

// Gain constants. Volume controls are signed 16-bit values in 1/256 dB.
const (
	ticksPerDB = 256

	// muteTicks is the most negative representable gain, transmitted to
	// emulate mute on units without a mute control.
	muteTicks = -0x8000
)
