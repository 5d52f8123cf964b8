package sim

import (
	"encoding/binary"
	"sync"

	"github.com/ardnew/softuac/pkg"
)

// Audio class request codes.
const (
	requestSetCur = 0x01
	requestGetCur = 0x81
	requestGetMin = 0x82
	requestGetMax = 0x83
	requestGetRes = 0x84
)

// Feature unit control selectors.
const (
	SelectorMute   = 0x01
	SelectorVolume = 0x02
	SelectorAGC    = 0x07
)

// samplingFreqControl is the endpoint sampling frequency control selector.
const samplingFreqControl = 0x01

// Default volume range installed for every volume control found in the
// configuration: -50 dB to 0 dB in 1 dB steps (1/256 dB units).
const (
	defaultVolumeMin = -50 * 256
	defaultVolumeMax = 0
	defaultVolumeRes = 256
)

type controlKey struct {
	unit     uint8
	selector uint8
	channel  uint8
}

// control is one addressable class control. Values are signed 16-bit;
// single-byte controls (mute, AGC, selector position) use the low byte.
type control struct {
	min, max, res int16
	cur           int16
	ranged        bool
	writes        int
}

// controlStore holds the state of every unit control and endpoint sampling
// frequency of a simulated device.
type controlStore struct {
	mu       sync.Mutex
	controls map[controlKey]*control
	rates    map[uint8]uint32
}

func newControlStore() *controlStore {
	return &controlStore{
		controls: make(map[controlKey]*control),
		rates:    make(map[uint8]uint32),
	}
}

// populate installs default controls for every feature and selector unit
// declared in a configuration blob.
func (s *controlStore) populate(config []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var subclass uint8
	for off := 0; off+2 <= len(config); {
		length := int(config[off])
		if length < 2 || off+length > len(config) {
			return
		}
		rec := config[off : off+length]
		switch {
		case rec[1] == descTypeInterface && length >= 9:
			subclass = rec[6]
		case rec[1] == descTypeCSInterface && subclass == subclassAudioControl && length >= 4:
			s.populateUnit(rec)
		}
		off += length
	}
}

func (s *controlStore) populateUnit(rec []byte) {
	id := rec[3]
	switch rec[2] {
	case acSelectorUnit:
		s.controls[controlKey{unit: id}] = &control{cur: 1}

	case acFeatureUnit:
		if len(rec) < 7 || rec[5] == 0 {
			return
		}
		size := int(rec[5])
		channels := (len(rec) - 7) / size
		for ch := 0; ch < channels; ch++ {
			var bits uint16
			for j := 0; j < size && j < 2; j++ {
				bits |= uint16(rec[6+ch*size+j]) << (8 * j)
			}
			if bits&ControlMute != 0 {
				s.controls[controlKey{id, SelectorMute, uint8(ch)}] = &control{max: 1, res: 1, ranged: true}
			}
			if bits&ControlVolume != 0 {
				s.controls[controlKey{id, SelectorVolume, uint8(ch)}] = &control{
					min:    defaultVolumeMin,
					max:    defaultVolumeMax,
					res:    defaultVolumeRes,
					ranged: true,
				}
			}
			if bits&ControlAGC != 0 {
				s.controls[controlKey{id, SelectorAGC, uint8(ch)}] = &control{max: 1, res: 1, ranged: true}
			}
		}
	}
}

// handle services a class request addressed to an interface (unit
// controls) or an endpoint (sampling frequency).
func (s *controlStore) handle(request uint8, value, index uint16, data []byte, endpoint bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if endpoint {
		return s.handleEndpoint(request, value, uint8(index), data)
	}

	key := controlKey{
		unit:     uint8(index >> 8),
		selector: uint8(value >> 8),
		channel:  uint8(value),
	}
	c, ok := s.controls[key]
	if !ok {
		return 0, pkg.ErrStall
	}

	var v int16
	switch request {
	case requestSetCur:
		if len(data) == 0 {
			return 0, pkg.ErrStall
		}
		c.cur = decodeValue(data)
		c.writes++
		return len(data), nil
	case requestGetCur:
		v = c.cur
	case requestGetMin, requestGetMax, requestGetRes:
		if !c.ranged {
			return 0, pkg.ErrStall
		}
		switch request {
		case requestGetMin:
			v = c.min
		case requestGetMax:
			v = c.max
		default:
			v = c.res
		}
	default:
		return 0, pkg.ErrStall
	}
	return encodeValue(data, v), nil
}

func (s *controlStore) handleEndpoint(request uint8, value uint16, ep uint8, data []byte) (int, error) {
	if uint8(value>>8) != samplingFreqControl {
		return 0, pkg.ErrStall
	}
	switch request {
	case requestSetCur:
		if len(data) < 3 {
			return 0, pkg.ErrStall
		}
		s.rates[ep] = uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16
		return 3, nil
	case requestGetCur:
		if len(data) < 3 {
			return 0, pkg.ErrStall
		}
		r := s.rates[ep]
		data[0], data[1], data[2] = byte(r), byte(r>>8), byte(r>>16)
		return 3, nil
	default:
		return 0, pkg.ErrStall
	}
}

func decodeValue(data []byte) int16 {
	if len(data) == 1 {
		return int16(data[0])
	}
	return int16(binary.LittleEndian.Uint16(data))
}

func encodeValue(data []byte, v int16) int {
	switch {
	case len(data) >= 2:
		binary.LittleEndian.PutUint16(data, uint16(v))
		return 2
	case len(data) == 1:
		data[0] = byte(v)
		return 1
	default:
		return 0
	}
}
