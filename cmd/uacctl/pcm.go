package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/ardnew/softuac/host/class/audio"
	"github.com/ardnew/softuac/pkg"
)

// pcmChunkFrames is the number of frames decoded per read.
const pcmChunkFrames = 1024

// pcmReader reads a WAV file as samples in a stream encoding.
type pcmReader struct {
	dec      *wav.Decoder
	buf      *goaudio.IntBuffer
	enc      audio.Encoding
	srcBits  int
	pending  []byte
	consumed int
	eof      bool
}

// newPCMReader validates a WAV file and prepares to read it in enc.
func newPCMReader(r io.ReadSeeker, enc audio.Encoding) (*pcmReader, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a PCM WAV file", pkg.ErrInvalidParameter)
	}
	if dec.BitDepth == 0 || dec.BitDepth > 32 || dec.NumChans == 0 {
		return nil, fmt.Errorf("%w: unsupported WAV layout %d bits %d channels",
			pkg.ErrInvalidParameter, dec.BitDepth, dec.NumChans)
	}
	return &pcmReader{
		dec: dec,
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: int(dec.NumChans),
				SampleRate:  int(dec.SampleRate),
			},
			Data: make([]int, pcmChunkFrames*int(dec.NumChans)),
		},
		enc:     enc,
		srcBits: int(dec.BitDepth),
	}, nil
}

// SampleRate returns the file's sample rate.
func (p *pcmReader) SampleRate() uint32 {
	return p.dec.SampleRate
}

// Channels returns the file's channel count.
func (p *pcmReader) Channels() uint8 {
	return uint8(p.dec.NumChans)
}

// Read fills b with encoded samples. It returns io.EOF once the file is
// exhausted.
func (p *pcmReader) Read(b []byte) (int, error) {
	n := 0
	for n < len(b) {
		if p.consumed == len(p.pending) {
			if p.eof {
				break
			}
			if err := p.decode(); err != nil {
				return n, err
			}
			continue
		}
		c := copy(b[n:], p.pending[p.consumed:])
		p.consumed += c
		n += c
	}
	if n == 0 && p.eof {
		return 0, io.EOF
	}
	return n, nil
}

func (p *pcmReader) decode() error {
	p.buf.Data = p.buf.Data[:cap(p.buf.Data)]
	n, err := p.dec.PCMBuffer(p.buf)
	if err != nil && err != io.EOF {
		return err
	}
	if n == 0 || err == io.EOF {
		p.eof = true
	}
	p.pending = encodeSamples(p.pending[:0], p.buf.Data[:n], p.srcBits, p.enc)
	p.consumed = 0
	return nil
}

// encodeSamples appends src, signed integers of srcBits bits, to dst in
// the layout of enc.
func encodeSamples(dst []byte, src []int, srcBits int, enc audio.Encoding) []byte {
	var word [4]byte
	for _, v := range src {
		// WAV stores 8-bit samples unsigned.
		if srcBits == 8 {
			v -= 0x80
		}
		switch enc.Kind {
		case audio.SampleFloat:
			f := float32(float64(v) / float64(int64(1)<<(srcBits-1)))
			binary.LittleEndian.PutUint32(word[:], math.Float32bits(f))
		default:
			s := rescale(int64(v), srcBits, int(enc.Bits))
			if enc.Kind == audio.SampleUnsigned {
				s += 1 << (enc.Bits - 1)
			}
			// Left-justify the sample in its container.
			s <<= 8*int(enc.Container) - int(enc.Bits)
			binary.LittleEndian.PutUint32(word[:], uint32(s))
		}
		dst = append(dst, word[:enc.Container]...)
	}
	return dst
}

// decodeSamples appends the samples of src, laid out in enc, to dst as
// signed integers of enc.Bits bits.
func decodeSamples(dst []int, src []byte, enc audio.Encoding) []int {
	size := int(enc.Container)
	var word [4]byte
	for i := 0; i+size <= len(src); i += size {
		clear(word[:])
		// Sign-extend through the top byte of a 32-bit word.
		copy(word[4-size:], src[i:i+size])
		raw := int32(binary.LittleEndian.Uint32(word[:]))
		switch enc.Kind {
		case audio.SampleFloat:
			f := math.Float32frombits(uint32(raw))
			dst = append(dst, int(float64(f)*float64(math.MaxInt32)))
		case audio.SampleUnsigned:
			dst = append(dst, int(uint32(raw)>>(32-int(enc.Bits)))-1<<(enc.Bits-1))
		default:
			dst = append(dst, int(raw>>(32-int(enc.Bits))))
		}
	}
	return dst
}

// rescale converts a signed sample between bit depths.
func rescale(v int64, from, to int) int64 {
	if from > to {
		return v >> (from - to)
	}
	return v << (to - from)
}
