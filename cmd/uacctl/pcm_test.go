package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softuac/host/class/audio"
)

func TestEncodeSamples(t *testing.T) {
	tests := []struct {
		name    string
		src     []int
		srcBits int
		enc     audio.Encoding
		want    []byte
	}{
		{"s16 from s16", []int{1, -2}, 16, audio.EncodingS16, []byte{0x01, 0x00, 0xFE, 0xFF}},
		{"s16 from s24", []int{0x123456}, 24, audio.EncodingS16, []byte{0x34, 0x12}},
		{"s24 from s16", []int{-1}, 16, audio.EncodingS24, []byte{0x00, 0xFF, 0xFF}},
		{"s24 in 4", []int{0x010203}, 24, audio.EncodingS24In4, []byte{0x00, 0x03, 0x02, 0x01}},
		{"u8 from s16", []int{0, -0x8000}, 16, audio.EncodingU8, []byte{0x80, 0x00}},
		{"s16 from wav u8", []int{0xFF, 0x80}, 8, audio.EncodingS16, []byte{0x00, 0x7F, 0x00, 0x00}},
		{"f32 half scale", []int{0x4000}, 16, audio.EncodingF32, []byte{0x00, 0x00, 0x00, 0x3F}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, encodeSamples(nil, tt.src, tt.srcBits, tt.enc))
		})
	}
}

func TestDecodeSamples(t *testing.T) {
	tests := []struct {
		name string
		src  []byte
		enc  audio.Encoding
		want []int
	}{
		{"s16", []byte{0x01, 0x00, 0xFE, 0xFF}, audio.EncodingS16, []int{1, -2}},
		{"s24", []byte{0x00, 0x00, 0x80}, audio.EncodingS24, []int{-0x800000}},
		{"s24 in 4", []byte{0x00, 0x03, 0x02, 0x01}, audio.EncodingS24In4, []int{0x010203}},
		{"u8", []byte{0x00, 0x80, 0xFF}, audio.EncodingU8, []int{-128, 0, 127}},
		{"partial frame", []byte{0x01, 0x00, 0x02}, audio.EncodingS16, []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeSamples(nil, tt.src, tt.enc))
		})
	}
}

// writeWAV writes a 16-bit stereo WAV file of frames frames whose left
// and right samples are i and -i.
func writeWAV(t *testing.T, rate, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, 2, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: rate},
		SourceBitDepth: 16,
	}
	for i := range frames {
		buf.Data = append(buf.Data, i%0x7FFF, -(i % 0x7FFF))
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	return path
}

func TestPCMReader(t *testing.T) {
	const frames = 3000
	f, err := os.Open(writeWAV(t, 44100, frames))
	require.NoError(t, err)
	defer f.Close()

	r, err := newPCMReader(f, audio.EncodingS16)
	require.NoError(t, err)
	assert.Equal(t, uint32(44100), r.SampleRate())
	assert.Equal(t, uint8(2), r.Channels())

	// Odd-sized reads cross decode chunks.
	var out bytes.Buffer
	chunk := make([]byte, 999)
	for {
		n, err := r.Read(chunk)
		out.Write(chunk[:n])
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	require.Equal(t, frames*4, out.Len())

	got := decodeSamples(nil, out.Bytes(), audio.EncodingS16)
	for i := range frames {
		require.Equal(t, i, got[2*i], "left sample %d", i)
		require.Equal(t, -i, got[2*i+1], "right sample %d", i)
	}
}

func TestPCMReader_NotWAV(t *testing.T) {
	_, err := newPCMReader(bytes.NewReader([]byte("definitely not a riff file")), audio.EncodingS16)
	assert.Error(t, err)
}

func TestFill(t *testing.T) {
	b := []byte{9, 9, 9, 9, 9}
	n, err := fill(bytes.NewReader([]byte{1, 2}), b)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{1, 2, 0, 0, 0}, b)
}

func TestAdvance(t *testing.T) {
	assert.Equal(t, 40, advance(10, 50, 100))
	assert.Equal(t, 30, advance(80, 10, 100))
	assert.Equal(t, 0, advance(20, 20, 100))
}
