package main

import (
	"context"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/ardnew/softuac/host/class/audio"
	"github.com/ardnew/softuac/pkg"
)

// wavFormatPCM is the WAVE_FORMAT_PCM format code.
const wavFormatPCM = 1

// runCapture records the headset microphone to a WAV file for d, or until
// ctx is cancelled.
func runCapture(ctx context.Context, s *session, cfg config, path string, d time.Duration) error {
	st, err := s.stream(audio.DirectionCapture)
	if err != nil {
		return err
	}
	const channels = 2
	rate := cfg.Device.CaptureRate
	if err := st.SetFormat(ctx, rate, channels, audio.EncodingS16); err != nil {
		return err
	}
	ring, err := st.GetBuffer(cfg.Stream.RingFrames, cfg.Stream.Notifications)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := wav.NewEncoder(f, int(rate), int(audio.EncodingS16.Bits), channels, wavFormatPCM)
	out := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: int(rate)},
		SourceBitDepth: int(audio.EncodingS16.Bits),
	}

	raw := make([]byte, ring.Size())
	var last uint32
	recorded := 0
	flush := func(pos uint32) error {
		n := advance(last, pos, ring.Size())
		if n == 0 {
			return nil
		}
		ring.ReadAt(raw[:n], int(last))
		last = pos
		recorded += n
		out.Data = decodeSamples(out.Data[:0], raw[:n], audio.EncodingS16)
		return enc.Write(out)
	}

	s.feed.drain()
	if err := st.Start(ctx); err != nil {
		return err
	}
	pkg.LogInfo(componentCtl, "capturing",
		"file", path,
		"rate", rate,
		"duration", d)

	timer := time.NewTimer(d)
	defer timer.Stop()
loop:
	for {
		select {
		case pos := <-s.feed.positions:
			if err := flush(pos); err != nil {
				st.Stop()
				return err
			}
		case <-s.feed.unplugged:
			return pkg.ErrNoDevice
		case <-timer.C:
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	if err := st.Stop(); err != nil {
		return err
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), attachTimeout)
	defer cancel()
	if err := s.feed.waitStopped(stopCtx); err != nil {
		return err
	}
	if err := flush(uint32(st.Position())); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	pkg.LogInfo(componentCtl, "capture finished",
		"file", path,
		"bytes", recorded,
		"seconds", float64(recorded)/float64(int(rate)*channels*int(audio.EncodingS16.Container)))
	return nil
}
