package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ardnew/softuac/host/class/audio"
	"github.com/ardnew/softuac/pkg"
)

// runPlay renders a WAV file to the headset. The ring is refilled behind
// the stream position as notifications arrive.
func runPlay(ctx context.Context, s *session, cfg config, path string, gain *float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := s.stream(audio.DirectionRender)
	if err != nil {
		return err
	}
	src, err := newPCMReader(f, audio.EncodingS16)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := st.SetFormat(ctx, src.SampleRate(), src.Channels(), audio.EncodingS16); err != nil {
		return fmt.Errorf("%s: %d Hz %d channels: %w", path, src.SampleRate(), src.Channels(), err)
	}
	ring, err := st.GetBuffer(cfg.Stream.RingFrames, cfg.Stream.Notifications)
	if err != nil {
		return err
	}
	if gain != nil {
		res, err := st.SetGain(ctx, audio.GainRequest{Gain: gain})
		if err != nil {
			return err
		}
		if !res.Gain {
			pkg.LogWarn(componentCtl, "stream has no gain control", "stream", st.UniqueID())
		}
	}

	chunk := make([]byte, ring.Size())
	queued, err := fill(src, chunk)
	if err != nil {
		return err
	}
	ring.WriteAt(chunk, 0)

	s.feed.drain()
	if err := st.Start(ctx); err != nil {
		return err
	}
	pkg.LogInfo(componentCtl, "playing",
		"file", path,
		"rate", src.SampleRate(),
		"channels", src.Channels(),
		"fifo_depth", st.FIFODepth())

	var last uint32
	played, delivered := 0, 0
	for played < queued {
		select {
		case pos := <-s.feed.positions:
			n := advance(last, pos, ring.Size())
			if n == 0 {
				continue
			}
			played += n
			m, err := fill(src, chunk[:n])
			if err != nil {
				st.Stop()
				return err
			}
			ring.WriteAt(chunk[:n], int(last))
			queued += m
			last = pos
			delivered += len(s.hal.DrainSink(headsetRenderEndpoint))
		case <-s.feed.unplugged:
			return pkg.ErrNoDevice
		case <-ctx.Done():
			queued = played
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
	delivered += len(s.hal.DrainSink(headsetRenderEndpoint))

	pkg.LogInfo(componentCtl, "playback finished",
		"played_bytes", played,
		"delivered_bytes", delivered,
		"late_frames", s.hal.LateFrames())
	return ctx.Err()
}

// fill reads into b and zeroes what the reader could not supply. It
// returns the bytes read.
func fill(r io.Reader, b []byte) (int, error) {
	n, err := io.ReadFull(r, b)
	clear(b[n:])
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	return n, err
}
