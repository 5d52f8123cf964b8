package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardnew/softuac/host"
	"github.com/ardnew/softuac/host/class/audio"
	"github.com/ardnew/softuac/host/hal/sim"
	"github.com/ardnew/softuac/pkg"
)

// attachTimeout bounds enumeration and attach of the simulated headset.
const attachTimeout = 5 * time.Second

// session is an attached audio function on the simulated bus.
type session struct {
	hal  *sim.HostHAL
	usb  *host.Host
	dev  *host.Device
	fn   atomic.Pointer[audio.Device]
	feed *positionFeed
}

// openSession plugs the simulated headset, waits for enumeration and
// attaches its audio function.
func openSession(ctx context.Context, cfg config, metrics *audio.StreamMetrics) (*session, error) {
	s := &session{
		hal:  newHeadset(cfg.Device),
		feed: newPositionFeed(),
	}
	s.usb = host.New(s.hal)
	s.usb.SetOnDeviceDisconnect(func(dev *host.Device) {
		pkg.LogInfo(componentCtl, "device disconnected", "address", dev.Address())
		if fn := s.fn.Load(); fn != nil && dev == s.dev {
			fn.Detach()
		}
	})

	if err := s.usb.Start(ctx); err != nil {
		return nil, fmt.Errorf("start host: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, attachTimeout)
	defer cancel()
	dev, err := s.usb.WaitDevice(waitCtx)
	if err != nil {
		s.usb.Stop()
		return nil, fmt.Errorf("wait for device: %w", err)
	}
	s.dev = dev

	fn, err := audio.AttachDevice(waitCtx, dev, cfg.Audio,
		audio.WithNotifier(s.feed),
		audio.WithMetrics(metrics))
	if err != nil {
		s.usb.Stop()
		return nil, err
	}
	s.fn.Store(fn)
	return s, nil
}

// function returns the attached audio function.
func (s *session) function() *audio.Device {
	return s.fn.Load()
}

// stream returns the first stream in the given direction.
func (s *session) stream(dir audio.Direction) (*audio.Stream, error) {
	st, ok := s.function().StreamFor(dir)
	if !ok {
		return nil, fmt.Errorf("no %s stream: %w", dir, pkg.ErrNotSupported)
	}
	return st, nil
}

func (s *session) close() {
	if fn := s.fn.Load(); fn != nil {
		if err := fn.Close(); err != nil {
			pkg.LogWarn(componentCtl, "close audio function", "error", err)
		}
	}
	if err := s.usb.Stop(); err != nil {
		pkg.LogWarn(componentCtl, "stop host", "error", err)
	}
}

// positionFeed forwards stream events to the command loop. Sends never
// block the completion worker; a dropped position is recovered from the
// next one.
type positionFeed struct {
	positions chan uint32
	stopped   chan struct{}
	unplugged chan struct{}
	once      sync.Once
}

func newPositionFeed() *positionFeed {
	return &positionFeed{
		positions: make(chan uint32, 16),
		stopped:   make(chan struct{}, 1),
		unplugged: make(chan struct{}),
	}
}

func (f *positionFeed) StreamStarted(start time.Time) {
	pkg.LogDebug(componentCtl, "stream started", "start", start)
}

func (f *positionFeed) PositionNotify(position uint32, _ time.Time) {
	select {
	case f.positions <- position:
	default:
	}
}

func (f *positionFeed) StreamStopped() {
	select {
	case f.stopped <- struct{}{}:
	default:
	}
}

func (f *positionFeed) Unplugged() {
	f.once.Do(func() { close(f.unplugged) })
}

// drain discards queued positions and stop events.
func (f *positionFeed) drain() {
	for {
		select {
		case <-f.positions:
		case <-f.stopped:
		default:
			return
		}
	}
}

// waitStopped waits for the stream to report that its transfers drained.
func (f *positionFeed) waitStopped(ctx context.Context) error {
	select {
	case <-f.stopped:
		return nil
	case <-f.unplugged:
		return pkg.ErrNoDevice
	case <-ctx.Done():
		return ctx.Err()
	}
}

// advance returns the bytes between two ring positions.
func advance(from, to uint32, size int) int {
	return (int(to) - int(from) + size) % size
}
