package audio

import "sync"

// Ring is the frame-aligned sample buffer a stream shares with its client.
// Render streams read from it; capture streams write into it. Offsets wrap
// at Size.
type Ring struct {
	mu        sync.Mutex
	buf       []byte
	frameSize int
	threshold int // bytes between position notifications, 0 disables
}

func newRing(frames, frameSize, notifications int) *Ring {
	r := &Ring{
		buf:       make([]byte, frames*frameSize),
		frameSize: frameSize,
	}
	if notifications > 0 {
		r.threshold = max(frameSize, (len(r.buf)/notifications)/frameSize*frameSize)
	}
	return r
}

// Size returns the ring size in bytes.
func (r *Ring) Size() int {
	return len(r.buf)
}

// Frames returns the ring size in frames.
func (r *Ring) Frames() int {
	return len(r.buf) / r.frameSize
}

// FrameSize returns the bytes per frame.
func (r *Ring) FrameSize() int {
	return r.frameSize
}

// NotifyInterval returns the bytes between position notifications, or 0
// when notifications are disabled.
func (r *Ring) NotifyInterval() int {
	return r.threshold
}

// WriteAt copies p into the ring starting at off, wrapping at the end.
func (r *Ring) WriteAt(p []byte, off int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.write(off, p)
}

// ReadAt copies len(p) bytes out of the ring starting at off, wrapping at
// the end.
func (r *Ring) ReadAt(p []byte, off int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.read(off, p)
}

// read copies len(dst) bytes from off and returns the offset past them.
func (r *Ring) read(off int, dst []byte) int {
	size := len(r.buf)
	off %= size
	for n := 0; n < len(dst); {
		c := copy(dst[n:], r.buf[off:])
		n += c
		off = (off + c) % size
	}
	return off
}

// write copies src to off and returns the offset past it.
func (r *Ring) write(off int, src []byte) int {
	size := len(r.buf)
	off %= size
	for n := 0; n < len(src); {
		c := copy(r.buf[off:], src[n:])
		n += c
		off = (off + c) % size
	}
	return off
}

// zero clears n bytes from off and returns the offset past them.
func (r *Ring) zero(off, n int) int {
	size := len(r.buf)
	off %= size
	for n > 0 {
		c := min(n, size-off)
		clear(r.buf[off : off+c])
		n -= c
		off = (off + c) % size
	}
	return off
}
