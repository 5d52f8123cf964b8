package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ardnew/softuac/host"
	"github.com/ardnew/softuac/pkg"
)

// State is the lifecycle state of a stream.
type State uint8

// Stream states.
const (
	StateStopped State = iota
	StateStarting
	StateStarted
	StateStopping
	StateStoppingAfterUnplug
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	case StateStoppingAfterUnplug:
		return "stopping-after-unplug"
	default:
		return "unknown"
	}
}

// Notifier receives stream events. Methods run on the stream's completion
// worker with the session lock held; they must not block or call back into
// the stream.
type Notifier interface {
	// StreamStarted reports the estimated time the first frame reached the
	// bus.
	StreamStarted(start time.Time)

	// PositionNotify reports the ring byte position and when it was
	// reached.
	PositionNotify(position uint32, at time.Time)

	// StreamStopped reports that every in-flight transfer drained after
	// Stop.
	StreamStopped()

	// Unplugged reports that the device went away. It is delivered once.
	Unplugged()
}

// GainRequest selects the controls SetGain changes. Nil fields are left
// alone.
type GainRequest struct {
	Gain *float64
	Mute *bool
	AGC  *bool
}

// GainResult reports, per requested field, whether the path supports it.
type GainResult struct {
	Gain bool
	Mute bool
	AGC  bool
}

// GainState is the current gain configuration of a path.
type GainState struct {
	HasGain bool
	HasMute bool
	HasAGC  bool
	Gain    float64
	Min     float64
	Max     float64
	Step    float64
	Muted   bool
	AGC     bool
}

// slot is one reusable transfer of a stream's pool.
type slot struct {
	xfer     host.Transfer
	buf      []byte
	length   int
	inFlight bool
}

// completion is a finished transfer handed to the completion worker.
type completion struct {
	slot *slot
	n    int
	err  error
	at   time.Time
}

// Stream moves samples between a ring buffer and a streaming interface.
//
// Two locks order all state: the session lock (outer) guards the format,
// the ring and client notification; the pool lock (inner) guards the
// transfer pool, ring position, accumulators and the state. Client calls
// hold the session lock and fail fast with pkg.ErrInvalidState rather than
// wait for a transition.
type Stream struct {
	bus      Bus
	cfg      Config
	catalog  *Catalog
	path     *Path
	notifier Notifier
	metrics  *StreamMetrics
	id       uuid.UUID
	name     string

	manufacturer string
	product      string

	session   sync.Mutex
	entry     *Entry
	rate      uint32
	ring      *Ring
	closed    bool
	tornDown  bool
	unplugged bool

	pool      sync.Mutex
	state     State
	slots     []*slot
	free      int
	cad       cadence
	step      uint64 // bus ticks per transfer
	tick      time.Duration
	frame     uint64
	position  int
	offset    int
	notifyAcc int
	started   time.Time
	escalated bool

	done chan completion
	quit chan struct{}
	wg   sync.WaitGroup
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithNotifier sets the receiver of stream events.
func WithNotifier(n Notifier) StreamOption {
	return func(s *Stream) {
		s.notifier = n
	}
}

// WithMetrics records stream metrics.
func WithMetrics(m *StreamMetrics) StreamOption {
	return func(s *Stream) {
		s.metrics = m
	}
}

// newStream creates a stopped stream and starts its completion worker.
func newStream(bus Bus, cfg Config, catalog *Catalog, path *Path, id uuid.UUID, opts ...StreamOption) *Stream {
	s := &Stream{
		bus:      bus,
		cfg:      cfg,
		catalog:  catalog,
		path:     path,
		notifier: nopNotifier{},
		id:       id,
		name:     fmt.Sprintf("if%d", catalog.Interface().Number),
		slots:    make([]*slot, cfg.TransferPoolSize),
		free:     cfg.TransferPoolSize,
		done:     make(chan completion, cfg.TransferPoolSize),
		quit:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	for i := range s.slots {
		sl := &slot{}
		sl.xfer.Callback = func(t *host.Transfer, n int, err error) {
			s.done <- completion{slot: sl, n: n, err: err, at: t.Completed}
		}
		s.slots[i] = sl
	}
	s.metrics.recordState(s.name, StateStopped)

	s.wg.Add(1)
	go s.run()
	return s
}

// UniqueID returns the stream's persistent identifier. It is stable
// across re-enumeration of the same device.
func (s *Stream) UniqueID() uuid.UUID {
	return s.id
}

// Manufacturer returns the device manufacturer string.
func (s *Stream) Manufacturer() string {
	return s.manufacturer
}

// Product returns the device product string.
func (s *Stream) Product() string {
	return s.product
}

// Direction returns the stream direction.
func (s *Stream) Direction() Direction {
	return s.path.Direction()
}

// Path returns the path the stream drives.
func (s *Stream) Path() *Path {
	return s.path
}

// Interface returns the streaming interface number.
func (s *Stream) Interface() uint8 {
	return s.catalog.Interface().Number
}

// State returns the current state.
func (s *Stream) State() State {
	s.pool.Lock()
	defer s.pool.Unlock()
	return s.state
}

// Position returns the ring byte position: the last byte handed to the
// bus on render, the last byte received on capture.
func (s *Stream) Position() int {
	s.pool.Lock()
	defer s.pool.Unlock()
	return s.position
}

// FormatPages returns the stream's format ranges, paged.
func (s *Stream) FormatPages() ([][]FormatRange, error) {
	s.session.Lock()
	defer s.session.Unlock()
	if s.closed {
		return nil, ErrTornDown
	}
	return s.catalog.FormatPages(), nil
}

// SetFormat negotiates and activates a format. It is only accepted while
// stopped and releases the current ring.
func (s *Stream) SetFormat(ctx context.Context, rate uint32, channels uint8, enc Encoding) error {
	s.session.Lock()
	defer s.session.Unlock()
	if err := s.checkSession(); err != nil {
		return err
	}
	if err := s.checkStopped(); err != nil {
		return err
	}

	e, err := s.catalog.Lookup(rate, channels, enc)
	if err != nil {
		return err
	}

	tr := tickRate(s.bus.Speed(), e.Interval)
	if tr == 0 {
		return fmt.Errorf("set format: interval %d services fewer than one packet per second: %w",
			e.Interval, pkg.ErrInvalidParameter)
	}
	cad := newCadence(rate, tr, e.Range.FrameSize())
	if cad.maxLength() > e.MaxTransferSize {
		return fmt.Errorf("set format: %d-byte packets exceed endpoint max %d: %w",
			cad.maxLength(), e.MaxTransferSize, pkg.ErrInvalidParameter)
	}

	if err := s.catalog.Activate(ctx, e, rate); err != nil {
		return fmt.Errorf("set format: %w", err)
	}

	s.pool.Lock()
	s.cad = cad
	s.step = serviceInterval(s.bus.Speed(), e.Interval)
	s.tick = time.Second / time.Duration(tr)
	for _, sl := range s.slots {
		sl.buf = make([]byte, cad.maxLength())
		sl.xfer.Endpoint = e.Endpoint
	}
	s.pool.Unlock()

	s.entry = &e
	s.rate = rate
	s.ring = nil

	pkg.LogInfo(pkg.ComponentStream, "format selected",
		"stream", s.name,
		"format", e.Range,
		"rate", rate,
		"alt", e.Alternate)
	return nil
}

// GetBuffer replaces the ring with one of at least minFrames frames and
// sets how many position notifications are delivered per pass over it.
func (s *Stream) GetBuffer(minFrames, notificationsPerRing int) (*Ring, error) {
	s.session.Lock()
	defer s.session.Unlock()
	if err := s.checkSession(); err != nil {
		return nil, err
	}
	if err := s.checkStopped(); err != nil {
		return nil, err
	}
	if s.entry == nil {
		return nil, ErrNoFormat
	}
	if minFrames < 1 || notificationsPerRing < 0 {
		return nil, fmt.Errorf("get buffer %d frames %d notifications: %w",
			minFrames, notificationsPerRing, pkg.ErrInvalidParameter)
	}

	s.ring = newRing(minFrames, s.entry.Range.FrameSize(), notificationsPerRing)
	pkg.LogDebug(pkg.ComponentStream, "ring allocated",
		"stream", s.name,
		"bytes", s.ring.Size(),
		"notify", s.ring.NotifyInterval())
	return s.ring, nil
}

// Start activates the format and queues one transfer per pool buffer. The
// first transfer is scheduled StartFrameOffset ticks in the future.
func (s *Stream) Start(ctx context.Context) error {
	s.session.Lock()
	defer s.session.Unlock()
	if err := s.checkSession(); err != nil {
		return err
	}
	if s.entry == nil {
		return ErrNoFormat
	}
	if s.ring == nil {
		return ErrNoBuffer
	}

	s.pool.Lock()
	ready := s.state == StateStopped && s.free == len(s.slots)
	s.pool.Unlock()
	if !ready {
		return fmt.Errorf("start: %w", pkg.ErrInvalidState)
	}

	if err := s.catalog.Activate(ctx, *s.entry, s.rate); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	frame, err := s.bus.CurrentFrame(ctx)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}

	s.pool.Lock()
	defer s.pool.Unlock()
	s.cad.reset()
	s.notifyAcc = 0
	s.position = 0
	s.offset = 0
	s.frame = frame + uint64(s.cfg.StartFrameOffset)
	s.setState(StateStarting)

	var submitErr error
	for _, sl := range s.slots {
		if err := s.enqueue(sl); err != nil {
			submitErr = err
			break
		}
	}
	if s.free == len(s.slots) {
		s.setState(StateStopped)
		return fmt.Errorf("start: %w", submitErr)
	}
	return nil
}

// Stop stops a started stream. In-flight transfers drain through the
// completion worker, which delivers StreamStopped.
func (s *Stream) Stop() error {
	s.session.Lock()
	defer s.session.Unlock()
	if err := s.checkSession(); err != nil {
		return err
	}

	s.pool.Lock()
	defer s.pool.Unlock()
	if s.state != StateStarted {
		return fmt.Errorf("stop in state %s: %w", s.state, pkg.ErrInvalidState)
	}
	s.setState(StateStopping)
	return nil
}

// FIFODepth returns the bytes buffered between the ring and the pin:
// two transfers on capture, the whole pool on render, plus one frame
// when the cadence alternates packet sizes.
func (s *Stream) FIFODepth() int {
	s.session.Lock()
	defer s.session.Unlock()
	if s.entry == nil {
		return 0
	}
	s.pool.Lock()
	defer s.pool.Unlock()

	depth := 2 * s.cad.base
	if s.path.Direction() == DirectionRender {
		depth = len(s.slots) * s.cad.base
	}
	if s.cad.rem != 0 {
		depth += s.cad.frameSize
	}
	return depth
}

// Gain returns the gain configuration of the stream's path.
func (s *Stream) Gain() (GainState, error) {
	s.session.Lock()
	defer s.session.Unlock()
	if s.closed {
		return GainState{}, ErrTornDown
	}

	var g GainState
	fu := s.path.GainUnit()
	if fu == nil {
		return g, nil
	}
	g.HasGain = fu.HasGain()
	g.HasMute = fu.HasMute() || g.HasGain
	g.HasAGC = fu.HasAGC()
	g.Muted = fu.Muted()
	g.AGC = fu.AGC()
	if g.HasGain {
		g.Gain = fu.Gain()
		g.Min, g.Max, g.Step = fu.GainRange()
	}
	return g, nil
}

// SetGain applies the requested gain, mute and AGC settings. The result
// reports which requested fields the path supports; unsupported fields
// are not applied. A gain outside the unit's range is rejected before any
// field changes.
func (s *Stream) SetGain(ctx context.Context, req GainRequest) (GainResult, error) {
	s.session.Lock()
	defer s.session.Unlock()
	var res GainResult
	if s.closed {
		return res, ErrTornDown
	}

	fu := s.path.GainUnit()
	if fu == nil {
		return res, nil
	}
	res.Gain = req.Gain != nil && fu.HasGain()
	res.Mute = req.Mute != nil && (fu.HasMute() || fu.HasGain())
	res.AGC = req.AGC != nil && fu.HasAGC()

	if res.Gain {
		lo, hi, _ := fu.GainRange()
		if db := *req.Gain; math.IsNaN(db) || db < lo || db > hi {
			return res, fmt.Errorf("gain %.2f dB outside [%.2f, %.2f]: %w", db, lo, hi, ErrGainOutOfRange)
		}
		if err := fu.SetGain(ctx, *req.Gain); err != nil {
			return res, err
		}
	}
	if res.Mute {
		if err := fu.SetMute(ctx, *req.Mute); err != nil {
			return res, err
		}
	}
	if res.AGC {
		if err := fu.SetAGC(ctx, *req.AGC); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Close stops the completion worker and waits for it to exit. Transfers
// still in flight complete without effect. Every later call fails with
// ErrTornDown.
func (s *Stream) Close() error {
	s.session.Lock()
	if s.closed {
		s.session.Unlock()
		return ErrTornDown
	}
	s.closed = true
	s.pool.Lock()
	if s.state == StateStarting || s.state == StateStarted {
		s.setState(StateStopping)
	}
	s.pool.Unlock()
	s.session.Unlock()

	close(s.quit)
	s.wg.Wait()
	pkg.LogDebug(pkg.ComponentStream, "stream closed", "stream", s.name)
	return nil
}

// detach handles removal of the device while the stream is idle. A
// running stream observes the removal through its transfers instead.
func (s *Stream) detach() {
	s.session.Lock()
	defer s.session.Unlock()
	s.pool.Lock()
	idle := s.state == StateStopped && s.free == len(s.slots)
	s.pool.Unlock()
	if idle {
		s.teardown()
	}
}

func (s *Stream) checkSession() error {
	if s.closed {
		return ErrTornDown
	}
	if s.unplugged {
		return pkg.ErrNoDevice
	}
	return nil
}

func (s *Stream) checkStopped() error {
	s.pool.Lock()
	defer s.pool.Unlock()
	if s.state != StateStopped {
		return fmt.Errorf("stream %s: %w", s.state, pkg.ErrInvalidState)
	}
	return nil
}

// setState changes state. Pool lock held.
func (s *Stream) setState(st State) {
	if s.state == st {
		return
	}
	pkg.LogDebug(pkg.ComponentStream, "state changed",
		"stream", s.name,
		"from", s.state,
		"to", st)
	s.state = st
	s.metrics.recordState(s.name, st)
}

// enqueue fills and submits one transfer. Pool lock held.
func (s *Stream) enqueue(sl *slot) error {
	length := s.cad.next()
	sl.length = length
	sl.xfer.Data = sl.buf[:length]
	sl.xfer.Frame = s.frame
	if s.path.Direction() == DirectionRender {
		s.ring.mu.Lock()
		s.offset = s.ring.read(s.offset, sl.xfer.Data)
		s.ring.mu.Unlock()
	}

	sl.inFlight = true
	s.free--
	if err := s.bus.SubmitIsochronous(&sl.xfer); err != nil {
		sl.inFlight = false
		s.free++
		s.metrics.recordError(s.name, "submit")
		if errors.Is(err, pkg.ErrNoDevice) {
			s.setState(StateStoppingAfterUnplug)
		}
		pkg.LogWarn(pkg.ComponentStream, "transfer submit failed",
			"stream", s.name,
			"frame", s.frame,
			"error", err)
		return err
	}
	s.frame += s.step
	return nil
}

func (s *Stream) run() {
	defer s.wg.Done()
	log := pkg.Logger(pkg.ComponentStream).With("stream", s.name)
	log.Debug("completion worker started")
	for {
		select {
		case <-s.quit:
			log.Debug("completion worker stopped")
			return
		case c := <-s.done:
			s.complete(c)
		}
	}
}

// event is work left for the second completion phase.
type event struct {
	started  bool
	notify   bool
	position uint32
	finalize bool
}

// complete handles one finished transfer on the completion worker.
func (s *Stream) complete(c completion) {
	ev := s.settle(c)
	if ev == (event{}) {
		return
	}

	s.session.Lock()
	defer s.session.Unlock()
	if ev.started {
		s.notifier.StreamStarted(s.startTime())
	}
	if ev.notify {
		s.notifier.PositionNotify(ev.position, c.at)
		s.metrics.recordNotification(s.name)
	}
	if ev.finalize {
		s.finalize()
	}
}

// settle is the first completion phase, run under the pool lock.
func (s *Stream) settle(c completion) event {
	s.pool.Lock()
	defer s.pool.Unlock()

	if !s.escalated {
		s.escalated = true
		escalatePriority()
	}

	var ev event
	sl := c.slot
	sl.inFlight = false
	s.free++

	realized := s.transferred(sl, c)

	switch {
	case errors.Is(c.err, pkg.ErrNoDevice):
		if s.state != StateStopped {
			s.setState(StateStoppingAfterUnplug)
		}
		s.metrics.recordError(s.name, "unplug")
	case c.err != nil:
		s.metrics.recordError(s.name, "transfer")
	default:
		s.metrics.recordTransfer(s.name, s.path.Direction(), realized)
	}

	if s.state == StateStarting || s.state == StateStarted {
		if s.ring != nil && s.ring.threshold > 0 {
			threshold := s.ring.threshold
			s.notifyAcc += realized
			if s.notifyAcc >= threshold {
				s.notifyAcc -= threshold
				ev.notify = true
				ev.position = uint32(s.position)
			}
		}
	}

	switch s.state {
	case StateStarting:
		s.started = c.at.Add(-s.tick)
		s.setState(StateStarted)
		ev.started = true
		s.replace(sl)
	case StateStarted:
		s.replace(sl)
	}

	if s.free == len(s.slots) {
		switch s.state {
		case StateStarted:
			s.setState(StateStopping)
			ev.finalize = true
		case StateStopping, StateStoppingAfterUnplug:
			ev.finalize = true
		}
	}
	return ev
}

// transferred moves the data of a finished transfer and advances the ring
// position. It returns the realized length. Pool lock held.
func (s *Stream) transferred(sl *slot, c completion) int {
	ring := s.ring
	if ring == nil {
		return 0
	}
	ring.mu.Lock()
	defer ring.mu.Unlock()

	realized := sl.length
	if s.path.Direction() == DirectionCapture {
		if c.err != nil {
			s.offset = ring.zero(s.offset, sl.length)
		} else {
			realized = min(c.n, sl.length)
			s.offset = ring.write(s.offset, sl.xfer.Data[:realized])
		}
		s.position = s.offset
		return realized
	}
	s.position = (s.position + realized) % ring.Size()
	return realized
}

// replace queues a finished slot again. Pool lock held.
func (s *Stream) replace(sl *slot) {
	if err := s.enqueue(sl); err != nil {
		pkg.LogDebug(pkg.ComponentStream, "transfer not replaced", "stream", s.name, "free", s.free)
	}
}

func (s *Stream) startTime() time.Time {
	s.pool.Lock()
	defer s.pool.Unlock()
	return s.started
}

// finalize completes a stop once the pool drained. Session lock held.
func (s *Stream) finalize() {
	s.pool.Lock()
	st := s.state
	drained := s.free == len(s.slots)
	if drained && (st == StateStopping || st == StateStoppingAfterUnplug) {
		s.setState(StateStopped)
	}
	s.pool.Unlock()
	if !drained {
		return
	}

	switch st {
	case StateStopping:
		if !s.closed {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ControlTimeout)
			if err := s.catalog.SelectIdle(ctx); err != nil && !errors.Is(err, pkg.ErrNotSupported) {
				pkg.LogWarn(pkg.ComponentStream, "idle alternate not selected",
					"stream", s.name,
					"error", err)
			}
			cancel()
		}
		s.notifier.StreamStopped()
	case StateStoppingAfterUnplug:
		s.teardown()
	}
}

// teardown releases the stream after the device went away. It runs once.
// Session lock held.
func (s *Stream) teardown() {
	if s.tornDown {
		return
	}
	s.tornDown = true
	s.unplugged = true
	s.ring = nil
	pkg.LogInfo(pkg.ComponentStream, "stream unplugged", "stream", s.name)
	s.notifier.Unplugged()
}

type nopNotifier struct{}

func (nopNotifier) StreamStarted(time.Time)          {}
func (nopNotifier) PositionNotify(uint32, time.Time) {}
func (nopNotifier) StreamStopped()                   {}
func (nopNotifier) Unplugged()                       {}
