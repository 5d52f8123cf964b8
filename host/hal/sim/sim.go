package sim

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/ardnew/softuac/host/hal"
	"github.com/ardnew/softuac/pkg"
)

// Standard request codes answered by the simulated device.
const (
	requestGetStatus        = 0x00
	requestClearFeature     = 0x01
	requestSetAddress       = 0x05
	requestGetDescriptor    = 0x06
	requestGetConfiguration = 0x08
	requestSetConfiguration = 0x09
	requestSetInterface     = 0x0B

	descTypeDevice = 0x01

	requestTypeMask      = 0x60
	requestTypeStandard  = 0x00
	requestTypeClass     = 0x20
	recipientMask        = 0x1F
	recipientDevice      = 0x00
	recipientInterface   = 0x01
	recipientEndpoint    = 0x02
	langIDUSEnglish      = 0x0409
	simulatedPort        = 1
	connectionQueueDepth = 4
)

// String descriptor indices assigned to the device strings.
const (
	stringManufacturer = 1
	stringProduct      = 2
	stringSerial       = 3
)

// Device describes the simulated USB audio device.
type Device struct {
	Speed        hal.Speed
	VendorID     uint16
	ProductID    uint16
	Manufacturer string
	Product      string
	SerialNumber string

	// Configuration is the configuration descriptor blob, typically
	// produced by [DescriptorBuilder.Bytes].
	Configuration []byte
}

// SourceFunc fills an IN transfer for the given frame and returns the
// number of bytes produced.
type SourceFunc func(frame uint64, buf []byte) int

// Option configures a [HostHAL].
type Option func(*HostHAL)

// WithTickDuration overrides the duration of one bus tick.
func WithTickDuration(d time.Duration) Option {
	return func(h *HostHAL) {
		if d > 0 {
			h.tick = d
		}
	}
}

// WithControlHook installs a function consulted before every control
// request. A non-nil error is returned to the caller instead of servicing
// the request, which lets tests inject stalls and timeouts.
func WithControlHook(fn func(setup *hal.SetupPacket) error) Option {
	return func(h *HostHAL) {
		h.hook = fn
	}
}

// HostHAL implements hal.HostHAL for a single simulated audio device on
// port 1. It answers standard and audio class control requests, keeps a
// bus frame clock, and services isochronous transfers at their scheduled
// frame: OUT data is collected per endpoint, IN data comes from a
// per-endpoint source.
type HostHAL struct {
	dev     Device
	tick    time.Duration
	devDesc []byte
	strings map[uint8][]byte
	store   *controlStore
	hook    func(*hal.SetupPacket) error

	mu         sync.RWMutex
	connected  bool
	address    uint8
	configured uint8
	alts       map[uint8]uint8
	claimed    map[uint8]bool
	halts      []uint8
	sinks      map[uint8][]byte
	sources    map[uint8]SourceFunc
	late       int
	epoch      time.Time
	gone       chan struct{}

	connectCh    chan int
	disconnectCh chan int

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHostHAL creates a simulated host controller with dev attached.
func NewHostHAL(dev Device, opts ...Option) *HostHAL {
	if dev.Speed == hal.SpeedUnknown {
		dev.Speed = hal.SpeedFull
	}

	h := &HostHAL{
		dev:          dev,
		tick:         time.Second / time.Duration(dev.Speed.TicksPerSecond()),
		store:        newControlStore(),
		alts:         make(map[uint8]uint8),
		claimed:      make(map[uint8]bool),
		sinks:        make(map[uint8][]byte),
		sources:      make(map[uint8]SourceFunc),
		gone:         make(chan struct{}),
		connectCh:    make(chan int, connectionQueueDepth),
		disconnectCh: make(chan int, connectionQueueDepth),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.devDesc = make([]byte, 18)
	h.devDesc[0] = 18
	h.devDesc[1] = descTypeDevice
	binary.LittleEndian.PutUint16(h.devDesc[2:4], 0x0200)
	h.devDesc[7] = 64
	binary.LittleEndian.PutUint16(h.devDesc[8:10], dev.VendorID)
	binary.LittleEndian.PutUint16(h.devDesc[10:12], dev.ProductID)
	binary.LittleEndian.PutUint16(h.devDesc[12:14], 0x0100)
	h.devDesc[17] = 1

	h.strings = map[uint8][]byte{0: {4, descTypeString, byte(langIDUSEnglish & 0xFF), byte(langIDUSEnglish >> 8)}}
	for idx, s := range map[uint8]string{
		stringManufacturer: dev.Manufacturer,
		stringProduct:      dev.Product,
		stringSerial:       dev.SerialNumber,
	} {
		if s != "" {
			h.strings[idx] = stringDescriptor(s)
			h.devDesc[13+idx] = idx
		}
	}

	h.store.populate(dev.Configuration)
	return h
}

// Init initializes the simulated controller.
func (h *HostHAL) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctx, h.cancel = context.WithCancel(ctx)
	pkg.LogInfo(pkg.ComponentHAL, "simulated host HAL initialized",
		"speed", h.dev.Speed,
		"tick", h.tick)
	return nil
}

// Start powers the port and attaches the device.
func (h *HostHAL) Start() error {
	h.Plug()
	return nil
}

// Stop detaches the device and cancels pending waits.
func (h *HostHAL) Stop() error {
	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.mu.Unlock()
	return nil
}

// Close releases all resources.
func (h *HostHAL) Close() error {
	return h.Stop()
}

// NumPorts returns the number of root hub ports (simulated as 1).
func (h *HostHAL) NumPorts() int {
	return 1
}

// GetPortStatus returns the status of a port.
func (h *HostHAL) GetPortStatus(port int) (hal.PortStatus, error) {
	if port != simulatedPort {
		return hal.PortStatus{}, pkg.ErrInvalidParameter
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := hal.PortStatus{PowerOn: true}
	if h.connected {
		status.Connected = true
		status.Enabled = true
		status.Speed = h.dev.Speed
	}
	return status, nil
}

// PortSpeed returns the speed of the connected device.
func (h *HostHAL) PortSpeed(port int) hal.Speed {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if port != simulatedPort || !h.connected {
		return hal.SpeedUnknown
	}
	return h.dev.Speed
}

// ResetPort returns the device to the default state at address 0.
func (h *HostHAL) ResetPort(port int) error {
	if port != simulatedPort {
		return pkg.ErrInvalidParameter
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.connected {
		return pkg.ErrNoDevice
	}
	h.address = 0
	h.configured = 0
	clear(h.alts)
	pkg.LogDebug(pkg.ComponentHAL, "port reset complete", "port", port)
	return nil
}

// ControlTransfer services a control request.
func (h *HostHAL) ControlTransfer(ctx context.Context, addr hal.DeviceAddress, setup *hal.SetupPacket, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !h.Connected() {
		return 0, pkg.ErrNoDevice
	}
	if h.hook != nil {
		if err := h.hook(setup); err != nil {
			pkg.LogDebug(pkg.ComponentHAL, "control request rejected by hook",
				"request", setup.Request,
				"value", setup.Value,
				"error", err)
			return 0, err
		}
	}

	if int(setup.Length) < len(data) {
		data = data[:setup.Length]
	}

	switch setup.RequestType & requestTypeMask {
	case requestTypeStandard:
		return h.standardRequest(setup, data)
	case requestTypeClass:
		switch setup.RequestType & recipientMask {
		case recipientInterface:
			return h.store.handle(setup.Request, setup.Value, setup.Index, data, false)
		case recipientEndpoint:
			return h.store.handle(setup.Request, setup.Value, setup.Index, data, true)
		}
	}
	return 0, pkg.ErrStall
}

func (h *HostHAL) standardRequest(setup *hal.SetupPacket, data []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	recipient := setup.RequestType & recipientMask
	switch {
	case setup.Request == requestGetDescriptor && recipient == recipientDevice:
		var src []byte
		switch uint8(setup.Value >> 8) {
		case descTypeDevice:
			src = h.devDesc
		case descTypeConfiguration:
			src = h.dev.Configuration
		case descTypeString:
			src = h.strings[uint8(setup.Value)]
		}
		if src == nil {
			return 0, pkg.ErrStall
		}
		return copy(data, src), nil

	case setup.Request == requestSetAddress && recipient == recipientDevice:
		h.address = uint8(setup.Value)
		pkg.LogDebug(pkg.ComponentHAL, "device address set", "address", h.address)
		return 0, nil

	case setup.Request == requestSetConfiguration && recipient == recipientDevice:
		h.configured = uint8(setup.Value)
		return 0, nil

	case setup.Request == requestGetConfiguration && recipient == recipientDevice:
		if len(data) < 1 {
			return 0, pkg.ErrStall
		}
		data[0] = h.configured
		return 1, nil

	case setup.Request == requestGetStatus:
		return encodeValue(data, 0), nil

	case setup.Request == requestSetInterface && recipient == recipientInterface:
		h.alts[uint8(setup.Index)] = uint8(setup.Value)
		return 0, nil

	case setup.Request == requestClearFeature && recipient == recipientEndpoint:
		h.halts = append(h.halts, uint8(setup.Index))
		return 0, nil
	}
	return 0, pkg.ErrStall
}

// IsochronousTransfer services one isochronous transaction once its frame
// is on the bus. Frames already in the past are serviced immediately and
// counted as late.
func (h *HostHAL) IsochronousTransfer(ctx context.Context, addr hal.DeviceAddress, endpoint uint8, frame uint64, data []byte) (int, error) {
	h.mu.RLock()
	connected, gone, epoch := h.connected, h.gone, h.epoch
	h.mu.RUnlock()
	stopped := h.stopped()
	if !connected {
		return 0, pkg.ErrNoDevice
	}

	due := epoch.Add(time.Duration(frame+1) * h.tick)
	if wait := time.Until(due); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-gone:
			timer.Stop()
			return 0, pkg.ErrNoDevice
		case <-stopped:
			timer.Stop()
			return 0, pkg.ErrCancelled
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		}
	} else if -wait > h.tick {
		h.mu.Lock()
		h.late++
		h.mu.Unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.connected {
		return 0, pkg.ErrNoDevice
	}

	if endpoint&0x80 != 0 {
		src := h.sources[endpoint]
		if src == nil {
			return rampSource(frame, data), nil
		}
		return src(frame, data), nil
	}
	h.sinks[endpoint] = append(h.sinks[endpoint], data...)
	return len(data), nil
}

// rampSource produces a byte ramp seeded by the frame number.
func rampSource(frame uint64, buf []byte) int {
	for i := range buf {
		buf[i] = byte(frame) + byte(i)
	}
	return len(buf)
}

// CurrentFrame returns the tick currently on the bus.
func (h *HostHAL) CurrentFrame(ctx context.Context, addr hal.DeviceAddress) (uint64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.connected {
		return 0, pkg.ErrNoDevice
	}
	return uint64(time.Since(h.epoch) / h.tick), nil
}

// ClaimInterface claims an interface.
func (h *HostHAL) ClaimInterface(addr hal.DeviceAddress, iface uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.connected {
		return pkg.ErrNoDevice
	}
	if h.claimed[iface] {
		return pkg.ErrBusy
	}
	h.claimed[iface] = true
	return nil
}

// ReleaseInterface releases a claimed interface.
func (h *HostHAL) ReleaseInterface(addr hal.DeviceAddress, iface uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.claimed, iface)
	return nil
}

// SetInterface selects an alternate setting.
func (h *HostHAL) SetInterface(ctx context.Context, addr hal.DeviceAddress, iface, alt uint8) error {
	setup := hal.SetupPacket{
		RequestType: recipientInterface,
		Request:     requestSetInterface,
		Value:       uint16(alt),
		Index:       uint16(iface),
	}
	_, err := h.ControlTransfer(ctx, addr, &setup, nil)
	return err
}

// ClearHalt clears a halt condition on an endpoint.
func (h *HostHAL) ClearHalt(ctx context.Context, addr hal.DeviceAddress, endpoint uint8) error {
	setup := hal.SetupPacket{
		RequestType: recipientEndpoint,
		Request:     requestClearFeature,
		Index:       uint16(endpoint),
	}
	_, err := h.ControlTransfer(ctx, addr, &setup, nil)
	return err
}

// stopped returns a channel closed once the controller is stopped, or nil
// before Init.
func (h *HostHAL) stopped() <-chan struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.ctx == nil {
		return nil
	}
	return h.ctx.Done()
}

// WaitForConnection blocks until the device is plugged in.
func (h *HostHAL) WaitForConnection(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-h.stopped():
		return 0, pkg.ErrCancelled
	case port := <-h.connectCh:
		return port, nil
	}
}

// WaitForDisconnection blocks until the device is unplugged.
func (h *HostHAL) WaitForDisconnection(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-h.stopped():
		return 0, pkg.ErrCancelled
	case port := <-h.disconnectCh:
		return port, nil
	}
}

// Plug attaches the device and restarts the frame clock.
func (h *HostHAL) Plug() {
	h.mu.Lock()
	if h.connected {
		h.mu.Unlock()
		return
	}
	h.connected = true
	h.address = 0
	h.configured = 0
	h.epoch = time.Now()
	h.gone = make(chan struct{})
	clear(h.alts)
	clear(h.claimed)
	h.mu.Unlock()

	pkg.LogInfo(pkg.ComponentHAL, "simulated device attached", "port", simulatedPort)
	select {
	case h.connectCh <- simulatedPort:
	default:
	}
}

// Unplug detaches the device. Pending and later transfers fail with
// pkg.ErrNoDevice.
func (h *HostHAL) Unplug() {
	h.mu.Lock()
	if !h.connected {
		h.mu.Unlock()
		return
	}
	h.connected = false
	close(h.gone)
	h.mu.Unlock()

	pkg.LogInfo(pkg.ComponentHAL, "simulated device detached", "port", simulatedPort)
	select {
	case h.disconnectCh <- simulatedPort:
	default:
	}
}

// Connected reports whether the device is attached.
func (h *HostHAL) Connected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connected
}

// Alternate returns the alternate setting selected for an interface.
func (h *HostHAL) Alternate(iface uint8) uint8 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.alts[iface]
}

// Claimed reports whether an interface is claimed.
func (h *HostHAL) Claimed(iface uint8) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.claimed[iface]
}

// Halts returns the endpoints whose halt was cleared, in order.
func (h *HostHAL) Halts() []uint8 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]uint8(nil), h.halts...)
}

// SampleRate returns the sampling frequency last programmed on an endpoint.
func (h *HostHAL) SampleRate(endpoint uint8) uint32 {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return h.store.rates[endpoint]
}

// Control returns the current value of a unit control.
func (h *HostHAL) Control(unit, selector, channel uint8) (int16, bool) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	c, ok := h.store.controls[controlKey{unit, selector, channel}]
	if !ok {
		return 0, false
	}
	return c.cur, true
}

// ControlWrites returns how many SET_CUR requests a control received.
func (h *HostHAL) ControlWrites(unit, selector, channel uint8) int {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if c, ok := h.store.controls[controlKey{unit, selector, channel}]; ok {
		return c.writes
	}
	return 0
}

// SetControlRange installs or replaces a ranged unit control.
func (h *HostHAL) SetControlRange(unit, selector, channel uint8, lo, hi, res, cur int16) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.controls[controlKey{unit, selector, channel}] = &control{
		min: lo, max: hi, res: res, cur: cur, ranged: true,
	}
}

// RemoveControl deletes a unit control so requests to it stall.
func (h *HostHAL) RemoveControl(unit, selector, channel uint8) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	delete(h.store.controls, controlKey{unit, selector, channel})
}

// SetSource installs the data source of an IN endpoint.
func (h *HostHAL) SetSource(endpoint uint8, fn SourceFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sources[endpoint] = fn
}

// Sink returns a copy of all bytes received on an OUT endpoint.
func (h *HostHAL) Sink(endpoint uint8) []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]byte(nil), h.sinks[endpoint]...)
}

// DrainSink returns and clears the bytes received on an OUT endpoint.
func (h *HostHAL) DrainSink(endpoint uint8) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.sinks[endpoint]
	delete(h.sinks, endpoint)
	return out
}

// LateFrames returns the number of isochronous transfers serviced after
// their frame had passed.
func (h *HostHAL) LateFrames() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.late
}
