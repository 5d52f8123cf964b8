package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ardnew/softuac/host"
	"github.com/ardnew/softuac/host/hal"
	"github.com/ardnew/softuac/pkg"
)

// Bus is the transport an audio function is driven over. *host.Device
// implements it.
type Bus interface {
	// ControlTransfer performs a control transfer on the default pipe.
	ControlTransfer(ctx context.Context, setup *hal.SetupPacket, data []byte) (int, error)

	// ClearEndpointHalt clears a halt condition. Endpoint 0 recovers the
	// control pipe after a stalled request.
	ClearEndpointHalt(ctx context.Context, endpoint uint8) error

	// SetInterface selects an alternate setting.
	SetInterface(ctx context.Context, iface, alt uint8) error

	// Speed returns the connection speed.
	Speed() hal.Speed

	// CurrentFrame returns the bus tick currently being serviced.
	CurrentFrame(ctx context.Context) (uint64, error)

	// SubmitIsochronous queues an isochronous transfer. Transfers on one
	// endpoint complete in submission order.
	SubmitIsochronous(t *host.Transfer) error
}

var _ Bus = (*host.Device)(nil)

// Request types of audio class requests.
const (
	requestTypeInterfaceOut = 0x21
	requestTypeInterfaceIn  = 0xA1
	requestTypeEndpointOut  = 0x22
)

// controller issues audio class requests on behalf of one audio control
// interface. Every request is bounded by timeout; a stalled or timed out
// request clears the control pipe halt before its error is returned.
type controller struct {
	bus     Bus
	iface   uint8
	timeout time.Duration
}

func (c *controller) request(ctx context.Context, requestType, request uint8, value, index uint16, data []byte) (int, error) {
	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	setup := hal.SetupPacket{
		RequestType: requestType,
		Request:     request,
		Value:       value,
		Index:       index,
		Length:      uint16(len(data)),
	}
	n, err := c.bus.ControlTransfer(rctx, &setup, data)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", pkg.ErrTimeout, err)
	}
	c.recoverPipe(ctx, err)
	return n, err
}

// recoverPipe clears the control pipe halt after a stalled or timed out
// request.
func (c *controller) recoverPipe(ctx context.Context, err error) {
	if !errors.Is(err, pkg.ErrStall) && !errors.Is(err, pkg.ErrTimeout) &&
		!errors.Is(err, context.DeadlineExceeded) {
		return
	}
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	if herr := c.bus.ClearEndpointHalt(hctx, 0); herr != nil {
		pkg.LogWarn(pkg.ComponentHost, "clear control halt failed", "error", herr)
	}
}

// setInterface selects an alternate setting of the controller's interface.
func (c *controller) setInterface(ctx context.Context, alt uint8) error {
	sctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	err := c.bus.SetInterface(sctx, c.iface, alt)
	if err != nil {
		c.recoverPipe(ctx, err)
	}
	return err
}

// getUnit reads a unit control of size bytes (1 or 2) as a signed value.
func (c *controller) getUnit(ctx context.Context, request, unit, selector, channel uint8, size int) (int16, error) {
	buf := make([]byte, size)
	n, err := c.request(ctx, requestTypeInterfaceIn, request,
		uint16(selector)<<8|uint16(channel), uint16(unit)<<8|uint16(c.iface), buf)
	if err != nil {
		return 0, fmt.Errorf("unit %d control %d channel %d request %#02x: %w",
			unit, selector, channel, request, err)
	}
	if n < size {
		return 0, fmt.Errorf("unit %d control %d channel %d request %#02x: %w",
			unit, selector, channel, request, pkg.ErrUnderrun)
	}
	if size == 1 {
		return int16(int8(buf[0])), nil
	}
	return int16(binary.LittleEndian.Uint16(buf)), nil
}

// setUnit writes the current value of a unit control.
func (c *controller) setUnit(ctx context.Context, unit, selector, channel uint8, value int16, size int) error {
	buf := make([]byte, size)
	if size == 1 {
		buf[0] = byte(value)
	} else {
		binary.LittleEndian.PutUint16(buf, uint16(value))
	}
	_, err := c.request(ctx, requestTypeInterfaceOut, requestSetCur,
		uint16(selector)<<8|uint16(channel), uint16(unit)<<8|uint16(c.iface), buf)
	if err != nil {
		return fmt.Errorf("set unit %d control %d channel %d: %w", unit, selector, channel, err)
	}
	return nil
}

// selectPin routes a selector unit to a 1-based input pin.
func (c *controller) selectPin(ctx context.Context, unit, pin uint8) error {
	_, err := c.request(ctx, requestTypeInterfaceOut, requestSetCur,
		0, uint16(unit)<<8|uint16(c.iface), []byte{pin})
	if err != nil {
		return fmt.Errorf("select unit %d pin %d: %w", unit, pin, err)
	}
	return nil
}

// setSampleRate programs the sampling frequency of an isochronous
// endpoint.
func (c *controller) setSampleRate(ctx context.Context, endpoint uint8, rate uint32) error {
	buf := []byte{byte(rate), byte(rate >> 8), byte(rate >> 16)}
	_, err := c.request(ctx, requestTypeEndpointOut, requestSetCur,
		uint16(selectorSamplingFreq)<<8, uint16(endpoint), buf)
	if err != nil {
		return fmt.Errorf("set endpoint %#02x rate %d: %w", endpoint, rate, err)
	}
	return nil
}
