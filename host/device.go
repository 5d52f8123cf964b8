package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/ardnew/softuac/host/hal"
	"github.com/ardnew/softuac/pkg"
)

// Device represents a connected USB device from the host's perspective.
//
// Device implements the bus contract consumed by class drivers: control
// requests, endpoint halt recovery, alternate setting selection, the bus
// frame counter and frame-scheduled isochronous submission.
type Device struct {
	host    *Host
	address uint8
	port    int
	speed   hal.Speed

	// Device descriptor
	descriptor DeviceDescriptor

	// Configuration descriptor (current)
	config ConfigurationDescriptor

	// Raw configuration blob exactly as read from the device
	raw []byte

	// Interface descriptors, one per alternate setting, in blob order
	interfaces []InterfaceDescriptor

	// Endpoint descriptors (current configuration)
	endpoints []EndpointDescriptor

	// Current configuration value
	configurationValue uint8

	// State
	state DeviceState
	mutex sync.RWMutex

	// String descriptors cache (indexed by string index)
	strings map[uint8]string
}

// newDevice creates a new device instance.
func newDevice(host *Host, port int, address uint8, speed hal.Speed) *Device {
	return &Device{
		host:    host,
		address: address,
		port:    port,
		speed:   speed,
		state:   DeviceStateDefault,
		strings: make(map[uint8]string),
	}
}

// Address returns the device address.
func (d *Device) Address() uint8 {
	return d.address
}

// Port returns the port number the device is connected to.
func (d *Device) Port() int {
	return d.port
}

// Speed returns the device speed.
func (d *Device) Speed() hal.Speed {
	return d.speed
}

// VendorID returns the device vendor ID.
func (d *Device) VendorID() uint16 {
	return d.descriptor.VendorID
}

// ProductID returns the device product ID.
func (d *Device) ProductID() uint16 {
	return d.descriptor.ProductID
}

// DeviceClass returns the device class.
func (d *Device) DeviceClass() uint8 {
	return d.descriptor.DeviceClass
}

// Descriptor returns the device descriptor.
func (d *Device) Descriptor() DeviceDescriptor {
	return d.descriptor
}

// Configuration returns the current configuration descriptor.
func (d *Device) Configuration() ConfigurationDescriptor {
	return d.config
}

// RawDescriptors returns the complete configuration descriptor blob,
// including every class-specific record. The returned slice references
// internal storage; do not modify.
func (d *Device) RawDescriptors() []byte {
	return d.raw
}

// Interfaces returns the interface descriptors for the current configuration,
// one entry per alternate setting.
// The returned slice references internal storage; do not modify.
func (d *Device) Interfaces() []InterfaceDescriptor {
	return d.interfaces
}

// Endpoints returns the endpoint descriptors for the current configuration.
// The returned slice references internal storage; do not modify.
func (d *Device) Endpoints() []EndpointDescriptor {
	return d.endpoints
}

// GetInterface returns the descriptor of alternate setting 0 for the given
// interface number.
func (d *Device) GetInterface(num uint8) *InterfaceDescriptor {
	return d.GetAlternate(num, 0)
}

// GetAlternate returns the interface descriptor for the given interface
// number and alternate setting.
func (d *Device) GetAlternate(num, alt uint8) *InterfaceDescriptor {
	for i := range d.interfaces {
		if d.interfaces[i].InterfaceNumber == num && d.interfaces[i].AlternateSetting == alt {
			return &d.interfaces[i]
		}
	}
	return nil
}

// GetEndpoint returns the endpoint descriptor for the given address.
func (d *Device) GetEndpoint(address uint8) *EndpointDescriptor {
	for i := range d.endpoints {
		if d.endpoints[i].EndpointAddress == address {
			return &d.endpoints[i]
		}
	}
	return nil
}

// GetString returns a cached string descriptor.
func (d *Device) GetString(index uint8) string {
	if index == 0 {
		return ""
	}
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.strings[index]
}

// Manufacturer returns the manufacturer string.
func (d *Device) Manufacturer() string {
	return d.GetString(d.descriptor.ManufacturerIndex)
}

// Product returns the product string.
func (d *Device) Product() string {
	return d.GetString(d.descriptor.ProductIndex)
}

// SerialNumber returns the serial number string.
func (d *Device) SerialNumber() string {
	return d.GetString(d.descriptor.SerialNumberIndex)
}

// State returns the current device state.
func (d *Device) State() DeviceState {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.state
}

// detached reports whether the device has been closed or unplugged.
func (d *Device) detached() bool {
	return d.State() == DeviceStateDetached
}

// SetConfiguration sets the device configuration.
func (d *Device) SetConfiguration(ctx context.Context, value uint8) error {
	setup := hal.SetupPacket{
		RequestType: RequestTypeOut | RequestTypeStandard | RequestTypeDevice,
		Request:     RequestSetConfiguration,
		Value:       uint16(value),
	}

	if _, err := d.ControlTransfer(ctx, &setup, nil); err != nil {
		return err
	}

	d.mutex.Lock()
	d.configurationValue = value
	if value > 0 {
		d.state = DeviceStateConfigured
	} else {
		d.state = DeviceStateAddress
	}
	d.mutex.Unlock()

	return nil
}

// GetConfiguration returns the current configuration value.
func (d *Device) GetConfiguration() uint8 {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.configurationValue
}

// ControlTransfer performs a control transfer to the device.
func (d *Device) ControlTransfer(ctx context.Context, setup *hal.SetupPacket, data []byte) (int, error) {
	if d.detached() {
		return 0, pkg.ErrNoDevice
	}
	return d.host.hal.ControlTransfer(ctx, hal.DeviceAddress(d.address), setup, data)
}

// ClaimInterface claims exclusive access to an interface.
func (d *Device) ClaimInterface(iface uint8) error {
	if d.detached() {
		return pkg.ErrNoDevice
	}
	return d.host.hal.ClaimInterface(hal.DeviceAddress(d.address), iface)
}

// ReleaseInterface releases a claimed interface.
func (d *Device) ReleaseInterface(iface uint8) error {
	return d.host.hal.ReleaseInterface(hal.DeviceAddress(d.address), iface)
}

// SetInterface selects an alternate setting of an interface.
func (d *Device) SetInterface(ctx context.Context, iface, alt uint8) error {
	if d.detached() {
		return pkg.ErrNoDevice
	}
	if err := d.host.hal.SetInterface(ctx, hal.DeviceAddress(d.address), iface, alt); err != nil {
		return fmt.Errorf("set interface %d alt %d: %w", iface, alt, err)
	}
	pkg.LogDebug(pkg.ComponentHost, "alternate setting selected",
		"address", d.address,
		"interface", iface,
		"alt", alt)
	return nil
}

// ClearEndpointHalt clears the halt condition on an endpoint. Endpoint 0
// recovers the default control pipe after a stalled request.
func (d *Device) ClearEndpointHalt(ctx context.Context, endpoint uint8) error {
	if d.detached() {
		return pkg.ErrNoDevice
	}
	return d.host.hal.ClearHalt(ctx, hal.DeviceAddress(d.address), endpoint)
}

// CurrentFrame returns the bus frame currently being serviced.
func (d *Device) CurrentFrame(ctx context.Context) (uint64, error) {
	if d.detached() {
		return 0, pkg.ErrNoDevice
	}
	return d.host.hal.CurrentFrame(ctx, hal.DeviceAddress(d.address))
}

// SubmitIsochronous queues an isochronous transfer for this device. The
// transfer's Address and Type are filled in; Endpoint, Frame, Data and
// Callback must be set by the caller. Transfers on one endpoint complete in
// submission order.
func (d *Device) SubmitIsochronous(t *Transfer) error {
	if d.detached() {
		return pkg.ErrNoDevice
	}
	t.Address = d.address
	t.Type = hal.TransferIsochronous
	_, err := d.host.transfers.Submit(t)
	return err
}

// Close closes the device. Later transfers fail with pkg.ErrNoDevice.
func (d *Device) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.state = DeviceStateDetached
	return nil
}

// parseDeviceDescriptor parses a device descriptor from raw bytes.
// Returns true if successful.
func (d *Device) parseDeviceDescriptor(data []byte) bool {
	return ParseDeviceDescriptor(data, &d.descriptor)
}

// parseConfigurationTree records the configuration blob and indexes its
// standard interface and endpoint descriptors. Class-specific records stay
// in the blob for class drivers to decode.
func (d *Device) parseConfigurationTree(data []byte) {
	if !ParseConfigurationDescriptor(data, &d.config) {
		return
	}

	end := min(int(d.config.TotalLength), len(data))
	d.raw = make([]byte, end)
	copy(d.raw, data[:end])

	d.interfaces = make([]InterfaceDescriptor, 0, d.config.NumInterfaces)
	d.endpoints = make([]EndpointDescriptor, 0, MaxEndpointsPerInterface)

	offset := ConfigurationDescriptorSize
	for offset+2 <= end {
		length := int(data[offset])
		descType := data[offset+1]

		if length < 2 || offset+length > end {
			pkg.LogWarn(pkg.ComponentHost, "truncated descriptor in configuration",
				"offset", offset,
				"length", length)
			break
		}

		switch descType {
		case DescriptorTypeInterface:
			var iface InterfaceDescriptor
			if ParseInterfaceDescriptor(data[offset:offset+length], &iface) {
				d.interfaces = append(d.interfaces, iface)
			}

		case DescriptorTypeEndpoint:
			var ep EndpointDescriptor
			if ParseEndpointDescriptor(data[offset:offset+length], &ep) {
				d.endpoints = append(d.endpoints, ep)
			}
		}

		offset += length
	}
}

// GetDescriptor performs a GET_DESCRIPTOR request.
func (d *Device) GetDescriptor(ctx context.Context, descType, descIndex uint8, langID uint16, data []byte) (int, error) {
	setup := hal.SetupPacket{
		RequestType: RequestTypeIn | RequestTypeStandard | RequestTypeDevice,
		Request:     RequestGetDescriptor,
		Value:       uint16(descType)<<8 | uint16(descIndex),
		Index:       langID,
		Length:      uint16(len(data)),
	}

	return d.ControlTransfer(ctx, &setup, data)
}

// GetStatus performs a GET_STATUS request.
func (d *Device) GetStatus(ctx context.Context) (uint16, error) {
	var buf [2]byte
	setup := hal.SetupPacket{
		RequestType: RequestTypeIn | RequestTypeStandard | RequestTypeDevice,
		Request:     RequestGetStatus,
		Length:      2,
	}

	if _, err := d.ControlTransfer(ctx, &setup, buf[:]); err != nil {
		return 0, err
	}

	return uint16(buf[0]) | uint16(buf[1])<<8, nil
}
