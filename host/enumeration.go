package host

import (
	"errors"
	"unicode/utf16"

	"github.com/ardnew/softuac/host/hal"
	"github.com/ardnew/softuac/pkg"
)

// Enumeration errors.
var (
	ErrEnumerationFailed = errors.New("enumeration failed")
	ErrNoAddress         = errors.New("no address available")
)

// enumerateDevice performs the USB enumeration sequence for a new device.
func (h *Host) enumerateDevice(port int) (*Device, error) {
	pkg.LogDebug(pkg.ComponentHost, "starting enumeration", "port", port)

	// Get port speed
	speed := h.hal.PortSpeed(port)

	// Reset the port
	if err := h.hal.ResetPort(port); err != nil {
		return nil, err
	}

	// Allow device to stabilize after reset
	// (HAL should handle any necessary delays)

	// Create device at address 0
	dev := newDevice(h, port, 0, speed)

	// Read initial device descriptor (just the first 8 bytes to get bMaxPacketSize0)
	var buf [MaxStringDescriptorSize]byte
	setup := hal.SetupPacket{
		RequestType: RequestTypeIn | RequestTypeStandard | RequestTypeDevice,
		Request:     RequestGetDescriptor,
		Value:       uint16(DescriptorTypeDevice) << 8,
		Index:       0,
		Length:      8, // Just get the first 8 bytes
	}

	n, err := h.hal.ControlTransfer(h.ctx, hal.DeviceAddress(0), &setup, buf[:8])
	if err != nil {
		return nil, err
	}
	if n < 8 {
		return nil, ErrEnumerationFailed
	}

	// Get max packet size from partial descriptor
	maxPacketSize0 := buf[7]
	if maxPacketSize0 == 0 {
		maxPacketSize0 = 8 // Default for low-speed
	}

	pkg.LogDebug(pkg.ComponentHost, "got max packet size", "size", maxPacketSize0)

	// Allocate address
	address := h.allocateAddress()
	if address == 0 {
		return nil, ErrNoAddress
	}

	// Set address
	setup = hal.SetupPacket{
		RequestType: RequestTypeOut | RequestTypeStandard | RequestTypeDevice,
		Request:     RequestSetAddress,
		Value:       uint16(address),
		Index:       0,
		Length:      0,
	}

	_, err = h.hal.ControlTransfer(h.ctx, hal.DeviceAddress(0), &setup, nil)
	if err != nil {
		return nil, err
	}

	pkg.LogDebug(pkg.ComponentHost, "assigned address", "address", address)

	// Update device address
	dev.address = address
	dev.state = DeviceStateAddress

	// Now read full device descriptor using the new address
	setup = hal.SetupPacket{
		RequestType: RequestTypeIn | RequestTypeStandard | RequestTypeDevice,
		Request:     RequestGetDescriptor,
		Value:       uint16(DescriptorTypeDevice) << 8,
		Index:       0,
		Length:      DeviceDescriptorSize,
	}

	n, err = h.hal.ControlTransfer(h.ctx, hal.DeviceAddress(address), &setup, buf[:DeviceDescriptorSize])
	if err != nil {
		return nil, err
	}
	if n < DeviceDescriptorSize {
		return nil, ErrEnumerationFailed
	}

	// Parse device descriptor
	dev.parseDeviceDescriptor(buf[:n])

	pkg.LogDebug(pkg.ComponentHost, "device descriptor",
		"vendorID", dev.descriptor.VendorID,
		"productID", dev.descriptor.ProductID,
		"class", dev.descriptor.DeviceClass)

	// Read configuration descriptor (just header first to get total length)
	setup = hal.SetupPacket{
		RequestType: RequestTypeIn | RequestTypeStandard | RequestTypeDevice,
		Request:     RequestGetDescriptor,
		Value:       uint16(DescriptorTypeConfiguration) << 8,
		Index:       0,
		Length:      ConfigurationDescriptorSize,
	}

	n, err = h.hal.ControlTransfer(h.ctx, hal.DeviceAddress(address), &setup, buf[:ConfigurationDescriptorSize])
	if err != nil {
		return nil, err
	}
	if n < ConfigurationDescriptorSize {
		return nil, ErrEnumerationFailed
	}

	// Read the full configuration blob; class drivers need every record.
	totalLength := uint16(buf[2]) | uint16(buf[3])<<8
	if totalLength < ConfigurationDescriptorSize {
		return nil, ErrEnumerationFailed
	}
	blob := make([]byte, totalLength)

	setup.Length = totalLength
	n, err = h.hal.ControlTransfer(h.ctx, hal.DeviceAddress(address), &setup, blob)
	if err != nil {
		return nil, err
	}
	if n < int(totalLength) {
		pkg.LogWarn(pkg.ComponentHost, "short configuration descriptor",
			"want", totalLength,
			"got", n)
	}

	// Parse configuration tree
	dev.parseConfigurationTree(blob[:n])

	pkg.LogDebug(pkg.ComponentHost, "configuration descriptor",
		"numInterfaces", dev.config.NumInterfaces,
		"configValue", dev.config.ConfigurationValue,
		"totalLength", len(dev.raw))

	// Read string descriptors if available
	if err := h.readStringDescriptors(dev, buf[:]); err != nil {
		// Non-fatal, continue without strings
		pkg.LogDebug(pkg.ComponentHost, "string descriptor read failed", "error", err)
	}

	// Set configuration (use the first configuration)
	if dev.config.ConfigurationValue > 0 {
		if err := dev.SetConfiguration(h.ctx, dev.config.ConfigurationValue); err != nil {
			return nil, err
		}
	}

	return dev, nil
}

// readStringDescriptors reads and caches the manufacturer, product and
// serial number strings of a device.
func (h *Host) readStringDescriptors(dev *Device, buf []byte) error {
	var firstErr error
	for _, index := range []uint8{
		dev.descriptor.ManufacturerIndex,
		dev.descriptor.ProductIndex,
		dev.descriptor.SerialNumberIndex,
	} {
		if index == 0 {
			continue
		}
		s, err := h.readString(dev, index, buf)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		dev.mutex.Lock()
		dev.strings[index] = s
		dev.mutex.Unlock()
		pkg.LogDebug(pkg.ComponentHost, "string descriptor", "index", index, "value", s)
	}
	return firstErr
}

// readString reads one string descriptor in US English.
func (h *Host) readString(dev *Device, index uint8, buf []byte) (string, error) {
	setup := hal.SetupPacket{
		RequestType: RequestTypeIn | RequestTypeStandard | RequestTypeDevice,
		Request:     RequestGetDescriptor,
		Value:       uint16(DescriptorTypeString)<<8 | uint16(index),
		Index:       LangIDUSEnglish,
		Length:      uint16(len(buf)),
	}

	n, err := h.hal.ControlTransfer(h.ctx, hal.DeviceAddress(dev.address), &setup, buf)
	if err != nil {
		return "", err
	}
	return decodeStringDescriptor(buf[:n]), nil
}

// decodeStringDescriptor converts a UTF-16LE string descriptor to a Go
// string.
func decodeStringDescriptor(data []byte) string {
	if len(data) < 2 {
		return ""
	}
	length := min(int(data[0]), len(data))
	if length < 2 {
		return ""
	}

	units := make([]uint16, 0, (length-2)/2)
	for i := 2; i+1 < length; i += 2 {
		units = append(units, uint16(data[i])|uint16(data[i+1])<<8)
	}
	return string(utf16.Decode(units))
}
