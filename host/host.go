package host

import (
	"context"
	"sync"

	"github.com/ardnew/softuac/host/hal"
	"github.com/ardnew/softuac/pkg"
)

// Host manages the USB host controller and connected devices.
type Host struct {
	hal hal.HostHAL

	// Asynchronous transfer execution
	transfers *TransferManager

	// Connected devices (indexed by address - 1)
	devices     [MaxDevices]*Device
	deviceCount int

	// Next available address
	nextAddress uint8

	// State
	running bool
	mutex   sync.RWMutex

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc

	// Event channels
	deviceConnected    chan *Device
	deviceDisconnected chan *Device

	// Callbacks
	onDeviceDisconnect func(*Device)
}

// DefaultTransferWorkers is the number of control transfer workers.
const DefaultTransferWorkers = 2

// New creates a new USB host.
func New(h hal.HostHAL) *Host {
	return &Host{
		hal:                h,
		transfers:          NewTransferManager(h, DefaultTransferWorkers),
		nextAddress:        1,
		deviceConnected:    make(chan *Device, MaxDevices),
		deviceDisconnected: make(chan *Device, MaxDevices),
	}
}

// Start starts the host controller.
func (h *Host) Start(ctx context.Context) error {
	h.mutex.Lock()
	if h.running {
		h.mutex.Unlock()
		return pkg.ErrAlreadyRunning
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	h.mutex.Unlock()

	if err := h.hal.Init(h.ctx); err != nil {
		return err
	}

	if err := h.hal.Start(); err != nil {
		return err
	}

	if err := h.transfers.Start(h.ctx); err != nil {
		return err
	}

	h.mutex.Lock()
	h.running = true
	h.mutex.Unlock()

	pkg.LogInfo(pkg.ComponentHost, "host started")

	// Start device monitoring
	go h.monitorDevices()

	return nil
}

// Stop stops the host controller.
func (h *Host) Stop() error {
	h.mutex.Lock()
	if !h.running {
		h.mutex.Unlock()
		return nil
	}

	h.running = false
	if h.cancel != nil {
		h.cancel()
	}

	// Close all devices
	for i := 0; i < MaxDevices; i++ {
		if h.devices[i] != nil {
			h.devices[i].Close()
			h.devices[i] = nil
		}
	}
	h.deviceCount = 0
	h.mutex.Unlock()

	if err := h.transfers.Stop(); err != nil {
		return err
	}

	if err := h.hal.Stop(); err != nil {
		return err
	}

	pkg.LogInfo(pkg.ComponentHost, "host stopped")
	return nil
}

// IsRunning returns true if the host is running.
func (h *Host) IsRunning() bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.running
}

// Transfers returns the host's transfer manager.
func (h *Host) Transfers() *TransferManager {
	return h.transfers
}

// WaitDevice blocks until a device connects and is enumerated.
func (h *Host) WaitDevice(ctx context.Context) (*Device, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, pkg.ErrCancelled
	case dev := <-h.deviceConnected:
		return dev, nil
	}
}

// SetOnDeviceDisconnect sets the callback for device disconnection.
func (h *Host) SetOnDeviceDisconnect(cb func(*Device)) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.onDeviceDisconnect = cb
}

// monitorDevices monitors for device connections and disconnections.
func (h *Host) monitorDevices() {
	for {
		select {
		case <-h.ctx.Done():
			return
		default:
		}

		// Wait for a device connection
		port, err := h.hal.WaitForConnection(h.ctx)
		if err != nil {
			if h.ctx.Err() != nil {
				return
			}
			pkg.LogWarn(pkg.ComponentHost, "error waiting for connection",
				"error", err)
			continue
		}

		pkg.LogInfo(pkg.ComponentHost, "device connected", "port", port)

		// Enumerate the device
		dev, err := h.enumerateDevice(port)
		if err != nil {
			pkg.LogWarn(pkg.ComponentHost, "enumeration failed",
				"port", port,
				"error", err)
			continue
		}

		// Add device to list
		h.mutex.Lock()
		if h.deviceCount < MaxDevices {
			h.devices[dev.address-1] = dev
			h.deviceCount++
			h.mutex.Unlock()

			// Notify
			select {
			case h.deviceConnected <- dev:
			default:
			}

			pkg.LogInfo(pkg.ComponentHost, "device enumerated",
				"address", dev.address,
				"vendor", dev.descriptor.VendorID,
				"product", dev.descriptor.ProductID)
		} else {
			h.mutex.Unlock()
			pkg.LogWarn(pkg.ComponentHost, "max devices reached")
		}

		// Wait for disconnection before accepting the next device
		h.monitorDisconnection(port, dev)
	}
}

// monitorDisconnection monitors for device disconnection.
func (h *Host) monitorDisconnection(port int, dev *Device) {
	// Wait for disconnection
	if _, err := h.hal.WaitForDisconnection(h.ctx); err != nil {
		return
	}

	pkg.LogInfo(pkg.ComponentHost, "device disconnected",
		"port", port,
		"address", dev.address)

	// Remove device from list
	h.mutex.Lock()
	if dev.address > 0 && dev.address <= MaxDevices && h.devices[dev.address-1] == dev {
		h.devices[dev.address-1] = nil
		h.deviceCount--
	}
	cb := h.onDeviceDisconnect
	h.mutex.Unlock()

	dev.Close()

	// Notify
	select {
	case h.deviceDisconnected <- dev:
	default:
	}

	if cb != nil {
		cb(dev)
	}
}

// allocateAddress allocates a new device address.
func (h *Host) allocateAddress() uint8 {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	// Find next available address
	for i := 0; i < MaxDevices; i++ {
		addr := h.nextAddress
		h.nextAddress++
		if h.nextAddress > MaxDevices {
			h.nextAddress = 1
		}

		if h.devices[addr-1] == nil {
			return addr
		}
	}
	return 0 // No address available
}

// ControlTransfer performs a control transfer to a device at address 0.
// This is used during enumeration before the device has an assigned address.
func (h *Host) ControlTransfer(ctx context.Context, setup *hal.SetupPacket, data []byte) (int, error) {
	return h.hal.ControlTransfer(ctx, hal.DeviceAddress(0), setup, data)
}
