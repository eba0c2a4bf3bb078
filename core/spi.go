// SPI bus core
// Drives transfers on one controller and dispatches chip select, status and
// command/data requests to the board binding for that controller
package core

import (
	"sync"

	"tinygo.org/x/drivers"
)

// Bus is the generic side of one SPI controller. It knows nothing about
// board wiring; every pin-level decision goes through its DevOps binding.
type Bus struct {
	mu sync.Mutex // held across select -> transfer -> de-select

	id     SPIBusID
	driver SPIDriver
	ops    DevOps
	handle interface{} // Opaque handle from ConfigureBus
}

// NewBus creates a bus core for controller id using driver for transfers
// and ops for device selection
func NewBus(id SPIBusID, driver SPIDriver, ops DevOps) *Bus {
	return &Bus{
		id:     id,
		driver: driver,
		ops:    ops,
	}
}

// ID returns the controller this bus drives
func (b *Bus) ID() SPIBusID {
	return b.id
}

// Configure sets mode and clock rate on the underlying controller
func (b *Bus) Configure(mode SPIMode, rate uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	handle, err := b.driver.ConfigureBus(SPIConfig{
		BusID: b.id,
		Mode:  mode,
		Rate:  rate,
	})
	if err != nil {
		return err
	}
	b.handle = handle
	return nil
}

// Lock claims the bus for a multi-step sequence. Callers using Select,
// CmdData and Exchange directly must hold it from select to de-select.
func (b *Bus) Lock() {
	b.mu.Lock()
}

// Unlock releases the bus
func (b *Bus) Unlock() {
	b.mu.Unlock()
}

// Select asserts or releases chip select for dev
func (b *Bus) Select(dev DeviceID, selected bool) {
	b.ops.Select(dev, selected)
}

// Status queries the binding for the sensed status of dev
func (b *Bus) Status(dev DeviceID) Status {
	return b.ops.Status(dev)
}

// CmdData switches dev between command (true) and data (false) mode.
// Returns ErrCmdDataUnsupported when the binding has no command/data support.
func (b *Bus) CmdData(dev DeviceID, cmd bool) error {
	cd, ok := b.ops.(CmdDataSelector)
	if !ok {
		return ErrCmdDataUnsupported
	}
	return cd.CmdData(dev, cmd)
}

// Exchange performs a raw transfer with whatever device is currently
// selected. Either buffer may be nil.
func (b *Bus) Exchange(tx, rx []byte) error {
	switch {
	case len(tx) == 0 && len(rx) == 0:
		return nil
	case rx == nil:
		rx = make([]byte, len(tx))
	case tx == nil:
		tx = make([]byte, len(rx))
	}
	if len(tx) != len(rx) {
		return errBufferLength
	}
	return b.driver.Transfer(b.handle, tx, rx)
}

// Device returns a handle that performs whole transactions for dev
func (b *Bus) Device(dev DeviceID) *Device {
	return &Device{bus: b, id: dev}
}

// Device is one peripheral on a Bus. Every call is a complete transaction:
// lock, select, transfer, de-select, unlock.
type Device struct {
	bus *Bus
	id  DeviceID
}

var _ drivers.SPI = (*Device)(nil)

// ID returns the logical device id
func (d *Device) ID() DeviceID {
	return d.id
}

// Status returns the sensed status of the device
func (d *Device) Status() Status {
	return d.bus.Status(d.id)
}

// Tx implements drivers.SPI
func (d *Device) Tx(w, r []byte) error {
	return d.transaction(func() error {
		return d.bus.Exchange(w, r)
	})
}

// Transfer implements drivers.SPI
func (d *Device) Transfer(b byte) (byte, error) {
	tx := [1]byte{b}
	var rx [1]byte
	err := d.Tx(tx[:], rx[:])
	return rx[0], err
}

// WriteCommand sends cmd with the command/data line in command mode
func (d *Device) WriteCommand(cmd []byte) error {
	return d.transaction(func() error {
		return d.send(true, cmd)
	})
}

// WriteData sends data with the command/data line in data mode
func (d *Device) WriteData(data []byte) error {
	return d.transaction(func() error {
		return d.send(false, data)
	})
}

// WriteCommandData sends cmd then data under a single chip select,
// switching the command/data line in between
func (d *Device) WriteCommandData(cmd, data []byte) error {
	return d.transaction(func() error {
		if err := d.send(true, cmd); err != nil {
			return err
		}
		if len(data) == 0 {
			return nil
		}
		return d.send(false, data)
	})
}

func (d *Device) send(cmd bool, p []byte) error {
	if err := d.bus.CmdData(d.id, cmd); err != nil {
		// Nothing is clocked out if the mode line did not move
		return err
	}
	return d.bus.Exchange(p, nil)
}

func (d *Device) transaction(fn func() error) error {
	d.bus.Lock()
	defer d.bus.Unlock()

	d.bus.Select(d.id, true)
	err := fn()
	d.bus.Select(d.id, false)
	return err
}
