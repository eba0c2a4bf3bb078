//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"

	"spibind/core"
)

// RP2040 and RP2350A expose GPIO0-GPIO29 on the package
const maxGPIO = 29

var errInvalidPin = errors.New("invalid GPIO pin")

// RPGPIODriver implements core.GPIODriver on the SIO GPIO block
type RPGPIODriver struct {
	modes map[core.GPIOPin]machine.PinMode
}

// NewRPGPIODriver creates a new RP2040 GPIO driver
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{
		modes: make(map[core.GPIOPin]machine.PinMode),
	}
}

func (d *RPGPIODriver) configure(pin core.GPIOPin, mode machine.PinMode) error {
	if pin > maxGPIO {
		return errInvalidPin
	}
	if m, ok := d.modes[pin]; ok && m == mode {
		return nil
	}
	machine.Pin(pin).Configure(machine.PinConfig{Mode: mode})
	d.modes[pin] = mode
	return nil
}

// ConfigureOutput implements core.GPIODriver. The SIO output latch is
// written before the pad is switched to output.
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin, initial bool) error {
	if pin > maxGPIO {
		return errInvalidPin
	}
	machine.Pin(pin).Set(initial)
	return d.configure(pin, machine.PinOutput)
}

// ConfigureInput implements core.GPIODriver
func (d *RPGPIODriver) ConfigureInput(pin core.GPIOPin, pull core.Pull) error {
	mode := machine.PinInput
	switch pull {
	case core.PullUp:
		mode = machine.PinInputPullup
	case core.PullDown:
		mode = machine.PinInputPulldown
	}
	return d.configure(pin, mode)
}

// SetPin implements core.GPIODriver. The pin must already be an output.
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	if m, ok := d.modes[pin]; !ok || m != machine.PinOutput {
		return errors.New("gpio" + core.Utoa(uint32(pin)) + " is not an output")
	}
	machine.Pin(pin).Set(value)
	return nil
}

// GetPin implements core.GPIODriver
func (d *RPGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	if pin > maxGPIO {
		return false, errInvalidPin
	}
	return machine.Pin(pin).Get(), nil
}
