// Package hostgpio implements core.GPIODriver on Linux hosts through periph,
// so a board binding can drive real chip-select and sense lines from a
// single-board computer.
package hostgpio

import (
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"spibind/core"
)

// Lookup resolves a pin name to a periph pin, or nil if there is none
type Lookup func(name string) gpio.PinIO

// Driver maps GPIO numbers to periph pins by their global number
type Driver struct {
	lookup Lookup

	mu   sync.Mutex
	pins map[core.GPIOPin]gpio.PinIO
}

var _ core.GPIODriver = (*Driver)(nil)

// New creates a driver resolving pins through lookup
func New(lookup Lookup) *Driver {
	return &Driver{
		lookup: lookup,
		pins:   make(map[core.GPIOPin]gpio.PinIO),
	}
}

// Open initializes the periph host drivers and returns a driver backed by
// the global pin registry
func Open() (*Driver, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host init")
	}
	return New(gpioreg.ByName), nil
}

func (d *Driver) pin(n core.GPIOPin) (gpio.PinIO, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pins[n]; ok {
		return p, nil
	}
	name := strconv.FormatUint(uint64(n), 10)
	p := d.lookup(name)
	if p == nil {
		return nil, errors.Errorf("no global pin found for %q", name)
	}
	d.pins[n] = p
	return p, nil
}

// ConfigureOutput implements core.GPIODriver. periph switches direction and
// level in one call, so the pin comes up at initial.
func (d *Driver) ConfigureOutput(n core.GPIOPin, initial bool) error {
	p, err := d.pin(n)
	if err != nil {
		return err
	}
	return errors.Wrapf(p.Out(level(initial)), "configure %s as output", p)
}

// ConfigureInput implements core.GPIODriver
func (d *Driver) ConfigureInput(n core.GPIOPin, pull core.Pull) error {
	p, err := d.pin(n)
	if err != nil {
		return err
	}
	return errors.Wrapf(p.In(periphPull(pull), gpio.NoEdge), "configure %s as input", p)
}

// SetPin implements core.GPIODriver
func (d *Driver) SetPin(n core.GPIOPin, value bool) error {
	p, err := d.pin(n)
	if err != nil {
		return err
	}
	return errors.Wrapf(p.Out(level(value)), "set %s", p)
}

// GetPin implements core.GPIODriver
func (d *Driver) GetPin(n core.GPIOPin) (bool, error) {
	p, err := d.pin(n)
	if err != nil {
		return false, err
	}
	return p.Read() == gpio.High, nil
}

func level(high bool) gpio.Level {
	if high {
		return gpio.High
	}
	return gpio.Low
}

func periphPull(pull core.Pull) gpio.Pull {
	switch pull {
	case core.PullUp:
		return gpio.PullUp
	case core.PullDown:
		return gpio.PullDown
	}
	return gpio.Float
}
