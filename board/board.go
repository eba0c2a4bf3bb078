// Package board binds a generic SPI bus core to the chip-select, status and
// command/data wiring of one board.
//
// A Board is built once from an immutable Config. For every enabled bus it
// resolves a core.DevOps binding: hardware-managed or GPIO chip select, with
// or without sense lines, with or without a command/data selector. The bus
// core only ever sees the interface; board code may replace a default
// binding with Override.
package board

import (
	"reflect"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"spibind/core"
)

// Board is the binding layer for one board wiring
type Board struct {
	cfg  Config
	gpio core.GPIODriver

	mu       sync.RWMutex
	buses    map[core.SPIBusID]core.DevOps
	trackers map[core.SPIBusID]*tracker

	// soft drives the buses wired as bit-banged GPIOs
	soft *core.SoftwareSPIDriver

	initOnce sync.Once
	initErr  error
}

// New validates cfg and resolves a binding for every enabled bus. gpio is
// the pin primitive all bindings drive.
func New(cfg Config, gpio core.GPIODriver) (*Board, error) {
	if gpio == nil {
		return nil, errors.New("board: nil GPIO driver")
	}
	cfg = cfg.clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Board{
		cfg:      cfg,
		gpio:     gpio,
		buses:    make(map[core.SPIBusID]core.DevOps),
		trackers: make(map[core.SPIBusID]*tracker),
	}
	softPins := make(map[core.SPIBusID]core.SoftwareSPIPins)
	for _, bus := range cfg.Buses {
		if !bus.Enabled {
			continue
		}
		ops, track := resolve(bus, cfg.CmdData, gpio)
		b.buses[bus.ID] = ops
		b.trackers[bus.ID] = track

		if sp := bus.Soft; sp != nil {
			softPins[bus.ID] = core.SoftwareSPIPins{SCK: sp.SCK, MOSI: sp.MOSI, MISO: sp.MISO}
		}
	}
	if len(softPins) > 0 {
		b.soft = core.NewSoftwareSPIDriver(gpio, softPins)
	}
	return b, nil
}

// SPIDriver returns the transport for bus id: the board's bit-banged driver
// for buses wired with soft pins, hw for everything else
func (b *Board) SPIDriver(id core.SPIBusID, hw core.SPIDriver) core.SPIDriver {
	if bus, ok := b.cfg.Bus(id); ok && bus.Enabled && bus.Soft != nil {
		return b.soft
	}
	return hw
}

// Name returns the board name from the configuration
func (b *Board) Name() string {
	return b.cfg.Name
}

// Config returns a copy of the board configuration
func (b *Board) Config() Config {
	return b.cfg.clone()
}

// Buses returns the enabled bus ids in ascending order
func (b *Board) Buses() []core.SPIBusID {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]core.SPIBusID, 0, len(b.buses))
	for id := range b.buses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Bus returns the binding for bus id. Disabled or unknown buses have none.
func (b *Board) Bus(id core.SPIBusID) (core.DevOps, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ops, ok := b.buses[id]
	return ops, ok
}

// Override replaces the default binding of an enabled bus. Call it before
// handing the binding to a bus core. On a board built with the command/data
// feature the replacement must implement core.CmdDataSelector too.
func (b *Board) Override(id core.SPIBusID, ops core.DevOps) error {
	if isNil(ops) {
		return errors.Errorf("board: nil binding for %s", id)
	}
	if _, ok := ops.(core.CmdDataSelector); b.cfg.CmdData && !ok {
		return errors.Errorf("board: binding %T for %s has no cmd/data support", ops, id)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.buses[id]; !ok {
		return errors.Errorf("board: %s is not enabled", id)
	}
	b.buses[id] = ops
	delete(b.trackers, id)
	return nil
}

func isNil(ops core.DevOps) bool {
	if ops == nil {
		return true
	}
	v := reflect.ValueOf(ops)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Func, reflect.Chan, reflect.Interface, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// State returns the tracked selection state of dev on bus. Buses whose
// binding was overridden are not tracked and always report Idle.
func (b *Board) State(id core.SPIBusID, dev core.DeviceID) DeviceState {
	b.mu.RLock()
	track, ok := b.trackers[id]
	b.mu.RUnlock()

	if !ok {
		return DeviceState{Phase: Idle}
	}
	return track.state(dev)
}

// Initialize configures the select, command/data and sense lines of every
// enabled bus and leaves chip selects de-asserted. It runs once; later calls
// return the first result. A pin that fails does not stop the others.
func (b *Board) Initialize() error {
	b.initOnce.Do(func() {
		b.initErr = b.initialize()
	})
	return b.initErr
}

func (b *Board) initialize() error {
	var errs error
	for _, bus := range b.cfg.Buses {
		if !bus.Enabled {
			continue
		}
		core.DebugPrintln("Configure " + bus.ID.String() + " chip selects")

		if bus.Select == SelectGPIO {
			errs = multierr.Append(errs, b.initOutput(bus.ID, "bus", "cs", bus.CS))
		}
		for _, dev := range bus.Devices {
			if bus.Select == SelectGPIO {
				errs = multierr.Append(errs, b.initOutput(bus.ID, devName(dev.ID), "cs", dev.CS))
			}
			if b.cfg.CmdData {
				errs = multierr.Append(errs, b.initOutput(bus.ID, devName(dev.ID), "cmd/data", dev.CmdData))
			}
			errs = multierr.Append(errs, b.initInput(bus.ID, dev.ID, "card detect", dev.CardDetect))
			errs = multierr.Append(errs, b.initInput(bus.ID, dev.ID, "write protect", dev.WriteProtect))
		}
	}
	if errs != nil {
		core.DebugPrintln(b.cfg.Name + " SPI init: " + errs.Error())
	}
	return errs
}

func devName(dev core.DeviceID) string {
	return "devid " + core.Utoa(uint32(dev))
}

// initOutput configures l as an output that starts at its inactive level,
// so a chip select is never asserted on the way out of reset
func (b *Board) initOutput(bus core.SPIBusID, owner, role string, l *Line) error {
	if l == nil {
		return nil
	}
	if err := b.gpio.ConfigureOutput(l.Pin, l.level(false)); err != nil {
		return errors.Wrapf(err, "%s %s: configure %s pin %d", bus, owner, role, l.Pin)
	}
	return nil
}

// initInput configures a sense line, biased towards its inactive level
func (b *Board) initInput(bus core.SPIBusID, dev core.DeviceID, role string, l *Line) error {
	if l == nil {
		return nil
	}
	pull := core.PullUp
	if l.ActiveHigh {
		pull = core.PullDown
	}
	if err := b.gpio.ConfigureInput(l.Pin, pull); err != nil {
		return errors.Wrapf(err, "%s devid %d: configure %s pin %d", bus, dev, role, l.Pin)
	}
	return nil
}
