package board

import "spibind/core"

// hardwareSelect is the binding for a bus whose controller drives its own
// chip-select pins. There is nothing to do beyond tracing the request.
type hardwareSelect struct {
	bus core.SPIBusID
}

func (s hardwareSelect) Select(dev core.DeviceID, selected bool) {
	core.DebugPrintln(selectMessage(s.bus, dev, selected))
}

// gpioSelect drives an ordinary GPIO per device as chip select. The GPIO
// need not be the controller's native chip-select pin for that device.
// Devices without a line of their own fall back to the bus line, if any.
type gpioSelect struct {
	bus      core.SPIBusID
	gpio     core.GPIODriver
	lines    map[core.DeviceID]Line
	fallback *Line
}

func newGPIOSelect(bus BusConfig, gpio core.GPIODriver) *gpioSelect {
	s := &gpioSelect{
		bus:   bus.ID,
		gpio:  gpio,
		lines: make(map[core.DeviceID]Line, len(bus.Devices)),
	}
	if bus.CS != nil {
		l := *bus.CS
		s.fallback = &l
	}
	for _, dev := range bus.Devices {
		if dev.CS != nil {
			s.lines[dev.ID] = *dev.CS
		}
	}
	return s
}

func (s *gpioSelect) Select(dev core.DeviceID, selected bool) {
	core.DebugPrintln(selectMessage(s.bus, dev, selected))

	line, ok := s.lines[dev]
	if !ok && s.fallback != nil {
		line, ok = *s.fallback, true
	}
	if !ok {
		core.DebugPrintln(s.bus.String() + " devid: " + core.Utoa(uint32(dev)) + " has no CS line")
		return
	}
	if err := s.gpio.SetPin(line.Pin, line.level(selected)); err != nil {
		core.DebugPrintln(s.bus.String() + " CS pin " + core.Utoa(uint32(line.Pin)) + ": " + err.Error())
	}
}

func selectMessage(bus core.SPIBusID, dev core.DeviceID, selected bool) string {
	action := "de-assert"
	if selected {
		action = "assert"
	}
	return bus.String() + " devid: " + core.Utoa(uint32(dev)) + " CS: " + action
}
