package board

import "spibind/core"

// CmdDataError reports a rejected command/data transition. It matches
// core.ErrCmdDataRejected with errors.Is and unwraps to the GPIO failure,
// if there was one.
type CmdDataError struct {
	Bus core.SPIBusID
	Dev core.DeviceID
	Msg string
	Err error
}

func (e *CmdDataError) Error() string {
	s := core.ErrCmdDataRejected.Error() + ": " + e.Bus.String() + " devid " + core.Utoa(uint32(e.Dev))
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *CmdDataError) Unwrap() error { return e.Err }

func (e *CmdDataError) Is(target error) bool {
	return target == core.ErrCmdDataRejected
}

// cmdDataLines drives the auxiliary command/data GPIO of each device
type cmdDataLines struct {
	bus   core.SPIBusID
	gpio  core.GPIODriver
	lines map[core.DeviceID]Line
	known map[core.DeviceID]bool
}

func newCmdDataLines(bus BusConfig, gpio core.GPIODriver) *cmdDataLines {
	c := &cmdDataLines{
		bus:   bus.ID,
		gpio:  gpio,
		lines: make(map[core.DeviceID]Line),
		known: make(map[core.DeviceID]bool, len(bus.Devices)),
	}
	for _, dev := range bus.Devices {
		c.known[dev.ID] = true
		if dev.CmdData != nil {
			c.lines[dev.ID] = *dev.CmdData
		}
	}
	return c
}

// CmdData sets the line for dev to command (true) or data (false). Devices
// without a line are a successful no-op. An unknown device is rejected only
// when the bus wires command/data lines at all.
func (c *cmdDataLines) CmdData(dev core.DeviceID, cmd bool) error {
	line, ok := c.lines[dev]
	if !ok {
		if c.known[dev] || len(c.lines) == 0 {
			return nil
		}
		return &CmdDataError{Bus: c.bus, Dev: dev, Msg: "unknown device"}
	}
	if err := c.gpio.SetPin(line.Pin, line.level(cmd)); err != nil {
		return &CmdDataError{Bus: c.bus, Dev: dev, Err: err}
	}
	return nil
}
