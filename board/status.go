package board

import "spibind/core"

// noSense is the status binding for buses without sense hardware
type noSense struct{}

func (noSense) Status(core.DeviceID) core.Status {
	return 0
}

type senseLines struct {
	present *Line
	wp      *Line
}

// gpioSense reads card-detect and write-protect lines
type gpioSense struct {
	gpio  core.GPIODriver
	lines map[core.DeviceID]senseLines
}

func newGPIOSense(bus BusConfig, gpio core.GPIODriver) *gpioSense {
	s := &gpioSense{
		gpio:  gpio,
		lines: make(map[core.DeviceID]senseLines),
	}
	for _, dev := range bus.Devices {
		if dev.hasSense() {
			s.lines[dev.ID] = senseLines{present: dev.CardDetect, wp: dev.WriteProtect}
		}
	}
	return s
}

func (s *gpioSense) Status(dev core.DeviceID) core.Status {
	lines, ok := s.lines[dev]
	if !ok {
		return 0
	}

	var status core.Status
	if s.active(lines.present) {
		status |= core.StatusPresent
	}
	if s.active(lines.wp) {
		status |= core.StatusWriteProtected
	}
	return status
}

// active reports whether l reads at its active level. Unreadable lines
// count as inactive.
func (s *gpioSense) active(l *Line) bool {
	if l == nil {
		return false
	}
	level, err := s.gpio.GetPin(l.Pin)
	if err != nil {
		return false
	}
	return level == l.level(true)
}

func hasSense(bus BusConfig) bool {
	for _, dev := range bus.Devices {
		if dev.hasSense() {
			return true
		}
	}
	return false
}
