package board

import (
	"github.com/pkg/errors"

	"spibind/core"
)

// SelectMode picks who drives a bus's chip-select lines
type SelectMode string

const (
	// SelectHardware leaves chip select to the SPI controller; Select only logs
	SelectHardware SelectMode = "hardware"
	// SelectGPIO drives a per-device GPIO as chip select
	SelectGPIO SelectMode = "gpio"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid board config")

// Line is one GPIO wired to a device. Active means: selected for a chip
// select, command mode for a command/data line, condition present for a
// sense line. Lines are active low unless ActiveHigh is set.
type Line struct {
	Pin        core.GPIOPin `json:"pin"`
	ActiveHigh bool         `json:"active_high,omitempty"`
}

// level returns the pin level that represents active (or inactive)
func (l Line) level(active bool) bool {
	return active == l.ActiveHigh
}

// DeviceConfig wires one logical device
type DeviceConfig struct {
	ID   core.DeviceID `json:"id"`
	Name string        `json:"name,omitempty"`

	CS           *Line `json:"cs,omitempty"`            // software-managed buses only
	CmdData      *Line `json:"cmd_data,omitempty"`      // used when Config.CmdData is set
	CardDetect   *Line `json:"card_detect,omitempty"`   // reports StatusPresent
	WriteProtect *Line `json:"write_protect,omitempty"` // reports StatusWriteProtected
}

func (d DeviceConfig) hasSense() bool {
	return d.CardDetect != nil || d.WriteProtect != nil
}

// SoftSPI names the clock and data pins of a bus that is bit-banged on
// GPIOs instead of running on an SPI controller
type SoftSPI struct {
	SCK  core.GPIOPin `json:"sck"`
	MOSI core.GPIOPin `json:"mosi"`
	MISO core.GPIOPin `json:"miso"`
}

// BusConfig describes one SPI controller on the board
type BusConfig struct {
	ID      core.SPIBusID `json:"id"`
	Enabled bool          `json:"enabled"`
	Select  SelectMode    `json:"select,omitempty"`

	// CS selects any device without a CS line of its own. Boards that hang
	// a single select line off a bus use it regardless of device id.
	CS *Line `json:"cs,omitempty"`

	Soft    *SoftSPI       `json:"soft,omitempty"`
	Devices []DeviceConfig `json:"devices,omitempty"`
}

// Config is the complete wiring of a board. It is copied by New and never
// changed afterwards.
type Config struct {
	Name string `json:"name"`

	// CmdData enables the command/data selector on every enabled bus
	CmdData bool `json:"cmd_data"`

	Buses []BusConfig `json:"buses"`
}

// Bus returns the configuration of bus id
func (c *Config) Bus(id core.SPIBusID) (*BusConfig, bool) {
	for i := range c.Buses {
		if c.Buses[i].ID == id {
			return &c.Buses[i], true
		}
	}
	return nil, false
}

// clone deep-copies c so callers cannot reach into a built Board
func (c Config) clone() Config {
	out := c
	out.Buses = make([]BusConfig, len(c.Buses))
	for i, bus := range c.Buses {
		bus.CS = cloneLine(bus.CS)
		if bus.Soft != nil {
			soft := *bus.Soft
			bus.Soft = &soft
		}
		bus.Devices = make([]DeviceConfig, len(c.Buses[i].Devices))
		for j, dev := range c.Buses[i].Devices {
			dev.CS = cloneLine(dev.CS)
			dev.CmdData = cloneLine(dev.CmdData)
			dev.CardDetect = cloneLine(dev.CardDetect)
			dev.WriteProtect = cloneLine(dev.WriteProtect)
			bus.Devices[j] = dev
		}
		out.Buses[i] = bus
	}
	return out
}

func cloneLine(l *Line) *Line {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

type pinUse struct {
	output bool
	role   string
	owner  string
}

// Validate checks the wiring for defects that would otherwise only show up
// as wrong pin levels on the board
func (c *Config) Validate() error {
	seenBus := make(map[core.SPIBusID]bool)
	pins := make(map[core.GPIOPin]pinUse)

	// A pin may be shared by several devices in the same role (one select
	// line for two devices), never by two roles
	claim := func(pin core.GPIOPin, output bool, role, owner string) error {
		prev, ok := pins[pin]
		if !ok {
			pins[pin] = pinUse{output: output, role: role, owner: owner}
			return nil
		}
		if prev.output != output || prev.role != role {
			return errors.Wrapf(ErrInvalidConfig, "pin %d used as %s and %s", pin, prev.owner, owner)
		}
		return nil
	}
	claimLine := func(l *Line, output bool, role, owner string) error {
		if l == nil {
			return nil
		}
		return claim(l.Pin, output, role, owner)
	}

	for _, bus := range c.Buses {
		if seenBus[bus.ID] {
			return errors.Wrapf(ErrInvalidConfig, "duplicate bus %s", bus.ID)
		}
		seenBus[bus.ID] = true

		if bus.Select != SelectHardware && bus.Select != SelectGPIO {
			return errors.Wrapf(ErrInvalidConfig, "%s: unknown select mode %q", bus.ID, bus.Select)
		}

		if bus.Select == SelectHardware && bus.CS != nil {
			return errors.Wrapf(ErrInvalidConfig, "%s: cs line on hardware-managed bus", bus.ID)
		}
		if bus.Select == SelectHardware && bus.Soft != nil {
			// No controller to drive chip select on a bit-banged bus
			return errors.Wrapf(ErrInvalidConfig, "%s: bit-banged bus needs gpio select", bus.ID)
		}
		if bus.Enabled {
			if err := claimLine(bus.CS, true, "cs", bus.ID.String()+" cs"); err != nil {
				return err
			}
			if sp := bus.Soft; sp != nil {
				for _, u := range []struct {
					pin    core.GPIOPin
					output bool
					role   string
				}{
					{sp.SCK, true, "sck"},
					{sp.MOSI, true, "mosi"},
					{sp.MISO, false, "miso"},
				} {
					if err := claim(u.pin, u.output, u.role, bus.ID.String()+" "+u.role); err != nil {
						return err
					}
				}
			}
		}

		seenDev := make(map[core.DeviceID]bool)
		for _, dev := range bus.Devices {
			if seenDev[dev.ID] {
				return errors.Wrapf(ErrInvalidConfig, "%s: duplicate devid %d", bus.ID, dev.ID)
			}
			seenDev[dev.ID] = true

			switch {
			case bus.Select == SelectGPIO && dev.CS == nil && bus.CS == nil:
				return errors.Wrapf(ErrInvalidConfig, "%s devid %d: gpio select needs a cs line", bus.ID, dev.ID)
			case bus.Select == SelectHardware && dev.CS != nil:
				return errors.Wrapf(ErrInvalidConfig, "%s devid %d: cs line on hardware-managed bus", bus.ID, dev.ID)
			}

			if !bus.Enabled {
				continue
			}
			for _, u := range []struct {
				line   *Line
				output bool
				role   string
			}{
				{dev.CS, true, "cs"},
				{dev.CmdData, true, "cmd/data"},
				{dev.CardDetect, false, "card detect"},
				{dev.WriteProtect, false, "write protect"},
			} {
				if err := claimLine(u.line, u.output, u.role, bus.ID.String()+" devid "+core.Utoa(uint32(dev.ID))+" "+u.role); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
