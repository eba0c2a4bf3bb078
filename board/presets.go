package board

import "spibind/core"

// XMCPin encodes an XMC4 port/pin pair (P<port>.<pin>) as a GPIO number
func XMCPin(port, pin uint8) core.GPIOPin {
	return core.GPIOPin(uint32(port)<<4 | uint32(pin&0x0f))
}

// RelaxCS is the GPIO used as chip select on SPI4 of the XMC4800 Relax kit
var RelaxCS = XMCPin(0, 2)

// XMC4800Relax returns the wiring of the XMC4800 Relax EtherCAT kit.
// SPI0-SPI3 leave chip select to the USIC controller. SPI4 has a single
// select line, RelaxCS (active low), which is driven for whatever device id
// the caller selects. Only SPI4 is enabled; no sense or command/data lines
// are wired.
func XMC4800Relax() Config {
	hw := func(id core.SPIBusID) BusConfig {
		return BusConfig{ID: id, Select: SelectHardware}
	}
	return Config{
		Name: "xmc4800-relax",
		Buses: []BusConfig{
			hw(0), hw(1), hw(2), hw(3),
			{
				ID:      4,
				Enabled: true,
				Select:  SelectGPIO,
				CS:      &Line{Pin: RelaxCS},
			},
		},
	}
}

// Pico display carrier wiring. Hardware bus ids follow the RP2040 SPI bus
// table of the rp2040 target (2 = spi0 on GPIO16-19, 8 = spi1 on GPIO10-12).
// PicoSensorBus is bit-banged and sits outside that table.
const (
	PicoSDBus     core.SPIBusID = 2
	PicoLCDBus    core.SPIBusID = 8
	PicoSensorBus core.SPIBusID = 16

	PicoSD    core.DeviceID = 0
	PicoLCD   core.DeviceID = 0
	PicoFlash core.DeviceID = 1
	PicoTemp  core.DeviceID = 0

	PicoSDDetect core.GPIOPin = 22
	PicoLCDCS    core.GPIOPin = 9
	PicoLCDDC    core.GPIOPin = 8
	PicoFlashCS  core.GPIOPin = 13

	PicoSensorSCK  core.GPIOPin = 2
	PicoSensorMOSI core.GPIOPin = 3
	PicoSensorMISO core.GPIOPin = 4
	PicoTempCS     core.GPIOPin = 5
)

// PicoDisplay returns a Raspberry Pi Pico carrier with an SD slot on spi0
// (controller-driven CS, card-detect switch to ground), an LCD plus a SPI
// flash on spi1 (GPIO chip selects, LCD D/C line low for commands) and a
// thermocouple converter on a bit-banged bus.
func PicoDisplay() Config {
	return Config{
		Name:    "pico-display",
		CmdData: true,
		Buses: []BusConfig{
			{
				ID:      PicoSDBus,
				Enabled: true,
				Select:  SelectHardware,
				Devices: []DeviceConfig{
					{ID: PicoSD, Name: "sdcard", CardDetect: &Line{Pin: PicoSDDetect}},
				},
			},
			{
				ID:      PicoLCDBus,
				Enabled: true,
				Select:  SelectGPIO,
				Devices: []DeviceConfig{
					{ID: PicoLCD, Name: "lcd", CS: &Line{Pin: PicoLCDCS}, CmdData: &Line{Pin: PicoLCDDC}},
					{ID: PicoFlash, Name: "flash", CS: &Line{Pin: PicoFlashCS}},
				},
			},
			{
				ID:      PicoSensorBus,
				Enabled: true,
				Select:  SelectGPIO,
				Soft:    &SoftSPI{SCK: PicoSensorSCK, MOSI: PicoSensorMOSI, MISO: PicoSensorMISO},
				Devices: []DeviceConfig{
					{ID: PicoTemp, Name: "thermocouple", CS: &Line{Pin: PicoTempCS}},
				},
			},
		},
	}
}

// Preset returns a built-in board configuration by name
func Preset(name string) (Config, bool) {
	switch name {
	case "xmc4800-relax":
		return XMC4800Relax(), true
	case "pico-display":
		return PicoDisplay(), true
	}
	return Config{}, false
}
