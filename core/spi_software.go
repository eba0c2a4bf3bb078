package core

import (
	"errors"
	"sync"
	"time"
)

// SoftwareSPIPins are the GPIOs a bit-banged bus clocks through
type SoftwareSPIPins struct {
	SCK  GPIOPin
	MOSI GPIOPin
	MISO GPIOPin
}

// SoftwareSPIDriver implements SPIDriver by bit-banging a GPIODriver.
// Chip select stays with the board binding like on any other bus.
type SoftwareSPIDriver struct {
	mu   sync.Mutex
	gpio GPIODriver
	pins map[SPIBusID]SoftwareSPIPins
}

// softwareSPIInstance holds the configuration of one software bus
type softwareSPIInstance struct {
	pins SoftwareSPIPins

	// Delay between clock transitions
	halfPeriod time.Duration

	cpol bool // Clock polarity: false = idle low, true = idle high
	cpha bool // Clock phase: false = sample on first edge, true = sample on second edge
	sck  bool // Current clock level
}

var (
	errSoftwareBus    = errors.New("spi: no software pins for bus")
	errSoftwareHandle = errors.New("spi: invalid software SPI handle")
)

// NewSoftwareSPIDriver creates a driver for the given bus pin assignments
func NewSoftwareSPIDriver(gpio GPIODriver, pins map[SPIBusID]SoftwareSPIPins) *SoftwareSPIDriver {
	p := make(map[SPIBusID]SoftwareSPIPins, len(pins))
	for id, sp := range pins {
		p[id] = sp
	}
	return &SoftwareSPIDriver{gpio: gpio, pins: p}
}

// ConfigureBus implements SPIDriver
func (d *SoftwareSPIDriver) ConfigureBus(config SPIConfig) (interface{}, error) {
	pins, ok := d.pins[config.BusID]
	if !ok {
		return nil, errSoftwareBus
	}
	if config.Mode > 3 {
		return nil, errors.New("spi: invalid SPI mode")
	}

	inst := &softwareSPIInstance{
		pins: pins,
		cpol: config.Mode&2 != 0,
		cpha: config.Mode&1 != 0,
	}
	// Two clock transitions per bit
	if config.Rate > 0 {
		inst.halfPeriod = time.Duration(500000000/config.Rate) * time.Nanosecond
	} else {
		// Default to 100kHz
		inst.halfPeriod = 5 * time.Microsecond
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, step := range []func() error{
		func() error { return d.gpio.ConfigureOutput(pins.SCK, inst.cpol) },
		func() error { return d.gpio.ConfigureOutput(pins.MOSI, false) },
		func() error { return d.gpio.ConfigureInput(pins.MISO, PullNone) },
	} {
		if err := step(); err != nil {
			return nil, err
		}
	}
	inst.sck = inst.cpol

	DebugPrintln("Software SPI " + config.BusID.String() + " configured")
	return inst, nil
}

// Transfer implements SPIDriver, MSB first
func (d *SoftwareSPIDriver) Transfer(busHandle interface{}, txData []byte, rxData []byte) error {
	inst, ok := busHandle.(*softwareSPIInstance)
	if !ok {
		return errSoftwareHandle
	}
	if len(txData) != len(rxData) {
		return errBufferLength
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range txData {
		b, err := d.transferByte(inst, txData[i])
		if err != nil {
			return err
		}
		rxData[i] = b
	}
	return nil
}

func (d *SoftwareSPIDriver) transferByte(inst *softwareSPIInstance, tx byte) (byte, error) {
	var rx byte
	for bit := 7; bit >= 0; bit-- {
		if err := d.gpio.SetPin(inst.pins.MOSI, tx&(1<<bit) != 0); err != nil {
			return 0, err
		}

		// CPHA=0: data is valid before the first edge
		if !inst.cpha {
			if err := d.sample(inst, &rx, bit); err != nil {
				return 0, err
			}
		}

		if err := d.toggleClock(inst); err != nil {
			return 0, err
		}
		time.Sleep(inst.halfPeriod)

		if inst.cpha {
			if err := d.sample(inst, &rx, bit); err != nil {
				return 0, err
			}
		}

		// Back to idle
		if err := d.toggleClock(inst); err != nil {
			return 0, err
		}
		time.Sleep(inst.halfPeriod)
	}
	return rx, nil
}

func (d *SoftwareSPIDriver) sample(inst *softwareSPIInstance, rx *byte, bit int) error {
	v, err := d.gpio.GetPin(inst.pins.MISO)
	if err != nil {
		return err
	}
	if v {
		*rx |= 1 << bit
	}
	return nil
}

func (d *SoftwareSPIDriver) toggleClock(inst *softwareSPIInstance) error {
	inst.sck = !inst.sck
	return d.gpio.SetPin(inst.pins.SCK, inst.sck)
}
