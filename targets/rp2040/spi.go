//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"
	"sync"

	"spibind/core"
)

// noCS marks a bus without a controller-driven chip-select pin
const noCS = machine.NoPin

// RP2040/RP2350 SPI bus table. Bus ids follow Klipper's RP2040 numbering;
// cs is the pin the controller drives itself when a board leaves chip
// select to hardware.
type spiBusConfig struct {
	spi  *machine.SPI
	sck  machine.Pin
	mosi machine.Pin
	miso machine.Pin
	cs   machine.Pin
}

var rp2040SPIBuses = map[core.SPIBusID]spiBusConfig{
	// SPI0
	0: {spi: machine.SPI0, sck: machine.GPIO2, mosi: machine.GPIO3, miso: machine.GPIO0, cs: machine.GPIO1},
	1: {spi: machine.SPI0, sck: machine.GPIO6, mosi: machine.GPIO7, miso: machine.GPIO4, cs: machine.GPIO5},
	2: {spi: machine.SPI0, sck: machine.GPIO18, mosi: machine.GPIO19, miso: machine.GPIO16, cs: machine.GPIO17},
	3: {spi: machine.SPI0, sck: machine.GPIO22, mosi: machine.GPIO23, miso: machine.GPIO20, cs: machine.GPIO21},
	4: {spi: machine.SPI0, sck: machine.GPIO2, mosi: machine.GPIO3, miso: machine.GPIO4, cs: noCS},

	// SPI1
	5: {spi: machine.SPI1, sck: machine.GPIO10, mosi: machine.GPIO11, miso: machine.GPIO8, cs: machine.GPIO9},
	6: {spi: machine.SPI1, sck: machine.GPIO14, mosi: machine.GPIO15, miso: machine.GPIO12, cs: machine.GPIO13},
	7: {spi: machine.SPI1, sck: machine.GPIO26, mosi: machine.GPIO27, miso: machine.GPIO24, cs: machine.GPIO25},
	8: {spi: machine.SPI1, sck: machine.GPIO10, mosi: machine.GPIO11, miso: machine.GPIO12, cs: noCS},
}

var (
	errInvalidBus    = errors.New("invalid SPI bus ID")
	errInvalidMode   = errors.New("invalid SPI mode")
	errInvalidHandle = errors.New("invalid SPI bus handle")
	errBufferLength  = errors.New("tx and rx buffer lengths must match")
)

// RP2040SPIDriver implements core.SPIDriver using TinyGo's machine.SPI
type RP2040SPIDriver struct {
	mu sync.Mutex

	// Two bus ids can share one controller on different pins; owner records
	// which one last configured it
	owner map[*machine.SPI]*spiInstance

	// hwCS lists buses whose chip select the controller drives
	hwCS map[core.SPIBusID]bool
}

type spiInstance struct {
	busID  core.SPIBusID
	mode   core.SPIMode
	rate   uint32
	config spiBusConfig
}

// NewRP2040SPIDriver creates a new RP2040 SPI driver. hwCS names the buses
// whose hardware chip-select pin should be handed to the controller.
func NewRP2040SPIDriver(hwCS ...core.SPIBusID) *RP2040SPIDriver {
	d := &RP2040SPIDriver{
		owner: make(map[*machine.SPI]*spiInstance),
		hwCS:  make(map[core.SPIBusID]bool, len(hwCS)),
	}
	for _, id := range hwCS {
		d.hwCS[id] = true
	}
	return d
}

// ConfigureBus implements core.SPIDriver
func (d *RP2040SPIDriver) ConfigureBus(config core.SPIConfig) (interface{}, error) {
	busConfig, ok := rp2040SPIBuses[config.BusID]
	if !ok {
		return nil, errInvalidBus
	}
	if config.Mode > 3 {
		return nil, errInvalidMode
	}

	inst := &spiInstance{
		busID:  config.BusID,
		mode:   config.Mode,
		rate:   config.Rate,
		config: busConfig,
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.apply(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// apply programs the controller for inst unless it is already set up that way
func (d *RP2040SPIDriver) apply(inst *spiInstance) error {
	cur := d.owner[inst.config.spi]
	if cur != nil && cur.busID == inst.busID && cur.mode == inst.mode && cur.rate == inst.rate {
		return nil
	}

	err := inst.config.spi.Configure(machine.SPIConfig{
		Frequency: inst.rate,
		SCK:       inst.config.sck,
		SDO:       inst.config.mosi,
		SDI:       inst.config.miso,
		Mode:      uint8(inst.mode),
	})
	if err != nil {
		return err
	}
	if d.hwCS[inst.busID] && inst.config.cs != noCS {
		inst.config.cs.Configure(machine.PinConfig{Mode: machine.PinSPI})
	}
	d.owner[inst.config.spi] = inst

	core.DebugPrintln("SPI " + inst.busID.String() + " configured at " + core.Utoa(inst.rate) + " Hz")
	return nil
}

// Transfer implements core.SPIDriver
func (d *RP2040SPIDriver) Transfer(busHandle interface{}, txData []byte, rxData []byte) error {
	inst, ok := busHandle.(*spiInstance)
	if !ok {
		return errInvalidHandle
	}
	if len(txData) != len(rxData) {
		return errBufferLength
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Another bus id may have moved the controller to its own pins
	if err := d.apply(inst); err != nil {
		return err
	}
	return inst.config.spi.Tx(txData, rxData)
}
