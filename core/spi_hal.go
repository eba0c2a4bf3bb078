package core

import "errors"

// SPIBusID identifies a hardware SPI controller unit
type SPIBusID uint8

// SPIMode represents SPI clock polarity and phase (0-3)
// Mode 0: CPOL=0, CPHA=0 (clock idle low, sample on rising edge)
// Mode 1: CPOL=0, CPHA=1 (clock idle low, sample on falling edge)
// Mode 2: CPOL=1, CPHA=0 (clock idle high, sample on falling edge)
// Mode 3: CPOL=1, CPHA=1 (clock idle high, sample on rising edge)
type SPIMode uint8

// SPIConfig holds the configuration for an SPI bus
type SPIConfig struct {
	BusID SPIBusID // Hardware bus identifier
	Mode  SPIMode  // SPI mode (0-3)
	Rate  uint32   // Clock rate in Hz
}

// SPIDriver moves bytes on a bus. Clocking, framing and DMA live behind it;
// chip select does not.
type SPIDriver interface {
	// ConfigureBus sets up a hardware SPI bus with specified parameters
	// Returns an opaque bus handle and any error
	ConfigureBus(config SPIConfig) (interface{}, error)

	// Transfer performs a bidirectional SPI transfer
	// txData and rxData must have the same length
	Transfer(busHandle interface{}, txData []byte, rxData []byte) error
}

// DeviceID names a peripheral within one bus. Its meaning belongs to the
// device logic above the bus; bindings only map it to wiring.
type DeviceID uint32

// Status is the bit-encoded condition of a device as reported by a binding
type Status uint8

// Status bits
const (
	StatusPresent        Status = 1 << 0 // Media present
	StatusWriteProtected Status = 1 << 1 // Media is write protected
)

// Has reports whether all bits in mask are set
func (s Status) Has(mask Status) bool {
	return s&mask == mask
}

// Selector asserts or releases the chip select of one device on its bus.
type Selector interface {
	Select(dev DeviceID, selected bool)
}

// StatusReporter reports the sensed status of a device. It must not have
// side effects and must answer for any device id.
type StatusReporter interface {
	Status(dev DeviceID) Status
}

// CmdDataSelector drives the auxiliary command/data line of a device.
// Only bindings built with the command/data feature implement it.
type CmdDataSelector interface {
	CmdData(dev DeviceID, cmd bool) error
}

// DevOps is the per-bus binding the bus core dispatches to.
type DevOps interface {
	Selector
	StatusReporter
}

var (
	// ErrCmdDataRejected is returned when the command/data line could not be
	// driven. The line level must be assumed unchanged.
	ErrCmdDataRejected = errors.New("spi: cmd/data line write rejected")

	// ErrCmdDataUnsupported is returned by the bus core when its binding was
	// built without command/data support.
	ErrCmdDataUnsupported = errors.New("spi: cmd/data not supported on this bus")

	errBufferLength = errors.New("spi: tx and rx buffer lengths must match")
)
