package sim

import (
	"errors"
	"sync"

	"spibind/core"
)

// Frame is one recorded transfer together with the levels of the watched
// lines at the moment it was clocked
type Frame struct {
	Bus   core.SPIBusID
	Tx    []byte
	Lines map[core.GPIOPin]bool
}

type spiHandle struct {
	config core.SPIConfig
}

// SPI is a loopback core.SPIDriver: every transfer echoes tx into rx and is
// recorded as a Frame
type SPI struct {
	mu     sync.Mutex
	bank   *Bank
	watch  []core.GPIOPin
	frames []Frame

	configured map[core.SPIBusID]core.SPIConfig
}

var _ core.SPIDriver = (*SPI)(nil)

// NewSPI creates a loopback driver that snapshots the watched pins of bank
// on every transfer
func NewSPI(bank *Bank, watch ...core.GPIOPin) *SPI {
	return &SPI{
		bank:       bank,
		watch:      watch,
		configured: make(map[core.SPIBusID]core.SPIConfig),
	}
}

// ConfigureBus implements core.SPIDriver
func (s *SPI) ConfigureBus(config core.SPIConfig) (interface{}, error) {
	if config.Mode > 3 {
		return nil, errors.New("invalid SPI mode")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.configured[config.BusID] = config
	return &spiHandle{config: config}, nil
}

// Transfer implements core.SPIDriver
func (s *SPI) Transfer(busHandle interface{}, txData []byte, rxData []byte) error {
	h, ok := busHandle.(*spiHandle)
	if !ok {
		return errors.New("invalid SPI bus handle")
	}
	if len(txData) != len(rxData) {
		return errors.New("tx and rx buffer lengths must match")
	}
	copy(rxData, txData)

	f := Frame{
		Bus:   h.config.BusID,
		Tx:    append([]byte(nil), txData...),
		Lines: make(map[core.GPIOPin]bool, len(s.watch)),
	}
	for _, pin := range s.watch {
		f.Lines[pin] = s.bank.Level(pin)
	}

	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
	return nil
}

// Frames returns a copy of the recorded transfers
func (s *SPI) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Config returns the last configuration applied to bus
func (s *SPI) Config(bus core.SPIBusID) (core.SPIConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.configured[bus]
	return c, ok
}
