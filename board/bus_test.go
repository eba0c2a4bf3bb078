package board

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"spibind/core"
	"spibind/sim"
)

// Drive a whole LCD transaction through the bus core and check the wire
// levels the loopback controller saw for every frame.
func TestBusCoreDrivesDisplayLines(t *testing.T) {
	b, bank := newBoard(t, PicoDisplay())
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	spi := sim.NewSPI(bank, PicoLCDCS, PicoLCDDC, PicoFlashCS)
	bus := core.NewBus(PicoLCDBus, spi, mustBus(t, b, PicoLCDBus))
	if err := bus.Configure(0, 62500000); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	lcd := bus.Device(PicoLCD)
	if err := lcd.WriteCommandData([]byte{0x2a}, []byte{0x00, 0xef}); err != nil {
		t.Fatalf("WriteCommandData failed: %v", err)
	}
	flash := bus.Device(PicoFlash)
	if _, err := flash.Transfer(0x9f); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	lines := func(lcdCS, dc, flashCS bool) map[core.GPIOPin]bool {
		return map[core.GPIOPin]bool{PicoLCDCS: lcdCS, PicoLCDDC: dc, PicoFlashCS: flashCS}
	}
	want := []sim.Frame{
		{Bus: PicoLCDBus, Tx: []byte{0x2a}, Lines: lines(false, false, true)},
		{Bus: PicoLCDBus, Tx: []byte{0x00, 0xef}, Lines: lines(false, true, true)},
		{Bus: PicoLCDBus, Tx: []byte{0x9f}, Lines: lines(true, true, false)},
	}
	if diff := cmp.Diff(want, spi.Frames()); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}

	if !bank.Level(PicoLCDCS) || !bank.Level(PicoFlashCS) {
		t.Error("Expected both chip selects released after the transactions")
	}
	if st := b.State(PicoLCDBus, PicoLCD); st.Phase != Idle {
		t.Errorf("Expected lcd idle, got %+v", st)
	}
}

func TestBusCoreHardwareSelectBus(t *testing.T) {
	b, bank := newBoard(t, PicoDisplay())
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	bank.ClearEvents()

	spi := sim.NewSPI(bank)
	bus := core.NewBus(PicoSDBus, spi, mustBus(t, b, PicoSDBus))
	if err := bus.Configure(0, 400000); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	bank.Drive(PicoSDDetect, false)
	sd := bus.Device(PicoSD)
	if !sd.Status().Has(core.StatusPresent) {
		t.Error("Expected card present with detect switch closed")
	}
	if err := sd.Tx([]byte{0x40, 0, 0, 0, 0, 0x95}, nil); err != nil {
		t.Fatalf("Tx failed: %v", err)
	}
	// No cmd/data line on the card; the command byte is clocked regardless
	if err := sd.WriteCommand([]byte{0xff}); err != nil {
		t.Fatalf("WriteCommand failed: %v", err)
	}

	if len(spi.Frames()) != 2 {
		t.Errorf("Expected 2 frames, got %d", len(spi.Frames()))
	}
	if ev := bank.Events(); len(ev) != 0 {
		t.Errorf("Controller-driven select must not touch GPIOs, got %v", ev)
	}
}

// The thermocouple bus is bit-banged on the same bank its chip select lives on
func TestBusCoreSoftSensorBus(t *testing.T) {
	b, bank := newBoard(t, PicoDisplay())
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	hw := sim.NewSPI(bank)
	bus := core.NewBus(PicoSensorBus, b.SPIDriver(PicoSensorBus, hw), mustBus(t, b, PicoSensorBus))
	if err := bus.Configure(1, 5000000); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	bank.ClearEvents()

	// Open thermocouple: the converter holds its output high
	bank.Drive(PicoSensorMISO, true)
	rx := make([]byte, 2)
	if err := bus.Device(PicoTemp).Tx([]byte{0, 0}, rx); err != nil {
		t.Fatalf("Tx failed: %v", err)
	}
	if diff := cmp.Diff([]byte{0xff, 0xff}, rx); diff != "" {
		t.Errorf("rx mismatch (-want +got):\n%s", diff)
	}

	ev := bank.Events()
	if len(ev) < 2 {
		t.Fatalf("Expected a framed transfer, got %v", ev)
	}
	if diff := cmp.Diff(sim.Event{Pin: PicoTempCS, Op: sim.OpSet, Level: false}, ev[0]); diff != "" {
		t.Errorf("first event (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(sim.Event{Pin: PicoTempCS, Op: sim.OpSet, Level: true}, ev[len(ev)-1]); diff != "" {
		t.Errorf("last event (-want +got):\n%s", diff)
	}
	clocks := 0
	for _, e := range ev {
		if e.Pin == PicoSensorSCK {
			clocks++
		}
	}
	if clocks != 2*8*len(rx) {
		t.Errorf("Expected %d clock edges, got %d", 2*8*len(rx), clocks)
	}
	if len(hw.Frames()) != 0 {
		t.Error("Expected the controller driver to stay idle")
	}
}
