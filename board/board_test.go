package board

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"spibind/core"
	"spibind/sim"
)

func newBoard(t *testing.T, cfg Config) (*Board, *sim.Bank) {
	t.Helper()
	bank := sim.NewBank()
	b, err := New(cfg, bank)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b, bank
}

func mustBus(t *testing.T, b *Board, id core.SPIBusID) core.DevOps {
	t.Helper()
	ops, ok := b.Bus(id)
	if !ok {
		t.Fatalf("bus %s not enabled", id)
	}
	return ops
}

func mustCmdData(t *testing.T, ops core.DevOps) core.CmdDataSelector {
	t.Helper()
	cd, ok := ops.(core.CmdDataSelector)
	if !ok {
		t.Fatalf("binding %T has no cmd/data support", ops)
	}
	return cd
}

// captureDebug routes debug output into a slice for the duration of the test
func captureDebug(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	core.SetDebugWriter(func(s string) { lines = append(lines, s) })
	core.SetDebugEnabled(true)
	t.Cleanup(func() {
		core.SetDebugEnabled(false)
		core.SetDebugWriter(func(string) {})
	})
	return &lines
}

func TestInitializeIdlesChipSelects(t *testing.T) {
	b, bank := newBoard(t, XMC4800Relax())
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// The pin comes up de-asserted; it is never driven low on the way
	want := []sim.Event{
		{Pin: RelaxCS, Op: sim.OpConfigureOutput, Level: true},
	}
	if diff := cmp.Diff(want, bank.Events()); diff != "" {
		t.Errorf("init trace mismatch (-want +got):\n%s", diff)
	}
	if bank.Direction(RelaxCS) != sim.Output {
		t.Errorf("Expected CS pin to be an output")
	}
}

func TestInitializePicoDisplay(t *testing.T) {
	b, bank := newBoard(t, PicoDisplay())
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	for _, pin := range []core.GPIOPin{PicoLCDCS, PicoFlashCS, PicoTempCS} {
		if bank.Direction(pin) != sim.Output {
			t.Errorf("pin %d: expected output", pin)
		}
		if !bank.Level(pin) {
			t.Errorf("pin %d: expected de-asserted (high) chip select", pin)
		}
	}
	if !bank.Level(PicoLCDDC) {
		t.Errorf("Expected D/C line to idle in data mode (high)")
	}
	if bank.Direction(PicoSDDetect) != sim.Input {
		t.Errorf("Expected card detect to be an input")
	}
	if mustBus(t, b, PicoSDBus).Status(PicoSD) != 0 {
		t.Errorf("Expected no card with the detect switch open")
	}
}

func TestInitializeRunsOnce(t *testing.T) {
	b, bank := newBoard(t, XMC4800Relax())
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	bank.ClearEvents()

	if err := b.Initialize(); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}
	if n := len(bank.Events()); n != 0 {
		t.Errorf("Expected no pin activity on second Initialize, got %d events", n)
	}
}

func TestInitializeSkipsDisabledBuses(t *testing.T) {
	cfg := PicoDisplay()
	cfg.Buses[1].Enabled = false

	b, bank := newBoard(t, cfg)
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	for _, pin := range []core.GPIOPin{PicoLCDCS, PicoLCDDC, PicoFlashCS} {
		if bank.Direction(pin) != sim.Unconfigured {
			t.Errorf("pin %d on disabled bus was configured", pin)
		}
	}
	if _, ok := b.Bus(PicoLCDBus); ok {
		t.Errorf("Expected no binding for disabled bus")
	}
}

func TestInitializeReportsAllFailures(t *testing.T) {
	errBroken := errors.New("pad broken")

	b, bank := newBoard(t, PicoDisplay())
	bank.Fail(PicoLCDCS, errBroken)

	err := b.Initialize()
	if err == nil {
		t.Fatal("Expected Initialize to report the failed pin")
	}
	if !errors.Is(err, errBroken) {
		t.Errorf("Expected error to wrap the GPIO failure, got %v", err)
	}
	// The failure on the LCD must not keep the flash chip select floating
	if bank.Direction(PicoFlashCS) != sim.Output || !bank.Level(PicoFlashCS) {
		t.Errorf("Expected flash CS to be configured despite the LCD failure")
	}
}

func TestSoftwareManagedSelect(t *testing.T) {
	b, bank := newBoard(t, XMC4800Relax())
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	ops := mustBus(t, b, 4)

	ops.Select(0, true)
	if bank.Level(RelaxCS) {
		t.Errorf("Expected CS driven low after select")
	}
	if s := ops.Status(0); s != 0 {
		t.Errorf("Expected status 0 while selected, got %#x", s)
	}

	// Selecting again changes nothing
	ops.Select(0, true)
	if bank.Level(RelaxCS) {
		t.Errorf("Expected CS to stay low on repeated select")
	}

	ops.Select(0, false)
	if !bank.Level(RelaxCS) {
		t.Errorf("Expected CS driven high after de-select")
	}
	if s := ops.Status(0); s != 0 {
		t.Errorf("Expected status 0 after de-select, got %#x", s)
	}
}

func TestActiveHighChipSelect(t *testing.T) {
	cfg := Config{
		Name: "active-high",
		Buses: []BusConfig{{
			ID: 1, Enabled: true, Select: SelectGPIO,
			Devices: []DeviceConfig{{ID: 3, CS: &Line{Pin: 5, ActiveHigh: true}}},
		}},
	}
	b, bank := newBoard(t, cfg)
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if bank.Level(5) {
		t.Fatalf("Expected active-high CS to idle low")
	}

	ops := mustBus(t, b, 1)
	ops.Select(3, true)
	if !bank.Level(5) {
		t.Errorf("Expected active-high CS driven high when selected")
	}
	ops.Select(3, false)
	if bank.Level(5) {
		t.Errorf("Expected active-high CS driven low when released")
	}
}

func TestSelectUnknownDeviceLeavesPins(t *testing.T) {
	lines := captureDebug(t)

	b, bank := newBoard(t, PicoDisplay())
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	bank.ClearEvents()

	mustBus(t, b, PicoLCDBus).Select(9, true)
	if n := len(bank.Events()); n != 0 {
		t.Errorf("Expected no pin activity for unknown device, got %d events", n)
	}
	if !strings.Contains(strings.Join(*lines, "\n"), "spi8 devid: 9 has no CS line") {
		t.Errorf("Expected unknown device to be logged, got %q", *lines)
	}
}

// SPI4 on the Relax kit has one select line that serves every device id,
// including encoded ids such as an MMC/SD slot at 0x10000
func TestBusChipSelectServesAnyDevice(t *testing.T) {
	b, bank := newBoard(t, XMC4800Relax())
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	ops := mustBus(t, b, 4)

	for _, dev := range []core.DeviceID{0, 1, 0x10000} {
		ops.Select(dev, true)
		if bank.Level(RelaxCS) {
			t.Errorf("devid %#x: expected CS driven low after select", dev)
		}
		ops.Select(dev, false)
		if !bank.Level(RelaxCS) {
			t.Errorf("devid %#x: expected CS driven high after de-select", dev)
		}
	}
}

func TestDeviceChipSelectOverridesBusLine(t *testing.T) {
	cfg := Config{
		Name: "mixed",
		Buses: []BusConfig{{
			ID: 1, Enabled: true, Select: SelectGPIO,
			CS:      &Line{Pin: 5},
			Devices: []DeviceConfig{{ID: 2, CS: &Line{Pin: 6}}},
		}},
	}
	b, bank := newBoard(t, cfg)
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	ops := mustBus(t, b, 1)

	ops.Select(2, true)
	if bank.Level(6) || !bank.Level(5) {
		t.Errorf("Expected only the device's own CS asserted, got pin5=%v pin6=%v", bank.Level(5), bank.Level(6))
	}
	ops.Select(2, false)

	ops.Select(3, true)
	if bank.Level(5) || !bank.Level(6) {
		t.Errorf("Expected the bus CS for a device without its own line, got pin5=%v pin6=%v", bank.Level(5), bank.Level(6))
	}
}

func TestHardwareManagedSelectIsNoop(t *testing.T) {
	lines := captureDebug(t)

	b, bank := newBoard(t, PicoDisplay())
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	bank.ClearEvents()

	ops := mustBus(t, b, PicoSDBus)
	ops.Select(PicoSD, true)
	ops.Select(PicoSD, false)

	if n := len(bank.Events()); n != 0 {
		t.Errorf("Expected hardware-managed select to leave pins alone, got %d events", n)
	}
	want := []string{"spi2 devid: 0 CS: assert", "spi2 devid: 0 CS: de-assert"}
	got := (*lines)[len(*lines)-2:]
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("select trace mismatch (-want +got):\n%s", diff)
	}
}

func TestStatusSenseLines(t *testing.T) {
	cfg := Config{
		Name: "sd-slot",
		Buses: []BusConfig{{
			ID: 0, Enabled: true, Select: SelectGPIO,
			Devices: []DeviceConfig{{
				ID:           0,
				CS:           &Line{Pin: 1},
				CardDetect:   &Line{Pin: 2},
				WriteProtect: &Line{Pin: 3, ActiveHigh: true},
			}},
		}},
	}
	b, bank := newBoard(t, cfg)
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	ops := mustBus(t, b, 0)

	tests := []struct {
		name   string
		detect bool
		wp     bool
		want   core.Status
	}{
		{"empty slot", true, false, 0},
		{"card inserted", false, false, core.StatusPresent},
		{"card write protected", false, true, core.StatusPresent | core.StatusWriteProtected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bank.Drive(2, tt.detect)
			bank.Drive(3, tt.wp)

			first := ops.Status(0)
			second := ops.Status(0)
			if first != tt.want {
				t.Errorf("Expected status %#x, got %#x", tt.want, first)
			}
			if first != second {
				t.Errorf("Status not idempotent: %#x then %#x", first, second)
			}
		})
	}

	if s := ops.Status(42); s != 0 {
		t.Errorf("Expected unknown device to report 0, got %#x", s)
	}
}

func TestStatusWithoutSelect(t *testing.T) {
	b, _ := newBoard(t, XMC4800Relax())
	// Never initialized, never selected
	if s := mustBus(t, b, 4).Status(0); s != 0 {
		t.Errorf("Expected 0 from a board without sense hardware, got %#x", s)
	}
}

func TestCmdDataIndependentOfChipSelect(t *testing.T) {
	b, bank := newBoard(t, PicoDisplay())
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	ops := mustBus(t, b, PicoLCDBus)
	cd := mustCmdData(t, ops)

	ops.Select(PicoLCD, true)

	if err := cd.CmdData(PicoLCD, true); err != nil {
		t.Fatalf("CmdData(command) failed: %v", err)
	}
	if bank.Level(PicoLCDDC) {
		t.Errorf("Expected D/C low in command mode")
	}
	if bank.Level(PicoLCDCS) {
		t.Errorf("cmd/data switch moved the chip select")
	}

	if err := cd.CmdData(PicoLCD, false); err != nil {
		t.Fatalf("CmdData(data) failed: %v", err)
	}
	if !bank.Level(PicoLCDDC) {
		t.Errorf("Expected D/C high in data mode")
	}
	if bank.Level(PicoLCDCS) {
		t.Errorf("cmd/data switch moved the chip select")
	}

	ops.Select(PicoLCD, false)
	if !bank.Level(PicoLCDCS) {
		t.Errorf("Expected CS released")
	}
	if !bank.Level(PicoLCDDC) {
		t.Errorf("de-select moved the D/C line")
	}
}

func TestCmdDataWithoutLineIsNoop(t *testing.T) {
	cfg := XMC4800Relax()
	cfg.CmdData = true
	cfg.Buses[0].Enabled = true

	b, bank := newBoard(t, cfg)
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	bank.ClearEvents()

	cd := mustCmdData(t, mustBus(t, b, 0))
	for _, cmd := range []bool{true, false} {
		if err := cd.CmdData(0, cmd); err != nil {
			t.Errorf("CmdData(0, %v) failed: %v", cmd, err)
		}
	}
	if n := len(bank.Events()); n != 0 {
		t.Errorf("Expected no pin activity, got %d events", n)
	}

	// A wired board whose device simply has no D/C line behaves the same
	pico, _ := newBoard(t, PicoDisplay())
	if err := mustCmdData(t, mustBus(t, pico, PicoLCDBus)).CmdData(PicoFlash, true); err != nil {
		t.Errorf("CmdData on flash failed: %v", err)
	}
}

func TestCmdDataRejected(t *testing.T) {
	b, bank := newBoard(t, PicoDisplay())
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	cd := mustCmdData(t, mustBus(t, b, PicoLCDBus))

	err := cd.CmdData(7, true)
	if !errors.Is(err, core.ErrCmdDataRejected) {
		t.Errorf("Expected ErrCmdDataRejected for unknown device, got %v", err)
	}

	errStuck := errors.New("line stuck")
	bank.Fail(PicoLCDDC, errStuck)
	err = cd.CmdData(PicoLCD, true)
	if !errors.Is(err, core.ErrCmdDataRejected) || !errors.Is(err, errStuck) {
		t.Errorf("Expected rejection wrapping the GPIO error, got %v", err)
	}
	var cde *CmdDataError
	if !errors.As(err, &cde) || cde.Bus != PicoLCDBus || cde.Dev != PicoLCD {
		t.Errorf("Expected CmdDataError for spi8 devid 0, got %#v", err)
	}
	if !bank.Level(PicoLCDDC) {
		t.Errorf("Expected D/C level unchanged after rejected write")
	}
}

func TestCmdDataFeatureDisabled(t *testing.T) {
	b, _ := newBoard(t, XMC4800Relax())
	if _, ok := mustBus(t, b, 4).(core.CmdDataSelector); ok {
		t.Errorf("Expected no cmd/data selector without the feature")
	}
}

func TestSelectionState(t *testing.T) {
	lines := captureDebug(t)

	b, _ := newBoard(t, PicoDisplay())
	ops := mustBus(t, b, PicoLCDBus)
	cd := mustCmdData(t, ops)

	check := func(want DeviceState) {
		t.Helper()
		if got := b.State(PicoLCDBus, PicoLCD); got != want {
			t.Errorf("Expected state %+v, got %+v", want, got)
		}
	}

	check(DeviceState{Phase: Idle})
	ops.Select(PicoLCD, true)
	check(DeviceState{Phase: Selected, Mode: ModeUnknown})
	_ = cd.CmdData(PicoLCD, true)
	check(DeviceState{Phase: Selected, Mode: ModeCommand})
	_ = cd.CmdData(PicoLCD, false)
	check(DeviceState{Phase: Selected, Mode: ModeData})
	ops.Select(PicoLCD, false)
	check(DeviceState{Phase: Idle})

	if len(*lines) == 0 {
		t.Fatal("Expected select trace on the debug writer")
	}
	for _, l := range *lines {
		if strings.Contains(l, "caller error") {
			t.Errorf("Unexpected caller error for a well-ordered sequence: %q", l)
		}
	}
}

func TestSelectionCallerErrors(t *testing.T) {
	lines := captureDebug(t)

	b, bank := newBoard(t, PicoDisplay())
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	ops := mustBus(t, b, PicoLCDBus)
	cd := mustCmdData(t, ops)

	// cmd/data while idle is logged but still drives the line
	if err := cd.CmdData(PicoLCD, true); err != nil {
		t.Errorf("CmdData while idle failed: %v", err)
	}
	if bank.Level(PicoLCDDC) {
		t.Errorf("Expected D/C line driven even when called out of order")
	}
	if b.State(PicoLCDBus, PicoLCD).Phase != Idle {
		t.Errorf("cmd/data must not select the device")
	}

	ops.Select(PicoLCD, true)
	ops.Select(PicoFlash, true)

	joined := strings.Join(*lines, "\n")
	for _, want := range []string{
		"spi8 devid: 0 caller error: cmd/data while idle",
		"spi8 devid: 1 caller error: assert while devid 0 holds the bus",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected debug line %q", want)
		}
	}
}

type recordingOps struct {
	selects []string
}

func (r *recordingOps) Select(dev core.DeviceID, selected bool) {
	state := "off"
	if selected {
		state = "on"
	}
	r.selects = append(r.selects, core.Utoa(uint32(dev))+":"+state)
}

func (r *recordingOps) Status(core.DeviceID) core.Status {
	return core.StatusPresent
}

func TestOverride(t *testing.T) {
	b, bank := newBoard(t, XMC4800Relax())
	if err := b.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	bank.ClearEvents()

	custom := &recordingOps{}
	if err := b.Override(4, custom); err != nil {
		t.Fatalf("Override failed: %v", err)
	}
	ops := mustBus(t, b, 4)
	ops.Select(0, true)
	ops.Select(0, false)

	if diff := cmp.Diff([]string{"0:on", "0:off"}, custom.selects); diff != "" {
		t.Errorf("override not used (-want +got):\n%s", diff)
	}
	if ops.Status(0) != core.StatusPresent {
		t.Errorf("Expected status from override")
	}
	if n := len(bank.Events()); n != 0 {
		t.Errorf("Expected default binding bypassed, got %d events", n)
	}

	if err := b.Override(1, custom); err == nil {
		t.Errorf("Expected error overriding a disabled bus")
	}
	if err := b.Override(4, nil); err == nil {
		t.Errorf("Expected error for nil binding")
	}
	var typedNil *recordingOps
	if err := b.Override(4, typedNil); err == nil {
		t.Errorf("Expected error for typed nil binding")
	}
}

type recordingCmdDataOps struct {
	recordingOps
	modes []bool
}

func (r *recordingCmdDataOps) CmdData(dev core.DeviceID, cmd bool) error {
	r.modes = append(r.modes, cmd)
	return nil
}

func TestOverrideKeepsCmdData(t *testing.T) {
	b, _ := newBoard(t, PicoDisplay())

	if err := b.Override(PicoLCDBus, &recordingOps{}); err == nil {
		t.Errorf("Expected a binding without cmd/data to be rejected on a cmd/data board")
	}
	if _, ok := mustBus(t, b, PicoLCDBus).(*cmdDataBinding); !ok {
		t.Errorf("Expected the default binding to stay after a rejected override")
	}

	custom := &recordingCmdDataOps{}
	if err := b.Override(PicoLCDBus, custom); err != nil {
		t.Fatalf("Override failed: %v", err)
	}
	if err := mustCmdData(t, mustBus(t, b, PicoLCDBus)).CmdData(PicoLCD, true); err != nil {
		t.Fatalf("CmdData failed: %v", err)
	}
	if diff := cmp.Diff([]bool{true}, custom.modes); diff != "" {
		t.Errorf("override not used (-want +got):\n%s", diff)
	}
}

func TestSPIDriverPicksTransport(t *testing.T) {
	b, _ := newBoard(t, PicoDisplay())
	hw := sim.NewSPI(sim.NewBank())

	if got := b.SPIDriver(PicoLCDBus, hw); got != core.SPIDriver(hw) {
		t.Errorf("Expected controller driver for spi8, got %T", got)
	}
	if _, ok := b.SPIDriver(PicoSensorBus, hw).(*core.SoftwareSPIDriver); !ok {
		t.Errorf("Expected bit-banged driver for the sensor bus")
	}
}

func TestBuses(t *testing.T) {
	b, _ := newBoard(t, PicoDisplay())
	if diff := cmp.Diff([]core.SPIBusID{PicoSDBus, PicoLCDBus, PicoSensorBus}, b.Buses()); diff != "" {
		t.Errorf("enabled buses mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRejectsNilDriver(t *testing.T) {
	if _, err := New(XMC4800Relax(), nil); err == nil {
		t.Error("Expected error for nil GPIO driver")
	}
}
