package board

import (
	"sync"

	"spibind/core"
)

// Phase of a device's chip select
type Phase uint8

const (
	Idle Phase = iota
	Selected
)

// Mode of a selected device's command/data line
type Mode uint8

const (
	ModeUnknown Mode = iota // selected, no cmd/data call yet
	ModeCommand
	ModeData
)

// DeviceState is the tracked selection state of one device
type DeviceState struct {
	Phase Phase
	Mode  Mode
}

// tracker follows IDLE -> SELECTED(mode) -> IDLE per device. Call-order
// violations are the caller's bug; they are reported on the debug writer
// and otherwise let through.
type tracker struct {
	mu       sync.Mutex
	bus      core.SPIBusID
	selected map[core.DeviceID]Mode
}

func newTracker(bus core.SPIBusID) *tracker {
	return &tracker{
		bus:      bus,
		selected: make(map[core.DeviceID]Mode),
	}
}

func (t *tracker) onSelect(dev core.DeviceID, selected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !selected {
		if _, ok := t.selected[dev]; !ok {
			t.callerError(dev, "de-assert while idle")
		}
		delete(t.selected, dev)
		return
	}

	for other := range t.selected {
		if other != dev {
			t.callerError(dev, "assert while devid "+core.Utoa(uint32(other))+" holds the bus")
		}
	}
	t.selected[dev] = ModeUnknown
}

func (t *tracker) onCmdData(dev core.DeviceID, cmd bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.selected[dev]; !ok {
		t.callerError(dev, "cmd/data while idle")
		return
	}
	if cmd {
		t.selected[dev] = ModeCommand
	} else {
		t.selected[dev] = ModeData
	}
}

func (t *tracker) state(dev core.DeviceID) DeviceState {
	t.mu.Lock()
	defer t.mu.Unlock()

	mode, ok := t.selected[dev]
	if !ok {
		return DeviceState{Phase: Idle}
	}
	return DeviceState{Phase: Selected, Mode: mode}
}

func (t *tracker) callerError(dev core.DeviceID, what string) {
	core.DebugPrintln(t.bus.String() + " devid: " + core.Utoa(uint32(dev)) + " caller error: " + what)
}
