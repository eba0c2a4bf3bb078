// Package sim provides simulated pin and bus hardware for exercising board
// bindings without a board attached.
package sim

import (
	"errors"
	"sync"

	"spibind/core"
)

// Direction of a simulated line
type Direction uint8

const (
	Unconfigured Direction = iota
	Input
	Output
)

// Op identifies what happened to a line in the event trace
type Op uint8

const (
	OpConfigureOutput Op = iota + 1
	OpConfigureInput
	OpSet
)

func (o Op) String() string {
	switch o {
	case OpConfigureOutput:
		return "cfg-out"
	case OpConfigureInput:
		return "cfg-in"
	case OpSet:
		return "set"
	}
	return "unknown"
}

// Event is one recorded pin operation
type Event struct {
	Pin   core.GPIOPin
	Op    Op
	Level bool
}

var ErrNotOutput = errors.New("sim: pin not configured as output")

type line struct {
	dir   Direction
	pull  core.Pull
	level bool
}

// Bank is an in-memory GPIO controller implementing core.GPIODriver.
// Every configure and write is appended to an event trace.
type Bank struct {
	mu     sync.Mutex
	lines  map[core.GPIOPin]*line
	events []Event
	fail   map[core.GPIOPin]error
}

var _ core.GPIODriver = (*Bank)(nil)

// NewBank creates an empty bank; every line reads low until driven
func NewBank() *Bank {
	return &Bank{
		lines: make(map[core.GPIOPin]*line),
		fail:  make(map[core.GPIOPin]error),
	}
}

func (b *Bank) get(pin core.GPIOPin) *line {
	l, ok := b.lines[pin]
	if !ok {
		l = &line{}
		b.lines[pin] = l
	}
	return l
}

// ConfigureOutput implements core.GPIODriver
func (b *Bank) ConfigureOutput(pin core.GPIOPin, initial bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.fail[pin]; err != nil {
		return err
	}
	l := b.get(pin)
	l.dir = Output
	l.level = initial
	b.events = append(b.events, Event{Pin: pin, Op: OpConfigureOutput, Level: l.level})
	return nil
}

// ConfigureInput implements core.GPIODriver. A pull-up makes an undriven
// line read high, a pull-down makes it read low.
func (b *Bank) ConfigureInput(pin core.GPIOPin, pull core.Pull) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.fail[pin]; err != nil {
		return err
	}
	l := b.get(pin)
	l.dir = Input
	l.pull = pull
	switch pull {
	case core.PullUp:
		l.level = true
	case core.PullDown:
		l.level = false
	}
	b.events = append(b.events, Event{Pin: pin, Op: OpConfigureInput, Level: l.level})
	return nil
}

// SetPin implements core.GPIODriver
func (b *Bank) SetPin(pin core.GPIOPin, value bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.fail[pin]; err != nil {
		return err
	}
	l := b.get(pin)
	if l.dir != Output {
		return ErrNotOutput
	}
	l.level = value
	b.events = append(b.events, Event{Pin: pin, Op: OpSet, Level: value})
	return nil
}

// GetPin implements core.GPIODriver
func (b *Bank) GetPin(pin core.GPIOPin) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if l, ok := b.lines[pin]; ok {
		return l.level, nil
	}
	return false, nil
}

// Drive sets the level an external circuit applies to an input line
func (b *Bank) Drive(pin core.GPIOPin, level bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.get(pin).level = level
}

// Level returns the current level of pin
func (b *Bank) Level(pin core.GPIOPin) bool {
	level, _ := b.GetPin(pin)
	return level
}

// Direction returns how pin is configured
func (b *Bank) Direction(pin core.GPIOPin) Direction {
	b.mu.Lock()
	defer b.mu.Unlock()

	if l, ok := b.lines[pin]; ok {
		return l.dir
	}
	return Unconfigured
}

// Events returns a copy of the trace
func (b *Bank) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// ClearEvents empties the trace without touching line state
func (b *Bank) ClearEvents() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = nil
}

// Fail makes every configure and write on pin return err. A nil err clears it.
func (b *Bank) Fail(pin core.GPIOPin, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		delete(b.fail, pin)
		return
	}
	b.fail[pin] = err
}
