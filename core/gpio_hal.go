package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// Pull selects the input bias of a pin configured as input
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// GPIODriver is the abstract GPIO interface that binding code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output driving initial.
	// The level is applied before the output is enabled where the hardware
	// allows it. Configuring an already configured pin is not an error.
	ConfigureOutput(pin GPIOPin, initial bool) error

	// ConfigureInput configures a pin as a digital input with the given bias
	ConfigureInput(pin GPIOPin, pull Pull) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error

	// GetPin reads the current pin state
	GetPin(pin GPIOPin) (bool, error)
}

// Global singleton registered by target code.
var gpioDriver GPIODriver

// SetGPIODriver is called by target-specific code to register its driver.
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}

// MustGPIO returns the configured driver or panics if missing.
func MustGPIO() GPIODriver {
	if gpioDriver == nil {
		panic("GPIO driver not configured")
	}
	return gpioDriver
}
