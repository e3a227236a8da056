package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// Logic levels used by the step/direction driver
const (
	LevelLow  = false
	LevelHigh = true
)

// GPIODriver is the abstract GPIO interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	// Returns error if pin is invalid or already in use
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInputPullUp configures a pin as a digital input with pull-up resistor
	ConfigureInputPullUp(pin GPIOPin) error

	// ConfigureInputPullDown configures a pin as a digital input with pull-down resistor
	ConfigureInputPullDown(pin GPIOPin) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error

	// GetPin reads the current pin state
	GetPin(pin GPIOPin) (bool, error)

	// ReadPin reads the current pin state, treating read errors as low
	ReadPin(pin GPIOPin) bool
}

// PinRef returns a pointer to pin, for optional pin fields in configs
func PinRef(pin GPIOPin) *GPIOPin {
	return &pin
}
