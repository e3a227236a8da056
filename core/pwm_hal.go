package core

// DefaultDutyCycle is the duty fraction used for continuous step waveforms
const DefaultDutyCycle = 0.5

// PulseGenerator emits a continuous square wave on a pin.
// Platform-specific implementations use a hardware PWM slice (RP2040) or
// software toggling (SoftPWM) on hosts.
type PulseGenerator interface {
	// StartContinuous starts (or retunes) a waveform at freqHz with the given
	// duty fraction (0.0-1.0). freqHz must be > 0
	StartContinuous(pin GPIOPin, freqHz float64, duty float64) error

	// Stop halts the waveform and leaves the pin low
	Stop(pin GPIOPin) error
}
