package core

// StepperBackend defines the hardware abstraction for discrete step pulses.
// Implementations can use GPIO, PIO, or other methods
type StepperBackend interface {
	// Init prepares the step and direction outputs.
	// invertDir: invert direction pin polarity
	Init(stepPin, dirPin GPIOPin, invertDir bool) error

	// SetDirection sets the direction output
	// reverse: true = negative travel, false = positive travel
	// Must ensure proper dir-to-step setup time
	SetDirection(reverse bool) error

	// Step generates a single step pulse and returns once it is complete.
	// Must honour the driver's minimum pulse width
	Step() error

	// Stop immediately halts stepping and leaves the step pin low
	Stop()

	// Name returns backend implementation name
	Name() string
}

// StepperBackendInfo provides information about available backends
type StepperBackendInfo struct {
	Name        string
	MaxStepRate uint32 // Maximum steps/second
	MinPulseNs  uint32 // Minimum step pulse width (ns)
}
