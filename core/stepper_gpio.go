package core

import "time"

// GPIOStepperBackend implements stepper control using direct GPIO writes.
// This is the portable baseline: each pulse is high for pulseWidth and
// low for pulseWidth, timed by the Clock.
type GPIOStepperBackend struct {
	drv        GPIODriver
	clock      Clock
	pulseWidth time.Duration
	dirSetup   time.Duration

	step      *DigitalOut
	dir       *DigitalOut
	invertDir bool
}

// NewGPIOStepperBackend creates a new GPIO-based stepper backend.
// A zero pulseWidth selects DefaultMinPulseWidth; a nil clock the SystemClock
func NewGPIOStepperBackend(drv GPIODriver, clock Clock, pulseWidth time.Duration) *GPIOStepperBackend {
	if clock == nil {
		clock = SystemClock{}
	}
	if pulseWidth <= 0 {
		pulseWidth = DefaultMinPulseWidth
	}
	return &GPIOStepperBackend{
		drv:        drv,
		clock:      clock,
		pulseWidth: pulseWidth,
		dirSetup:   DefaultDirSetupTime,
	}
}

// Init configures both pins as outputs driven low
func (b *GPIOStepperBackend) Init(stepPin, dirPin GPIOPin, invertDir bool) error {
	step, err := NewDigitalOut(b.drv, stepPin, LevelLow, LevelLow)
	if err != nil {
		return err
	}
	dir, err := NewDigitalOut(b.drv, dirPin, LevelLow, LevelLow)
	if err != nil {
		return err
	}
	b.step = step
	b.dir = dir
	b.invertDir = invertDir
	return nil
}

// SetDirection drives DIR high for reverse travel (inverted if configured)
// and waits out the dir-to-step setup time when the level changed
func (b *GPIOStepperBackend) SetDirection(reverse bool) error {
	level := reverse != b.invertDir
	changed := b.dir.IsOn() != level
	if err := b.dir.Set(level); err != nil {
		return err
	}
	if changed {
		b.clock.Sleep(b.dirSetup)
	}
	return nil
}

// Step generates a single step pulse
func (b *GPIOStepperBackend) Step() error {
	if err := b.step.Set(LevelHigh); err != nil {
		return err
	}
	b.clock.Sleep(b.pulseWidth)
	if err := b.step.Set(LevelLow); err != nil {
		return err
	}
	b.clock.Sleep(b.pulseWidth)
	return nil
}

// Stop ensures the step pin is low
func (b *GPIOStepperBackend) Stop() {
	if b.step != nil {
		_ = b.step.Set(LevelLow)
	}
}

// Name returns the backend name
func (b *GPIOStepperBackend) Name() string {
	return "GPIO"
}

// Info returns backend timing information
func (b *GPIOStepperBackend) Info() StepperBackendInfo {
	period := 2 * b.pulseWidth
	return StepperBackendInfo{
		Name:        b.Name(),
		MaxStepRate: uint32(time.Second / period),
		MinPulseNs:  uint32(b.pulseWidth.Nanoseconds()),
	}
}
